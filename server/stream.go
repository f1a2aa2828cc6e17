package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"relayflow/workflow"
)

// streamHub fans engine events out to websocket subscribers and keeps each
// run's history so late joiners get a full replay.
type streamHub struct {
	mu      sync.Mutex
	history map[string][]workflow.Event
	subs    map[string]map[*subscriber]struct{}
}

type subscriber struct {
	events chan workflow.Event
}

func newStreamHub() *streamHub {
	return &streamHub{
		history: make(map[string][]workflow.Event),
		subs:    make(map[string]map[*subscriber]struct{}),
	}
}

// OnEvent implements workflow.EventSink. Slow subscribers are skipped rather
// than blocking the engine.
func (h *streamHub) OnEvent(ev workflow.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history[ev.RunID] = append(h.history[ev.RunID], ev)
	for sub := range h.subs[ev.RunID] {
		select {
		case sub.events <- ev:
		default:
		}
	}
}

// subscribe registers a subscriber for one run and returns the history so
// far. Events emitted after this call arrive on the subscriber channel.
func (h *streamHub) subscribe(runID string) (*subscriber, []workflow.Event) {
	sub := &subscriber{events: make(chan workflow.Event, 64)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[*subscriber]struct{})
	}
	h.subs[runID][sub] = struct{}{}
	replay := make([]workflow.Event, len(h.history[runID]))
	copy(replay, h.history[runID])
	return sub, replay
}

func (h *streamHub) unsubscribe(runID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[runID], sub)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The stream is read-only telemetry; origin checks are left to the
	// deployment's proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) streamEvents(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.lookup(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "run not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.l.Error("websocket upgrade failed", "run_id", id, "error", err)
		return
	}
	defer conn.Close()

	sub, replay := s.hub.subscribe(id)
	defer s.hub.unsubscribe(id, sub)

	for _, ev := range replay {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}

	// Reader goroutine: its only job is to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case ev := <-sub.events:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
