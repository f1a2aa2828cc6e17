package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"relayflow/incident"
	"relayflow/workflow"
)

func TestStreamHubReplaysHistory(t *testing.T) {
	hub := newStreamHub()

	early := workflow.Event{Kind: workflow.EventRunStarted, RunID: "r1"}
	hub.OnEvent(early)
	hub.OnEvent(workflow.Event{Kind: workflow.EventRunStarted, RunID: "other"})

	sub, replay := hub.subscribe("r1")
	defer hub.unsubscribe("r1", sub)

	if len(replay) != 1 || replay[0].Kind != workflow.EventRunStarted {
		t.Fatalf("replay = %v, want the run's single event", replay)
	}

	late := workflow.Event{Kind: workflow.EventRunCompleted, RunID: "r1"}
	hub.OnEvent(late)

	select {
	case ev := <-sub.events:
		if ev.Kind != workflow.EventRunCompleted {
			t.Errorf("event kind = %s, want %s", ev.Kind, workflow.EventRunCompleted)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the live event")
	}
}

func TestStreamHubDropsSlowSubscribers(t *testing.T) {
	hub := newStreamHub()
	sub, _ := hub.subscribe("r1")
	defer hub.unsubscribe("r1", sub)

	// Flood well past the channel buffer; OnEvent must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			hub.OnEvent(workflow.Event{Kind: workflow.EventOutputYielded, RunID: "r1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnEvent blocked on a slow subscriber")
	}
}

func TestStreamEventsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	graph, err := incident.BuildPipeline(incident.Collaborators{})
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	srv := New(graph, slog.New(slog.NewTextHandler(io.Discard, nil)))
	g := gin.New()
	srv.Routes(g)

	ts := httptest.NewServer(g)
	defer ts.Close()

	// Complete a low-severity run first, then connect and expect the replay.
	alert := incident.DefaultAlert()
	alert.Severity = incident.SeverityLow
	resp, err := http.Post(ts.URL+"/v1/runs", "application/json", strings.NewReader(mustJSON(t, alert)))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var result workflow.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/runs/" + result.RunID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var kinds []workflow.EventKind
	for {
		var ev workflow.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event (got %v so far): %v", kinds, err)
		}
		kinds = append(kinds, ev.Kind)
		if ev.Kind == workflow.EventRunCompleted {
			break
		}
	}

	if kinds[0] != workflow.EventRunStarted {
		t.Errorf("first event = %s, want %s", kinds[0], workflow.EventRunStarted)
	}
	seen := map[workflow.EventKind]bool{}
	for _, k := range kinds {
		seen[k] = true
	}
	for _, want := range []workflow.EventKind{
		workflow.EventExecutorInvoked,
		workflow.EventOutputYielded,
		workflow.EventRunCompleted,
	} {
		if !seen[want] {
			t.Errorf("timeline %v is missing %s", kinds, want)
		}
	}
}

func TestStreamEventsUnknownRun(t *testing.T) {
	g := newTestEngine(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/missing/events", nil)
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}
