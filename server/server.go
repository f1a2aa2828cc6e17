package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"relayflow/incident"
	"relayflow/workflow"
)

// Server drives workflow runs on behalf of HTTP clients and keeps an
// in-memory registry of them (single process; runs do not outlive it).
type Server struct {
	l      *slog.Logger
	runner *workflow.Runner
	hub    *streamHub

	mu    sync.Mutex
	runs  map[string]*workflow.Run
	order []string
}

func New(graph *workflow.Graph, l *slog.Logger) *Server {
	if l == nil {
		l = slog.Default()
	}
	hub := newStreamHub()
	return &Server{
		l:      l,
		runner: workflow.NewRunner(graph, workflow.WithLogger(l), workflow.WithEventSink(hub)),
		hub:    hub,
		runs:   make(map[string]*workflow.Run),
	}
}

// Routes registers the API on g.
func (s *Server) Routes(g *gin.Engine) {
	v1 := g.Group("/v1")
	v1.POST("/runs", s.submitRun)
	v1.GET("/runs", s.listRuns)
	v1.GET("/runs/:id", s.getRun)
	v1.POST("/runs/:id/responses", s.resolveRequest)
	v1.DELETE("/runs/:id", s.abandonRun)
	v1.GET("/runs/:id/events", s.streamEvents)
}

func (s *Server) submitRun(c *gin.Context) {
	var alert incident.AlertInput
	if err := c.ShouldBindJSON(&alert); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "wrong request body format"})
		return
	}

	run, err := s.runner.Run(c.Request.Context(), alert)
	if run == nil {
		s.l.Error("run rejected", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	s.track(run)

	// A failed run is still created and inspectable; the result carries the
	// error code and message.
	c.JSON(http.StatusCreated, run.Result())
}

func (s *Server) listRuns(c *gin.Context) {
	s.mu.Lock()
	results := make([]workflow.Result, 0, len(s.order))
	for _, id := range s.order {
		results = append(results, s.runs[id].Result())
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"runs": results})
}

func (s *Server) getRun(c *gin.Context) {
	run, ok := s.lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run.Result())
}

type resolveBody struct {
	CorrelationID string         `json:"correlation_id"`
	Response      map[string]any `json:"response"`
}

func (s *Server) resolveRequest(c *gin.Context) {
	run, ok := s.lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "run not found"})
		return
	}

	var body resolveBody
	if err := c.ShouldBindJSON(&body); err != nil || body.CorrelationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "wrong request body format"})
		return
	}

	var approval incident.TriageApproval
	if err := workflow.DecodePayload(body.Response, &approval); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "wrong response payload: " + err.Error()})
		return
	}

	err := run.Resume(c.Request.Context(), body.CorrelationID, approval)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, run.Result())
	case workflow.IsCode(err, workflow.CodeUnknownOrExpiredRequest):
		c.JSON(http.StatusGone, gin.H{"message": err.Error()})
	case workflow.IsCode(err, workflow.CodeResponseTypeMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": err.Error()})
	default:
		s.l.Error("resume failed", "run_id", run.ID(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
	}
}

func (s *Server) abandonRun(c *gin.Context) {
	run, ok := s.lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "run not found"})
		return
	}
	run.Abandon()
	c.JSON(http.StatusOK, run.Result())
}

func (s *Server) track(run *workflow.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID()] = run
	s.order = append(s.order, run.ID())
}

func (s *Server) lookup(id string) (*workflow.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	return run, ok
}
