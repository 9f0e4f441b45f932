package status

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"laynote-sync-client/internal/events"
	"laynote-sync-client/pkg/response"
)

// Server exposes the client's connection health over HTTP so the surrounding
// tooling can poll it: /health for liveness, /status for connection state,
// the bound note and the last surfaced error. It observes the hub; it never
// drives the connection.
type Server struct {
	srv *http.Server

	mu        sync.Mutex
	connected bool
	lastError string
	noteID    string
}

func NewServer(addr string, hub *events.Hub) *Server {
	s := &Server{}

	hub.On(events.Connected, s.onConnected)
	hub.On(events.Disconnected, s.onDisconnected)
	hub.On(events.Error, s.onError)

	r := mux.NewRouter()
	r.Use(loggerMiddleware())
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/status", s.handleStatus).Methods("GET")
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "not found")
	})

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) onConnected(payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.lastError = ""
}

func (s *Server) onDisconnected(payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
}

func (s *Server) onError(payload any) {
	reason, ok := payload.(string)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.lastError = reason
}

// SetNote records which note the engine currently has bound.
func (s *Server) SetNote(noteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noteID = noteID
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "laynote-sync-client",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	state := "disconnected"
	if s.connected {
		state = "connected"
	}
	body := map[string]any{
		"connection": state,
		"note_id":    s.noteID,
		"last_error": s.lastError,
	}
	s.mu.Unlock()

	response.JSON(w, http.StatusOK, body)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
