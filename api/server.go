package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/wricardo/pongrelay/game/state"
	"github.com/wricardo/pongrelay/transport/websocket"
)

// maxEndPayload bounds the body accepted by POST /api/game/end.
const maxEndPayload = 64 * 1024

// Relay is the hub behaviour the HTTP surface depends on.
type Relay interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	Snapshot() state.GameState
	Stats() websocket.Stats
	Start(ctx context.Context) (int, error)
	End(ctx context.Context, payload json.RawMessage) (int, error)
}

// Server represents the HTTP API server
type Server struct {
	relay     Relay
	staticDir string
	router    *mux.Router
	logger    *slog.Logger
}

// NewServer creates a new API server. Static files are served only when staticDir is set.
func NewServer(relay Relay, staticDir string, logger *slog.Logger) *Server {
	s := &Server{
		relay:     relay,
		staticDir: staticDir,
		router:    mux.NewRouter(),
		logger:    logger.With("component", "api"),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Registered on the root router so a method mismatch answers 405
	s.router.HandleFunc("/api/state", s.handleGetState).Methods("GET")
	s.router.HandleFunc("/api/status", s.handleGetStatus).Methods("GET")
	s.router.HandleFunc("/api/game/start", s.handleStartGame).Methods("POST")
	s.router.HandleFunc("/api/game/end", s.handleEndGame).Methods("POST")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.relay.ServeWS)

	if s.staticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.staticDir)))
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// lifecycleResponse is returned by the start and end endpoints.
type lifecycleResponse struct {
	Type      string `json:"type"`
	Delivered int    `json:"delivered"`
	Status    string `json:"status"`
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.relay.Snapshot())
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.relay.Stats())
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	delivered, err := s.relay.Start(r.Context())
	if err != nil {
		s.respondRelayError(w, "start", err)
		return
	}

	s.logger.Info("game start requested over HTTP", "delivered", delivered)
	respondJSON(w, http.StatusOK, lifecycleResponse{
		Type:      websocket.TypeGameStart,
		Delivered: delivered,
		Status:    s.relay.Stats().Lifecycle.Status.String(),
	})
}

func (s *Server) handleEndGame(w http.ResponseWriter, r *http.Request) {
	var payload json.RawMessage

	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxEndPayload+1))
		if err != nil {
			respondError(w, http.StatusBadRequest, "Failed to read request body")
			return
		}
		if len(body) > maxEndPayload {
			respondError(w, http.StatusRequestEntityTooLarge, "Result payload too large")
			return
		}
		if len(body) > 0 {
			if !json.Valid(body) {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}
			payload = body
		}
	}

	delivered, err := s.relay.End(r.Context(), payload)
	if err != nil {
		s.respondRelayError(w, "end", err)
		return
	}

	s.logger.Info("game end requested over HTTP", "delivered", delivered)
	respondJSON(w, http.StatusOK, lifecycleResponse{
		Type:      websocket.TypeGameEnd,
		Delivered: delivered,
		Status:    s.relay.Stats().Lifecycle.Status.String(),
	})
}

func (s *Server) respondRelayError(w http.ResponseWriter, action string, err error) {
	s.logger.Error("lifecycle request failed", "action", action, "error", err)

	switch {
	case errors.Is(err, websocket.ErrHubClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
