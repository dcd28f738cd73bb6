package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"pointcast/internal/session"
	"pointcast/pkg/interfaces"
	"pointcast/pkg/types"
)

// SessionReader is the read-only store view the lookup endpoints need.
type SessionReader interface {
	Get(ctx context.Context, sessionID string) (*types.Session, error)
}

// SessionDeleter removes a session outright.
type SessionDeleter interface {
	Delete(ctx context.Context, sessionID string) error
}

// StatsProvider reports connection counters for the health endpoint.
type StatsProvider interface {
	Stats() map[string]int
}

// Server is the thin request/response facade: session lookup, history
// lookup, explicit deletion and health. It never touches the command write
// path.
type Server struct {
	reader  SessionReader
	deleter SessionDeleter
	stats   StatsProvider
	router  *http.ServeMux
}

// NewServer creates the REST facade.
func NewServer(reader SessionReader, deleter SessionDeleter, stats StatsProvider) *Server {
	s := &Server{
		reader:  reader,
		deleter: deleter,
		stats:   stats,
		router:  http.NewServeMux(),
	}

	s.router.Handle("/api/sessions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessionByID))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleSessionByID serves /api/sessions/{id} and /api/sessions/{id}/history.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) == 0 || parts[0] == "" {
		s.sendError(w, "Session ID required", http.StatusBadRequest)
		return
	}
	sessionID := parts[0]

	if !session.ValidSessionID(sessionID) {
		s.sendError(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.getSession(w, r, sessionID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.deleteSession(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "history" && r.Method == http.MethodGet:
		s.getHistory(w, r, sessionID)
	case r.Method == http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// SessionResponse wraps a session document for JSON responses.
type SessionResponse struct {
	Session *types.Session `json:"session"`
}

// HistoryResponse carries a session's archived rounds.
type HistoryResponse struct {
	SessionID    string              `json:"sessionId"`
	StoryHistory []types.StoryResult `json:"storyHistory"`
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	doc, err := s.reader.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
			return
		}
		log.Printf("Session lookup failed for %s: %v", sessionID, err)
		s.sendError(w, "Failed to load session", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, SessionResponse{Session: doc}, http.StatusOK)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request, sessionID string) {
	doc, err := s.reader.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
			return
		}
		log.Printf("History lookup failed for %s: %v", sessionID, err)
		s.sendError(w, "Failed to load session", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, HistoryResponse{SessionID: doc.ID, StoryHistory: doc.StoryHistory}, http.StatusOK)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := s.deleter.Delete(r.Context(), sessionID); err != nil {
		log.Printf("Session deletion failed for %s: %v", sessionID, err)
		s.sendError(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, map[string]string{"status": "deleted", "sessionId": sessionID}, http.StatusOK)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UnixMilli(),
	}
	if s.stats != nil {
		body["connections"] = s.stats.Stats()
	}
	s.sendJSON(w, body, http.StatusOK)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, v interface{}, status int) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, status int) {
	s.sendJSON(w, map[string]string{"error": message}, status)
}
