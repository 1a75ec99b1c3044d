package api

import (
	"context"
	"net/http"

	"github.com/ernie/matchrunner/internal/auth"
	"github.com/ernie/matchrunner/internal/domain"
	"github.com/ernie/matchrunner/internal/storage"
)

// Match is the running match as seen by the live surface
type Match interface {
	Snapshot() domain.MatchStatus
	Send(ctx context.Context, command string) (string, error)
}

// Results is the match history store
type Results interface {
	ListResults(ctx context.Context, limit int) ([]storage.MatchSummary, error)
	GetResult(ctx context.Context, matchID string) (*domain.Result, error)
	PlayerRatings(ctx context.Context) ([]storage.PlayerRating, error)
}

// Router holds the HTTP routes and dependencies
type Router struct {
	mux       *http.ServeMux
	match     Match
	results   Results
	wsHub     *WebSocketHub
	logStream *LogStreamManager
	auth      *auth.Service
}

// NewRouter creates a new HTTP router. results may be nil, in which case
// the history routes are not served.
func NewRouter(match Match, hub *WebSocketHub, results Results, authService *auth.Service, logPath string) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		match:     match,
		results:   results,
		wsHub:     hub,
		logStream: NewLogStreamManager(logPath),
		auth:      authService,
	}

	r.mux.HandleFunc("GET /api/match", r.handleGetMatch)
	r.mux.HandleFunc("POST /api/match/rcon", r.requireAdmin(r.handleRconCommand))

	if results != nil {
		r.mux.HandleFunc("GET /api/matches", r.handleListMatches)
		r.mux.HandleFunc("GET /api/matches/{id}", r.handleGetResult)
		r.mux.HandleFunc("GET /api/ratings", r.handleGetRatings)
	}

	// WebSocket endpoints
	r.mux.HandleFunc("GET /ws", r.handleWebSocket)
	r.mux.HandleFunc("GET /ws/logs", r.handleLogWebSocket)

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// Close stops log streaming
func (r *Router) Close() {
	r.logStream.Close()
}
