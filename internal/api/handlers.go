package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ernie/matchrunner/internal/storage"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleGetMatch returns the live status of the running match
func (r *Router) handleGetMatch(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.match.Snapshot())
}

func (r *Router) handleListMatches(w http.ResponseWriter, req *http.Request) {
	limit := parseLimit(req, 20, 100)
	matches, err := r.results.ListResults(req.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if matches == nil {
		matches = []storage.MatchSummary{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (r *Router) handleGetResult(w http.ResponseWriter, req *http.Request) {
	result, err := r.results.GetResult(req.Context(), req.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "match not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (r *Router) handleGetRatings(w http.ResponseWriter, req *http.Request) {
	ratings, err := r.results.PlayerRatings(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ratings == nil {
		ratings = []storage.PlayerRating{}
	}
	writeJSON(w, http.StatusOK, ratings)
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"state":      r.match.Snapshot().State,
		"ws_clients": r.wsHub.ClientCount(),
	})
}
