package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ernie/matchrunner/internal/orchestrator"
)

// RconRequest is the request body for RCON commands
type RconRequest struct {
	Command string `json:"command"`
}

// RconResponse is the response body for RCON commands
type RconResponse struct {
	Output string `json:"output"`
}

// handleRconCommand passes an operator command to the match console (admin only)
func (r *Router) handleRconCommand(w http.ResponseWriter, req *http.Request) {
	var rconReq RconRequest
	if err := json.NewDecoder(req.Body).Decode(&rconReq); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	command := strings.TrimSpace(rconReq.Command)
	if command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	log.WithField("operator", operator(req)).Infof("RCON command: %s", command)

	output, err := r.match.Send(req.Context(), command)
	switch {
	case errors.Is(err, orchestrator.ErrNotRunning):
		writeError(w, http.StatusConflict, "no match is running")
	case errors.Is(err, orchestrator.ErrNoConsole):
		writeError(w, http.StatusServiceUnavailable, "console is not configured")
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, RconResponse{Output: output})
	}
}
