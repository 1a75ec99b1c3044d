package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/ernie/matchrunner/internal/scorebot"
)

// historyLines is how much of the log a new viewer receives
const historyLines = 500

var errNoLog = errors.New("no game log configured")

// LogMessage is the message format for log streaming
type LogMessage struct {
	Type    string   `json:"type"`              // "initial", "lines", "error"
	Lines   []string `json:"lines,omitempty"`   // log lines
	Message string   `json:"message,omitempty"` // error message
}

func encodeLogMessage(msg LogMessage) []byte {
	data, _ := json.Marshal(msg)
	return data
}

// LogStreamManager shares one raw tailer of the game log among viewers.
// The tailer runs only while someone is watching.
type LogStreamManager struct {
	path string

	mu      sync.Mutex
	tailer  *scorebot.RawTailer
	stop    chan struct{}
	viewers map[*peer]struct{}
}

// NewLogStreamManager creates a manager for the log at path
func NewLogStreamManager(path string) *LogStreamManager {
	return &LogStreamManager{
		path:    path,
		viewers: make(map[*peer]struct{}),
	}
}

// Subscribe queues the recent history for p and adds it as a viewer
func (m *LogStreamManager) Subscribe(p *peer) error {
	if m.path == "" {
		return errNoLog
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tailer == nil {
		m.tailer = scorebot.NewRawTailer(m.path)
	}

	history, err := m.tailer.ReadLastNLines(historyLines)
	if err != nil {
		log.Warnf("Reading log history: %v", err)
	}
	p.send <- encodeLogMessage(LogMessage{Type: "initial", Lines: history})

	m.viewers[p] = struct{}{}
	if len(m.viewers) == 1 {
		m.startTailer()
	}

	log.Debugf("Log viewer %s joined (%d total)", p.remoteAddr, len(m.viewers))
	return nil
}

// Unsubscribe removes a viewer, stopping the tailer after the last one
func (m *LogStreamManager) Unsubscribe(p *peer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.viewers[p]; !ok {
		return
	}
	delete(m.viewers, p)
	close(p.send)
	log.Debugf("Log viewer %s left (%d remaining)", p.remoteAddr, len(m.viewers))

	if len(m.viewers) == 0 {
		m.stopTailer()
	}
}

// Close stops tailing and disconnects every viewer
func (m *LogStreamManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := range m.viewers {
		delete(m.viewers, p)
		close(p.send)
	}
	m.stopTailer()
}

// ClientCount returns the number of log viewers
func (m *LogStreamManager) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.viewers)
}

// startTailer must be called with mu held
func (m *LogStreamManager) startTailer() {
	if err := m.tailer.Start(); err != nil {
		log.Warnf("Starting log tailer: %v", err)
		m.tailer = nil
		return
	}
	m.stop = make(chan struct{})
	go m.forward(m.tailer, m.stop)
}

// stopTailer must be called with mu held
func (m *LogStreamManager) stopTailer() {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	if m.tailer != nil {
		m.tailer.Stop()
		m.tailer = nil
	}
}

// forward copies new log lines to every viewer until stop is closed
func (m *LogStreamManager) forward(tailer *scorebot.RawTailer, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case line := <-tailer.Lines:
			data := encodeLogMessage(LogMessage{Type: "lines", Lines: []string{line}})
			m.mu.Lock()
			for p := range m.viewers {
				select {
				case p.send <- data:
				default:
				}
			}
			m.mu.Unlock()

		case err := <-tailer.Errors:
			log.Warnf("Log tailer: %v", err)
		}
	}
}

// handleLogWebSocket streams the raw game log to an admin. Browsers cannot
// set headers on the upgrade request, so the token rides in the query.
func (r *Router) handleLogWebSocket(w http.ResponseWriter, req *http.Request) {
	token := req.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "token required")
		return
	}

	claims := r.validate(token)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if !claims.IsAdmin {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Warnf("Log WebSocket upgrade error: %v", err)
		return
	}

	p := newPeer(conn, req)
	if err := r.logStream.Subscribe(p); err != nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.TextMessage, encodeLogMessage(LogMessage{Type: "error", Message: err.Error()}))
		conn.Close()
		return
	}
	log.WithField("operator", claims.Operator).Infof("Streaming game log to %s", p.remoteAddr)
	p.serve(func() { r.logStream.Unsubscribe(p) })
}
