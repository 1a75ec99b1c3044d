package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ernie/matchrunner/internal/domain"
)

// EventMatchStatus is the first message a live event subscriber receives
const EventMatchStatus = "match_status"

// WebSocketHub fans match events out to live subscribers. It is an
// orchestrator event sink; Publish never blocks the match.
type WebSocketHub struct {
	mu      sync.RWMutex
	peers   map[*peer]struct{}
	stopped chan struct{}

	broadcast chan []byte
	join      chan *peer
	leave     chan *peer
}

// NewWebSocketHub creates a hub. Run must be started before clients connect.
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		peers:     make(map[*peer]struct{}),
		stopped:   make(chan struct{}),
		broadcast: make(chan []byte, 256),
		join:      make(chan *peer),
		leave:     make(chan *peer),
	}
}

// Run owns the subscriber set until ctx is done, then disconnects everyone
func (h *WebSocketHub) Run(ctx context.Context) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return

		case p := <-h.join:
			h.mu.Lock()
			h.peers[p] = struct{}{}
			count := len(h.peers)
			h.mu.Unlock()
			log.Debugf("Event subscriber %s joined (%d total)", p.remoteAddr, count)

		case p := <-h.leave:
			h.drop(p)

		case message := <-h.broadcast:
			h.mu.Lock()
			for p := range h.peers {
				select {
				case p.send <- message:
				default:
					// Too slow to keep up with the match
					delete(h.peers, p)
					close(p.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *WebSocketHub) drop(p *peer) {
	h.mu.Lock()
	if _, ok := h.peers[p]; ok {
		delete(h.peers, p)
		close(p.send)
	}
	count := len(h.peers)
	h.mu.Unlock()
	log.Debugf("Event subscriber %s left (%d total)", p.remoteAddr, count)
}

func (h *WebSocketHub) closeAll() {
	h.mu.Lock()
	for p := range h.peers {
		delete(h.peers, p)
		close(p.send)
	}
	h.mu.Unlock()
	close(h.stopped)
}

// Publish queues an event for every subscriber, dropping it if the hub is backed up
func (h *WebSocketHub) Publish(event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Warnf("Encoding %s event: %v", event.Type, err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		log.Warnf("Event hub backed up, dropping %s event", event.Type)
	}
}

// ClientCount returns the number of live subscribers
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// subscribe hands a peer to the hub, failing once the hub has stopped
func (h *WebSocketHub) subscribe(p *peer) bool {
	select {
	case h.join <- p:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *WebSocketHub) unsubscribe(p *peer) {
	select {
	case h.leave <- p:
	case <-h.stopped:
	}
}

// handleWebSocket subscribes a client to live match events. The current
// status is sent first so late joiners need no extra request.
func (r *Router) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	p := newPeer(conn, req)
	status := r.match.Snapshot()
	greeting, _ := json.Marshal(domain.Event{
		Type:      EventMatchStatus,
		MatchID:   status.MatchID,
		Timestamp: time.Now().UTC(),
		Data:      status,
	})
	p.send <- greeting

	if !r.wsHub.subscribe(p) {
		conn.Close()
		return
	}
	p.serve(func() { r.wsHub.unsubscribe(p) })
}
