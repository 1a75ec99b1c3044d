package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxInboundSize = 512
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// peer is one WebSocket connection with a buffered outbound queue.
// Closing send ends the write side with a close frame.
type peer struct {
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
}

func newPeer(conn *websocket.Conn, req *http.Request) *peer {
	return &peer{
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		remoteAddr: clientIP(req),
	}
}

// serve runs both pumps. leave is called once the remote side goes away.
func (p *peer) serve(leave func()) {
	go p.writePump()
	go p.readPump(leave)
}

// readPump discards inbound messages and notices disconnects
func (p *peer) readPump(leave func()) {
	defer func() {
		leave()
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxInboundSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				log.Warnf("WebSocket error from %s: %v", p.remoteAddr, err)
			}
			return
		}
	}
}

// writePump sends queued messages, one per frame, and keeps the connection alive
func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// clientIP extracts the real client IP, checking proxy headers first
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
