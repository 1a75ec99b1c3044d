// Package broker fans live match events out over NATS.
package broker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/ernie/matchrunner/internal/domain"
)

// Publisher sends every match event to <prefix>.<match id>.<event type>
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials the NATS server
func Connect(url, prefix string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("matchrunner"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return NewPublisher(nc, prefix), nil
}

// NewPublisher wraps an existing connection
func NewPublisher(nc *nats.Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = "matchrunner"
	}
	return &Publisher{nc: nc, prefix: prefix}
}

// Subject returns the subject an event is published on
func (p *Publisher) Subject(event domain.Event) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, event.MatchID, event.Type)
}

// Publish sends an event. Failures are logged, never returned, so a broker
// outage cannot stall the match.
func (p *Publisher) Publish(event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Warnf("Encoding %s event: %v", event.Type, err)
		return
	}
	if err := p.nc.Publish(p.Subject(event), data); err != nil {
		log.Warnf("Publishing %s event: %v", event.Type, err)
	}
}

// Close flushes pending messages and closes the connection
func (p *Publisher) Close() error {
	if err := p.nc.FlushTimeout(2 * time.Second); err != nil {
		log.Warnf("Flushing NATS: %v", err)
	}
	p.nc.Close()
	return nil
}
