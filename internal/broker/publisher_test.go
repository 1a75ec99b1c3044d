package broker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/matchrunner/internal/domain"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestPublishEvents(t *testing.T) {
	ns := runServer(t)

	sub, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer sub.Close()
	messages, err := sub.SubscribeSync("cs.>")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := Connect(ns.ClientURL(), "cs")
	require.NoError(t, err)
	defer pub.Close()

	event := domain.Event{
		Type:      domain.EventStateChange,
		MatchID:   "m1",
		Timestamp: time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC),
		Data:      domain.StateChangeEvent{From: "launching", To: "awaiting_console"},
	}
	pub.Publish(event)
	require.NoError(t, pub.Close())

	msg, err := messages.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "cs.m1.state_change", msg.Subject)

	var got struct {
		Event   string `json:"event"`
		MatchID string `json:"match_id"`
		Data    struct {
			To string `json:"to"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "state_change", got.Event)
	assert.Equal(t, "m1", got.MatchID)
	assert.Equal(t, "awaiting_console", got.Data.To)
}

func TestPublishUnencodableIsDropped(t *testing.T) {
	ns := runServer(t)
	pub, err := Connect(ns.ClientURL(), "")
	require.NoError(t, err)
	defer pub.Close()

	// Channels cannot be marshalled; Publish must not panic
	pub.Publish(domain.Event{Type: "x", MatchID: "m", Data: make(chan int)})
	assert.Equal(t, "matchrunner.m.x", pub.Subject(domain.Event{Type: "x", MatchID: "m"}))
}

func TestConnectFailure(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", "cs")
	assert.Error(t, err)
}
