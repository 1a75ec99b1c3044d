// Package rcon is a remote console client for a running game server. It
// speaks Source RCON over TCP and the Quake connectionless scheme over UDP.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
)

// Transport kinds
const (
	TransportTCP = "tcp"
	TransportUDP = "udp"
)

// Retry policies between connection attempts
const (
	BackoffConstant    = "constant"
	BackoffExponential = "exponential"
)

// Config holds connection parameters
type Config struct {
	Address    string
	Password   string
	Transport  string
	MaxRetries int
	RetryDelay time.Duration
	Backoff    string
	Timeout    time.Duration
}

// transport executes one command at a time over an authenticated connection
type transport interface {
	exec(command string) (string, error)
	close() error
}

type dialFunc func(ctx context.Context, cfg Config) (transport, error)

type request struct {
	ctx     context.Context
	command string
	reply   chan response
}

type response struct {
	output string
	err    error
}

// Client owns a single console connection. Commands are written in the
// order Send was called.
type Client struct {
	cfg  Config
	dial dialFunc

	queue     chan *request
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu   sync.Mutex
	conn transport
}

// New creates a client. No connection is made until Init.
func New(cfg Config) (*Client, error) {
	if cfg.Transport == "" {
		cfg.Transport = TransportTCP
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}

	var dial dialFunc
	switch cfg.Transport {
	case TransportTCP:
		dial = dialSource
	case TransportUDP:
		dial = dialQuake
	default:
		return nil, fmt.Errorf("unknown rcon transport %q", cfg.Transport)
	}
	return newClient(cfg, dial), nil
}

func newClient(cfg Config, dial dialFunc) *Client {
	c := &Client{
		cfg:   cfg,
		dial:  dial,
		queue: make(chan *request, 64),
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run()
	return c
}

// Init connects and authenticates, retrying up to MaxRetries attempts.
// Commands sent before Init are held until it finishes.
func (c *Client) Init(ctx context.Context) error {
	defer c.readyOnce.Do(func() { close(c.ready) })

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	attempts := 0
	operation := func() (transport, error) {
		attempts++
		conn, err := c.dial(ctx, c.cfg)
		if errors.Is(err, ErrAuth) {
			return nil, backoff.Permanent(err)
		}
		return conn, err
	}
	notify := func(err error, next time.Duration) {
		log.WithField("address", c.cfg.Address).Warnf("RCON attempt %d failed: %v (retrying in %v)", attempts, err, next)
	}

	conn, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.policy()),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries)),
		backoff.WithNotify(notify),
	)
	if err != nil {
		return &ConnectError{Address: c.cfg.Address, Attempts: attempts, Err: err}
	}

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		conn.close()
		return ErrClosed
	default:
	}
	if c.conn != nil {
		c.conn.close()
	}
	c.conn = conn
	c.mu.Unlock()

	log.WithField("address", c.cfg.Address).Infof("RCON connected (%s)", c.cfg.Transport)
	return nil
}

func (c *Client) policy() backoff.BackOff {
	if c.cfg.Backoff == BackoffExponential {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = c.cfg.RetryDelay
		return b
	}
	return backoff.NewConstantBackOff(c.cfg.RetryDelay)
}

// Send queues a command and waits for its response
func (c *Client) Send(ctx context.Context, command string) (string, error) {
	req := &request{ctx: ctx, command: command, reply: make(chan response, 1)}

	select {
	case <-c.done:
		return "", ErrClosed
	default:
	}

	select {
	case c.queue <- req:
	case <-c.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp.output, resp.err
	case <-c.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Connected reports whether an authenticated connection is open
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close drops the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.shutdown()
	c.wg.Wait()
	return nil
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.close()
			c.conn = nil
		}
		c.mu.Unlock()
	})
}

// run delivers queued commands one at a time
func (c *Client) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case req := <-c.queue:
			select {
			case <-c.ready:
			case <-c.done:
				req.reply <- response{err: ErrClosed}
				return
			case <-req.ctx.Done():
				req.reply <- response{err: req.ctx.Err()}
				continue
			}
			if err := req.ctx.Err(); err != nil {
				req.reply <- response{err: err}
				continue
			}
			output, err := c.exec(req.command)
			req.reply <- response{output: output, err: err}
		}
	}
}

func (c *Client) exec(command string) (string, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return "", ErrNotConnected
	}

	output, err := conn.exec(command)
	if err != nil {
		// The connection cannot be trusted after a failed exchange
		log.WithField("address", c.cfg.Address).Warnf("RCON connection lost: %v", err)
		c.shutdown()
		return "", fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return output, nil
}
