package rcon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	q3Header    = "\xff\xff\xff\xff"
	rconPrefix  = q3Header + "rcon "
	printPrefix = q3Header + "print\n"
	maxResponse = 65535
	// Long output arrives as several datagrams; a quiet gap this long ends it
	quietGap = 500 * time.Millisecond
)

// quakeConn speaks the connectionless Quake RCON scheme over UDP. Every
// datagram carries the secret, so the handshake only probes it.
type quakeConn struct {
	conn     net.Conn
	password string
	timeout  time.Duration
	buf      []byte
}

func dialQuake(ctx context.Context, cfg Config) (transport, error) {
	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "udp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Address, err)
	}
	q := &quakeConn{
		conn:     conn,
		password: cfg.Password,
		timeout:  cfg.Timeout,
		buf:      make([]byte, maxResponse),
	}

	response, received, err := q.roundTrip("echo matchrunner")
	if err == nil && !received {
		err = errors.New("no response from server")
	}
	if err == nil && isBadPassword(response) {
		err = ErrAuth
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *quakeConn) exec(command string) (string, error) {
	response, _, err := q.roundTrip(command)
	if err != nil {
		return "", err
	}
	if isBadPassword(response) {
		return "", ErrAuth
	}
	return response, nil
}

// roundTrip sends one command and collects print datagrams until the
// server goes quiet
func (q *quakeConn) roundTrip(command string) (string, bool, error) {
	// Format: \xff\xff\xff\xffrcon <password> <command>
	request := fmt.Sprintf("%s%s %s", rconPrefix, q.password, command)
	if _, err := q.conn.Write([]byte(request)); err != nil {
		return "", false, fmt.Errorf("sending rcon command: %w", err)
	}

	var response strings.Builder
	received := false
	wait := q.timeout
	for {
		q.conn.SetReadDeadline(time.Now().Add(wait))
		n, err := q.conn.Read(q.buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			return "", received, fmt.Errorf("reading response: %w", err)
		}
		received = true
		wait = quietGap

		data := string(q.buf[:n])
		if strings.HasPrefix(data, printPrefix) {
			response.WriteString(strings.TrimPrefix(data, printPrefix))
		}
	}
	return response.String(), received, nil
}

func (q *quakeConn) close() error {
	return q.conn.Close()
}

func isBadPassword(response string) bool {
	return strings.HasPrefix(strings.TrimSpace(response), "Bad rconpassword")
}
