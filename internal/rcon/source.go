package rcon

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// Source RCON packet types
const (
	typeResponseValue = 0
	typeExecCommand   = 2
	typeAuthResponse  = 2
	typeAuth          = 3
)

const (
	headerSize    = 8 // id + type
	minPacketSize = headerSize + 2
	maxPacketSize = 4096 + minPacketSize
)

// packet is one Source RCON frame: size, id, type, body, two NUL bytes
type packet struct {
	id   int32
	kind int32
	body string
}

func writePacket(w io.Writer, p packet) error {
	size := int32(headerSize + len(p.body) + 2)
	buf := make([]byte, 0, 4+size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(size))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(p.id))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(p.kind))
	buf = append(buf, p.body...)
	buf = append(buf, 0, 0)
	_, err := w.Write(buf)
	return err
}

// readPacket reads exactly one frame, however it was split across reads
func readPacket(r *bufio.Reader) (packet, error) {
	var size int32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return packet{}, err
	}
	if size < minPacketSize || size > maxPacketSize {
		return packet{}, fmt.Errorf("invalid packet size %d", size)
	}
	frame := make([]byte, size)
	if _, err := io.ReadFull(r, frame); err != nil {
		return packet{}, err
	}
	return packet{
		id:   int32(binary.LittleEndian.Uint32(frame[0:4])),
		kind: int32(binary.LittleEndian.Uint32(frame[4:8])),
		body: strings.TrimRight(string(frame[headerSize:]), "\x00"),
	}, nil
}

// sourceConn speaks Source RCON over one TCP connection
type sourceConn struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
	nextID  int32
}

func dialSource(ctx context.Context, cfg Config) (transport, error) {
	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Address, err)
	}
	s := &sourceConn{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: cfg.Timeout,
		nextID:  1,
	}
	if err := s.auth(cfg.Password); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *sourceConn) auth(password string) error {
	id := s.nextID
	s.nextID++
	s.conn.SetDeadline(time.Now().Add(s.timeout))
	defer s.conn.SetDeadline(time.Time{})

	if err := writePacket(s.conn, packet{id: id, kind: typeAuth, body: password}); err != nil {
		return fmt.Errorf("sending auth: %w", err)
	}
	// Servers send an empty response value before the auth response
	for {
		p, err := readPacket(s.reader)
		if err != nil {
			return fmt.Errorf("reading auth response: %w", err)
		}
		if p.kind != typeAuthResponse {
			continue
		}
		if p.id == -1 {
			return ErrAuth
		}
		if p.id != id {
			return fmt.Errorf("auth response for unexpected id %d", p.id)
		}
		return nil
	}
}

// exec sends a command followed by an empty response value packet. The
// server answers in order, so the mirrored empty packet marks the end of
// a response split across several frames.
func (s *sourceConn) exec(command string) (string, error) {
	id := s.nextID
	sentinel := id + 1
	s.nextID += 2

	s.conn.SetDeadline(time.Now().Add(s.timeout))
	defer s.conn.SetDeadline(time.Time{})

	if err := writePacket(s.conn, packet{id: id, kind: typeExecCommand, body: command}); err != nil {
		return "", fmt.Errorf("sending command: %w", err)
	}
	if err := writePacket(s.conn, packet{id: sentinel, kind: typeResponseValue}); err != nil {
		return "", fmt.Errorf("sending terminator: %w", err)
	}

	var response strings.Builder
	for {
		p, err := readPacket(s.reader)
		if err != nil {
			return "", fmt.Errorf("reading response: %w", err)
		}
		switch p.id {
		case id:
			response.WriteString(p.body)
		case sentinel:
			return response.String(), nil
		default:
			// Leftovers from an earlier exchange
		}
	}
}

func (s *sourceConn) close() error {
	return s.conn.Close()
}
