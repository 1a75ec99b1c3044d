package rcon

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Send once the connection is gone
	ErrClosed = errors.New("rcon: connection closed")
	// ErrNotConnected is returned by Send when Init never connected
	ErrNotConnected = errors.New("rcon: not connected")
	// ErrAuth is returned when the server rejects the password
	ErrAuth = errors.New("rcon: authentication rejected")
)

// ConnectError is returned by Init after every attempt failed
type ConnectError struct {
	Address  string
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("rcon: connecting to %s failed after %d attempts: %v", e.Address, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
