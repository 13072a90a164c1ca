package transport

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a Transport matches exactly one of
// ErrConnection, ErrTimeout or ErrIO through errors.Is.
var (
	// ErrConnection is returned when a port cannot be opened.
	ErrConnection = errors.New("serial connection failed")

	// ErrTimeout is returned when no complete line arrives within the read
	// timeout. It means "no data" and is not fatal to the connection.
	ErrTimeout = errors.New("timed out waiting for response")

	// ErrIO is returned when a write or read fails on an open connection.
	ErrIO = errors.New("serial i/o failed")

	// ErrNotConnected is wrapped in an ErrIO error when no port is open.
	ErrNotConnected = errors.New("no serial connection")

	errEmptyPort = errors.New("no port selected")
)

// Error carries the failing operation and port along with its kind.
type Error struct {
	Op   string
	Port string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Port != "" {
		msg = fmt.Sprintf("%s %s", e.Op, e.Port)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", msg, e.Kind)
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}
