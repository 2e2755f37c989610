package ports

import "errors"

// ErrWouldBlock reports that a channel's receive buffer is full. It is a
// backpressure signal, not a failure: the writer drops the batch and moves on.
var ErrWouldBlock = errors.New("event channel: would block")

// EventChannel is the bounded, non-blocking byte transport to one client.
// Write either accepts the whole buffer or returns ErrWouldBlock; it never
// blocks the caller.
type EventChannel interface {
	Write(p []byte) (int, error)
	Close() error
}
