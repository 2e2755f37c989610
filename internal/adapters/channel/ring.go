// Package channel provides the bounded, non-blocking event transports used
// to ship filtered batches to clients.
package channel

import (
	"errors"
	"io"
	"sync"

	"sensormux/internal/ports"
)

// ErrClosed is returned when writing to a closed channel.
var ErrClosed = errors.New("event channel: closed")

// Ring is a bounded in-memory byte channel for in-process clients and tests.
// Writes are all-or-nothing: a payload that does not fit returns
// ports.ErrWouldBlock and nothing is enqueued.
type Ring struct {
	mu     sync.Mutex
	data   []byte
	cap    int
	closed bool
}

func NewRing(capacity int) *Ring {
	return &Ring{data: make([]byte, 0, capacity), cap: capacity}
}

func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}
	if len(r.data)+len(p) > r.cap {
		return 0, ports.ErrWouldBlock
	}
	r.data = append(r.data, p...)
	return len(p), nil
}

// Read drains up to len(p) buffered bytes without blocking. An empty closed
// channel reports io.EOF.
func (r *Ring) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.data) == 0 {
		if r.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(p, r.data)
	r.data = append(r.data[:0], r.data[n:]...)
	return n, nil
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *Ring) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

var _ ports.EventChannel = (*Ring)(nil)
