package ports

import (
	"time"

	"sensormux/internal/domain"
)

// HardwareAdapter wraps the physical polling device. Poll blocks until at
// least one event is available; a Poll error is fatal to the dispatch loop.
// Activate and SetDelay failures are per-operation errors, not fatal.
type HardwareAdapter interface {
	List() []domain.Descriptor
	Poll(buf []domain.Event) (int, error)
	Activate(handle int32, enable bool) error
	SetDelay(handle int32, period time.Duration) error

	// Close tears down the device; a blocked Poll must return an error.
	Close() error
}
