package sensormux

import (
	"sensormux/internal/domain"
	"sensormux/internal/ports"
	"sensormux/internal/service"
)

// Aliases so embedders can work entirely from this package.
type (
	Descriptor      = domain.Descriptor
	Event           = domain.Event
	Connection      = service.Connection
	HardwareAdapter = ports.HardwareAdapter
	Metering        = ports.Metering
	Observability   = ports.Observability
	Field           = ports.Field
	EventChannel    = ports.EventChannel
)

// EventWireSize is the encoded size of one event on an event channel.
const EventWireSize = domain.EventWireSize

// Re-exported sentinels.
var (
	ErrWouldBlock     = ports.ErrWouldBlock
	ErrNotInitialized = service.ErrNotInitialized
	ErrInvalidRate    = service.ErrInvalidRate
	ErrNotSubscribed  = service.ErrNotSubscribed
)

// DecodeEvent reads one event from the front of a channel payload.
func DecodeEvent(b []byte) (Event, error) { return domain.DecodeEvent(b) }
