package domain

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// EventVersion marks an Event that was actually produced by hardware. A
// zero-initialized Event carries version 0, which lets the last-value cache
// tell "never reported" apart from a real reading.
const EventVersion int32 = 1

// AxisCount is the fixed width of the per-event data vector.
const AxisCount = 6

// EventWireSize is the encoded size of one Event on an event channel:
// version(4) + handle(4) + timestamp(8) + AxisCount float32 values.
const EventWireSize = 4 + 4 + 8 + AxisCount*4

// Event is one raw hardware reading. Poll batches are always grouped by
// handle: all events for one sensor are contiguous.
type Event struct {
	Version   int32
	Handle    int32
	Timestamp int64 // nanoseconds
	Data      [AxisCount]float32
}

// Descriptor describes one physical sensor. Built once at startup from the
// hardware adapter's static list and never mutated.
type Descriptor struct {
	Handle   int32
	Name     string
	Vendor   string
	MinDelay time.Duration // fastest supported sampling period
}

// MaxRateHz reports the fastest sampling rate the sensor supports, 0 if the
// descriptor carries no minimum delay.
func (d Descriptor) MaxRateHz() float64 {
	if d.MinDelay <= 0 {
		return 0
	}
	return float64(time.Second) / float64(d.MinDelay)
}

// AppendEvent encodes ev onto dst in the fixed wire layout.
func AppendEvent(dst []byte, ev Event) []byte {
	var buf [EventWireSize]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(ev.Version))
	binary.BigEndian.PutUint32(buf[4:8], uint32(ev.Handle))
	binary.BigEndian.PutUint64(buf[8:16], uint64(ev.Timestamp))
	for i, v := range ev.Data {
		binary.BigEndian.PutUint32(buf[16+i*4:], math.Float32bits(v))
	}
	return append(dst, buf[:]...)
}

// DecodeEvent reads one Event from the front of b.
func DecodeEvent(b []byte) (Event, error) {
	if len(b) < EventWireSize {
		return Event{}, fmt.Errorf("event decode: need %d bytes, have %d", EventWireSize, len(b))
	}
	var ev Event
	ev.Version = int32(binary.BigEndian.Uint32(b[0:4]))
	ev.Handle = int32(binary.BigEndian.Uint32(b[4:8]))
	ev.Timestamp = int64(binary.BigEndian.Uint64(b[8:16]))
	for i := range ev.Data {
		ev.Data[i] = math.Float32frombits(binary.BigEndian.Uint32(b[16+i*4:]))
	}
	return ev, nil
}

// EncodeEvents encodes a filtered batch back-to-back.
func EncodeEvents(events []Event) []byte {
	out := make([]byte, 0, len(events)*EventWireSize)
	for _, ev := range events {
		out = AppendEvent(out, ev)
	}
	return out
}
