package domain

import (
	"testing"
	"time"
)

func TestEventWireRoundTrip(t *testing.T) {
	in := Event{
		Version:   EventVersion,
		Handle:    7,
		Timestamp: 1234567890,
		Data:      [AxisCount]float32{0.5, -1.25, 9.81, 0, 0, 3},
	}
	raw := AppendEvent(nil, in)
	if len(raw) != EventWireSize {
		t.Fatalf("encoded size %d, want %d", len(raw), EventWireSize)
	}
	out, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestDecodeEventShortBuffer(t *testing.T) {
	if _, err := DecodeEvent(make([]byte, EventWireSize-1)); err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestEncodeEventsPacksBackToBack(t *testing.T) {
	batch := []Event{
		{Version: EventVersion, Handle: 1, Data: [AxisCount]float32{1}},
		{Version: EventVersion, Handle: 2, Data: [AxisCount]float32{2}},
	}
	raw := EncodeEvents(batch)
	if len(raw) != 2*EventWireSize {
		t.Fatalf("encoded size %d, want %d", len(raw), 2*EventWireSize)
	}
	second, err := DecodeEvent(raw[EventWireSize:])
	if err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if second.Handle != 2 {
		t.Fatalf("second event handle %d, want 2", second.Handle)
	}
}

func TestZeroEventCarriesNoVersion(t *testing.T) {
	var ev Event
	if ev.Version == EventVersion {
		t.Fatal("zero value must be distinguishable from a real reading")
	}
}

func TestDescriptorMaxRate(t *testing.T) {
	d := Descriptor{MinDelay: 10 * time.Millisecond}
	if got := d.MaxRateHz(); got != 100 {
		t.Fatalf("max rate %v, want 100", got)
	}
	if got := (Descriptor{}).MaxRateHz(); got != 0 {
		t.Fatalf("zero descriptor max rate %v, want 0", got)
	}
}
