package hal

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"sensormux/internal/domain"
)

func testConfig() Config {
	return Config{Sensors: []SensorConfig{
		{Handle: 2, Name: "gyroscope", MinDelay: time.Millisecond},
		{Handle: 1, Name: "accelerometer", MinDelay: time.Millisecond},
	}}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Sensors: []SensorConfig{{Handle: 1, Name: "accelerometer"}}}
	cfg.ApplyDefaults()
	sc := cfg.Sensors[0]
	if sc.Vendor != "sensormux" {
		t.Fatalf("vendor default: %q", sc.Vendor)
	}
	if sc.MinDelay != 10*time.Millisecond {
		t.Fatalf("min delay default: %s", sc.MinDelay)
	}
	if sc.Amplitude != 1 || sc.Frequency != 0.5 {
		t.Fatalf("wave defaults: amp=%v freq=%v", sc.Amplitude, sc.Frequency)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (&Config{}).Validate(); err == nil {
		t.Fatal("empty fleet should be rejected")
	}
	noName := Config{Sensors: []SensorConfig{{Handle: 1}}}
	if err := noName.Validate(); err == nil {
		t.Fatal("nameless sensor should be rejected")
	}
	dup := Config{Sensors: []SensorConfig{
		{Handle: 1, Name: "a"},
		{Handle: 1, Name: "b"},
	}}
	if err := dup.Validate(); err == nil {
		t.Fatal("duplicate handle should be rejected")
	}
}

func TestListSortedByHandle(t *testing.T) {
	sim, err := NewSimulator(testConfig())
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	defer sim.Close()

	list := sim.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 sensors, got %d", len(list))
	}
	if list[0].Handle != 1 || list[1].Handle != 2 {
		t.Fatalf("list not sorted: %+v", list)
	}
}

func TestUnknownHandleRejected(t *testing.T) {
	sim, err := NewSimulator(testConfig())
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	defer sim.Close()

	if err := sim.Activate(99, true); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("activate: expected ErrUnknownHandle, got %v", err)
	}
	if err := sim.SetDelay(99, time.Second); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("set delay: expected ErrUnknownHandle, got %v", err)
	}
}

func TestPollEmitsForActiveSensorOnly(t *testing.T) {
	sim, err := NewSimulator(testConfig())
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	defer sim.Close()

	if err := sim.Activate(1, true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := sim.SetDelay(1, time.Millisecond); err != nil {
		t.Fatalf("set delay: %v", err)
	}

	buf := make([]domain.Event, 8)
	n, err := sim.Poll(buf)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n == 0 {
		t.Fatal("expected at least one event")
	}
	for _, ev := range buf[:n] {
		if ev.Handle != 1 {
			t.Fatalf("inactive sensor emitted: handle %d", ev.Handle)
		}
		if ev.Version != domain.EventVersion {
			t.Fatalf("event version %d, want %d", ev.Version, domain.EventVersion)
		}
		if ev.Timestamp == 0 {
			t.Fatal("event carries no timestamp")
		}
	}
}

func TestSetDelayClampsToMinDelay(t *testing.T) {
	sim, err := NewSimulator(testConfig())
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	defer sim.Close()

	if err := sim.SetDelay(1, time.Nanosecond); err != nil {
		t.Fatalf("set delay: %v", err)
	}
	sim.mu.Lock()
	got := sim.byID[1].period
	sim.mu.Unlock()
	if got != time.Millisecond {
		t.Fatalf("period %s, want clamp to min delay 1ms", got)
	}
}

func TestPollScheduledByClock(t *testing.T) {
	mock := clock.NewMock()
	sim, err := NewSimulatorWithClock(testConfig(), mock)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	defer sim.Close()

	if err := sim.Activate(1, true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := sim.SetDelay(1, 100*time.Millisecond); err != nil {
		t.Fatalf("set delay: %v", err)
	}

	type result struct {
		ev  domain.Event
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		buf := make([]domain.Event, 4)
		n, err := sim.Poll(buf)
		if err != nil {
			resCh <- result{err: err}
			return
		}
		resCh <- result{ev: buf[n-1]}
	}()

	// nothing is due until the mock clock reaches the sensor's period
	deadline := time.After(5 * time.Second)
	for {
		select {
		case res := <-resCh:
			if res.err != nil {
				t.Fatalf("poll: %v", res.err)
			}
			if res.ev.Handle != 1 {
				t.Fatalf("event handle %d, want 1", res.ev.Handle)
			}
			if got, max := res.ev.Timestamp, mock.Now().UnixNano(); got <= 0 || got > max {
				t.Fatalf("timestamp %d outside mock clock range (0, %d]", got, max)
			}
			return
		case <-deadline:
			t.Fatal("poll never came due on the mock clock")
		default:
		}
		mock.Add(10 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
}

func TestCloseUnblocksPoll(t *testing.T) {
	sim, err := NewSimulator(testConfig())
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := sim.Poll(make([]domain.Event, 4))
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := sim.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("poll returned %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not unblock on close")
	}
}
