// Package hal contains hardware adapter implementations. The simulator
// stands in for a real polling device: it honors activate/set-delay and
// produces sine-wave readings at each sensor's effective period.
package hal

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"sensormux/internal/domain"
	"sensormux/internal/ports"
)

var (
	// ErrClosed is the fatal poll result after the device is torn down.
	ErrClosed = errors.New("hal: device closed")
	// ErrUnknownHandle rejects operations on handles the device never
	// enumerated.
	ErrUnknownHandle = errors.New("hal: unknown sensor handle")
)

// idleTick paces the poll loop while no sensor is active.
const idleTick = 20 * time.Millisecond

// Config describes the synthetic sensor fleet.
type Config struct {
	Sensors []SensorConfig `yaml:"sensors"`
}

// SensorConfig defines one simulated sensor.
type SensorConfig struct {
	Handle    int32         `yaml:"handle"`
	Name      string        `yaml:"name"`
	Vendor    string        `yaml:"vendor"`
	MinDelay  time.Duration `yaml:"min_delay"`
	Amplitude float64       `yaml:"amplitude"`
	Frequency float64       `yaml:"frequency"`
}

func (c *Config) ApplyDefaults() {
	for i := range c.Sensors {
		if c.Sensors[i].Vendor == "" {
			c.Sensors[i].Vendor = "sensormux"
		}
		if c.Sensors[i].MinDelay <= 0 {
			c.Sensors[i].MinDelay = 10 * time.Millisecond
		}
		if c.Sensors[i].Amplitude == 0 {
			c.Sensors[i].Amplitude = 1
		}
		if c.Sensors[i].Frequency <= 0 {
			c.Sensors[i].Frequency = 0.5
		}
	}
}

func (c *Config) Validate() error {
	if len(c.Sensors) == 0 {
		return errors.New("at least one sensor must be configured")
	}
	seen := make(map[int32]bool, len(c.Sensors))
	for _, sc := range c.Sensors {
		if sc.Name == "" {
			return errors.Errorf("sensor handle %d: name is required", sc.Handle)
		}
		if seen[sc.Handle] {
			return errors.Errorf("duplicate sensor handle %d", sc.Handle)
		}
		seen[sc.Handle] = true
	}
	return nil
}

type simSensor struct {
	desc   domain.Descriptor
	cfg    SensorConfig
	active bool
	period time.Duration
	due    time.Time
	phase  float64
}

// Simulator implements ports.HardwareAdapter. Poll blocks until the next
// active sensor comes due or the device is closed; batches come out grouped
// by handle in ascending order.
type Simulator struct {
	clk clock.Clock

	mu    sync.Mutex
	byID  map[int32]*simSensor
	order []int32

	closed    chan struct{}
	closeOnce sync.Once
}

func NewSimulator(cfg Config) (*Simulator, error) {
	return NewSimulatorWithClock(cfg, clock.New())
}

// NewSimulatorWithClock lets tests drive the device from a mock clock.
func NewSimulatorWithClock(cfg Config, clk clock.Clock) (*Simulator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "simulator config")
	}
	s := &Simulator{
		clk:    clk,
		byID:   make(map[int32]*simSensor, len(cfg.Sensors)),
		closed: make(chan struct{}),
	}
	for _, sc := range cfg.Sensors {
		s.byID[sc.Handle] = &simSensor{
			desc: domain.Descriptor{
				Handle:   sc.Handle,
				Name:     sc.Name,
				Vendor:   sc.Vendor,
				MinDelay: sc.MinDelay,
			},
			cfg:    sc,
			period: time.Second,
		}
		s.order = append(s.order, sc.Handle)
	}
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
	return s, nil
}

func (s *Simulator) List() []domain.Descriptor {
	out := make([]domain.Descriptor, 0, len(s.order))
	for _, h := range s.order {
		out = append(out, s.byID[h].desc)
	}
	return out
}

func (s *Simulator) Activate(handle int32, enable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sen, ok := s.byID[handle]
	if !ok {
		return errors.Wrapf(ErrUnknownHandle, "activate %d", handle)
	}
	sen.active = enable
	if enable {
		sen.due = s.clk.Now().Add(sen.period)
	}
	return nil
}

func (s *Simulator) SetDelay(handle int32, period time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sen, ok := s.byID[handle]
	if !ok {
		return errors.Wrapf(ErrUnknownHandle, "set delay %d", handle)
	}
	if period < sen.desc.MinDelay {
		period = sen.desc.MinDelay
	}
	sen.period = period
	if sen.active {
		next := s.clk.Now().Add(period)
		if next.Before(sen.due) || sen.due.IsZero() {
			sen.due = next
		}
	}
	return nil
}

// Poll blocks until at least one active sensor is due, then emits one event
// per due sensor, grouped by handle. Returns ErrClosed once the device has
// been closed.
func (s *Simulator) Poll(buf []domain.Event) (int, error) {
	for {
		select {
		case <-s.closed:
			return 0, ErrClosed
		default:
		}

		wait, n := s.emitDue(buf)
		if n > 0 {
			return n, nil
		}

		select {
		case <-s.closed:
			return 0, ErrClosed
		case <-s.clk.After(wait):
		}
	}
}

// emitDue fills buf with events for every due sensor and returns how long
// to wait when nothing is due yet.
func (s *Simulator) emitDue(buf []domain.Event) (time.Duration, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	wait := idleTick
	n := 0
	for _, h := range s.order {
		sen := s.byID[h]
		if !sen.active {
			continue
		}
		if sen.due.After(now) {
			if d := sen.due.Sub(now); d < wait {
				wait = d
			}
			continue
		}
		if n >= len(buf) {
			break
		}
		buf[n] = sen.sample(now)
		n++
		sen.due = now.Add(sen.period)
		sen.phase += 2 * math.Pi * sen.cfg.Frequency * sen.period.Seconds()
	}
	return wait, n
}

func (sen *simSensor) sample(now time.Time) domain.Event {
	ev := domain.Event{
		Version:   domain.EventVersion,
		Handle:    sen.desc.Handle,
		Timestamp: now.UnixNano(),
	}
	amp := sen.cfg.Amplitude
	ev.Data[0] = float32(amp * math.Sin(sen.phase))
	ev.Data[1] = float32(amp * math.Cos(sen.phase))
	ev.Data[2] = float32(amp * math.Sin(sen.phase) / 2)
	return ev
}

func (s *Simulator) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

var _ ports.HardwareAdapter = (*Simulator)(nil)
