// Package service implements the sensor-multiplexing core: it owns the
// hardware adapter, fans raw poll batches out to client connections, and
// arbitrates the effective sampling rate across competing subscribers. A
// sensor is hardware-activated exactly while at least one connection
// subscribes to it.
package service

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sensormux/internal/domain"
	"sensormux/internal/ports"
)

const (
	// DefaultMinPeriod caps delivery at 100 events/s unless configured.
	DefaultMinPeriod = 10 * time.Millisecond
	// DefaultFallbackPeriod is pushed to hardware when no subscriber
	// expressed a rate preference.
	DefaultFallbackPeriod = time.Second
	// DefaultPollBatch is the poll buffer size in events.
	DefaultPollBatch = 16
)

var (
	// ErrNotInitialized is returned by every mutating operation when the
	// hardware could not be opened at startup.
	ErrNotInitialized = errors.New("sensor service: not initialized")
	// ErrInvalidRate rejects negative sampling periods at the boundary.
	ErrInvalidRate = errors.New("sensor service: negative sampling period")
	// ErrNotSubscribed is returned when a rate is set for a handle the
	// connection never enabled.
	ErrNotSubscribed = errors.New("sensor service: sensor not subscribed")
)

const (
	metricEventsDispatched = "sensormux_events_dispatched_total"
	metricBatchesDropped   = "sensormux_batches_dropped_total"
	metricPollFailures     = "sensormux_poll_failures_total"
	metricActiveSensors    = "sensormux_active_sensors"
	metricActiveConns      = "sensormux_active_connections"
	metricDispatchLatency  = "sensormux_dispatch_seconds"
)

// Config tunes the service core. Zero values fall back to the defaults
// above.
type Config struct {
	MinPeriod      time.Duration
	FallbackPeriod time.Duration
	PollBatch      int

	// NewChannel builds the outbound transport for each connection.
	NewChannel func() (ports.EventChannel, error)
}

// Service is the sensor-multiplexing core. All client-facing operations are
// safe to interleave arbitrarily with each other and with the dispatch loop;
// a single mutex guards the registry, the per-connection subscription sets,
// and the last-value cache.
type Service struct {
	hal   ports.HardwareAdapter
	meter ports.Metering
	obs   ports.Observability

	minPeriod      time.Duration
	fallbackPeriod time.Duration
	newChannel     func() (ports.EventChannel, error)

	initErr error
	sensors []domain.Descriptor

	mu          sync.Mutex
	lastEvent   map[int32]domain.Event
	active      map[int32]*sensorRecord
	activeConns map[uuid.UUID]*Connection

	loop *dispatcher
}

// New builds the service and, when the hardware adapter is usable, starts
// the dispatch loop. A nil adapter leaves the service in a permanently
// degraded state where every mutating operation fails with
// ErrNotInitialized.
func New(hal ports.HardwareAdapter, meter ports.Metering, obs ports.Observability, cfg Config) *Service {
	if obs == nil {
		obs = nopObservability{}
	}
	s := &Service{
		hal:            hal,
		meter:          meter,
		obs:            obs,
		minPeriod:      cfg.MinPeriod,
		fallbackPeriod: cfg.FallbackPeriod,
		newChannel:     cfg.NewChannel,
		lastEvent:      make(map[int32]domain.Event),
		active:         make(map[int32]*sensorRecord),
		activeConns:    make(map[uuid.UUID]*Connection),
	}
	if s.minPeriod <= 0 {
		s.minPeriod = DefaultMinPeriod
	}
	if s.fallbackPeriod <= 0 {
		s.fallbackPeriod = DefaultFallbackPeriod
	}
	pollBatch := cfg.PollBatch
	if pollBatch <= 0 {
		pollBatch = DefaultPollBatch
	}

	if hal == nil {
		s.initErr = ErrNotInitialized
		return s
	}

	s.sensors = hal.List()
	for _, d := range s.sensors {
		obs.LogInfo("sensor_found",
			ports.Field{Key: "name", Value: d.Name},
			ports.Field{Key: "handle", Value: d.Handle})
		// everything starts deactivated; subscriptions turn sensors on
		if err := hal.Activate(d.Handle, false); err != nil {
			obs.LogError("initial_deactivate_failed", err,
				ports.Field{Key: "handle", Value: d.Handle})
		}
		s.lastEvent[d.Handle] = domain.Event{}
	}

	s.loop = newDispatcher(s, pollBatch)
	go s.loop.run()
	return s
}

// InitCheck reports the startup failure, nil when the service is live.
func (s *Service) InitCheck() error { return s.initErr }

// SensorList returns the immutable startup-time descriptor list.
func (s *Service) SensorList() []domain.Descriptor {
	out := make([]domain.Descriptor, len(s.sensors))
	copy(out, s.sensors)
	return out
}

// CreateConnection allocates a fresh connection with an empty subscription
// set and its own event channel. Hardware is untouched until the first
// enable. The uid is the calling client's identity, used for metering
// attribution.
func (s *Service) CreateConnection(uid int32) (*Connection, error) {
	if s.newChannel == nil {
		return nil, fmt.Errorf("create connection: no channel factory configured")
	}
	ch, err := s.newChannel()
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	return &Connection{
		id:   uuid.New(),
		uid:  uid,
		svc:  s,
		ch:   ch,
		subs: make(map[int32]*subscription),
	}, nil
}

// Enable subscribes a connection to a sensor handle, activating the hardware
// on the first subscriber. Activation failure leaves no trace in the
// registry. A fresh subscription to an already-active sensor immediately
// replays the cached last value, if the sensor ever reported one.
func (s *Service) Enable(c *Connection, handle int32) error {
	if s.initErr != nil {
		return s.initErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.active[handle]
	if rec == nil {
		if err := s.hal.Activate(handle, true); err != nil {
			return fmt.Errorf("activate sensor %d: %w", handle, err)
		}
		rec = newSensorRecord(c)
		s.active[handle] = rec
		s.obs.SetGauge(metricActiveSensors, float64(len(s.active)))
		s.noteStartLocked(c.uid, handle)
	} else if rec.add(c) {
		if last, ok := s.lastEvent[handle]; ok && last.Version == domain.EventVersion {
			c.replayLocked(last)
		}
	}

	if c.addSensorLocked(handle) {
		s.activeConns[c.id] = c
		s.obs.SetGauge(metricActiveConns, float64(len(s.activeConns)))
		if err := s.recomputePeriodLocked(handle); err != nil {
			s.obs.LogError("set_delay_failed", err,
				ports.Field{Key: "handle", Value: handle})
		}
	}
	return nil
}

// Disable drops a connection's subscription to a handle, deactivating the
// hardware when the last subscriber leaves.
func (s *Service) Disable(c *Connection, handle int32) error {
	if s.initErr != nil {
		return s.initErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.active[handle]
	if rec == nil {
		return nil
	}
	c.removeSensorLocked(handle)
	if !c.hasAnySensorLocked() {
		delete(s.activeConns, c.id)
		s.obs.SetGauge(metricActiveConns, float64(len(s.activeConns)))
	}
	if rec.remove(c) {
		delete(s.active, handle)
		s.obs.SetGauge(metricActiveSensors, float64(len(s.active)))
		if err := s.hal.Activate(handle, false); err != nil {
			return fmt.Errorf("deactivate sensor %d: %w", handle, err)
		}
		s.noteStopLocked(c.uid, handle)
		// record gone, nothing left to recompute
		return nil
	}
	if err := s.recomputePeriodLocked(handle); err != nil {
		s.obs.LogError("set_delay_failed", err,
			ports.Field{Key: "handle", Value: handle})
	}
	return nil
}

// SetEventRate updates the requested sampling period for a subscribed
// handle. Negative periods are an input error; anything finer than the
// minimum supported period is clamped up to it.
func (s *Service) SetEventRate(c *Connection, handle int32, period time.Duration) error {
	if s.initErr != nil {
		return s.initErr
	}
	if period < 0 {
		return ErrInvalidRate
	}
	if period < s.minPeriod {
		period = s.minPeriod
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := c.setRateLocked(handle, period); err != nil {
		return err
	}
	return s.recomputePeriodLocked(handle)
}

// recomputePeriodLocked pushes the effective sampling period for handle: the
// minimum over all live subscribers' requested periods, the fallback when
// nobody expressed one. No-op if the sensor is no longer active.
func (s *Service) recomputePeriodLocked(handle int32) error {
	rec := s.active[handle]
	if rec == nil {
		return nil
	}
	wanted := s.fallbackPeriod
	for id, conn := range rec.conns {
		if !conn.alive() {
			delete(rec.conns, id)
			continue
		}
		if p := conn.rateForLocked(handle); p > 0 && p < wanted {
			wanted = p
		}
	}
	if err := s.hal.SetDelay(handle, wanted); err != nil {
		return fmt.Errorf("set delay for sensor %d: %w", handle, err)
	}
	return nil
}

// cleanupConnection unsubscribes a dying connection from every sensor it
// held, deactivating any sensor left without subscribers.
func (s *Service) cleanupConnection(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for handle, rec := range s.active {
		if _, member := rec.conns[c.id]; !member {
			continue
		}
		if rec.remove(c) {
			delete(s.active, handle)
			if err := s.hal.Activate(handle, false); err != nil {
				s.obs.LogError("deactivate_failed", err,
					ports.Field{Key: "handle", Value: handle})
				continue
			}
			s.noteStopLocked(c.uid, handle)
		}
	}
	s.obs.SetGauge(metricActiveSensors, float64(len(s.active)))
	delete(s.activeConns, c.id)
	s.obs.SetGauge(metricActiveConns, float64(len(s.activeConns)))
}

// recordLastValue keeps the newest event of each contiguous same-handle run
// in the batch. One cached event per handle, no history.
func (s *Service) recordLastValue(batch []domain.Event) {
	if len(batch) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := batch[0].Handle
	for i := 1; i < len(batch); i++ {
		curr := batch[i].Handle
		if curr != prev {
			s.lastEvent[prev] = batch[i-1]
			prev = curr
		}
	}
	s.lastEvent[prev] = batch[len(batch)-1]
}

// activeConnectionsSnapshot copies the active set so fan-out can proceed
// without the lock. A client subscribing mid-iteration is picked up next
// iteration.
func (s *Service) activeConnectionsSnapshot() []*Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Connection, 0, len(s.activeConns))
	for _, c := range s.activeConns {
		out = append(out, c)
	}
	return out
}

func (s *Service) noteStartLocked(uid, handle int32) {
	if s.meter == nil {
		return
	}
	if err := s.meter.NoteStartSensor(uid, handle); err != nil {
		s.obs.LogError("metering_start_failed", err,
			ports.Field{Key: "handle", Value: handle})
	}
}

func (s *Service) noteStopLocked(uid, handle int32) {
	if s.meter == nil {
		return
	}
	if err := s.meter.NoteStopSensor(uid, handle); err != nil {
		s.obs.LogError("metering_stop_failed", err,
			ports.Field{Key: "handle", Value: handle})
	}
}

// Dump writes the diagnostic report: every known sensor with its effective
// max rate and last observed 3-axis sample, plus active connection and
// sensor counts. Permission gating belongs to the caller.
func (s *Service) Dump(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(w, "Sensor List:\n"); err != nil {
		return err
	}
	for _, d := range s.sensors {
		last := s.lastEvent[d.Handle]
		fmt.Fprintf(w, "%s (vendor=%s, handle=%d, maxRate=%.2fHz, last=<%5.1f,%5.1f,%5.1f>)\n",
			d.Name, d.Vendor, d.Handle, d.MaxRateHz(),
			last.Data[0], last.Data[1], last.Data[2])
	}
	fmt.Fprintf(w, "%d active connections\n", len(s.activeConns))
	fmt.Fprintf(w, "Active sensors:\n")
	handles := make([]int32, 0, len(s.active))
	for handle := range s.active {
		handles = append(handles, handle)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	for _, handle := range handles {
		fmt.Fprintf(w, "%s (handle=%d, connections=%d)\n",
			s.sensorNameLocked(handle), handle, s.active[handle].size())
	}
	return nil
}

func (s *Service) sensorNameLocked(handle int32) string {
	for _, d := range s.sensors {
		if d.Handle == handle {
			return d.Name
		}
	}
	return "unknown"
}

// Close stops the dispatch loop by closing the hardware device, which
// unblocks the pending poll, then waits for the loop to exit.
func (s *Service) Close() error {
	if s.loop != nil {
		s.loop.requestStop()
	}
	var err error
	if s.hal != nil {
		err = s.hal.Close()
	}
	if s.loop != nil {
		s.loop.wait()
	}
	return err
}

type nopObservability struct{}

func (nopObservability) LogInfo(string, ...ports.Field)         {}
func (nopObservability) LogWarn(string, ...ports.Field)         {}
func (nopObservability) LogError(string, error, ...ports.Field) {}
func (nopObservability) IncCounter(string, float64)             {}
func (nopObservability) SetGauge(string, float64)               {}
func (nopObservability) ObserveLatency(string, float64)         {}

var _ ports.Observability = nopObservability{}
