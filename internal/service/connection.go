package service

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"sensormux/internal/domain"
	"sensormux/internal/ports"
)

// subscription holds the requested sampling period for one (connection,
// handle) pair. A zero period means the client never expressed a preference.
type subscription struct {
	period time.Duration
}

// Connection is the per-client subscription state plus its outbound event
// channel. One exists per client; it is created by the service facade and
// must be closed when the client goes away.
type Connection struct {
	id  uuid.UUID
	uid int32

	svc *Service
	ch  ports.EventChannel

	// subs is guarded by the service-wide mutex, like the rest of the
	// registry state.
	subs map[int32]*subscription

	closed atomic.Bool
}

// ID returns the connection's opaque identity.
func (c *Connection) ID() uuid.UUID { return c.id }

// UID returns the caller identity captured at creation; metering notes are
// attributed to it.
func (c *Connection) UID() int32 { return c.uid }

// Channel exposes the outbound transport so the owner can hand the receive
// side to the client.
func (c *Connection) Channel() ports.EventChannel { return c.ch }

// EnableSensor subscribes this connection to a sensor handle.
func (c *Connection) EnableSensor(handle int32) error {
	return c.svc.Enable(c, handle)
}

// DisableSensor drops this connection's subscription to a sensor handle.
func (c *Connection) DisableSensor(handle int32) error {
	return c.svc.Disable(c, handle)
}

// SetEventRate requests a sampling period for an already-subscribed handle.
func (c *Connection) SetEventRate(handle int32, period time.Duration) error {
	return c.svc.SetEventRate(c, handle, period)
}

// Close tears the connection down, unsubscribing it from every sensor it
// held exactly as if the client had disabled each one. Idempotent.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.svc.cleanupConnection(c)
	return c.ch.Close()
}

func (c *Connection) alive() bool { return !c.closed.Load() }

// addSensorLocked reports whether this is a new subscription. Caller holds
// the service mutex.
func (c *Connection) addSensorLocked(handle int32) bool {
	if _, ok := c.subs[handle]; ok {
		return false
	}
	c.subs[handle] = &subscription{}
	return true
}

// removeSensorLocked reports whether a subscription existed and was removed.
func (c *Connection) removeSensorLocked(handle int32) bool {
	if _, ok := c.subs[handle]; !ok {
		return false
	}
	delete(c.subs, handle)
	return true
}

func (c *Connection) hasAnySensorLocked() bool { return len(c.subs) > 0 }

func (c *Connection) setRateLocked(handle int32, period time.Duration) error {
	sub, ok := c.subs[handle]
	if !ok {
		return ErrNotSubscribed
	}
	sub.period = period
	return nil
}

// rateForLocked returns the requested period for handle, 0 if none was set
// or the handle is not subscribed.
func (c *Connection) rateForLocked(handle int32) time.Duration {
	if sub, ok := c.subs[handle]; ok {
		return sub.period
	}
	return 0
}

// filter copies the runs of batch belonging to subscribed handles into
// scratch and returns the number of events kept. Poll batches are grouped by
// handle, so runs for unsubscribed handles are skipped whole. Takes the
// service mutex only for the duration of the copy.
func (c *Connection) filter(batch, scratch []domain.Event) int {
	c.svc.mu.Lock()
	defer c.svc.mu.Unlock()
	count := 0
	i := 0
	for i < len(batch) {
		curr := batch[i].Handle
		_, wanted := c.subs[curr]
		for i < len(batch) && batch[i].Handle == curr {
			if wanted {
				scratch[count] = batch[i]
				count++
			}
			i++
		}
	}
	return count
}

// filterAndForward delivers the subset of batch this connection subscribed
// to. A full channel drops the batch for this connection only; any other
// channel error is a connection-level failure.
func (c *Connection) filterAndForward(batch, scratch []domain.Event) error {
	count := c.filter(batch, scratch)
	if count == 0 {
		return nil
	}
	return c.forward(scratch[:count])
}

func (c *Connection) forward(events []domain.Event) error {
	payload := domain.EncodeEvents(events)
	if _, err := c.ch.Write(payload); err != nil {
		if errors.Is(err, ports.ErrWouldBlock) {
			// the receiver is not draining; delivery is best-effort and
			// this batch is lost by contract
			c.svc.obs.LogWarn("events_dropped",
				ports.Field{Key: "connection", Value: c.id.String()},
				ports.Field{Key: "events", Value: len(events)})
			c.svc.obs.IncCounter(metricBatchesDropped, 1)
			return nil
		}
		return fmt.Errorf("forward %d events: %w", len(events), err)
	}
	return nil
}

// replayLocked pushes a cached last value to a fresh subscriber. Best
// effort: a full or broken channel only logs. Caller holds the service
// mutex.
func (c *Connection) replayLocked(ev domain.Event) {
	if _, err := c.ch.Write(domain.EncodeEvents([]domain.Event{ev})); err != nil {
		if errors.Is(err, ports.ErrWouldBlock) {
			c.svc.obs.LogWarn("replay_dropped",
				ports.Field{Key: "connection", Value: c.id.String()},
				ports.Field{Key: "handle", Value: ev.Handle})
			return
		}
		c.svc.obs.LogError("replay_failed", err,
			ports.Field{Key: "connection", Value: c.id.String()})
	}
}
