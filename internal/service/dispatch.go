package service

import (
	"sync"
	"time"

	"sensormux/internal/domain"
	"sensormux/internal/ports"
)

// dispatcher is the single background worker that polls the hardware and
// fans each batch out to every live connection. It owns its stop flag and
// completion signal; nothing else runs on its goroutine.
type dispatcher struct {
	svc       *Service
	pollBatch int

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newDispatcher(svc *Service, pollBatch int) *dispatcher {
	return &dispatcher{
		svc:       svc,
		pollBatch: pollBatch,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (d *dispatcher) requestStop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

func (d *dispatcher) stopping() bool {
	select {
	case <-d.stop:
		return true
	default:
		return false
	}
}

func (d *dispatcher) wait() { <-d.done }

// run loops poll → record last values → snapshot connections → fan out. A
// poll error is fatal: the failed batch is never fanned out and the loop
// stops for good. The service keeps answering control-plane calls, it just
// delivers no further events.
func (d *dispatcher) run() {
	defer close(d.done)

	buf := make([]domain.Event, d.pollBatch)
	scratch := make([]domain.Event, d.pollBatch)

	for {
		n, err := d.svc.hal.Poll(buf)
		if err != nil {
			if d.stopping() {
				d.svc.obs.LogInfo("dispatch_stopped")
			} else {
				d.svc.obs.LogError("sensor_poll_failed", err)
				d.svc.obs.IncCounter(metricPollFailures, 1)
			}
			return
		}
		if n <= 0 {
			continue
		}
		batch := buf[:n]
		start := time.Now()

		d.svc.recordLastValue(batch)

		for _, c := range d.svc.activeConnectionsSnapshot() {
			if !c.alive() {
				continue
			}
			if err := c.filterAndForward(batch, scratch); err != nil {
				d.svc.obs.LogError("connection_forward_failed", err,
					ports.Field{Key: "connection", Value: c.ID().String()})
			}
		}

		d.svc.obs.IncCounter(metricEventsDispatched, float64(n))
		d.svc.obs.ObserveLatency(metricDispatchLatency, time.Since(start).Seconds())

		if d.stopping() {
			d.svc.obs.LogInfo("dispatch_stopped")
			return
		}
	}
}
