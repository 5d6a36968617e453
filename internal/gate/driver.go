package gate

import (
	"context"
	"sync"
	"time"
)

// DefaultTickInterval is how often the driver recomputes elapsed time.
const DefaultTickInterval = 100 * time.Millisecond

// Driver runs the single recurring timer that advances a Gate and publishes
// snapshots whenever something visible changed.
type Driver struct {
	gate     *Gate
	interval time.Duration
	updates  chan Snapshot

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewDriver wraps g. interval <= 0 selects DefaultTickInterval.
func NewDriver(g *Gate, interval time.Duration) *Driver {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Driver{
		gate:     g,
		interval: interval,
		updates:  make(chan Snapshot, 8),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Gate returns the driven gate.
func (d *Driver) Gate() *Gate {
	return d.gate
}

// Updates delivers snapshots. The channel is closed when the driver exits.
// Slow readers only miss intermediate snapshots, never the latest one.
func (d *Driver) Updates() <-chan Snapshot {
	return d.updates
}

// Start launches the ticker goroutine. It exits when ctx is done, Stop is
// called, or the gate reaches a terminal phase. Exiting before the gate was
// closed abandons it, forfeiting the reward.
func (d *Driver) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		go d.run(ctx)
	})
}

// Stop clears the timer and waits for the goroutine to exit.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.startOnce.Do(func() { close(d.done); close(d.updates); d.gate.Abandon() })
	<-d.done
}

// Done is closed once the driver goroutine has exited.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

func (d *Driver) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer func() {
		ticker.Stop()
		if !d.gate.Snapshot().Phase.Terminal() {
			d.gate.Abandon()
		}
		close(d.updates)
		close(d.done)
	}()

	last := d.gate.Tick()
	d.publish(last)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-ticker.C:
			snap := d.gate.Tick()
			if changed(last, snap) {
				d.publish(snap)
				last = snap
			}
			if snap.Phase.Terminal() {
				return
			}
		}
	}
}

func (d *Driver) publish(s Snapshot) {
	select {
	case d.updates <- s:
	default:
		select {
		case <-d.updates:
		default:
		}
		d.updates <- s
	}
}

func changed(a, b Snapshot) bool {
	return a.Phase != b.Phase ||
		a.Segment != b.Segment ||
		a.Remaining != b.Remaining ||
		a.CanClose != b.CanClose ||
		a.Muted != b.Muted
}
