package broker

import (
	"context"
	"time"
)

// DelayDispatcher is the single process-wide timer described in spec.md
// §9: rather than each Queue arming its own timer per message (which
// would mean thousands of goroutines racing the same clock under load),
// one loop sleeps until the soonest deadline across every queue, then
// ticks every queue once. A queue with nothing due is a cheap heap peek.
type DelayDispatcher struct {
	mgr     *Manager
	clock   Clock
	maxIdle time.Duration
}

// NewDelayDispatcher builds a dispatcher over every queue mgr knows
// about. maxIdle bounds how long the loop ever sleeps with no deadlines
// pending, so a queue created after the loop last computed its wait
// still gets picked up promptly.
func NewDelayDispatcher(mgr *Manager, clock Clock, maxIdle time.Duration) *DelayDispatcher {
	return &DelayDispatcher{mgr: mgr, clock: clock, maxIdle: maxIdle}
}

// Run blocks, ticking every queue until ctx is done.
func (d *DelayDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.clock.After(d.nextWait()):
		}
		d.TickAll()
	}
}

// TickAll runs one dispatch pass immediately; exported so tests driving
// a ManualClock can advance time and then force a pass deterministically
// instead of racing a background goroutine.
func (d *DelayDispatcher) TickAll() {
	now := d.clock.NowMillis()
	for _, name := range d.mgr.ListQueues("") {
		q, err := d.mgr.GetQueue(name)
		if err != nil {
			continue // deleted between ListQueues and GetQueue
		}
		q.Tick(now)
	}
}

func (d *DelayDispatcher) nextWait() time.Duration {
	now := d.clock.NowMillis()
	earliest, ok := d.earliestDeadlineMillis()
	if !ok {
		return d.maxIdle
	}
	wait := earliest - now
	if wait < 0 {
		wait = 0
	}
	if time.Duration(wait)*time.Millisecond > d.maxIdle {
		return d.maxIdle
	}
	return time.Duration(wait) * time.Millisecond
}

func (d *DelayDispatcher) earliestDeadlineMillis() (int64, bool) {
	best := int64(0)
	found := false
	for _, name := range d.mgr.ListQueues("") {
		q, err := d.mgr.GetQueue(name)
		if err != nil {
			continue
		}
		next, ok := q.NextDeadline()
		if !ok {
			continue
		}
		if !found || next < best {
			best = next
			found = true
		}
	}
	return best, found
}
