// Package scheduler implements the obfuscation delay queue: each
// non-motion physical event is held until a randomized release time,
// bounded so that event order is preserved and latency never exceeds
// a configured ceiling.
package scheduler

import (
	"time"

	"github.com/ArrayBolt3/kloak-v2/internal/events"
	"github.com/ArrayBolt3/kloak-v2/internal/randsrc"
)

// Clock supplies the current time, abstracted so tests can inject a
// fake clock per the specification's end-to-end scenarios.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Queue is the FIFO delay queue. Release times are monotone
// non-decreasing by construction, so FIFO order equals release-time
// order.
type Queue struct {
	clock       Clock
	rand        randsrc.Source
	maxDelay    time.Duration
	prevRelease time.Time
	pending     []events.ScheduledPacket
}

// New creates a Queue with the given maximum delay ceiling.
func New(clock Clock, rand randsrc.Source, maxDelay time.Duration) *Queue {
	return &Queue{clock: clock, rand: rand, maxDelay: maxDelay}
}

// Enqueue assigns a release time to ev and appends it to the tail of
// the queue. The delay is drawn uniformly, in whole milliseconds, from
// [clamp(prevRelease-now, 0, maxDelay), maxDelay] (the lower bound
// rounded up to the next millisecond) and added to now, guaranteeing
// release times are monotone non-decreasing across successive calls.
func (q *Queue) Enqueue(ev events.Physical) {
	now := q.clock.Now()
	lower := q.prevRelease.Sub(now)
	if lower < 0 {
		lower = 0
	}
	if lower > q.maxDelay {
		lower = q.maxDelay
	}
	lowerMS := int64((lower + time.Millisecond - 1) / time.Millisecond)
	delay := time.Duration(q.rand.UniformInt(lowerMS, q.maxDelay.Milliseconds())) * time.Millisecond
	release := now.Add(delay)
	q.prevRelease = release
	q.pending = append(q.pending, events.ScheduledPacket{Event: ev, ReleaseTime: release})
}

// Sweep removes and returns every packet at the head of the queue
// whose release time is at or before now, preserving FIFO order.
func (q *Queue) Sweep(now time.Time) []events.Physical {
	var ready []events.Physical
	i := 0
	for ; i < len(q.pending); i++ {
		if q.pending[i].ReleaseTime.After(now) {
			break
		}
		ready = append(ready, q.pending[i].Event)
	}
	q.pending = q.pending[i:]
	return ready
}

// NextRelease returns the release time of the head packet, if any.
func (q *Queue) NextRelease() (time.Time, bool) {
	if len(q.pending) == 0 {
		return time.Time{}, false
	}
	return q.pending[0].ReleaseTime, true
}

// Len reports the number of packets currently queued.
func (q *Queue) Len() int { return len(q.pending) }

// NextReleaseOf returns the release time assigned to the packet at
// queue index i (0 = head), for test introspection.
func (q *Queue) NextReleaseOf(i int) (time.Time, bool) {
	if i < 0 || i >= len(q.pending) {
		return time.Time{}, false
	}
	return q.pending[i].ReleaseTime, true
}

// Classify reports whether ev should be enqueued at all. Motion events
// and device-added notifications are applied immediately by the
// caller instead.
func Classify(ev events.Physical) (enqueue bool) {
	switch ev.Kind {
	case events.MotionAbs, events.MotionRel, events.DeviceAdded:
		return false
	default:
		return true
	}
}

// Cadence resamples the virtual pointer's own emission schedule,
// independent of the physical motion timing, per the "virtual cursor
// cadence" rule: a next-move time drawn uniformly from
// [now, now+maxDelay], re-sampled each time it elapses.
type Cadence struct {
	clock    Clock
	rand     randsrc.Source
	maxDelay time.Duration
	next     time.Time
}

// NewCadence creates a Cadence and samples its first next-move time.
func NewCadence(clock Clock, rand randsrc.Source, maxDelay time.Duration) *Cadence {
	c := &Cadence{clock: clock, rand: rand, maxDelay: maxDelay}
	c.Resample()
	return c
}

// Due reports whether the cadence has elapsed as of now.
func (c *Cadence) Due(now time.Time) bool {
	return !now.Before(c.next)
}

// Next returns the currently scheduled next-move time.
func (c *Cadence) Next() time.Time { return c.next }

// Resample draws a new next-move time from [now, now+maxDelay].
func (c *Cadence) Resample() {
	now := c.clock.Now()
	delay := time.Duration(c.rand.UniformInt(0, int64(c.maxDelay)))
	c.next = now.Add(delay)
}
