package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArrayBolt3/kloak-v2/internal/events"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

type fixedRandStream struct {
	values []int64
	i      int
}

func (f *fixedRandStream) UniformInt(lo, hi int64) int64 {
	if f.i >= len(f.values) {
		return hi
	}
	v := f.values[f.i]
	f.i++
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// S1. Single-output typing: random returns 50 uniformly, MAX_DELAY_MS=100.
// Key-press at t=0, key-release at t=10. Expected release times: 50, 60.
func TestScenarioS1SingleOutputTyping(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	rs := &fixedRandStream{values: []int64{50, 50}}
	q := New(clock, rs, 100*time.Millisecond)

	q.Enqueue(events.Physical{Kind: events.Key, KeyState: events.KeyPressed})
	clock.t = clock.t.Add(10 * time.Millisecond)
	q.Enqueue(events.Physical{Kind: events.Key, KeyState: events.KeyReleased})

	require.Equal(t, 2, q.Len())
	first, _ := q.NextRelease()
	assert.Equal(t, time.Unix(0, 0).Add(50*time.Millisecond), first)

	sweep1 := q.Sweep(time.Unix(0, 0).Add(50 * time.Millisecond))
	require.Len(t, sweep1, 1)
	assert.Equal(t, events.KeyPressed, sweep1[0].KeyState)

	sweep2 := q.Sweep(time.Unix(0, 0).Add(60 * time.Millisecond))
	require.Len(t, sweep2, 1)
	assert.Equal(t, events.KeyReleased, sweep2[0].KeyState)
}

// S2. Order preservation under back-pressure: random returns 100 then 0.
// Three clicks at t=0,1,2. Expected release times: 100, 100, 100 (lifted
// to the floor by the monotone clamp).
func TestScenarioS2OrderPreservationUnderBackpressure(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	rs := &fixedRandStream{values: []int64{100, 0, 0}}
	q := New(clock, rs, 100*time.Millisecond)

	q.Enqueue(events.Physical{Kind: events.Button, ButtonCode: 1})
	clock.t = clock.t.Add(1 * time.Millisecond)
	q.Enqueue(events.Physical{Kind: events.Button, ButtonCode: 2})
	clock.t = clock.t.Add(1 * time.Millisecond)
	q.Enqueue(events.Physical{Kind: events.Button, ButtonCode: 3})

	ready := q.Sweep(time.Unix(0, 0).Add(100 * time.Millisecond))
	require.Len(t, ready, 3)
	assert.Equal(t, uint32(1), ready[0].ButtonCode)
	assert.Equal(t, uint32(2), ready[1].ButtonCode)
	assert.Equal(t, uint32(3), ready[2].ButtonCode)
}

func TestClassify(t *testing.T) {
	assert.False(t, Classify(events.Physical{Kind: events.MotionAbs}))
	assert.False(t, Classify(events.Physical{Kind: events.MotionRel}))
	assert.False(t, Classify(events.Physical{Kind: events.DeviceAdded}))
	assert.True(t, Classify(events.Physical{Kind: events.Button}))
	assert.True(t, Classify(events.Physical{Kind: events.Axis}))
	assert.True(t, Classify(events.Physical{Kind: events.Key}))
}

// Universal invariants 2-4: release times are monotone non-decreasing,
// never precede their enqueue time, and never exceed
// enqueue_time+MAX_DELAY_MS.
func TestReleaseTimeInvariants(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	rs := &fixedRandStream{values: []int64{0, 100, 37, 99, 1}}
	maxDelay := 100 * time.Millisecond
	q := New(clock, rs, maxDelay)

	var enqueueTimes, releaseTimes []time.Time
	for i := 0; i < 5; i++ {
		enqueueTimes = append(enqueueTimes, clock.t)
		q.Enqueue(events.Physical{Kind: events.Key})
		rt, ok := q.NextReleaseOf(i)
		require.True(t, ok)
		releaseTimes = append(releaseTimes, rt)
		clock.advance(time.Millisecond)
	}

	for i, rt := range releaseTimes {
		assert.False(t, rt.Before(enqueueTimes[i]), "release time must not precede enqueue time")
		assert.False(t, rt.After(enqueueTimes[i].Add(maxDelay)), "release time must not exceed the ceiling")
		if i > 0 {
			assert.False(t, rt.Before(releaseTimes[i-1]), "release times must be monotone non-decreasing")
		}
	}
}
