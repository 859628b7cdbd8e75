package reactor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// The six concrete end-to-end scenarios. Grounded in
// _examples/roach88-nysm/brutalist's table-driven-plus-recorder test style,
// adapted to this package's Publisher/Subscriber double instead of that
// harness's scenario replay log.
// ============================================================================

func TestRangeMapCollect(t *testing.T) {
	square := func(v interface{}) (interface{}, error) { return v.(int) * v.(int), nil }

	values, err := Range(1, 5).Map(square).ToList().Block()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1, 4, 9, 16, 25}, values)
}

func TestMergeRespectsIncrementalDownstreamDemand(t *testing.T) {
	sub := newRecordingSubscriber()
	Merge(2, Range(1, 3), Range(10, 3)).Subscribe(sub)

	sub.Request(2)
	assert.Equal(t, []interface{}{1, 2}, sub.Values())
	assert.False(t, sub.Completed())

	sub.Request(2)
	assert.Equal(t, []interface{}{1, 2, 3, 10}, sub.Values())
	assert.False(t, sub.Completed())

	sub.Request(2)
	assert.Equal(t, []interface{}{1, 2, 3, 10, 11, 12}, sub.Values())
	require.True(t, sub.Completed())
}

func TestFlatMapConcurrency2_BoundsInFlightInnerSources(t *testing.T) {
	type registration struct {
		key string
		e   Emitter
	}
	regCh := make(chan registration, 3)
	mapper := func(v interface{}) Flux {
		key := v.(string)
		return Create(func(e Emitter) {
			regCh <- registration{key: key, e: e}
		})
	}

	sub := newRecordingSubscriber()
	FromSlice([]interface{}{"a", "b", "c"}).FlatMap(mapper, 2, 0, false).Subscribe(sub)
	sub.Request(unboundedDemand)

	first := <-regCh
	second := <-regCh
	started := map[string]Emitter{first.key: first.e, second.key: second.e}
	require.Len(t, started, 2)
	assert.Subset(t, []string{"a", "b", "c"}, []string{first.key, second.key})

	select {
	case r := <-regCh:
		t.Fatalf("third inner source %q started before either of the first two completed", r.key)
	case <-time.After(20 * time.Millisecond):
	}

	var firstKey string
	for k := range started {
		firstKey = k
		break
	}
	started[firstKey].Next(firstKey + "1")
	started[firstKey].Complete()

	third := <-regCh
	started[third.key] = third.e
	third.e.Next(third.key + "1")
	third.e.Complete()

	for k, e := range started {
		if k == firstKey || k == third.key {
			continue
		}
		e.Next(k + "1")
		e.Complete()
	}

	require.Eventually(t, sub.Completed, time.Second, time.Millisecond)
	assert.ElementsMatch(t, []interface{}{"a1", "b1", "c1"}, sub.Values())
}

func TestTimeoutWithFallback(t *testing.T) {
	exec := &manualDelayedExecutor{}
	emitterCh := make(chan Emitter, 1)
	source := Create(func(e Emitter) { emitterCh <- e })

	sub := newRecordingSubscriber()
	source.Timeout(time.Hour, exec, Just(99)).Subscribe(sub)
	sub.Request(unboundedDemand)

	e := <-emitterCh
	e.Next(1)
	require.Eventually(t, func() bool { return len(sub.Values()) == 1 }, time.Second, time.Millisecond)

	exec.fireLatest()

	assert.Equal(t, []interface{}{1, 99}, sub.Values())
	assert.True(t, sub.Completed())
}

func TestTimeoutDropsLateEmission(t *testing.T) {
	exec := &manualDelayedExecutor{}
	emitterCh := make(chan Emitter, 1)
	source := Create(func(e Emitter) { emitterCh <- e })

	sub := newRecordingSubscriber()
	source.Timeout(time.Hour, exec, Just(99)).Subscribe(sub)
	sub.Request(unboundedDemand)

	e := <-emitterCh

	// Simulate the watchdog firing (switching to the fallback) winning the
	// race against an emission the original source was already in the
	// middle of producing.
	exec.fireLatest()
	e.Next(1)

	assert.Equal(t, []interface{}{99}, sub.Values())
	assert.True(t, sub.Completed())
}

func TestRetryWithCountingPredicate(t *testing.T) {
	causeE := errors.New("E")
	attempts := 0
	var mu sync.Mutex
	source := Create(func(e Emitter) {
		mu.Lock()
		attempts++
		mu.Unlock()
		e.Next(1)
		e.Error(causeE)
	})

	var values []interface{}
	done := make(chan error, 1)
	source.Retry(2, func(cause error) bool { return cause == causeE }).SubscribeWith(
		func(v interface{}) { values = append(values, v) },
		func(err error) { done <- err },
		func() { done <- nil },
	)

	err := <-done
	require.Same(t, causeE, err)
	assert.Equal(t, []interface{}{1, 1, 1}, values)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}

func TestGroupByPartition(t *testing.T) {
	byParity := func(v interface{}) (interface{}, error) { return v.(int) % 2, nil }

	groups := map[interface{}]*recordingSubscriber{}
	Range(1, 10).GroupBy(byParity, nil).SubscribeWith(
		func(v interface{}) {
			g := v.(GroupedFlux)
			sub := newRecordingSubscriber()
			groups[g.Key()] = sub
			g.Subscribe(sub)
			sub.Request(unboundedDemand)
		},
		func(err error) { t.Fatalf("unexpected error: %v", err) },
		nil,
	)

	require.Contains(t, groups, 1)
	require.Contains(t, groups, 0)
	assert.Equal(t, []interface{}{1, 3, 5, 7, 9}, groups[1].Values())
	assert.Equal(t, []interface{}{2, 4, 6, 8, 10}, groups[0].Values())
}

// manualDelayedExecutor is a DelayedExecutor test double that never fires on
// its own; the test decides exactly when a scheduled watchdog elapses by
// calling fireLatest, making the timeout race deterministic instead of
// depending on real wall-clock timing.
type manualDelayedExecutor struct {
	mu     sync.Mutex
	latest func()
}

func (m *manualDelayedExecutor) Schedule(action func()) func() {
	go action()
	return func() {}
}

func (m *manualDelayedExecutor) ScheduleAfter(action func(), delay time.Duration) func() {
	m.mu.Lock()
	m.latest = action
	m.mu.Unlock()
	return func() {}
}

func (m *manualDelayedExecutor) SchedulePeriodically(action func(), initialDelay, period time.Duration) func() {
	m.mu.Lock()
	m.latest = action
	m.mu.Unlock()
	return func() {}
}

func (m *manualDelayedExecutor) fireLatest() {
	m.mu.Lock()
	f := m.latest
	m.mu.Unlock()
	if f != nil {
		f()
	}
}
