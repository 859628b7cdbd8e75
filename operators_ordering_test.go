package reactor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcatForwardsInOrderAndCompletesOnce(t *testing.T) {
	sub := newRecordingSubscriber()
	Concat(Just(1), Just(2), Range(3, 2)).Subscribe(sub)
	sub.Request(unboundedDemand)

	assert.Equal(t, []interface{}{1, 2, 3, 4}, sub.Values())
	assert.True(t, sub.Completed())
}

func TestConcatErrorImmediateStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	sub := newRecordingSubscriber()
	ConcatMode(ErrorImmediate, Just(1), Raise(boom), Just(2)).Subscribe(sub)
	sub.Request(unboundedDemand)

	assert.Equal(t, []interface{}{1}, sub.Values())
	require.Error(t, sub.Err())
	assert.Same(t, boom, sub.Err())
}

func TestConcatErrorEndRunsEverySourceThenComposites(t *testing.T) {
	boom1 := errors.New("boom1")
	boom2 := errors.New("boom2")
	sub := newRecordingSubscriber()
	ConcatMode(ErrorEnd, Just(1), Raise(boom1), Just(2), Raise(boom2)).Subscribe(sub)
	sub.Request(unboundedDemand)

	assert.Equal(t, []interface{}{1, 2}, sub.Values())
	require.Error(t, sub.Err())
	var composite *CompositeError
	require.ErrorAs(t, sub.Err(), &composite)
	assert.Equal(t, []error{boom1, boom2}, composite.Causes)
}

func TestConcatMapMapsAndFlattensInOrder(t *testing.T) {
	mapper := func(v interface{}) Flux { return Range(v.(int)*10, 2) }

	sub := newRecordingSubscriber()
	Range(1, 3).ConcatMap(mapper, ErrorImmediate).Subscribe(sub)
	sub.Request(unboundedDemand)

	assert.Equal(t, []interface{}{10, 11, 20, 21, 30, 31}, sub.Values())
	assert.True(t, sub.Completed())
}

func TestConcatMapErrorImmediatePropagatesAndStops(t *testing.T) {
	boom := errors.New("boom")
	mapper := func(v interface{}) Flux {
		if v.(int) == 2 {
			return Raise(boom)
		}
		return Just(v)
	}

	sub := newRecordingSubscriber()
	Range(1, 3).ConcatMap(mapper, ErrorImmediate).Subscribe(sub)
	sub.Request(unboundedDemand)

	assert.Equal(t, []interface{}{1}, sub.Values())
	assert.Same(t, boom, sub.Err())
}

func TestAmbFirstSignalWinsAndCancelsOthers(t *testing.T) {
	cancelled := make(chan int, 2)
	ready := make(chan struct{}, 2)
	winner := make(chan Emitter, 1)

	loser := func(id int) Flux {
		return Create(func(e Emitter) {
			e.SetCancellation(func() { cancelled <- id })
			ready <- struct{}{}
		})
	}

	sub := newRecordingSubscriber()
	Amb(loser(0), Create(func(e Emitter) { winner <- e }), loser(2)).Subscribe(sub)
	sub.Request(unboundedDemand)

	<-ready
	<-ready

	e := <-winner
	e.Next("won")
	e.Complete()

	assert.Equal(t, []interface{}{"won"}, sub.Values())
	assert.True(t, sub.Completed())

	seen := map[int]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-cancelled:
			seen[id] = true
		case <-time.After(time.Second):
			t.Fatal("losing source was never cancelled")
		}
	}
	assert.True(t, seen[0])
	assert.True(t, seen[2])
}

func TestSwitchMapCancelsPreviousInnerOnNewOuterValue(t *testing.T) {
	firstCancelled := make(chan struct{})
	firstEmitter := make(chan Emitter, 1)
	secondEmitter := make(chan Emitter, 1)

	mapper := func(v interface{}) Flux {
		switch v.(string) {
		case "first":
			return Create(func(e Emitter) {
				e.SetCancellation(func() { close(firstCancelled) })
				firstEmitter <- e
			})
		default:
			return Create(func(e Emitter) { secondEmitter <- e })
		}
	}

	outerCh := make(chan Emitter, 1)
	outer := Create(func(e Emitter) { outerCh <- e })

	sub := newRecordingSubscriber()
	outer.SwitchMap(mapper).Subscribe(sub)
	sub.Request(unboundedDemand)

	oe := <-outerCh
	oe.Next("first")
	f := <-firstEmitter
	f.Next("stale")

	oe.Next("second")
	select {
	case <-firstCancelled:
	case <-time.After(time.Second):
		t.Fatal("previous inner source was never cancelled on switch")
	}

	s := <-secondEmitter
	s.Next("fresh")
	s.Complete()
	oe.Complete()

	require.Eventually(t, sub.Completed, time.Second, time.Millisecond)
	assert.Equal(t, []interface{}{"stale", "fresh"}, sub.Values())
}

func TestSwitchOnNextFlattensStreamOfFluxes(t *testing.T) {
	sub := newRecordingSubscriber()
	SwitchOnNext(FromSlice([]interface{}{Just(1), Just(2)})).Subscribe(sub)
	sub.Request(unboundedDemand)

	assert.Equal(t, []interface{}{1, 2}, sub.Values())
	assert.True(t, sub.Completed())
}
