package reactor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests exercise the universally-quantified properties of the signal
// protocol itself, independent of any particular operator.

func TestSignalLaw_NoSignalAfterTerminal(t *testing.T) {
	sub := newRecordingSubscriber()
	Just(1, 2, 3).Subscribe(sub)
	sub.Request(unboundedDemand)

	require.True(t, sub.Completed())
	assert.Equal(t, []interface{}{1, 2, 3}, sub.Values())

	// A well-behaved publisher never calls OnNext/OnError again once it has
	// completed; asserting the recorded state is stable after the fact is
	// the only thing a black-box test can check here.
	valuesAfter := sub.Values()
	assert.Equal(t, valuesAfter, sub.Values())
}

func TestSignalLaw_ErrorIsTerminal(t *testing.T) {
	cause := errors.New("boom")
	sub := newRecordingSubscriber()
	Raise(cause).Subscribe(sub)
	sub.Request(unboundedDemand)

	require.Error(t, sub.Err())
	assert.False(t, sub.Completed())
	assert.Empty(t, sub.Values())
}

func TestDemandConservation_NoMoreThanRequested(t *testing.T) {
	sub := newRecordingSubscriber()
	Range(1, 10).Subscribe(sub)

	sub.Request(3)
	assert.Len(t, sub.Values(), 3)

	sub.Request(2)
	assert.Len(t, sub.Values(), 5)

	sub.Request(5)
	assert.Len(t, sub.Values(), 10)
	assert.True(t, sub.Completed())
}

func TestCancellationFinality_StopsFurtherDelivery(t *testing.T) {
	sub := newRecordingSubscriber()
	Range(1, 100).Subscribe(sub)

	sub.Request(2)
	assert.Len(t, sub.Values(), 2)

	sub.Cancel()
	sub.Request(1000)

	// Cancellation must stop delivery; no further values beyond what was
	// already emitted before the cancel should show up.
	assert.Len(t, sub.Values(), 2)
	assert.False(t, sub.Completed())
}

func TestMapIdentity_PreservesSequence(t *testing.T) {
	identity := func(v interface{}) (interface{}, error) { return v, nil }

	original := newRecordingSubscriber()
	Range(1, 5).Subscribe(original)
	original.Request(unboundedDemand)

	mapped := newRecordingSubscriber()
	Range(1, 5).Map(identity).Subscribe(mapped)
	mapped.Request(unboundedDemand)

	assert.Equal(t, original.Values(), mapped.Values())
}

func TestFilterIdempotence(t *testing.T) {
	isEven := func(v interface{}) (bool, error) { return v.(int)%2 == 0, nil }

	once := newRecordingSubscriber()
	Range(1, 10).Filter(isEven).Subscribe(once)
	once.Request(unboundedDemand)

	twice := newRecordingSubscriber()
	Range(1, 10).Filter(isEven).Filter(isEven).Subscribe(twice)
	twice.Request(unboundedDemand)

	assert.Equal(t, once.Values(), twice.Values())
}

func TestConcatRoundTrip_PreservesOrderAndAllValues(t *testing.T) {
	sub := newRecordingSubscriber()
	Concat(Range(1, 3), Range(10, 3)).Subscribe(sub)
	sub.Request(unboundedDemand)

	require.True(t, sub.Completed())
	assert.Equal(t, []interface{}{1, 2, 3, 10, 11, 12}, sub.Values())
}

func TestErrorMonotonicity_NoValuesOrCompleteAfterError(t *testing.T) {
	cause := errors.New("mid-stream failure")
	source := Create(func(e Emitter) {
		e.Next(1)
		e.Next(2)
		e.Error(cause)
		// A well-behaved producer stops here; these calls must be ignored
		// since the emitter already latched a terminal signal.
		e.Next(3)
		e.Complete()
	})

	sub := newRecordingSubscriber()
	source.Subscribe(sub)
	sub.Request(unboundedDemand)

	// Create runs the producer on its own goroutine; wait for the terminal
	// signal before inspecting what was delivered.
	require.Eventually(t, func() bool { return sub.Err() != nil }, time.Second, time.Millisecond)
	assert.Equal(t, []interface{}{1, 2}, sub.Values())
	assert.Same(t, cause, unwrapUserError(sub.Err()))
	assert.False(t, sub.Completed())
}

func unwrapUserError(err error) error {
	if ue, ok := err.(*UserError); ok {
		return ue.Cause
	}
	return err
}

func TestColdReplay_EachSubscriptionReplaysFromStart(t *testing.T) {
	source := Range(1, 5)

	first := newRecordingSubscriber()
	source.Subscribe(first)
	first.Request(unboundedDemand)

	second := newRecordingSubscriber()
	source.Subscribe(second)
	second.Request(unboundedDemand)

	assert.Equal(t, first.Values(), second.Values())
	assert.Equal(t, []interface{}{1, 2, 3, 4, 5}, second.Values())
}

func TestSerialization_SingleGoroutineObservesStrictOrder(t *testing.T) {
	// Filter+Map chained on a synchronous cold source: every signal in
	// this pipeline is delivered on the same calling goroutine, so ordering
	// must match source order exactly with no interleaving.
	sub := newRecordingSubscriber()
	Range(1, 20).
		Filter(func(v interface{}) (bool, error) { return v.(int)%2 == 0, nil }).
		Map(func(v interface{}) (interface{}, error) { return v.(int) * 10, nil }).
		Subscribe(sub)
	sub.Request(unboundedDemand)

	want := []interface{}{}
	for i := 2; i <= 20; i += 2 {
		want = append(want, i*10)
	}
	assert.Equal(t, want, sub.Values())
}
