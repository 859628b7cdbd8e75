package diag

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterUnregisterSnapshot(t *testing.T) {
	r := NewRegistry()

	id := r.Register("map")
	snapshot := r.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, id, snapshot[0].ID)
	assert.Equal(t, "map", snapshot[0].Kind)
	assert.Equal(t, CurrentGoroutineID(), snapshot[0].OwnerGID)

	r.Unregister(id)
	assert.Empty(t, r.Snapshot())
}

func TestRegistry_RecordDroppedErrorAndOverflowDoNotPanic(t *testing.T) {
	r := NewRegistry()
	assert.NotPanics(t, func() {
		r.RecordDroppedError()
		r.RecordOverflow()
	})
}

// Owner is advisory reentrancy bookkeeping: the first goroutine to call
// Enter becomes the recorded owner, and every later call reports whether the
// caller matches it — this is what the drain-loop trampoline pattern could
// assert against to catch a stage being re-entered from an unexpected
// goroutine, even though the wip counter (not Owner) is what actually
// enforces single ownership.
func TestOwner_EnterMatchesSameGoroutine(t *testing.T) {
	var o Owner

	first := o.Enter()
	second := o.Enter()

	assert.True(t, first)
	assert.True(t, second)
}

func TestOwner_EnterRejectsOtherGoroutine(t *testing.T) {
	var o Owner
	require.True(t, o.Enter())

	mismatched := make(chan bool, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mismatched <- o.Enter()
	}()
	wg.Wait()

	assert.False(t, <-mismatched)
}

func TestOwner_ReleaseAllowsNewOwner(t *testing.T) {
	var o Owner
	require.True(t, o.Enter())
	o.Release()

	var reentered bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reentered = o.Enter()
	}()
	wg.Wait()

	assert.True(t, reentered)
}
