package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImmediate_SchedulesSynchronously(t *testing.T) {
	ran := false
	Immediate{}.Schedule(func() { ran = true })
	assert.True(t, ran)
}

func TestImmediate_ScheduleAfterFiresAfterDelay(t *testing.T) {
	done := make(chan struct{})
	start := time.Now()
	Immediate{}.ScheduleAfter(func() { close(done) }, 10*time.Millisecond)

	<-done
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestImmediate_ScheduleAfterCancelStopsFiring(t *testing.T) {
	fired := int32(0)
	cancel := Immediate{}.ScheduleAfter(func() { atomic.AddInt32(&fired, 1) }, 20*time.Millisecond)
	cancel()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestImmediate_SchedulePeriodicallyRepeatsUntilCancelled(t *testing.T) {
	var count int32
	cancel := Immediate{}.SchedulePeriodically(func() { atomic.AddInt32(&count, 1) }, time.Millisecond, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	cancel()
	snapshot := atomic.LoadInt32(&count)

	require.GreaterOrEqual(t, snapshot, int32(2))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, snapshot, atomic.LoadInt32(&count))
}

func TestNewGoroutine_RunsOffCallingGoroutine(t *testing.T) {
	callerDone := make(chan struct{})
	ran := make(chan struct{})

	NewGoroutine{}.Schedule(func() {
		<-callerDone // only proceeds after Schedule itself has returned
		close(ran)
	})
	close(callerDone)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("NewGoroutine.Schedule never ran the action")
	}
}

func TestNewGoroutine_RecoversPanicInAction(t *testing.T) {
	done := make(chan struct{})
	assert.NotPanics(t, func() {
		NewGoroutine{}.Schedule(func() {
			defer close(done)
			panic("boom")
		})
	})
	<-done
}

func TestPool_RunsSubmittedWorkAcrossWorkers(t *testing.T) {
	p := NewPool(4, 16)
	defer p.Close()

	const n = 50
	var wg sync.WaitGroup
	var count int32
	wg.Add(n)
	for i := 0; i < n; i++ {
		p.Schedule(func() {
			atomic.AddInt32(&count, 1)
			wg.Done()
		})
	}
	wg.Wait()

	assert.Equal(t, int32(n), atomic.LoadInt32(&count))
}

func TestPool_BacklogReflectsQueuedWork(t *testing.T) {
	p := NewPool(1, 4)
	defer p.Close()

	block := make(chan struct{})
	p.Schedule(func() { <-block })

	for i := 0; i < 3; i++ {
		p.Schedule(func() {})
	}

	require.Eventually(t, func() bool { return p.Backlog() > 0 }, time.Second, time.Millisecond)
	close(block)
}

func TestPool_ClosePreventsFurtherDispatch(t *testing.T) {
	p := NewPool(1, 1)
	p.Close()

	ran := int32(0)
	done := make(chan struct{})
	go func() {
		p.Schedule(func() { atomic.AddInt32(&ran, 1) })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Schedule on a closed pool blocked instead of returning")
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}
