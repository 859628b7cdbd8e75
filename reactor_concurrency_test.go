package reactor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// guardedSubscriber counts how many signals are in flight at once, catching
// any violation of the "never called concurrently" rule core.go's Subscriber
// doc comment states — exactly the property the wip drain-loop trampoline
// (wip.go) exists to guarantee even when many producer goroutines race to
// push through the same Emitter (spec.md §5).
type guardedSubscriber struct {
	sub Subscription

	inFlight    int32
	violations  int32
	values      int64
	mu          sync.Mutex
	completed   bool
	err         error
}

func (g *guardedSubscriber) OnSubscribe(subscription Subscription) { g.sub = subscription }

func (g *guardedSubscriber) enter() {
	if atomic.AddInt32(&g.inFlight, 1) != 1 {
		atomic.AddInt32(&g.violations, 1)
	}
}

func (g *guardedSubscriber) leave() { atomic.AddInt32(&g.inFlight, -1) }

func (g *guardedSubscriber) OnNext(interface{}) {
	g.enter()
	atomic.AddInt64(&g.values, 1)
	g.leave()
}

func (g *guardedSubscriber) OnError(cause error) {
	g.enter()
	g.mu.Lock()
	g.err = cause
	g.mu.Unlock()
	g.leave()
}

func (g *guardedSubscriber) OnComplete() {
	g.enter()
	g.mu.Lock()
	g.completed = true
	g.mu.Unlock()
	g.leave()
}

func (g *guardedSubscriber) Completed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.completed
}

func TestEmitterDrainLoopNeverDeliversConcurrently(t *testing.T) {
	const producers = 8
	const perProducer = 500

	sub := &guardedSubscriber{}
	source := Create(func(e Emitter) {
		var wg sync.WaitGroup
		wg.Add(producers)
		for p := 0; p < producers; p++ {
			go func() {
				defer wg.Done()
				for i := 0; i < perProducer; i++ {
					e.Next(i)
				}
			}()
		}
		wg.Wait()
		e.Complete()
	})

	source.Subscribe(sub)
	sub.sub.Request(unboundedDemand)

	require.Eventually(t, sub.Completed, 2*time.Second, time.Millisecond)
	assert.Equal(t, int64(producers*perProducer), atomic.LoadInt64(&sub.values))
	assert.Equal(t, int32(0), atomic.LoadInt32(&sub.violations))
}
