package reactor

import (
	"sync"
	"sync/atomic"

	"github.com/prince2015999/reactor-core/diag"
)

// ============================================================================
// Backpressure adapters. Each drives upstream at unbounded demand and lets
// downstream demand alone decide what happens to a value that arrives
// while downstream has no outstanding demand. Consolidated under a single
// OverflowStrategy enum instead of a bespoke overflow code path per
// operator. Grounded in xinjiayu-RxGo/flowable_operators.go's
// backpressureBufferSubscriber, generalized to all four strategies instead
// of just BUFFER.
// ============================================================================

// OverflowStrategy selects what a backpressure adapter does with a value
// that arrives while downstream demand is exhausted.
type OverflowStrategy int

const (
	// OverflowBuffer buffers every value regardless of demand (unbounded).
	OverflowBuffer OverflowStrategy = iota
	// OverflowDropLatest discards the newest value, keeping anything
	// already buffered.
	OverflowDropLatest
	// OverflowDropOldest discards the oldest buffered value to make room
	// for the newest.
	OverflowDropOldest
	// OverflowErrorStrategy terminates the stage with an OverflowError.
	OverflowErrorStrategy
)

// OnBackpressure applies strategy to values arriving while downstream
// demand is zero. onDrop, if non-nil, is notified with every value the
// Drop* strategies discard.
func (f Flux) OnBackpressure(strategy OverflowStrategy, onDrop func(interface{})) Flux {
	return FromPublisher(&backpressurePublisher{upstream: f.pub, strategy: strategy, onDrop: onDrop})
}

// OnBackpressureBuffer buffers every value regardless of downstream demand.
func (f Flux) OnBackpressureBuffer() Flux {
	return f.OnBackpressure(OverflowBuffer, nil)
}

// OnBackpressureDrop discards new values while downstream demand is zero.
func (f Flux) OnBackpressureDrop(onDrop func(interface{})) Flux {
	return f.OnBackpressure(OverflowDropLatest, onDrop)
}

// OnBackpressureLatest keeps only the most recently emitted value while
// downstream demand is zero, overwriting whatever was buffered before.
func (f Flux) OnBackpressureLatest() Flux {
	return f.OnBackpressure(OverflowDropOldest, nil)
}

// OnBackpressureError fails the stage with an OverflowError the first time a
// value arrives with no outstanding downstream demand.
func (f Flux) OnBackpressureError() Flux {
	return f.OnBackpressure(OverflowErrorStrategy, nil)
}

type backpressurePublisher struct {
	upstream Publisher
	strategy OverflowStrategy
	onDrop   func(interface{})
}

func (p *backpressurePublisher) Subscribe(subscriber Subscriber) {
	s := &backpressureSubscriber{downstream: subscriber, strategy: p.strategy, onDrop: p.onDrop}
	p.upstream.Subscribe(s)
}

type backpressureSubscriber struct {
	downstream Subscriber
	strategy   OverflowStrategy
	onDrop     func(interface{})

	upstream Subscription
	mu       sync.Mutex
	buffer   []interface{}
	requested int64
	done      bool
	delivered bool // a terminal signal has gone downstream; guarded by mu
	drainWip  wip
}

func (b *backpressureSubscriber) OnSubscribe(subscription Subscription) {
	b.upstream = subscription
	downstreamSub := newDemandSubscription(
		func(n int64) {
			addSaturating(&b.requested, n)
			b.schedule()
		},
		func() { subscription.Cancel() },
		nil,
	)
	b.downstream.OnSubscribe(downstreamSub)
	subscription.Request(unboundedDemand)
}

func (b *backpressureSubscriber) OnNext(value interface{}) {
	b.mu.Lock()
	requested := atomic.LoadInt64(&b.requested)
	if requested > int64(len(b.buffer)) || requested == unboundedDemand {
		b.buffer = append(b.buffer, value)
		b.mu.Unlock()
		b.schedule()
		return
	}
	switch b.strategy {
	case OverflowBuffer:
		b.buffer = append(b.buffer, value)
		b.mu.Unlock()
	case OverflowDropLatest:
		b.mu.Unlock()
		diag.Default.RecordOverflow()
		if b.onDrop != nil {
			b.onDrop(value)
		}
	case OverflowDropOldest:
		var dropped interface{}
		if len(b.buffer) > 0 {
			dropped = b.buffer[0]
			b.buffer = b.buffer[1:]
		}
		b.buffer = append(b.buffer, value)
		b.mu.Unlock()
		diag.Default.RecordOverflow()
		if b.onDrop != nil && dropped != nil {
			b.onDrop(dropped)
		}
	case OverflowErrorStrategy:
		b.delivered = true
		b.mu.Unlock()
		diag.Default.RecordOverflow()
		b.upstream.Cancel()
		b.downstream.OnError(&OverflowError{Reason: "onBackpressureError: downstream demand exhausted"})
		return
	}
	b.schedule()
}

func (b *backpressureSubscriber) OnError(cause error) {
	b.mu.Lock()
	b.done = true
	b.delivered = true
	b.mu.Unlock()
	b.downstream.OnError(cause)
}

func (b *backpressureSubscriber) OnComplete() {
	b.mu.Lock()
	b.done = true
	b.mu.Unlock()
	b.schedule()
}

func (b *backpressureSubscriber) schedule() {
	if !b.drainWip.enter() {
		return
	}
	b.drainWip.drain(b.drainOnce)
}

func (b *backpressureSubscriber) drainOnce() {
	for {
		b.mu.Lock()
		if b.delivered {
			b.mu.Unlock()
			return
		}
		requested := atomic.LoadInt64(&b.requested)
		if len(b.buffer) == 0 || (requested <= 0 && requested != unboundedDemand) {
			empty := len(b.buffer) == 0
			done := b.done
			if empty && done {
				b.delivered = true
			}
			b.mu.Unlock()
			if empty && done {
				b.downstream.OnComplete()
			}
			return
		}
		v := b.buffer[0]
		b.buffer = b.buffer[1:]
		if requested != unboundedDemand {
			atomic.AddInt64(&b.requested, -1)
		}
		b.mu.Unlock()
		b.downstream.OnNext(v)
	}
}
