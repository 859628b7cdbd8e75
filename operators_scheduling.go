package reactor

import "sync/atomic"

// ============================================================================
// PublishOn / SubscribeOn
//
// PublishOn moves the downstream half of the pipeline (OnNext/OnError/
// OnComplete delivery) onto an Executor, decoupling the producer's goroutine
// from the consumer's. SubscribeOn moves the upstream half (the Subscribe
// call itself, and subsequent Request calls) onto an Executor instead.
//
// Grounded in xinjiayu-RxGo/flowable_impl.go's ObserveOn/SubscribeOn and
// flowable_operators.go's observeOnSubscriber, generalized from the
// teacher's unbounded channel-as-buffer relay into a genuine bounded
// prefetch-window protocol: the teacher's observeOnSubscriber requests
// unbounded demand upstream and buffers everything in an unbounded channel,
// which defeats backpressure entirely. Here PublishOn requests prefetch
// items upstream up front, refills the window as the drain loop consumes
// queued items, and only ever pulls as many items into its own queue as it
// has requested — the queue never grows past prefetch, and downstream's own
// Request still gates how many queued items the drain loop is allowed to
// deliver per pass.
// ============================================================================

// PublishOn re-dispatches this Flux's onward signals onto executor, pulling
// up to prefetch items ahead of downstream demand so the producer need not
// stall waiting for the executor to run.
func (f Flux) PublishOn(executor Executor, prefetch int) Flux {
	if prefetch <= 0 {
		prefetch = 128
	}
	return f.lift("publishOn", func(downstream Subscriber) Subscriber {
		return &publishOnSubscriber{
			downstream: downstream,
			executor:   executor,
			prefetch:   int64(prefetch),
			queue:      newSPSCQueue(prefetch),
		}
	})
}

type publishOnSubscriber struct {
	downstream Subscriber
	executor   Executor
	prefetch   int64
	queue      *spscQueue

	upstream Subscription
	drainWip wip

	requested int64 // atomic, demand granted by downstream but not yet delivered
	done      int32 // atomic, 1 once terminal enqueued
	pendingErr error
	completed  bool
	delivered  bool  // terminal signal already delivered; only touched inside the drain
	cancelled  int32 // atomic
}

func (p *publishOnSubscriber) OnSubscribe(subscription Subscription) {
	p.upstream = subscription
	downstreamSub := newDemandSubscription(
		func(n int64) {
			addSaturating(&p.requested, n)
			p.schedule()
		},
		func() {
			atomic.StoreInt32(&p.cancelled, 1)
			subscription.Cancel()
		},
		func(err error) { p.enqueueError(err) },
	)
	p.downstream.OnSubscribe(downstreamSub)
	subscription.Request(p.prefetch)
}

func (p *publishOnSubscriber) OnNext(value interface{}) {
	if !p.queue.Offer(value) {
		p.upstream.Cancel()
		p.enqueueError(&OverflowError{Reason: "publishOn queue overflow"})
		return
	}
	p.schedule()
}

func (p *publishOnSubscriber) OnError(cause error) {
	p.enqueueError(cause)
}

func (p *publishOnSubscriber) OnComplete() {
	if atomic.CompareAndSwapInt32(&p.done, 0, 1) {
		p.completed = true
	}
	p.schedule()
}

func (p *publishOnSubscriber) enqueueError(cause error) {
	if atomic.CompareAndSwapInt32(&p.done, 0, 1) {
		p.pendingErr = cause
	}
	p.schedule()
}

func (p *publishOnSubscriber) schedule() {
	if !p.drainWip.enter() {
		return
	}
	p.executor.Schedule(func() {
		p.drainWip.drain(p.drainOnce)
	})
}

func (p *publishOnSubscriber) drainOnce() {
	if atomic.LoadInt32(&p.cancelled) == 1 {
		p.queue.Clear()
		return
	}
	delivered := int64(0)
	for {
		demand := atomic.LoadInt64(&p.requested)
		if demand <= 0 {
			break
		}
		v, ok := p.queue.Poll()
		if !ok {
			break
		}
		p.downstream.OnNext(v)
		delivered++
		addSaturating(&p.requested, -1)
		if atomic.LoadInt32(&p.cancelled) == 1 {
			return
		}
	}
	if delivered > 0 {
		p.upstream.Request(delivered)
	}
	if p.queue.IsEmpty() && atomic.LoadInt32(&p.done) == 1 && !p.delivered {
		p.delivered = true
		if p.pendingErr != nil {
			p.downstream.OnError(p.pendingErr)
		} else if p.completed {
			p.downstream.OnComplete()
		}
	}
}

// SubscribeOn moves the Subscribe call (and every subsequent Request it
// triggers) onto executor, so the calling goroutine never runs any part of
// the upstream chain.
func (f Flux) SubscribeOn(executor Executor) Flux {
	return FromPublisher(&subscribeOnPublisher{upstream: f.pub, executor: executor})
}

type subscribeOnPublisher struct {
	upstream Publisher
	executor Executor
}

func (p *subscribeOnPublisher) Subscribe(subscriber Subscriber) {
	relay := &subscribeOnSubscriber{downstream: subscriber, executor: p.executor}
	p.executor.Schedule(func() {
		p.upstream.Subscribe(relay)
	})
}

type subscribeOnSubscriber struct {
	downstream Subscriber
	executor   Executor
	upstream   Subscription
}

func (s *subscribeOnSubscriber) OnSubscribe(subscription Subscription) {
	s.upstream = subscription
	s.downstream.OnSubscribe(newDemandSubscription(
		func(n int64) {
			s.executor.Schedule(func() { subscription.Request(n) })
		},
		func() {
			s.executor.Schedule(subscription.Cancel)
		},
		nil,
	))
}

func (s *subscribeOnSubscriber) OnNext(value interface{}) { s.downstream.OnNext(value) }
func (s *subscribeOnSubscriber) OnError(cause error)       { s.downstream.OnError(cause) }
func (s *subscribeOnSubscriber) OnComplete()               { s.downstream.OnComplete() }
