package reactor

import (
	"sync"
	"sync/atomic"

	"github.com/prince2015999/reactor-core/diag"
)

// ============================================================================
// Emitter facade for imperative producers, backing the Create factory. A
// producer function runs on its own goroutine and pushes values through
// the Emitter at its own pace; OverflowPolicy selects what happens when it
// outpaces downstream demand, reusing the OverflowStrategy enum from
// operators_backpressure.go so there is exactly one overflow-policy
// concept in the engine instead of a bespoke one per producer.
//
// Grounded in xinjiayu-RxGo/factory.go's Create, which dispatches the
// user's emitter function onto its own goroutine and wraps the Observer
// with a context-cancellation check; generalized here to a genuine
// backpressure-respecting drain loop instead of RxGo's unconditional push.
// ============================================================================

// Emitter is the producer-facing handle passed to a Create callback.
type Emitter interface {
	// Next pushes one value. Safe to call from any goroutine, any number
	// of times, interleaved with SetCancellation/OverflowPolicy.
	Next(value interface{})
	// Complete signals normal termination. Idempotent after the first
	// terminal signal.
	Complete()
	// Error signals failure. Idempotent after the first terminal signal.
	Error(err error)
	// SetCancellation registers a callback invoked when the downstream
	// cancels, so the producer can stop its own work.
	SetCancellation(cb func())
	// OverflowPolicy selects the strategy applied to Next calls that
	// arrive while downstream demand is exhausted. Defaults to
	// OverflowBuffer.
	OverflowPolicy(strategy OverflowStrategy)
}

// Create builds a Flux whose values come from producer, invoked once per
// subscription on its own goroutine.
func Create(producer func(Emitter)) Flux {
	return FromPublisher(&createPublisher{producer: producer, strategy: OverflowBuffer})
}

type createPublisher struct {
	producer func(Emitter)
	strategy OverflowStrategy
}

func (p *createPublisher) Subscribe(subscriber Subscriber) {
	e := &emitterImpl{downstream: subscriber, strategy: p.strategy}
	subscriber.OnSubscribe(newDemandSubscription(
		func(n int64) {
			addSaturating(&e.requested, n)
			e.schedule()
		},
		func() {
			atomic.StoreInt32(&e.cancelled, 1)
			e.mu.Lock()
			cb := e.cancellation
			e.mu.Unlock()
			if cb != nil {
				cb()
			}
		},
		nil,
	))
	go p.producer(e)
}

type emitterImpl struct {
	downstream   Subscriber
	mu           sync.Mutex
	buffer       []interface{}
	requested    int64
	strategy     OverflowStrategy
	cancellation func()
	cancelled    int32
	terminal     error
	completed    bool
	delivered    bool // terminal signal already delivered; only touched inside the drain
	drainWip     wip
}

func (e *emitterImpl) Next(value interface{}) {
	if atomic.LoadInt32(&e.cancelled) == 1 {
		return
	}
	e.mu.Lock()
	if e.terminal != nil || e.completed {
		e.mu.Unlock()
		return
	}
	requested := atomic.LoadInt64(&e.requested)
	if requested > int64(len(e.buffer)) || requested == unboundedDemand {
		e.buffer = append(e.buffer, value)
		e.mu.Unlock()
		e.schedule()
		return
	}
	switch e.strategy {
	case OverflowBuffer:
		e.buffer = append(e.buffer, value)
		e.mu.Unlock()
	case OverflowDropLatest:
		e.mu.Unlock()
		diag.Default.RecordOverflow()
	case OverflowDropOldest:
		if len(e.buffer) > 0 {
			e.buffer = e.buffer[1:]
		}
		e.buffer = append(e.buffer, value)
		e.mu.Unlock()
		diag.Default.RecordOverflow()
	case OverflowErrorStrategy:
		e.terminal = &OverflowError{Reason: "emitter: downstream demand exhausted"}
		e.mu.Unlock()
		diag.Default.RecordOverflow()
		e.schedule()
		return
	}
	e.schedule()
}

func (e *emitterImpl) Complete() {
	e.mu.Lock()
	if e.terminal == nil && !e.completed {
		e.completed = true
	}
	e.mu.Unlock()
	e.schedule()
}

func (e *emitterImpl) Error(err error) {
	e.mu.Lock()
	if e.terminal == nil && !e.completed {
		e.terminal = err
	}
	e.mu.Unlock()
	e.schedule()
}

func (e *emitterImpl) SetCancellation(cb func()) {
	e.mu.Lock()
	e.cancellation = cb
	e.mu.Unlock()
}

func (e *emitterImpl) OverflowPolicy(strategy OverflowStrategy) {
	e.mu.Lock()
	e.strategy = strategy
	e.mu.Unlock()
}

func (e *emitterImpl) schedule() {
	if !e.drainWip.enter() {
		return
	}
	e.drainWip.drain(e.drainOnce)
}

func (e *emitterImpl) drainOnce() {
	if atomic.LoadInt32(&e.cancelled) == 1 || e.delivered {
		return
	}
	for {
		e.mu.Lock()
		requested := atomic.LoadInt64(&e.requested)
		if len(e.buffer) == 0 || (requested <= 0 && requested != unboundedDemand) {
			empty := len(e.buffer) == 0
			terminal := e.terminal
			completed := e.completed
			e.mu.Unlock()
			if empty && terminal != nil {
				e.delivered = true
				e.downstream.OnError(terminal)
			} else if empty && completed {
				e.delivered = true
				e.downstream.OnComplete()
			}
			return
		}
		v := e.buffer[0]
		e.buffer = e.buffer[1:]
		if requested != unboundedDemand {
			atomic.AddInt64(&e.requested, -1)
		}
		e.mu.Unlock()
		e.downstream.OnNext(v)
	}
}

// ============================================================================
// Generate: a pull-based stateful source, grounded in original_source's
// Flux.generate. Unlike Create, the generator function is invoked
// synchronously, once per requested
// item, on whichever goroutine calls Request — there is no producer
// goroutine and no buffering, since the generator only ever runs exactly as
// often as it is asked to.
// ============================================================================

// GenerateSink is passed to a Generate callback; the callback must call
// exactly one of Next, Complete, or Error before returning.
type GenerateSink interface {
	Next(value interface{})
	Complete()
	Error(err error)
}

// Generate builds a Flux that pulls its next state from generator each time
// it is invoked, starting from initial().
func Generate(initial func() (interface{}, error), generator func(state interface{}, sink GenerateSink) (interface{}, error)) Flux {
	return FromPublisher(&generatePublisher{initial: initial, generator: generator})
}

type generatePublisher struct {
	initial   func() (interface{}, error)
	generator func(interface{}, GenerateSink) (interface{}, error)
}

func (p *generatePublisher) Subscribe(subscriber Subscriber) {
	state, err := p.initial()
	if err != nil {
		subscriber.OnSubscribe(emptySubscription{})
		subscriber.OnError(&UserError{Cause: err})
		return
	}
	s := &generateSubscription{downstream: subscriber, generator: p.generator, state: state}
	subscriber.OnSubscribe(s)
}

type generateSubscription struct {
	downstream Subscriber
	generator  func(interface{}, GenerateSink) (interface{}, error)
	state      interface{}
	requested  int64
	cancelled  int32
	terminated bool
	drainWip   wip
}

func (g *generateSubscription) Request(n int64) {
	if n <= 0 {
		g.downstream.OnError(&ProtocolViolationError{Reason: "request(n) called with n <= 0"})
		return
	}
	addSaturating(&g.requested, n)
	g.schedule()
}

func (g *generateSubscription) Cancel() {
	atomic.StoreInt32(&g.cancelled, 1)
}

func (g *generateSubscription) schedule() {
	if !g.drainWip.enter() {
		return
	}
	g.drainWip.drain(g.drainOnce)
}

func (g *generateSubscription) drainOnce() {
	for {
		if atomic.LoadInt32(&g.cancelled) == 1 || g.terminated {
			return
		}
		cur := atomic.LoadInt64(&g.requested)
		if cur <= 0 {
			return
		}
		sink := &generateSinkImpl{}
		next, err := g.generator(g.state, sink)
		if err != nil {
			g.terminated = true
			g.downstream.OnError(&UserError{Cause: err})
			return
		}
		switch {
		case sink.hasValue:
			g.state = next
			if cur != unboundedDemand {
				addSaturating(&g.requested, -1)
			}
			g.downstream.OnNext(sink.value)
		case sink.completed:
			g.terminated = true
			g.downstream.OnComplete()
			return
		case sink.err != nil:
			g.terminated = true
			g.downstream.OnError(sink.err)
			return
		default:
			g.terminated = true
			g.downstream.OnError(&ProtocolViolationError{Reason: "generate: callback signalled neither next, complete, nor error"})
			return
		}
	}
}

type generateSinkImpl struct {
	value     interface{}
	hasValue  bool
	completed bool
	err       error
	fired     bool
}

func (s *generateSinkImpl) Next(value interface{}) {
	if s.fired {
		return
	}
	s.fired, s.value, s.hasValue = true, value, true
}

func (s *generateSinkImpl) Complete() {
	if s.fired {
		return
	}
	s.fired, s.completed = true, true
}

func (s *generateSinkImpl) Error(err error) {
	if s.fired {
		return
	}
	s.fired, s.err = true, err
}
