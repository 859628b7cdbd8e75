package reactor

// ============================================================================
// Scalar & raise sources
// ============================================================================

// scalarPublisher is a 0-or-1-constant Publisher exposing ScalarSource so
// operators can short-circuit whole chains at composition time. Grounded
// in factory.Just/Empty in xinjiayu-RxGo/factory.go, generalized to expose
// the scalar capability the teacher's Observable-based Just never did.
type scalarPublisher struct {
	value    interface{}
	hasValue bool
}

func (s *scalarPublisher) Subscribe(subscriber Subscriber) {
	sub := newDemandSubscription(nil, nil, func(e error) { subscriber.OnError(e) })
	subscriber.OnSubscribe(sub)
	if sub.IsCancelled() {
		return
	}
	if s.hasValue {
		subscriber.OnNext(s.value)
	}
	if !sub.IsCancelled() {
		subscriber.OnComplete()
	}
}

func (s *scalarPublisher) ScalarValue() (interface{}, bool) {
	return s.value, s.hasValue
}

func (s *scalarPublisher) IsEmptyScalar() bool {
	return !s.hasValue
}

// raisePublisher signals err immediately on subscribe.
type raisePublisher struct {
	err error
}

func (r *raisePublisher) Subscribe(subscriber Subscriber) {
	subscriber.OnSubscribe(emptySubscription{})
	subscriber.OnError(r.err)
}

// ============================================================================
// Flux factories
// ============================================================================

// Just emits the given values in order, then completes. A single value
// yields a ScalarSource-capable Flux. Grounded in
// xinjiayu-RxGo/factory.go's Just, generalized to respect downstream demand
// instead of pushing eagerly from a detached goroutine.
func Just(values ...interface{}) Flux {
	if len(values) == 1 {
		return Flux{pub: &scalarPublisher{value: values[0], hasValue: true}}
	}
	return Flux{pub: &sliceSource{values: values}}
}

// Empty completes immediately with no values.
func Empty() Flux {
	return Flux{pub: &scalarPublisher{}}
}

// Never never emits anything and never terminates.
func Never() Flux {
	return Flux{pub: neverPublisher{}}
}

type neverPublisher struct{}

func (neverPublisher) Subscribe(subscriber Subscriber) {
	subscriber.OnSubscribe(emptySubscription{})
}

// Raise signals err immediately on subscribe. Grounded in
// xinjiayu-RxGo/factory.go's Error factory; named Raise here to avoid
// shadowing the error type/package name in idiomatic Go.
func Raise(err error) Flux {
	return Flux{pub: &raisePublisher{err: err}}
}

// Range emits count consecutive ints starting at start, then completes.
// Grounded in xinjiayu-RxGo/factory.go's Range.
func Range(start, count int) Flux {
	values := make([]interface{}, count)
	for i := 0; i < count; i++ {
		values[i] = start + i
	}
	return Flux{pub: &sliceSource{values: values}}
}

// FromSlice emits every element of values in order, then completes.
// Grounded in xinjiayu-RxGo/factory.go's FromSlice.
func FromSlice(values []interface{}) Flux {
	if len(values) == 1 {
		return Flux{pub: &scalarPublisher{value: values[0], hasValue: true}}
	}
	return Flux{pub: &sliceSource{values: values}}
}

// sliceSource is a cold, demand-respecting, fusable (SYNC) Flux over an
// in-memory slice — the workhorse behind Just/Range/FromSlice, replacing the
// teacher's detached-goroutine-plus-unbounded-push approach
// (xinjiayu-RxGo/factory.go) with one that actually honors Request(n) and
// can be synchronously fused with a downstream map/filter chain.
type sliceSource struct {
	values []interface{}
}

func (s *sliceSource) Subscribe(subscriber Subscriber) {
	state := &sliceSourceState{values: s.values, subscriber: subscriber}
	sub := newDemandSubscription(state.onRequest, state.onCancel, func(e error) { subscriber.OnError(e) })
	state.sub = sub
	subscriber.OnSubscribe(sub)
}

// fusedSubscribe grants SYNC fusion unconditionally: iterating a slice is
// exactly the kind of pull-mode, side-effect-free production the fusion
// contract targets.
func (s *sliceSource) fusedSubscribe(subscriber Subscriber, requested int) (FusionSubscription, int, bool) {
	if requested&FusionSync == 0 {
		return nil, FusionNone, false
	}
	state := &sliceSourceState{values: s.values, subscriber: subscriber, fused: true}
	subscriber.OnSubscribe(state)
	return state, FusionSync, true
}

type sliceSourceState struct {
	values     []interface{}
	index      int
	subscriber Subscriber
	sub        *demandSubscription
	fused      bool
	wip        wip
	cancelled  bool
}

func (s *sliceSourceState) onRequest(int64) {
	if !s.wip.enter() {
		return
	}
	s.wip.drain(s.drainPush)
}

func (s *sliceSourceState) drainPush() {
	for {
		if s.sub.IsCancelled() {
			return
		}
		if s.index >= len(s.values) {
			// Cancelling our own subscription after the terminal signal
			// turns any later Request into a no-op.
			s.sub.Cancel()
			s.subscriber.OnComplete()
			return
		}
		if s.sub.Outstanding() <= 0 {
			return
		}
		v := s.values[s.index]
		s.index++
		s.sub.Consume(1)
		s.subscriber.OnNext(v)
	}
}

func (s *sliceSourceState) onCancel() { s.cancelled = true }

// Request/Cancel implement Subscription for the fused case (a
// sliceSourceState handed out via fusedSubscribe is its own Subscription).
func (s *sliceSourceState) Request(int64) {}
func (s *sliceSourceState) Cancel()       { s.cancelled = true }

func (s *sliceSourceState) RequestFusion(requested int) int {
	if requested&FusionSync != 0 {
		return FusionSync
	}
	return FusionNone
}

func (s *sliceSourceState) Poll() (interface{}, bool) {
	if s.cancelled || s.index >= len(s.values) {
		return nil, false
	}
	v := s.values[s.index]
	s.index++
	return v, true
}

func (s *sliceSourceState) IsEmpty() bool { return s.cancelled || s.index >= len(s.values) }
func (s *sliceSourceState) Clear()        { s.index = len(s.values) }
func (s *sliceSourceState) Size() int     { return len(s.values) - s.index }
func (s *sliceSourceState) IsTerminated() (bool, error) {
	return s.index >= len(s.values), nil
}

// Defer defers construction of the Flux to subscribe time, so a
// side-effecting factory runs once per Subscribe rather than once at
// composition time — the source of cold replay for non-constant sources.
// Grounded in original_source's Flux.defer.
func Defer(factory func() Flux) Flux {
	return Flux{pub: &deferPublisher{factory: factory}}
}

type deferPublisher struct {
	factory func() Flux
}

func (d *deferPublisher) Subscribe(subscriber Subscriber) {
	d.factory().Subscribe(subscriber)
}

// MonoDefer is Defer's Mono counterpart.
func MonoDefer(factory func() Mono) Mono {
	return Mono{pub: &monoDeferPublisher{factory: factory}}
}

type monoDeferPublisher struct {
	factory func() Mono
}

func (d *monoDeferPublisher) Subscribe(subscriber Subscriber) {
	d.factory().Subscribe(subscriber)
}
