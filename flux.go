package reactor

// Flux is a cold-by-default sequence of zero or more values delivered under
// backpressure. It is a thin, immutable wrapper around a Publisher —
// operators are value-level transformations that return a new Flux wrapping
// a new Publisher, favoring a small set of constructor and pipeline
// functions over a facade class with hundreds of methods.
type Flux struct {
	pub Publisher
}

// FromPublisher adapts an arbitrary Publisher into a Flux.
func FromPublisher(p Publisher) Flux {
	return Flux{pub: p}
}

// Publisher exposes the underlying Publisher, e.g. for use as another
// Flux's inner source.
func (f Flux) Publisher() Publisher {
	return f.pub
}

// Subscribe attaches subscriber to the stream. Equivalent to calling
// Publisher().Subscribe directly.
func (f Flux) Subscribe(subscriber Subscriber) {
	if f.pub == nil {
		Empty().Subscribe(subscriber)
		return
	}
	f.pub.Subscribe(subscriber)
}

// SubscribeWith is the common-case entry point: plain callbacks instead of
// a hand-rolled Subscriber, requesting unbounded demand immediately.
// Grounded in xinjiayu-RxGo/flowable_impl.go's SubscribeWithCallbacks.
func (f Flux) SubscribeWith(onNext OnNextFunc, onError OnErrorFunc, onComplete OnCompleteFunc) Subscription {
	cs := &callbackSubscriber{onNext: onNext, onError: onError, onComplete: onComplete}
	f.Subscribe(cs)
	return cs.sub
}

// ToSlice collects every value into a slice, blocking the calling goroutine
// until the stream terminates. Grounded in
// xinjiayu-RxGo/operators_blocking.go's blocking family.
func (f Flux) ToSlice() ([]interface{}, error) {
	done := make(chan error, 1)
	var values []interface{}
	f.SubscribeWith(
		func(v interface{}) { values = append(values, v) },
		func(err error) { done <- err },
		func() { done <- nil },
	)
	err := <-done
	return values, err
}

// lift wraps f's Publisher with a subscriberFactory that produces the
// Subscriber installed on the upstream when subscribe happens; the factory
// receives the downstream Subscriber and must forward OnSubscribe itself
// (directly, or via a wrapping Subscription). This is the generic
// one-operator-one-subscriber-wrapper shape used by every stateless
// operator below, modeled on reactor-core's Operators.lift and grounded in
// the "xxxSubscriber wraps downstream" pattern throughout
// xinjiayu-RxGo/flowable_operators.go.
func (f Flux) lift(name string, factory func(downstream Subscriber) Subscriber) Flux {
	return Flux{pub: &liftedPublisher{upstream: f.pub, name: name, factory: factory}}
}

type liftedPublisher struct {
	upstream Publisher
	name     string
	factory  func(downstream Subscriber) Subscriber
}

func (p *liftedPublisher) Subscribe(subscriber Subscriber) {
	wrapped := p.factory(subscriber)
	if p.tryFuse(wrapped) {
		return
	}
	p.upstream.Subscribe(wrapped)
}

// fusedSubscribe lets a further-downstream lift stage negotiate fusion
// through this one, so a chain of Map/Filter collapses to a single Poll
// loop instead of one OnNext hop per stage. Only reachable when this
// stage's own wrapped subscriber is a fusableStage: Peek/Hide/MapError are
// not, so a fusedSubscribe against them always falls through to ok == false
// and the caller's normal Subscribe path, which is what keeps Hide's
// fusion-erasing contract honest.
func (p *liftedPublisher) fusedSubscribe(subscriber Subscriber, requested int) (FusionSubscription, int, bool) {
	if requested&FusionSync == 0 {
		return nil, FusionNone, false
	}
	wrapped := p.factory(subscriber)
	if _, ok := wrapped.(fusableStage); !ok {
		return nil, FusionNone, false
	}
	up, ok := p.upstream.(fuser)
	if !ok {
		return nil, FusionNone, false
	}
	return up.fusedSubscribe(wrapped, requested)
}

// tryFuse attempts to negotiate SYNC fusion between wrapped and the
// upstream. On success, wrapped.OnSubscribe has already run (transitively,
// inside the upstream's fusedSubscribe) and the caller must not also call
// the plain Subscribe path.
func (p *liftedPublisher) tryFuse(wrapped Subscriber) bool {
	if _, ok := wrapped.(fusableStage); !ok {
		return false
	}
	up, ok := p.upstream.(fuser)
	if !ok {
		return false
	}
	_, granted, ok := up.fusedSubscribe(wrapped, FusionSync)
	return ok && granted&FusionSync != 0
}

// ScalarValue/IsEmptyScalar let lift-based stateless transforms propagate
// the scalar-source capability when their upstream has it and the operator
// is itself scalar-preserving (Map is; Filter is not, since the predicate
// may reject the value). liftedPublisher itself never implements
// ScalarSource directly — Map/Filter/etc. decide case by case in their own
// constructors below, short-circuiting to a scalar Flux instead of calling
// lift when profitable.
