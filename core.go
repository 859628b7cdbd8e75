// Package reactor implements a reactive dataflow runtime: a library for
// composing asynchronous, backpressure-aware sequences of values through a
// fluent operator algebra, plus the protocol machinery that connects
// producers to consumers across goroutines with bounded memory.
//
// The public surface is deliberately small: two source types, Flux (zero or
// more values) and Mono (zero or one value), a handful of constructor
// functions, and pipeline-style operator methods. Everything else — the
// subscription handshake, demand accounting, the operator state machines,
// and the fusion optimization — lives behind the Publisher/Subscriber
// protocol defined in this file.
package reactor

// Publisher is a producer of a sequence of values. Subscribe must be called
// at most once per Subscriber; a well-behaved Publisher calls exactly one
// OnSubscribe on its Subscriber, then zero or more OnNext, then at most one
// terminal (OnError or OnComplete).
type Publisher interface {
	Subscribe(subscriber Subscriber)
}

// Subscriber observes the signals produced by a Publisher it has subscribed
// to. A Subscriber must not call back into its Subscription from inside
// OnSubscribe, OnNext, OnError or OnComplete on the same call stack in a way
// that re-enters the producer — the producer is responsible for trampolining
// any reentrant Request/Cancel, not the Subscriber.
type Subscriber interface {
	// OnSubscribe is called exactly once, before any other signal.
	OnSubscribe(subscription Subscription)
	// OnNext delivers one value. Never called before OnSubscribe, never
	// called after a terminal signal, never called concurrently with any
	// other signal to the same Subscriber.
	OnNext(value interface{})
	// OnError delivers the terminal failure. Called at most once, and never
	// together with OnComplete.
	OnError(cause error)
	// OnComplete delivers terminal success. Called at most once, and never
	// together with OnError.
	OnComplete()
}

// OnNextFunc is a value-accepting callback used by SubscribeWith.
type OnNextFunc func(value interface{})

// OnErrorFunc is an error-accepting callback used by SubscribeWith.
type OnErrorFunc func(cause error)

// OnCompleteFunc is a terminal-success callback used by SubscribeWith.
type OnCompleteFunc func()

// Transformer maps one value to another, or fails. Modeled as a function
// returning an error rather than emulating the checked-exception
// convention the teacher's callback signatures assume.
type Transformer func(value interface{}) (interface{}, error)

// Predicate tests a value, or fails.
type Predicate func(value interface{}) (bool, error)

// Reducer folds an accumulator and the current value into a new
// accumulator, or fails.
type Reducer func(accumulator, value interface{}) (interface{}, error)

// KeyFunc extracts a comparable key from a value, or fails.
type KeyFunc func(value interface{}) (interface{}, error)

// callbackSubscriber adapts three plain functions into a Subscriber, used by
// SubscribeWith on both Flux and Mono. Grounded in
// xinjiayu-RxGo/flowable_impl.go's callbackSubscriber.
type callbackSubscriber struct {
	onNext     OnNextFunc
	onError    OnErrorFunc
	onComplete OnCompleteFunc
	sub        Subscription
}

func (c *callbackSubscriber) OnSubscribe(subscription Subscription) {
	c.sub = subscription
	subscription.Request(unboundedDemand)
}

func (c *callbackSubscriber) OnNext(value interface{}) {
	if c.onNext != nil {
		c.onNext(value)
	}
}

func (c *callbackSubscriber) OnError(cause error) {
	if c.onError != nil {
		c.onError(cause)
	} else {
		reportDropped(cause)
	}
}

func (c *callbackSubscriber) OnComplete() {
	if c.onComplete != nil {
		c.onComplete()
	}
}

// baseSubscriber is embedded by stateless 1:1 operator subscribers. It keeps
// a reference to the upstream Subscription so Request and Cancel can be
// forwarded to it; its OnSubscribe only stores that reference, and the
// embedding operator passes the Subscription downstream itself. Grounded in
// xinjiayu-RxGo/flowable.go:BaseSubscriber.
type baseSubscriber struct {
	upstream Subscription
}

func (b *baseSubscriber) OnSubscribe(subscription Subscription) {
	b.upstream = subscription
}

func (b *baseSubscriber) Request(n int64) {
	if b.upstream != nil {
		b.upstream.Request(n)
	}
}

func (b *baseSubscriber) Cancel() {
	if b.upstream != nil {
		b.upstream.Cancel()
	}
}
