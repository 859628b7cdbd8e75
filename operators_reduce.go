package reactor

// ============================================================================
// Reduction operators: each requests unbounded demand from upstream and
// resolves to a single value on terminal, hence the Mono return type.
// Grounded in original_source's MonoReduce/MonoSingle/MonoCollectList
// family (Mono having no analogue in the teacher, which only exposes
// blocking helpers in xinjiayu-RxGo/operators_blocking.go — those inform
// Mono.Block above but not this file's non-blocking shape).
//
// Scan streams the running accumulator after every element, like
// original_source's Flux.scan, rather than resolving once on terminal like
// the rest of this family — so its result type stays Flux, not Mono.
// ============================================================================

// Reduce folds every value into a single accumulator, starting from seed,
// and resolves the Mono with the final accumulator on completion.
func (f Flux) Reduce(seed interface{}, reducer Reducer) Mono {
	return MonoFromPublisher(&reducePublisher{upstream: f.pub, seed: seed, reducer: reducer})
}

type reducePublisher struct {
	upstream Publisher
	seed     interface{}
	reducer  Reducer
}

func (p *reducePublisher) Subscribe(subscriber Subscriber) {
	p.upstream.Subscribe(&reduceSubscriber{downstream: subscriber, acc: p.seed, reducer: p.reducer})
}

type reduceSubscriber struct {
	baseSubscriber
	downstream Subscriber
	acc        interface{}
	reducer    Reducer
	failed     bool
}

func (r *reduceSubscriber) OnSubscribe(subscription Subscription) {
	r.baseSubscriber.OnSubscribe(subscription)
	r.downstream.OnSubscribe(subscription)
	subscription.Request(unboundedDemand)
}

func (r *reduceSubscriber) OnNext(value interface{}) {
	if r.failed {
		return
	}
	next, err := r.reducer(r.acc, value)
	if err != nil {
		r.failed = true
		r.Cancel()
		r.downstream.OnError(&UserError{Cause: err})
		return
	}
	r.acc = next
}

func (r *reduceSubscriber) OnError(cause error) {
	if !r.failed {
		r.downstream.OnError(cause)
	}
}

func (r *reduceSubscriber) OnComplete() {
	if r.failed {
		return
	}
	r.downstream.OnNext(r.acc)
	r.downstream.OnComplete()
}

// Scan emits the running accumulator after every upstream value, starting
// from seed. Demand-transparent: one upstream item produces exactly one
// downstream item.
func (f Flux) Scan(seed interface{}, reducer Reducer) Flux {
	return f.lift("scan", func(downstream Subscriber) Subscriber {
		return &scanSubscriber{downstream: downstream, acc: seed, reducer: reducer}
	})
}

type scanSubscriber struct {
	baseSubscriber
	downstream Subscriber
	acc        interface{}
	reducer    Reducer
}

func (s *scanSubscriber) OnSubscribe(subscription Subscription) {
	s.baseSubscriber.OnSubscribe(subscription)
	s.downstream.OnSubscribe(subscription)
}

func (s *scanSubscriber) OnNext(value interface{}) {
	next, err := s.reducer(s.acc, value)
	if err != nil {
		s.Cancel()
		s.downstream.OnError(&UserError{Cause: err})
		return
	}
	s.acc = next
	s.downstream.OnNext(s.acc)
}

func (s *scanSubscriber) OnError(cause error) { s.downstream.OnError(cause) }
func (s *scanSubscriber) OnComplete()         { s.downstream.OnComplete() }

// Count resolves with the number of values observed.
func (f Flux) Count() Mono {
	return f.Reduce(int64(0), func(acc, _ interface{}) (interface{}, error) {
		return acc.(int64) + 1, nil
	})
}

// All resolves true if predicate holds for every value (vacuously true for
// an empty source), short-circuiting to false (and cancelling upstream) on
// the first failure.
func (f Flux) All(predicate Predicate) Mono {
	return MonoFromPublisher(&shortCircuitPublisher{
		upstream: f.pub,
		match:    func(v interface{}) (bool, bool, error) { ok, err := predicate(v); return !ok, false, err },
		onExit:   true,
		onDrain:  true,
	})
}

// Any resolves true on the first value matching predicate, short-circuiting
// (and cancelling upstream); resolves false if the source completes without
// a match.
func (f Flux) Any(predicate Predicate) Mono {
	return MonoFromPublisher(&shortCircuitPublisher{
		upstream: f.pub,
		match:    func(v interface{}) (bool, bool, error) { ok, err := predicate(v); return ok, true, err },
		onExit:   false,
		onDrain:  false,
	})
}

// shortCircuitPublisher backs All/Any: match reports whether this value
// ends the search, and if so, what boolean result that implies; onExit/
// onDrain give the result when the search runs to completion instead.
type shortCircuitPublisher struct {
	upstream Publisher
	match    func(value interface{}) (stop bool, result bool, err error)
	onExit   bool
	onDrain  bool
}

func (p *shortCircuitPublisher) Subscribe(subscriber Subscriber) {
	p.upstream.Subscribe(&shortCircuitSubscriber{downstream: subscriber, match: p.match, drainResult: p.onDrain})
}

type shortCircuitSubscriber struct {
	baseSubscriber
	downstream  Subscriber
	match       func(interface{}) (bool, bool, error)
	drainResult bool
	done        bool
}

func (s *shortCircuitSubscriber) OnSubscribe(subscription Subscription) {
	s.baseSubscriber.OnSubscribe(subscription)
	s.downstream.OnSubscribe(subscription)
	subscription.Request(unboundedDemand)
}

func (s *shortCircuitSubscriber) OnNext(value interface{}) {
	if s.done {
		return
	}
	stop, result, err := s.match(value)
	if err != nil {
		s.done = true
		s.Cancel()
		s.downstream.OnError(&UserError{Cause: err})
		return
	}
	if stop {
		s.done = true
		s.Cancel()
		s.downstream.OnNext(result)
		s.downstream.OnComplete()
	}
}

func (s *shortCircuitSubscriber) OnError(cause error) {
	if !s.done {
		s.downstream.OnError(cause)
	}
}

func (s *shortCircuitSubscriber) OnComplete() {
	if s.done {
		return
	}
	s.downstream.OnNext(s.drainResult)
	s.downstream.OnComplete()
}

// ElementAt resolves with the value at the given zero-based index, or a
// ProtocolViolationError ("elementAt index out of range") if the source
// completes first.
func (f Flux) ElementAt(index int) Mono {
	return MonoFromPublisher(&elementAtPublisher{upstream: f.pub, index: index})
}

type elementAtPublisher struct {
	upstream Publisher
	index    int
}

func (p *elementAtPublisher) Subscribe(subscriber Subscriber) {
	p.upstream.Subscribe(&elementAtSubscriber{downstream: subscriber, index: p.index})
}

type elementAtSubscriber struct {
	baseSubscriber
	downstream Subscriber
	index      int
	seen       int
	done       bool
}

func (e *elementAtSubscriber) OnSubscribe(subscription Subscription) {
	e.baseSubscriber.OnSubscribe(subscription)
	e.downstream.OnSubscribe(subscription)
	subscription.Request(unboundedDemand)
}

func (e *elementAtSubscriber) OnNext(value interface{}) {
	if e.done {
		return
	}
	if e.seen == e.index {
		e.done = true
		e.Cancel()
		e.downstream.OnNext(value)
		e.downstream.OnComplete()
		return
	}
	e.seen++
}

func (e *elementAtSubscriber) OnError(cause error) {
	if !e.done {
		e.downstream.OnError(cause)
	}
}

func (e *elementAtSubscriber) OnComplete() {
	if e.done {
		return
	}
	e.downstream.OnError(&ProtocolViolationError{Reason: "elementAt index out of range"})
}

// Single resolves with the one and only value, or fails if the source
// emits zero or more than one value.
func (f Flux) Single() Mono {
	return MonoFromPublisher(&singlePublisher{upstream: f.pub})
}

type singlePublisher struct{ upstream Publisher }

func (p *singlePublisher) Subscribe(subscriber Subscriber) {
	p.upstream.Subscribe(&singleSubscriber{downstream: subscriber})
}

type singleSubscriber struct {
	baseSubscriber
	downstream Subscriber
	value      interface{}
	count      int
	done       bool
}

func (s *singleSubscriber) OnSubscribe(subscription Subscription) {
	s.baseSubscriber.OnSubscribe(subscription)
	s.downstream.OnSubscribe(subscription)
	subscription.Request(unboundedDemand)
}

func (s *singleSubscriber) OnNext(value interface{}) {
	if s.done {
		return
	}
	s.count++
	if s.count > 1 {
		s.done = true
		s.Cancel()
		s.downstream.OnError(&ProtocolViolationError{Reason: "single: source emitted more than one value"})
		return
	}
	s.value = value
}

func (s *singleSubscriber) OnError(cause error) {
	if !s.done {
		s.downstream.OnError(cause)
	}
}

func (s *singleSubscriber) OnComplete() {
	if s.done {
		return
	}
	if s.count == 0 {
		s.downstream.OnError(&ProtocolViolationError{Reason: "single: source completed empty"})
		return
	}
	s.downstream.OnNext(s.value)
	s.downstream.OnComplete()
}

// Last resolves with the final value observed, or fails if the source
// completes empty.
func (f Flux) Last() Mono {
	return MonoFromPublisher(&lastPublisher{upstream: f.pub})
}

type lastPublisher struct{ upstream Publisher }

func (p *lastPublisher) Subscribe(subscriber Subscriber) {
	p.upstream.Subscribe(&lastSubscriber{downstream: subscriber})
}

type lastSubscriber struct {
	baseSubscriber
	downstream Subscriber
	value      interface{}
	has        bool
}

func (l *lastSubscriber) OnSubscribe(subscription Subscription) {
	l.baseSubscriber.OnSubscribe(subscription)
	l.downstream.OnSubscribe(subscription)
	subscription.Request(unboundedDemand)
}

func (l *lastSubscriber) OnNext(value interface{}) { l.value, l.has = value, true }
func (l *lastSubscriber) OnError(cause error)      { l.downstream.OnError(cause) }

func (l *lastSubscriber) OnComplete() {
	if !l.has {
		l.downstream.OnError(&ProtocolViolationError{Reason: "last: source completed empty"})
		return
	}
	l.downstream.OnNext(l.value)
	l.downstream.OnComplete()
}

// ToList collects every value into a single slice.
func (f Flux) ToList() Mono {
	return f.Reduce([]interface{}{}, func(acc, value interface{}) (interface{}, error) {
		return append(acc.([]interface{}), value), nil
	})
}

// ToMap collects every value into a map keyed by keyFn(value); a repeated
// key overwrites the earlier entry.
func (f Flux) ToMap(keyFn KeyFunc) Mono {
	return f.Reduce(map[interface{}]interface{}{}, func(acc, value interface{}) (interface{}, error) {
		key, err := keyFn(value)
		if err != nil {
			return nil, err
		}
		m := acc.(map[interface{}]interface{})
		m[key] = value
		return m, nil
	})
}

// ToMultimap collects every value into a map of slices keyed by
// keyFn(value), preserving every value under a repeated key.
func (f Flux) ToMultimap(keyFn KeyFunc) Mono {
	return f.Reduce(map[interface{}][]interface{}{}, func(acc, value interface{}) (interface{}, error) {
		key, err := keyFn(value)
		if err != nil {
			return nil, err
		}
		m := acc.(map[interface{}][]interface{})
		m[key] = append(m[key], value)
		return m, nil
	})
}
