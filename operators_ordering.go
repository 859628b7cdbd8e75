package reactor

// ErrorMode controls when concat/concatMap short-circuit on an inner
// error. This is kept as its own enum rather than folded into
// OverflowStrategy: the backpressure overflow policies and this
// three-way error-timing choice are orthogonal concerns that happen to
// both be small closed enums.
type ErrorMode int

const (
	// ErrorImmediate cancels the remaining sequence and signals as soon as
	// an error occurs, even mid-element.
	ErrorImmediate ErrorMode = iota
	// ErrorBoundary lets the current source finish producing values it has
	// already started emitting, then signals at the next source boundary.
	ErrorBoundary
	// ErrorEnd delays every error until all sources have been attempted,
	// concatenating causes into a CompositeError.
	ErrorEnd
)

// ============================================================================
// Concat
// ============================================================================

// Concat subscribes to sources[i+1] only once sources[i] completes,
// forwarding values in source order. Concat(Just(a),...,Just(z)) is
// therefore equivalent to FromSlice([a..z]), since each scalar source
// contributes exactly one value before handing off. Concat surfaces an inner
// error with ErrorImmediate; ConcatMode takes an explicit ErrorMode.
func Concat(sources ...Flux) Flux {
	return ConcatMode(ErrorImmediate, sources...)
}

// ConcatMode is Concat with an explicit ErrorMode.
func ConcatMode(mode ErrorMode, sources ...Flux) Flux {
	return Flux{pub: &concatPublisher{sources: sources, mode: mode}}
}

type concatPublisher struct {
	sources []Flux
	mode    ErrorMode
}

func (c *concatPublisher) Subscribe(subscriber Subscriber) {
	state := &concatState{sources: c.sources, mode: c.mode, downstream: subscriber}
	sub := newDemandSubscription(state.onRequest, state.onCancel, func(e error) { subscriber.OnError(e) })
	state.outer = sub
	subscriber.OnSubscribe(sub)
	state.subscribeNext()
}

type concatState struct {
	sources    []Flux
	mode       ErrorMode
	downstream Subscriber
	outer      *demandSubscription
	index      int
	inner      Subscription
	pending    int64 // atomic-ish, only touched under wip
	wip        wip
	cancelled  bool
	composite  error
}

func (s *concatState) onRequest(n int64) {
	if s.inner != nil {
		s.inner.Request(n)
	}
}

func (s *concatState) onCancel() {
	s.cancelled = true
	if s.inner != nil {
		s.inner.Cancel()
	}
}

func (s *concatState) subscribeNext() {
	if s.cancelled {
		return
	}
	if s.index >= len(s.sources) {
		if s.composite != nil {
			s.downstream.OnError(s.composite)
			return
		}
		s.downstream.OnComplete()
		return
	}
	src := s.sources[s.index]
	s.index++
	src.Subscribe(&concatInnerSubscriber{state: s})
}

type concatInnerSubscriber struct {
	state *concatState
}

func (c *concatInnerSubscriber) OnSubscribe(subscription Subscription) {
	c.state.inner = subscription
	if outstanding := c.state.outer.Outstanding(); outstanding > 0 {
		subscription.Request(outstanding)
	}
}

func (c *concatInnerSubscriber) OnNext(value interface{}) {
	c.state.outer.Consume(1)
	c.state.downstream.OnNext(value)
}

func (c *concatInnerSubscriber) OnError(cause error) {
	switch c.state.mode {
	case ErrorImmediate, ErrorBoundary:
		c.state.downstream.OnError(cause)
	case ErrorEnd:
		c.state.composite = newComposite(c.state.composite, cause)
		c.state.subscribeNext()
	}
}

func (c *concatInnerSubscriber) OnComplete() {
	c.state.subscribeNext()
}

// ============================================================================
// ConcatMap
// ============================================================================

// ConcatMap maps each value to a Flux and concatenates the results in
// order, applying mode to inner errors exactly as Concat does.
func (f Flux) ConcatMap(mapper func(interface{}) Flux, mode ErrorMode) Flux {
	return Flux{pub: &concatMapPublisher{upstream: f.pub, mapper: mapper, mode: mode}}
}

type concatMapPublisher struct {
	upstream Publisher
	mapper   func(interface{}) Flux
	mode     ErrorMode
}

func (c *concatMapPublisher) Subscribe(subscriber Subscriber) {
	state := &concatMapState{mapper: c.mapper, mode: c.mode, downstream: subscriber, queue: newMPSCQueue(0)}
	subscriber.OnSubscribe(newDemandSubscription(nil, func() {
		state.cancelled = true
		if state.outer != nil {
			state.outer.Cancel()
		}
	}, func(e error) { subscriber.OnError(e) }))
	c.upstream.Subscribe(state)
}

// concatMapState plays both roles: Subscriber of the outer upstream, and
// driver of the currently-active inner Flux. It buffers outer values in an
// MPSC-safe queue because OnNext may be re-entered while an inner source is
// still draining (if upstream delivers faster than inner sources complete).
type concatMapState struct {
	mapper     func(interface{}) Flux
	mode       ErrorMode
	downstream Subscriber
	outer      Subscription
	queue      *mpscQueue
	active     bool
	wip        wip
	done       bool
	composite  error
	cancelled  bool
}

func (s *concatMapState) OnSubscribe(subscription Subscription) {
	s.outer = subscription
	subscription.Request(1)
}

func (s *concatMapState) OnNext(value interface{}) {
	s.queue.Offer(value)
	s.drain()
}

func (s *concatMapState) OnError(cause error) {
	if s.mode == ErrorEnd {
		s.composite = newComposite(s.composite, cause)
		s.done = true
		s.drain()
		return
	}
	s.downstream.OnError(cause)
}

func (s *concatMapState) OnComplete() {
	s.done = true
	s.drain()
}

func (s *concatMapState) drain() {
	if !s.wip.enter() {
		return
	}
	s.wip.drain(func() {
		if s.cancelled || s.active {
			return
		}
		v, ok := s.queue.Poll()
		if !ok {
			if s.done {
				if s.composite != nil {
					s.downstream.OnError(s.composite)
				} else {
					s.downstream.OnComplete()
				}
			}
			return
		}
		s.active = true
		s.mapper(v).Subscribe(&concatMapInnerSubscriber{state: s})
	})
}

type concatMapInnerSubscriber struct {
	state *concatMapState
}

func (c *concatMapInnerSubscriber) OnSubscribe(subscription Subscription) {
	subscription.Request(unboundedDemand)
}
func (c *concatMapInnerSubscriber) OnNext(value interface{}) { c.state.downstream.OnNext(value) }
func (c *concatMapInnerSubscriber) OnError(cause error) {
	if c.state.mode == ErrorEnd {
		c.state.composite = newComposite(c.state.composite, cause)
		c.state.active = false
		c.state.outer.Request(1)
		c.state.drain()
		return
	}
	c.state.downstream.OnError(cause)
}
func (c *concatMapInnerSubscriber) OnComplete() {
	c.state.active = false
	c.state.outer.Request(1)
	c.state.drain()
}

// ============================================================================
// Amb
// ============================================================================

// Amb subscribes to every source concurrently; the first to emit any signal
// wins and the rest are cancelled. Tie-break is first-to-CAS the winner
// slot.
func Amb(sources ...Flux) Flux {
	return Flux{pub: &ambPublisher{sources: sources}}
}

type ambPublisher struct {
	sources []Flux
}

func (a *ambPublisher) Subscribe(subscriber Subscriber) {
	state := &ambState{downstream: subscriber, subs: make([]Subscription, len(a.sources))}
	outer := newDemandSubscription(state.onRequest, state.onCancel, func(e error) { subscriber.OnError(e) })
	state.outer = outer
	subscriber.OnSubscribe(outer)
	for i, src := range a.sources {
		idx := i
		src.Subscribe(&ambInnerSubscriber{state: state, index: idx})
	}
}

type ambState struct {
	downstream Subscriber
	outer      *demandSubscription
	subs       []Subscription
	winner     tryOwn
	winnerIdx  int
}

func (s *ambState) onRequest(n int64) {
	if s.winner.isOwned() {
		if s.subs[s.winnerIdx] != nil {
			s.subs[s.winnerIdx].Request(n)
		}
		return
	}
	for _, sub := range s.subs {
		if sub != nil {
			sub.Request(n)
		}
	}
}

func (s *ambState) onCancel() {
	for _, sub := range s.subs {
		if sub != nil {
			sub.Cancel()
		}
	}
}

func (s *ambState) becomeWinner(index int) bool {
	if !s.winner.acquire() {
		return s.winnerIdx == index
	}
	s.winnerIdx = index
	for i, sub := range s.subs {
		if i != index && sub != nil {
			sub.Cancel()
		}
	}
	return true
}

type ambInnerSubscriber struct {
	state *ambState
	index int
}

func (a *ambInnerSubscriber) OnSubscribe(subscription Subscription) {
	a.state.subs[a.index] = subscription
	if a.state.winner.isOwned() && a.state.winnerIdx != a.index {
		subscription.Cancel()
		return
	}
	if outstanding := a.state.outer.Outstanding(); outstanding > 0 {
		subscription.Request(outstanding)
	}
}

func (a *ambInnerSubscriber) OnNext(value interface{}) {
	if a.state.becomeWinner(a.index) {
		a.state.downstream.OnNext(value)
	}
}

func (a *ambInnerSubscriber) OnError(cause error) {
	if a.state.becomeWinner(a.index) {
		a.state.downstream.OnError(cause)
	}
}

func (a *ambInnerSubscriber) OnComplete() {
	if a.state.becomeWinner(a.index) {
		a.state.downstream.OnComplete()
	}
}

// ============================================================================
// SwitchMap / SwitchOnNext
// ============================================================================

// SwitchMap maps each outer value to an inner Flux, cancelling whatever
// inner is currently active whenever a new outer value arrives, and
// completing only once the outer has completed and the last inner has
// completed.
func (f Flux) SwitchMap(mapper func(interface{}) Flux) Flux {
	return Flux{pub: &switchMapPublisher{upstream: f.pub, mapper: mapper}}
}

// SwitchOnNext is SwitchMap specialized to a Flux whose values are
// themselves Flux (identity mapper).
func SwitchOnNext(sources Flux) Flux {
	// sources emits interface{} values expected to be Flux; the mapper just
	// asserts that shape.
	return Flux{pub: &switchMapPublisher{upstream: sources.pub, mapper: func(v interface{}) Flux {
		return v.(Flux)
	}}}
}

type switchMapPublisher struct {
	upstream Publisher
	mapper   func(interface{}) Flux
}

func (sw *switchMapPublisher) Subscribe(subscriber Subscriber) {
	state := &switchMapState{mapper: sw.mapper, downstream: subscriber}
	subscriber.OnSubscribe(newDemandSubscription(nil, func() {
		state.cancelled = true
		if state.current != nil {
			state.current.Cancel()
		}
		if state.outer != nil {
			state.outer.Cancel()
		}
	}, func(e error) { subscriber.OnError(e) }))
	sw.upstream.Subscribe(state)
}

type switchMapState struct {
	mapper       func(interface{}) Flux
	downstream   Subscriber
	outer        Subscription
	current      Subscription
	generation   int64
	wip          wip
	outerDone    bool
	innerDone    bool
	cancelled    bool
}

func (s *switchMapState) OnSubscribe(subscription Subscription) {
	s.outer = subscription
	subscription.Request(unboundedDemand)
}

func (s *switchMapState) OnNext(value interface{}) {
	s.generation++
	gen := s.generation
	if s.current != nil {
		s.current.Cancel()
	}
	s.innerDone = false
	s.mapper(value).Subscribe(&switchMapInnerSubscriber{state: s, generation: gen})
}

func (s *switchMapState) OnError(cause error) {
	s.outer.Cancel()
	s.downstream.OnError(cause)
}

func (s *switchMapState) OnComplete() {
	s.outerDone = true
	if s.innerDone || s.current == nil {
		s.downstream.OnComplete()
	}
}

type switchMapInnerSubscriber struct {
	state      *switchMapState
	generation int64
}

func (si *switchMapInnerSubscriber) OnSubscribe(subscription Subscription) {
	if si.generation != si.state.generation {
		subscription.Cancel()
		return
	}
	si.state.current = subscription
	subscription.Request(unboundedDemand)
}

func (si *switchMapInnerSubscriber) OnNext(value interface{}) {
	if si.generation != si.state.generation {
		return
	}
	si.state.downstream.OnNext(value)
}

func (si *switchMapInnerSubscriber) OnError(cause error) {
	if si.generation != si.state.generation {
		return
	}
	si.state.outer.Cancel()
	si.state.downstream.OnError(cause)
}

func (si *switchMapInnerSubscriber) OnComplete() {
	if si.generation != si.state.generation {
		return
	}
	si.state.innerDone = true
	if si.state.outerDone {
		si.state.downstream.OnComplete()
	}
}
