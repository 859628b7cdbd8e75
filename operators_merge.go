package reactor

import "sync"

// ============================================================================
// Merge / FlatMap
//
// Both share one engine: a drain loop holding a single "emission lock" (the
// wip token) while draining one shared inner-value queue in arrival order
// (there are no per-inner queues and no round-robin between inners),
// bounded concurrency across inner subscriptions, and (for FlatMap)
// a delayError flag, grounded in
// xinjiayu-RxGo/flowable_operators.go's flatMapSubscriber — which the
// teacher leaves unbounded and push-only; this generalizes it to respect
// both the concurrency bound and downstream demand.
// ============================================================================

// Merge subscribes to sources concurrently, up to concurrency at a time
// (concurrency <= 0 means unbounded), and interleaves their values in
// arrival order.
func Merge(concurrency int, sources ...Flux) Flux {
	return Flux{pub: &mergePublisher{sources: sources, concurrency: concurrency}}
}

type mergePublisher struct {
	sources     []Flux
	concurrency int
}

func (m *mergePublisher) Subscribe(subscriber Subscriber) {
	state := newMergeState(subscriber, m.concurrency, false)
	state.pending = append([]Flux{}, m.sources...)
	downstreamSub := newDemandSubscription(state.onDownstreamRequest, state.onDownstreamCancel, func(e error) { subscriber.OnError(e) })
	state.downstreamSub = downstreamSub
	subscriber.OnSubscribe(downstreamSub)
	state.fillFromPending()
}

// FlatMap maps each upstream value to an inner Flux and merges the results,
// bounded by concurrency inner subscriptions at a time. It requests
// concurrency outer items up front (prefetch instead, when positive and
// smaller; never more than 256), then one more each time an inner
// completes. When delayError is true, inner/outer
// errors are collected and surfaced only once everything has terminated,
// wrapped in a CompositeError when there is more than one.
func (f Flux) FlatMap(mapper func(interface{}) Flux, concurrency, prefetch int, delayError bool) Flux {
	return Flux{pub: &flatMapPublisher{upstream: f.pub, mapper: mapper, concurrency: concurrency, prefetch: prefetch, delayError: delayError}}
}

type flatMapPublisher struct {
	upstream    Publisher
	mapper      func(interface{}) Flux
	concurrency int
	prefetch    int
	delayError  bool
}

func (fm *flatMapPublisher) Subscribe(subscriber Subscriber) {
	state := newMergeState(subscriber, fm.concurrency, fm.delayError)
	state.prefetch = fm.prefetch
	state.isFlatMap = true
	state.mapper = fm.mapper
	outer := newDemandSubscription(state.onDownstreamRequest, state.onDownstreamCancel, func(e error) { subscriber.OnError(e) })
	state.downstreamSub = outer
	subscriber.OnSubscribe(outer)
	fm.upstream.Subscribe(state)
}

// mergeState owns the drain loop over the shared inner-value queue plus the
// bookkeeping needed by both Merge (a static list of sources, demand comes
// from the downstream Subscription we hand out) and FlatMap (a live
// upstream that hands us values to map, demand comes from requesting more
// from that upstream as inner sources free up).
type mergeState struct {
	downstream  Subscriber
	concurrency int
	prefetch    int
	delayError  bool

	queue *mpscQueue
	wip   wip
	mu    sync.Mutex // guards pending/active/inflight bookkeeping

	pending          []Flux // Merge mode: sources not yet subscribed
	sourcesExhausted bool
	active           map[*mergeInnerSubscriber]Subscription
	inflight         int

	cancelled bool
	finished  bool // sources/upstream exhausted and every inner has completed
	composite error

	// Subscription handed to our own downstream, in both modes; gates
	// drainQueue so neither mode ever emits more than downstream requested.
	downstreamSub *demandSubscription

	// FlatMap mode only
	isFlatMap   bool
	mapper      func(interface{}) Flux
	upstreamSub Subscription
	upstreamDone bool
}

func newMergeState(downstream Subscriber, concurrency int, delayError bool) *mergeState {
	if concurrency <= 0 {
		concurrency = 1 << 30
	}
	return &mergeState{
		downstream:  downstream,
		concurrency: concurrency,
		delayError:  delayError,
		queue:       newMPSCQueue(0),
		active:      make(map[*mergeInnerSubscriber]Subscription),
	}
}

// ---- Merge mode: demand from our own downstream Subscription ----

func (s *mergeState) onDownstreamRequest(n int64) {
	s.drain()
}

func (s *mergeState) onDownstreamCancel() {
	s.cancelAll()
}

func (s *mergeState) fillFromPending() {
	s.mu.Lock()
	for len(s.pending) > 0 && s.inflight < s.concurrency {
		src := s.pending[0]
		s.pending = s.pending[1:]
		s.inflight++
		s.mu.Unlock()
		s.subscribeInner(src)
		s.mu.Lock()
	}
	s.sourcesExhausted = len(s.pending) == 0
	done := s.sourcesExhausted && s.inflight == 0
	s.mu.Unlock()
	if done {
		s.finish()
	}
}

// ---- FlatMap mode: Subscriber of the outer upstream ----

func (s *mergeState) OnSubscribe(subscription Subscription) {
	s.upstreamSub = subscription
	n := int64(s.concurrency)
	if s.prefetch > 0 && int64(s.prefetch) < n {
		n = int64(s.prefetch)
	}
	if n <= 0 || n > 256 {
		n = 256
	}
	subscription.Request(n)
}

func (s *mergeState) OnNext(value interface{}) {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
	s.subscribeInner(s.mapper(value))
}

func (s *mergeState) OnError(cause error) {
	if s.delayError {
		s.mu.Lock()
		s.composite = newComposite(s.composite, cause)
		s.upstreamDone = true
		inflight := s.inflight
		s.mu.Unlock()
		if inflight == 0 {
			s.finish()
		}
		return
	}
	s.terminateNow(cause)
}

func (s *mergeState) OnComplete() {
	s.mu.Lock()
	s.upstreamDone = true
	inflight := s.inflight
	s.mu.Unlock()
	if inflight == 0 {
		s.finish()
	}
}

// ---- shared ----

func (s *mergeState) subscribeInner(src Flux) {
	inner := &mergeInnerSubscriber{state: s}
	src.Subscribe(inner)
}

func (s *mergeState) registerInner(inner *mergeInnerSubscriber, sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		sub.Cancel()
		return
	}
	s.active[inner] = sub
}

func (s *mergeState) innerDone(inner *mergeInnerSubscriber, err error) {
	s.mu.Lock()
	delete(s.active, inner)
	s.inflight--
	s.mu.Unlock()

	if err != nil {
		if s.delayError {
			s.mu.Lock()
			s.composite = newComposite(s.composite, err)
			s.mu.Unlock()
		} else {
			s.terminateNow(err)
			return
		}
	}

	if s.isFlatMap {
		if s.upstreamSub != nil && !s.upstreamDone {
			s.upstreamSub.Request(1)
		}
		s.mu.Lock()
		done := s.upstreamDone && s.inflight == 0
		s.mu.Unlock()
		if done {
			s.finish()
		}
		return
	}

	s.fillFromPending()
	s.mu.Lock()
	done := s.sourcesExhausted && s.inflight == 0
	s.mu.Unlock()
	if done {
		s.finish()
	}
}

// finish marks the stage exhausted and lets the drain loop deliver the
// terminal signal once the queue it still holds has actually been drained
// down to the downstream's demand, instead of completing out from under
// values nothing has delivered yet.
func (s *mergeState) finish() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.mu.Unlock()
	s.drain()
}

func (s *mergeState) terminateNow(err error) {
	s.cancelAll()
	s.downstream.OnError(err)
}

func (s *mergeState) cancelAll() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	subs := make([]Subscription, 0, len(s.active))
	for _, sub := range s.active {
		subs = append(subs, sub)
	}
	s.active = make(map[*mergeInnerSubscriber]Subscription)
	upstream := s.upstreamSub
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Cancel()
	}
	if upstream != nil {
		upstream.Cancel()
	}
}

func (s *mergeState) drain() {
	if !s.wip.enter() {
		return
	}
	s.wip.drain(s.drainQueue)
}

func (s *mergeState) drainQueue() {
	for {
		if s.downstreamSub == nil || s.downstreamSub.Outstanding() > 0 {
			if v, ok := s.queue.Poll(); ok {
				if s.downstreamSub != nil {
					s.downstreamSub.Consume(1)
				}
				s.downstream.OnNext(v)
				continue
			}
		}
		if !s.queue.IsEmpty() {
			// Values remain but downstream has no outstanding demand; wait
			// for onDownstreamRequest to re-enter the drain loop.
			return
		}
		s.mu.Lock()
		if !s.finished || s.cancelled {
			s.mu.Unlock()
			return
		}
		s.cancelled = true
		composite := s.composite
		s.mu.Unlock()
		if composite != nil {
			s.downstream.OnError(composite)
		} else {
			s.downstream.OnComplete()
		}
		return
	}
}

type mergeInnerSubscriber struct {
	state *mergeState
}

func (m *mergeInnerSubscriber) OnSubscribe(subscription Subscription) {
	m.state.registerInner(m, subscription)
	subscription.Request(unboundedDemand)
}

func (m *mergeInnerSubscriber) OnNext(value interface{}) {
	m.state.queue.Offer(value)
	m.state.drain()
}

func (m *mergeInnerSubscriber) OnError(cause error) {
	m.state.innerDone(m, cause)
}

func (m *mergeInnerSubscriber) OnComplete() {
	m.state.innerDone(m, nil)
}

// ============================================================================
// CombineLatest
// ============================================================================

// CombineLatest holds the most recent value from each source and emits a
// combined slice whenever any slot updates once every slot is populated.
// Completes when any source completes while its slot is still empty, or
// once every source has completed.
func CombineLatest(combiner func(values []interface{}) (interface{}, error), sources ...Flux) Flux {
	return Flux{pub: &combineLatestPublisher{sources: sources, combiner: combiner}}
}

type combineLatestPublisher struct {
	sources  []Flux
	combiner func([]interface{}) (interface{}, error)
}

func (c *combineLatestPublisher) Subscribe(subscriber Subscriber) {
	n := len(c.sources)
	state := &combineLatestState{
		downstream: subscriber,
		combiner:   c.combiner,
		values:     make([]interface{}, n),
		has:        make([]bool, n),
		done:       make([]bool, n),
		subs:       make([]Subscription, n),
	}
	outer := newDemandSubscription(state.onRequest, state.onCancel, func(e error) { subscriber.OnError(e) })
	state.outer = outer
	subscriber.OnSubscribe(outer)
	for i, src := range c.sources {
		idx := i
		src.Subscribe(&combineLatestInner{state: state, index: idx})
	}
}

type combineLatestState struct {
	downstream Subscriber
	combiner   func([]interface{}) (interface{}, error)
	values     []interface{}
	has        []bool
	done       []bool
	subs       []Subscription
	outer      *demandSubscription
	mu         sync.Mutex // guards values/has/done/terminated/pendingErr
	wip        wip        // serializes downstream.OnNext/OnError/OnComplete
	terminated bool
	pendingErr error
}

func (s *combineLatestState) onRequest(n int64) {}
func (s *combineLatestState) onCancel() {
	s.mu.Lock()
	s.terminated = true
	s.mu.Unlock()
	for _, sub := range s.subs {
		if sub != nil {
			sub.Cancel()
		}
	}
}

// allDone and allHave must be called with s.mu held.
func (s *combineLatestState) allDone() bool {
	for _, d := range s.done {
		if !d {
			return false
		}
	}
	return true
}

func (s *combineLatestState) allHave() bool {
	for _, h := range s.has {
		if !h {
			return false
		}
	}
	return true
}

// drain is the single path that ever calls s.downstream, running under the
// wip token so two sources updating slots (or completing) concurrently can
// never both reach downstream at once, and so a terminal signal is
// delivered exactly once. Grounded in the same pattern as zipState's drain
// loop below.
func (s *combineLatestState) drain() {
	if !s.wip.enter() {
		return
	}
	s.wip.drain(func() {
		s.mu.Lock()
		if s.terminated {
			s.mu.Unlock()
			return
		}
		if s.pendingErr != nil {
			err := s.pendingErr
			s.terminated = true
			s.mu.Unlock()
			s.onCancel()
			s.downstream.OnError(err)
			return
		}
		for i, d := range s.done {
			if d && !s.has[i] {
				s.terminated = true
				s.mu.Unlock()
				s.onCancel()
				s.downstream.OnComplete()
				return
			}
		}
		if s.allDone() {
			s.terminated = true
			s.mu.Unlock()
			s.downstream.OnComplete()
			return
		}
		if !s.allHave() {
			s.mu.Unlock()
			return
		}
		snapshot := append([]interface{}{}, s.values...)
		s.mu.Unlock()

		combined, err := s.combiner(snapshot)
		if err != nil {
			s.mu.Lock()
			if s.terminated {
				s.mu.Unlock()
				return
			}
			s.terminated = true
			s.mu.Unlock()
			s.onCancel()
			s.downstream.OnError(&UserError{Cause: err})
			return
		}
		s.downstream.OnNext(combined)
	})
}

type combineLatestInner struct {
	state *combineLatestState
	index int
}

func (c *combineLatestInner) OnSubscribe(subscription Subscription) {
	c.state.subs[c.index] = subscription
	subscription.Request(unboundedDemand)
}

func (c *combineLatestInner) OnNext(value interface{}) {
	s := c.state
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.values[c.index] = value
	s.has[c.index] = true
	s.mu.Unlock()
	s.drain()
}

func (c *combineLatestInner) OnError(cause error) {
	s := c.state
	s.mu.Lock()
	if s.pendingErr == nil {
		s.pendingErr = cause
	}
	s.mu.Unlock()
	s.drain()
}

func (c *combineLatestInner) OnComplete() {
	s := c.state
	s.mu.Lock()
	s.done[c.index] = true
	s.mu.Unlock()
	s.drain()
}

// ============================================================================
// Zip
// ============================================================================

// Zip holds one bounded queue per source and emits a combined slice once
// every queue has at least one value, completing on the first source
// completion whose queue is then empty.
func Zip(combiner func(values []interface{}) (interface{}, error), sources ...Flux) Flux {
	return Flux{pub: &zipPublisher{sources: sources, combiner: combiner}}
}

type zipPublisher struct {
	sources  []Flux
	combiner func([]interface{}) (interface{}, error)
}

func (z *zipPublisher) Subscribe(subscriber Subscriber) {
	n := len(z.sources)
	state := &zipState{
		downstream: subscriber,
		combiner:   z.combiner,
		queues:     make([]*spscQueue, n),
		done:       make([]bool, n),
		subs:       make([]Subscription, n),
	}
	for i := range state.queues {
		state.queues[i] = newSPSCQueue(16)
	}
	outer := newDemandSubscription(state.onRequest, state.onCancel, func(e error) { subscriber.OnError(e) })
	state.outer = outer
	subscriber.OnSubscribe(outer)
	for i, src := range z.sources {
		idx := i
		src.Subscribe(&zipInner{state: state, index: idx})
	}
}

type zipState struct {
	downstream Subscriber
	combiner   func([]interface{}) (interface{}, error)
	queues     []*spscQueue
	done       []bool
	subs       []Subscription
	outer      *demandSubscription
	wip        wip
	terminated bool
}

func (s *zipState) onRequest(n int64) { s.drain() }
func (s *zipState) onCancel() {
	s.terminated = true
	for _, sub := range s.subs {
		if sub != nil {
			sub.Cancel()
		}
	}
}

func (s *zipState) drain() {
	if !s.wip.enter() {
		return
	}
	s.wip.drain(func() {
		for {
			if s.terminated {
				return
			}
			for i, q := range s.queues {
				if q.IsEmpty() {
					if s.done[i] {
						s.terminated = true
						s.onCancel()
						s.downstream.OnComplete()
					}
					return
				}
			}
			row := make([]interface{}, len(s.queues))
			for i, q := range s.queues {
				row[i], _ = q.Poll()
			}
			combined, err := s.combiner(row)
			if err != nil {
				s.terminated = true
				s.onCancel()
				s.downstream.OnError(&UserError{Cause: err})
				return
			}
			s.outer.Consume(1)
			s.downstream.OnNext(combined)
		}
	})
}

type zipInner struct {
	state *zipState
	index int
}

func (z *zipInner) OnSubscribe(subscription Subscription) {
	z.state.subs[z.index] = subscription
	subscription.Request(unboundedDemand)
}

func (z *zipInner) OnNext(value interface{}) {
	z.state.queues[z.index].Offer(value)
	z.state.drain()
}

func (z *zipInner) OnError(cause error) {
	s := z.state
	if s.terminated {
		return
	}
	s.terminated = true
	s.onCancel()
	s.downstream.OnError(cause)
}

func (z *zipInner) OnComplete() {
	z.state.done[z.index] = true
	z.state.drain()
}

// ============================================================================
// WithLatestFrom
// ============================================================================

// WithLatestFrom combines each main value with the latest value from side,
// dropping main values while side has not produced a value yet.
func (f Flux) WithLatestFrom(side Flux, combiner func(main, side interface{}) (interface{}, error)) Flux {
	return Flux{pub: &withLatestFromPublisher{main: f.pub, side: side, combiner: combiner}}
}

type withLatestFromPublisher struct {
	main     Publisher
	side     Flux
	combiner func(main, side interface{}) (interface{}, error)
}

func (w *withLatestFromPublisher) Subscribe(subscriber Subscriber) {
	state := &withLatestFromState{downstream: subscriber, combiner: w.combiner}
	w.side.Subscribe(&withLatestFromSideSubscriber{state: state})
	w.main.Subscribe(&withLatestFromMainSubscriber{state: state})
}

type withLatestFromState struct {
	downstream Subscriber
	combiner   func(main, side interface{}) (interface{}, error)
	sideValue  interface{}
	sideReady  bool
	mainSub    Subscription
	sideSub    Subscription
}

type withLatestFromMainSubscriber struct{ state *withLatestFromState }

func (m *withLatestFromMainSubscriber) OnSubscribe(subscription Subscription) {
	m.state.mainSub = subscription
	subscription.Request(unboundedDemand)
}

func (m *withLatestFromMainSubscriber) OnNext(value interface{}) {
	s := m.state
	if !s.sideReady {
		return
	}
	combined, err := s.combiner(value, s.sideValue)
	if err != nil {
		s.mainSub.Cancel()
		if s.sideSub != nil {
			s.sideSub.Cancel()
		}
		s.downstream.OnError(&UserError{Cause: err})
		return
	}
	s.downstream.OnNext(combined)
}

func (m *withLatestFromMainSubscriber) OnError(cause error) {
	if m.state.sideSub != nil {
		m.state.sideSub.Cancel()
	}
	m.state.downstream.OnError(cause)
}

func (m *withLatestFromMainSubscriber) OnComplete() {
	if m.state.sideSub != nil {
		m.state.sideSub.Cancel()
	}
	m.state.downstream.OnComplete()
}

type withLatestFromSideSubscriber struct{ state *withLatestFromState }

func (sd *withLatestFromSideSubscriber) OnSubscribe(subscription Subscription) {
	sd.state.sideSub = subscription
	subscription.Request(unboundedDemand)
}
func (sd *withLatestFromSideSubscriber) OnNext(value interface{}) {
	sd.state.sideValue = value
	sd.state.sideReady = true
}
func (sd *withLatestFromSideSubscriber) OnError(cause error) { reportDropped(cause) }
func (sd *withLatestFromSideSubscriber) OnComplete()          {}
