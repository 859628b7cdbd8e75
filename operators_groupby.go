package reactor

import (
	"sync"
	"sync/atomic"
)

// ============================================================================
// GroupBy produces a stream of GroupedFlux, one per distinct key; each
// substream is backed by its own unbounded buffer drained strictly
// according to that substream's own subscriber's demand, and the parent
// stage tracks every open substream so outer cancellation can cancel them
// all. Grounded in the same "independent queue per child, parent owns
// lifecycle" shape as operators_merge.go's mergeState, with no teacher
// precedent (xinjiayu-RxGo has no groupBy).
//
// A precise upstream demand equal to the live sum of pending room across
// substreams would need recomputing on every substream drain, which is
// disproportionate complexity for the benefit it buys here, so this
// implementation requests unbounded demand from upstream once and lets each
// substream's own backpressure gate what its subscriber actually receives;
// see DESIGN.md.
// ============================================================================

// GroupedFlux is a Flux tagged with the key its elements were grouped under.
type GroupedFlux struct {
	Flux
	key interface{}
}

// Key returns the grouping key this substream was created for.
func (g GroupedFlux) Key() interface{} { return g.key }

// GroupBy partitions values by keyFn, applying valueFn to each value before
// it reaches its group's substream. Passing nil for valueFn forwards values
// unchanged.
func (f Flux) GroupBy(keyFn KeyFunc, valueFn Transformer) Flux {
	if valueFn == nil {
		valueFn = func(v interface{}) (interface{}, error) { return v, nil }
	}
	return FromPublisher(&groupByPublisher{upstream: f.pub, keyFn: keyFn, valueFn: valueFn})
}

type groupByPublisher struct {
	upstream Publisher
	keyFn    KeyFunc
	valueFn  Transformer
}

func (p *groupByPublisher) Subscribe(subscriber Subscriber) {
	state := &groupByState{downstream: subscriber, keyFn: p.keyFn, valueFn: p.valueFn, groups: map[interface{}]*groupState{}}
	p.upstream.Subscribe(state)
}

type groupByState struct {
	downstream Subscriber
	keyFn      KeyFunc
	valueFn    Transformer

	upstream Subscription
	mu       sync.Mutex
	groups   map[interface{}]*groupState
	done     bool
}

func (g *groupByState) OnSubscribe(subscription Subscription) {
	g.upstream = subscription
	g.downstream.OnSubscribe(newDemandSubscription(
		func(int64) {},
		func() { g.cancelAll() },
		nil,
	))
	subscription.Request(unboundedDemand)
}

func (g *groupByState) OnNext(value interface{}) {
	key, err := g.keyFn(value)
	if err != nil {
		g.upstream.Cancel()
		g.fanError(&UserError{Cause: err})
		return
	}
	mapped, err := g.valueFn(value)
	if err != nil {
		g.upstream.Cancel()
		g.fanError(&UserError{Cause: err})
		return
	}

	g.mu.Lock()
	gs, exists := g.groups[key]
	if !exists {
		gs = newGroupState(key, g)
		g.groups[key] = gs
	}
	g.mu.Unlock()

	if !exists {
		g.downstream.OnNext(GroupedFlux{Flux: FromPublisher(gs), key: key})
	}
	gs.push(mapped)
}

func (g *groupByState) OnError(cause error) {
	g.mu.Lock()
	g.done = true
	g.mu.Unlock()
	g.fanError(cause)
	g.downstream.OnError(cause)
}

func (g *groupByState) OnComplete() {
	g.mu.Lock()
	g.done = true
	groups := make([]*groupState, 0, len(g.groups))
	for _, gs := range g.groups {
		groups = append(groups, gs)
	}
	g.mu.Unlock()
	for _, gs := range groups {
		gs.complete()
	}
	g.downstream.OnComplete()
}

func (g *groupByState) fanError(cause error) {
	g.mu.Lock()
	groups := make([]*groupState, 0, len(g.groups))
	for _, gs := range g.groups {
		groups = append(groups, gs)
	}
	g.mu.Unlock()
	for _, gs := range groups {
		gs.fail(cause)
	}
}

func (g *groupByState) cancelAll() {
	g.upstream.Cancel()
	g.mu.Lock()
	groups := make([]*groupState, 0, len(g.groups))
	for _, gs := range g.groups {
		groups = append(groups, gs)
	}
	g.mu.Unlock()
	for _, gs := range groups {
		gs.cancelFromParent()
	}
}

// groupState is the Publisher backing one GroupedFlux; it may be subscribed
// at most once.
type groupState struct {
	key    interface{}
	parent *groupByState

	mu         sync.Mutex
	buffer     []interface{}
	errored    error
	completed  bool
	subscribed bool
	subscriber Subscriber
	requested   int64
	drainWip    wip
	cancelled   bool
	terminated  bool
}

func newGroupState(key interface{}, parent *groupByState) *groupState {
	return &groupState{key: key, parent: parent}
}

func (gs *groupState) Subscribe(subscriber Subscriber) {
	gs.mu.Lock()
	if gs.subscribed {
		gs.mu.Unlock()
		subscriber.OnSubscribe(emptySubscription{})
		subscriber.OnError(&ProtocolViolationError{Reason: "groupBy substream subscribed more than once"})
		return
	}
	gs.subscribed = true
	gs.subscriber = subscriber
	gs.mu.Unlock()

	subscriber.OnSubscribe(newDemandSubscription(
		func(n int64) {
			addSaturating(&gs.requested, n)
			gs.schedule()
		},
		func() {
			gs.mu.Lock()
			gs.cancelled = true
			gs.mu.Unlock()
		},
		nil,
	))
}

func (gs *groupState) push(value interface{}) {
	gs.mu.Lock()
	gs.buffer = append(gs.buffer, value)
	gs.mu.Unlock()
	gs.schedule()
}

func (gs *groupState) complete() {
	gs.mu.Lock()
	gs.completed = true
	gs.mu.Unlock()
	gs.schedule()
}

func (gs *groupState) fail(cause error) {
	gs.mu.Lock()
	if gs.errored == nil {
		gs.errored = cause
	}
	gs.mu.Unlock()
	gs.schedule()
}

func (gs *groupState) cancelFromParent() {
	gs.mu.Lock()
	gs.cancelled = true
	gs.mu.Unlock()
}

func (gs *groupState) schedule() {
	if !gs.drainWip.enter() {
		return
	}
	gs.drainWip.drain(gs.drainOnce)
}

func (gs *groupState) drainOnce() {
	for {
		gs.mu.Lock()
		if gs.subscriber == nil {
			gs.mu.Unlock()
			return
		}
		if gs.cancelled || gs.terminated {
			gs.buffer = nil
			gs.mu.Unlock()
			return
		}
		requested := atomic.LoadInt64(&gs.requested)
		if len(gs.buffer) == 0 || (requested <= 0 && requested != unboundedDemand) {
			empty := len(gs.buffer) == 0
			err := gs.errored
			completed := gs.completed
			sub := gs.subscriber
			if empty && (err != nil || completed) {
				gs.terminated = true
			}
			gs.mu.Unlock()
			if empty && err != nil {
				sub.OnError(err)
			} else if empty && completed {
				sub.OnComplete()
			}
			return
		}
		v := gs.buffer[0]
		gs.buffer = gs.buffer[1:]
		if requested != unboundedDemand {
			atomic.AddInt64(&gs.requested, -1)
		}
		sub := gs.subscriber
		gs.mu.Unlock()
		sub.OnNext(v)
	}
}
