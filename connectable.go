package reactor

import (
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// Connectable / multicast layer. A ConnectableFlux separates subscription
// from starting the upstream: subscribers register with the hub, and a
// single upstream subscription only begins at Connect (or at the k-th
// subscriber, for AutoConnect/RefCount). Demand is coordinated as the sum
// of every live subscriber's own outstanding demand against a shared
// history buffer, which is what makes Replay's bounded-history
// re-emission to late subscribers fall out of the same mechanism as plain
// Publish (a retention policy of zero).
//
// Grounded in xinjiayu-RxGo/connectable.go's connectableObservableImpl
// (Connect/ConnectWithContext/RefCount/AutoConnect delegating to a
// PublishSubject) and subject.go's fan-out-to-many-observers shape,
// generalized to the Subscription/demand protocol this engine uses instead
// of RxGo's push-only Observer.
// ============================================================================

type retentionPolicy struct {
	maxCount  int
	maxAge    time.Duration
	unbounded bool
}

func (r retentionPolicy) retains() bool {
	return r.unbounded || r.maxCount > 0 || r.maxAge > 0
}

// ConnectableFlux is a hot multicast source whose upstream subscription is
// started explicitly, rather than per-subscriber.
type ConnectableFlux struct {
	hub *multicastHub
}

// Publish turns f into a ConnectableFlux with no history retention: a
// subscriber only sees values emitted after it joined.
func (f Flux) Publish() ConnectableFlux {
	return ConnectableFlux{hub: newMulticastHub(f, retentionPolicy{})}
}

// Replay turns f into a ConnectableFlux that retains up to maxCount of the
// most recent values (0 means unlimited by count) no older than maxAge (0
// means unlimited by age), re-emitting that history to every new
// subscriber, late or not.
func (f Flux) Replay(maxCount int, maxAge time.Duration) ConnectableFlux {
	return ConnectableFlux{hub: newMulticastHub(f, retentionPolicy{maxCount: maxCount, maxAge: maxAge, unbounded: maxCount <= 0 && maxAge <= 0})}
}

// ReplayAll retains the entire history for the lifetime of the hub.
func (f Flux) ReplayAll() ConnectableFlux {
	return ConnectableFlux{hub: newMulticastHub(f, retentionPolicy{unbounded: true})}
}

// Subscribe registers subscriber with the hub without connecting; useful in
// combination with an explicit Connect call or AutoConnect/RefCount.
func (c ConnectableFlux) Subscribe(subscriber Subscriber) {
	c.hub.subscribe(subscriber)
}

// AsFlux views the ConnectableFlux as a plain cold-looking Flux whose
// Subscribe just registers with the hub (the caller is still responsible
// for calling Connect).
func (c ConnectableFlux) AsFlux() Flux {
	return FromPublisher(c)
}

// Connect starts the single upstream subscription if it has not started
// already, returning a function that tears it down. Calling Connect again
// while connected does not subscribe upstream a second time; the function it
// returns tears down the same shared connection.
func (c ConnectableFlux) Connect() (cancel func()) {
	return c.hub.connect()
}

// AutoConnect returns a Flux that connects the hub once subscriberCount
// subscribers have registered, and never disconnects on its own.
func (c ConnectableFlux) AutoConnect(subscriberCount int) Flux {
	return FromPublisher(&autoConnectPublisher{hub: c.hub, threshold: subscriberCount})
}

// RefCount returns a Flux that connects on the subscriberCount-th
// subscriber and disconnects once the live subscriber count drops back
// below subscriberCount.
func (c ConnectableFlux) RefCount(subscriberCount int) Flux {
	return FromPublisher(&refCountPublisher{hub: c.hub, threshold: subscriberCount})
}

type autoConnectPublisher struct {
	hub       *multicastHub
	threshold int
}

func (p *autoConnectPublisher) Subscribe(subscriber Subscriber) {
	count := p.hub.subscribe(subscriber)
	if count >= p.threshold {
		p.hub.connect()
	}
}

type refCountPublisher struct {
	hub       *multicastHub
	threshold int
}

func (p *refCountPublisher) Subscribe(subscriber Subscriber) {
	wrapped := &refCountSubscriber{downstream: subscriber, hub: p.hub, threshold: p.threshold}
	count := p.hub.subscribe(wrapped)
	if count >= p.threshold {
		p.hub.connect()
	}
}

// refCountSubscriber decrements the hub's live count and disconnects once it
// drops below threshold, on cancellation or terminal.
type refCountSubscriber struct {
	downstream Subscriber
	hub        *multicastHub
	threshold  int
	once       sync.Once
}

func (r *refCountSubscriber) release() {
	r.once.Do(func() {
		if r.hub.liveSubscriberCount() < r.threshold {
			r.hub.disconnect()
		}
	})
}

func (r *refCountSubscriber) OnSubscribe(subscription Subscription) {
	r.downstream.OnSubscribe(&refCountSubscription{inner: subscription, owner: r})
}
func (r *refCountSubscriber) OnNext(value interface{}) { r.downstream.OnNext(value) }
func (r *refCountSubscriber) OnError(cause error)      { r.release(); r.downstream.OnError(cause) }
func (r *refCountSubscriber) OnComplete()              { r.release(); r.downstream.OnComplete() }

type refCountSubscription struct {
	inner Subscription
	owner *refCountSubscriber
}

func (s *refCountSubscription) Request(n int64) { s.inner.Request(n) }
func (s *refCountSubscription) Cancel() {
	s.inner.Cancel()
	s.owner.release()
}

// multicastHub owns the shared history buffer, the set of live subscribers,
// and the single upstream connection.
type multicastHub struct {
	source Flux
	policy retentionPolicy

	mu          sync.Mutex
	subscribers []*hubSubscriber
	buffer      []hubEntry
	connected   bool
	upstreamSub   Subscription
	pendingDemand int64
	terminal      error
	completed     bool
	drainWip      wip
}

type hubEntry struct {
	value interface{}
	at    time.Time
}

func newMulticastHub(source Flux, policy retentionPolicy) *multicastHub {
	return &multicastHub{source: source, policy: policy}
}

func (h *multicastHub) subscribe(subscriber Subscriber) (liveCount int) {
	h.mu.Lock()
	start := 0
	if !h.policy.retains() {
		start = len(h.buffer)
	}
	hs := &hubSubscriber{downstream: subscriber, cursor: start}
	h.subscribers = append(h.subscribers, hs)
	count := len(h.subscribers)
	h.mu.Unlock()

	subscriber.OnSubscribe(newDemandSubscription(
		func(n int64) {
			addSaturating(&hs.requested, n)
			h.mu.Lock()
			sub := h.upstreamSub
			if sub == nil {
				addSaturating(&h.pendingDemand, n)
			}
			h.mu.Unlock()
			if sub != nil {
				sub.Request(n)
			}
			h.schedule()
		},
		func() {
			hs.mu.Lock()
			hs.cancelled = true
			hs.mu.Unlock()
			h.schedule()
		},
		nil,
	))
	return count
}

func (h *multicastHub) liveSubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, hs := range h.subscribers {
		if !hs.isCancelled() {
			n++
		}
	}
	return n
}

func (h *multicastHub) connect() (cancel func()) {
	h.mu.Lock()
	if h.connected {
		h.mu.Unlock()
		return func() { h.disconnect() }
	}
	h.connected = true
	h.mu.Unlock()

	h.source.Subscribe(&hubUpstreamSubscriber{hub: h})
	return func() { h.disconnect() }
}

func (h *multicastHub) disconnect() {
	h.mu.Lock()
	if !h.connected {
		h.mu.Unlock()
		return
	}
	h.connected = false
	sub := h.upstreamSub
	h.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

type hubUpstreamSubscriber struct {
	hub *multicastHub
}

func (u *hubUpstreamSubscriber) OnSubscribe(subscription Subscription) {
	u.hub.mu.Lock()
	u.hub.upstreamSub = subscription
	pending := u.hub.pendingDemand
	u.hub.pendingDemand = 0
	u.hub.mu.Unlock()
	if pending > 0 {
		subscription.Request(pending)
	}
}

func (u *hubUpstreamSubscriber) OnNext(value interface{}) {
	h := u.hub
	h.mu.Lock()
	h.buffer = append(h.buffer, hubEntry{value: value, at: time.Now()})
	h.trim()
	h.mu.Unlock()
	h.schedule()
}

func (u *hubUpstreamSubscriber) OnError(cause error) {
	h := u.hub
	h.mu.Lock()
	h.terminal = cause
	h.mu.Unlock()
	h.schedule()
}

func (u *hubUpstreamSubscriber) OnComplete() {
	h := u.hub
	h.mu.Lock()
	h.completed = true
	h.mu.Unlock()
	h.schedule()
}

// trim must be called with h.mu held. Replay policies trim purely by
// count/age; plain Publish (no retention) trims to the minimum cursor
// across live subscribers, since nothing will ever need an entry every
// live subscriber has already consumed.
func (h *multicastHub) trim() {
	if h.policy.retains() {
		if h.policy.maxCount > 0 {
			if excess := len(h.buffer) - h.policy.maxCount; excess > 0 {
				h.buffer = h.buffer[excess:]
				h.shiftCursors(excess)
			}
		}
		if h.policy.maxAge > 0 {
			cutoff := time.Now().Add(-h.policy.maxAge)
			drop := 0
			for drop < len(h.buffer) && h.buffer[drop].at.Before(cutoff) {
				drop++
			}
			if drop > 0 {
				h.buffer = h.buffer[drop:]
				h.shiftCursors(drop)
			}
		}
		return
	}
	minCursor := -1
	for _, hs := range h.subscribers {
		if hs.isCancelled() {
			continue
		}
		c := hs.getCursor()
		if minCursor == -1 || c < minCursor {
			minCursor = c
		}
	}
	if minCursor > 0 {
		h.buffer = h.buffer[minCursor:]
		h.shiftCursors(minCursor)
	}
}

// shiftCursors must be called with h.mu held, after buffer[:n] has been
// dropped.
func (h *multicastHub) shiftCursors(n int) {
	for _, hs := range h.subscribers {
		hs.mu.Lock()
		hs.cursor -= n
		if hs.cursor < 0 {
			hs.cursor = 0
		}
		hs.mu.Unlock()
	}
}

func (h *multicastHub) schedule() {
	if !h.drainWip.enter() {
		return
	}
	h.drainWip.drain(h.drainOnce)
}

func (h *multicastHub) drainOnce() {
	h.mu.Lock()
	subs := append([]*hubSubscriber{}, h.subscribers...)
	buffer := h.buffer
	terminal := h.terminal
	completed := h.completed
	h.mu.Unlock()

	for _, hs := range subs {
		hs.deliver(buffer, terminal, completed)
	}

	h.mu.Lock()
	h.trim()
	live := h.subscribers[:0]
	for _, hs := range h.subscribers {
		if !hs.isCancelled() {
			live = append(live, hs)
		}
	}
	h.subscribers = live
	h.mu.Unlock()
}

type hubSubscriber struct {
	downstream Subscriber
	mu         sync.Mutex
	cursor     int
	requested  int64
	cancelled  bool
	terminated bool
}

func (hs *hubSubscriber) isCancelled() bool {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.cancelled
}

func (hs *hubSubscriber) getCursor() int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.cursor
}

func (hs *hubSubscriber) deliver(buffer []hubEntry, terminal error, completed bool) {
	for {
		hs.mu.Lock()
		if hs.cancelled || hs.terminated {
			hs.mu.Unlock()
			return
		}
		if hs.cursor >= len(buffer) {
			if terminal != nil {
				hs.terminated = true
				hs.mu.Unlock()
				hs.downstream.OnError(terminal)
				return
			}
			if completed {
				hs.terminated = true
				hs.mu.Unlock()
				hs.downstream.OnComplete()
				return
			}
			hs.mu.Unlock()
			return
		}
		requested := atomic.LoadInt64(&hs.requested)
		if requested <= 0 && requested != unboundedDemand {
			hs.mu.Unlock()
			return
		}
		v := buffer[hs.cursor].value
		hs.cursor++
		if requested != unboundedDemand {
			atomic.AddInt64(&hs.requested, -1)
		}
		hs.mu.Unlock()
		hs.downstream.OnNext(v)
	}
}
