package reactor

import (
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// Rate / time operators; most operators here are DelayedExecutor-driven
// (Buffer, Window and SampleTimeout take no executor).
// None of these exist in the teacher in this shape (xinjiayu-RxGo has no
// scheduler-driven operator family beyond ObserveOn/SubscribeOn) so the
// drain/cancellation discipline is carried over from operators_merge.go's
// mergeState and operators_scheduling.go's publishOnSubscriber rather than
// any single teacher file: a mutex-guarded state struct plus an upstream
// Subscription to cancel, which is the shape every multi-timer stage in
// this file needs.
// ============================================================================

// Timeout fails (or switches to fallback) if no item arrives within
// duration after subscription or after the previous item. Late arrivals of
// the item the timer was waiting for are dropped once the watchdog has
// already fired, exercised by TestTimeoutDropsLateEmission.
func (f Flux) Timeout(duration time.Duration, executor DelayedExecutor, fallback Flux) Flux {
	return FromPublisher(&timeoutPublisher{upstream: f.pub, duration: duration, executor: executor, fallback: fallback})
}

type timeoutPublisher struct {
	upstream Publisher
	duration time.Duration
	executor DelayedExecutor
	fallback Flux
}

func (p *timeoutPublisher) Subscribe(subscriber Subscriber) {
	s := &timeoutSubscriber{downstream: subscriber, duration: p.duration, executor: p.executor, fallback: p.fallback}
	p.upstream.Subscribe(s)
}

type timeoutSubscriber struct {
	downstream Subscriber
	duration   time.Duration
	executor   DelayedExecutor
	fallback   Flux

	mu         sync.Mutex
	upstream   Subscription
	timerStop  func()
	switched   int32 // atomic, 1 once fallback has taken over or terminal fired
	lastDemand int64
}

func (t *timeoutSubscriber) OnSubscribe(subscription Subscription) {
	t.upstream = subscription
	downstreamSub := newDemandSubscription(
		func(n int64) {
			atomic.StoreInt64(&t.lastDemand, n)
			subscription.Request(n)
		},
		func() {
			t.stopTimer()
			subscription.Cancel()
		},
		nil,
	)
	t.downstream.OnSubscribe(downstreamSub)
	t.armTimer()
}

func (t *timeoutSubscriber) armTimer() {
	t.mu.Lock()
	if t.timerStop != nil {
		t.timerStop()
	}
	t.timerStop = t.executor.ScheduleAfter(t.fire, t.duration)
	t.mu.Unlock()
}

func (t *timeoutSubscriber) stopTimer() {
	t.mu.Lock()
	if t.timerStop != nil {
		t.timerStop()
		t.timerStop = nil
	}
	t.mu.Unlock()
}

func (t *timeoutSubscriber) fire() {
	if !atomic.CompareAndSwapInt32(&t.switched, 0, 1) {
		return
	}
	t.upstream.Cancel()
	if t.fallback.pub == nil {
		t.downstream.OnError(&TimeoutError{Reason: "no item within watchdog window"})
		return
	}
	t.fallback.Subscribe(t.downstream)
}

func (t *timeoutSubscriber) OnNext(value interface{}) {
	if atomic.LoadInt32(&t.switched) == 1 {
		return
	}
	t.armTimer()
	t.downstream.OnNext(value)
}

func (t *timeoutSubscriber) OnError(cause error) {
	if !atomic.CompareAndSwapInt32(&t.switched, 0, 1) {
		return
	}
	t.stopTimer()
	t.downstream.OnError(cause)
}

func (t *timeoutSubscriber) OnComplete() {
	if !atomic.CompareAndSwapInt32(&t.switched, 0, 1) {
		return
	}
	t.stopTimer()
	t.downstream.OnComplete()
}

// Delay re-emits every value after duration, preserving order (each timer is
// scheduled as the previous value's delay fires, not all at once, so
// ordering survives even if the executor reorders independent timers).
func (f Flux) Delay(duration time.Duration, executor DelayedExecutor) Flux {
	return f.lift("delay", func(downstream Subscriber) Subscriber {
		return &delaySubscriber{downstream: downstream, duration: duration, executor: executor}
	})
}

type delaySubscriber struct {
	baseSubscriber
	downstream Subscriber
	duration   time.Duration
	executor   DelayedExecutor
	mu         sync.Mutex
	pending    []func()
}

func (d *delaySubscriber) OnSubscribe(subscription Subscription) {
	d.baseSubscriber.OnSubscribe(subscription)
	d.downstream.OnSubscribe(subscription)
}

func (d *delaySubscriber) OnNext(value interface{}) {
	d.executor.ScheduleAfter(func() { d.downstream.OnNext(value) }, d.duration)
}

func (d *delaySubscriber) OnError(cause error) {
	d.executor.ScheduleAfter(func() { d.downstream.OnError(cause) }, d.duration)
}

func (d *delaySubscriber) OnComplete() {
	d.executor.ScheduleAfter(d.downstream.OnComplete, d.duration)
}

// DelaySubscription defers calling Subscribe on the upstream until after
// duration elapses.
func (f Flux) DelaySubscription(duration time.Duration, executor DelayedExecutor) Flux {
	return FromPublisher(&delaySubscriptionPublisher{upstream: f.pub, duration: duration, executor: executor})
}

type delaySubscriptionPublisher struct {
	upstream Publisher
	duration time.Duration
	executor DelayedExecutor
}

func (p *delaySubscriptionPublisher) Subscribe(subscriber Subscriber) {
	p.executor.ScheduleAfter(func() { p.upstream.Subscribe(subscriber) }, p.duration)
}

// Interval emits an increasing int64 counter starting at 0, every period,
// after an initial delay, until cancelled. Downstream demand gates emission:
// a tick that arrives while demand is exhausted is dropped, nothing is
// buffered, and the counter only advances on ticks that are emitted.
func Interval(initialDelay, period time.Duration, executor DelayedExecutor) Flux {
	return FromPublisher(&intervalPublisher{initialDelay: initialDelay, period: period, executor: executor})
}

type intervalPublisher struct {
	initialDelay, period time.Duration
	executor              DelayedExecutor
}

func (p *intervalPublisher) Subscribe(subscriber Subscriber) {
	s := &intervalSubscription{downstream: subscriber, counter: 0}
	subscriber.OnSubscribe(s)
	s.cancelTimer = p.executor.SchedulePeriodically(s.tick, p.initialDelay, p.period)
}

type intervalSubscription struct {
	downstream  Subscriber
	requested   int64
	counter     int64
	cancelled   int32
	cancelTimer func()
}

func (s *intervalSubscription) Request(n int64) {
	if n <= 0 {
		s.downstream.OnError(&ProtocolViolationError{Reason: "request(n) called with n <= 0"})
		return
	}
	addSaturating(&s.requested, n)
}

func (s *intervalSubscription) Cancel() {
	if atomic.CompareAndSwapInt32(&s.cancelled, 0, 1) && s.cancelTimer != nil {
		s.cancelTimer()
	}
}

func (s *intervalSubscription) tick() {
	if atomic.LoadInt32(&s.cancelled) == 1 {
		return
	}
	if s.consumeOne() {
		v := atomic.AddInt64(&s.counter, 1) - 1
		s.downstream.OnNext(v)
	}
}

func (s *intervalSubscription) consumeOne() bool {
	for {
		cur := atomic.LoadInt64(&s.requested)
		if cur == unboundedDemand {
			return true
		}
		if cur <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&s.requested, cur, cur-1) {
			return true
		}
	}
}

// meteredSink buffers values a timer- or count-driven stage produces and
// drains them against downstream demand, so a stage whose output rate does
// not track its input rate one-for-one can still honor the Subscriber
// demand contract instead of forwarding the raw upstream Subscription
// downstream. Grounded in operators_backpressure.go's backpressureSubscriber
// drain loop.
type meteredSink struct {
	downstream Subscriber
	mu         sync.Mutex
	buffer     []interface{}
	requested  int64
	terminal   error
	completed  bool
	delivered  bool // terminal signal already delivered; guarded by mu
	drainWip   wip
}

func (m *meteredSink) request(n int64) {
	addSaturating(&m.requested, n)
	m.schedule()
}

func (m *meteredSink) push(value interface{}) {
	m.mu.Lock()
	m.buffer = append(m.buffer, value)
	m.mu.Unlock()
	m.schedule()
}

func (m *meteredSink) fail(cause error) {
	m.mu.Lock()
	if m.terminal == nil && !m.completed {
		m.terminal = cause
	}
	m.mu.Unlock()
	m.schedule()
}

func (m *meteredSink) complete() {
	m.mu.Lock()
	if m.terminal == nil && !m.completed {
		m.completed = true
	}
	m.mu.Unlock()
	m.schedule()
}

func (m *meteredSink) schedule() {
	if !m.drainWip.enter() {
		return
	}
	m.drainWip.drain(m.drainOnce)
}

func (m *meteredSink) drainOnce() {
	for {
		m.mu.Lock()
		if m.delivered {
			m.mu.Unlock()
			return
		}
		requested := atomic.LoadInt64(&m.requested)
		if len(m.buffer) == 0 || (requested <= 0 && requested != unboundedDemand) {
			empty := len(m.buffer) == 0
			terminal := m.terminal
			completed := m.completed
			if empty && (terminal != nil || completed) {
				m.delivered = true
			}
			m.mu.Unlock()
			if empty && terminal != nil {
				m.downstream.OnError(terminal)
			} else if empty && completed {
				m.downstream.OnComplete()
			}
			return
		}
		v := m.buffer[0]
		m.buffer = m.buffer[1:]
		if requested != unboundedDemand {
			atomic.AddInt64(&m.requested, -1)
		}
		m.mu.Unlock()
		m.downstream.OnNext(v)
	}
}

// Sample emits the most recently latched value, if any arrived since the
// last tick, once per period.
func (f Flux) Sample(period time.Duration, executor DelayedExecutor) Flux {
	return FromPublisher(&samplePublisher{upstream: f.pub, period: period, executor: executor})
}

type samplePublisher struct {
	upstream Publisher
	period   time.Duration
	executor DelayedExecutor
}

func (p *samplePublisher) Subscribe(subscriber Subscriber) {
	s := &sampleSubscriber{sink: &meteredSink{downstream: subscriber}}
	p.upstream.Subscribe(s)
	s.cancelTimer = p.executor.SchedulePeriodically(s.tick, p.period, p.period)
}

type sampleSubscriber struct {
	upstream    Subscription
	sink        *meteredSink
	mu          sync.Mutex
	latest      interface{}
	has         bool
	done        int32
	cancelTimer func()
}

func (s *sampleSubscriber) OnSubscribe(subscription Subscription) {
	s.upstream = subscription
	s.sink.downstream.OnSubscribe(newDemandSubscription(
		func(n int64) { s.sink.request(n) },
		func() {
			s.finish()
			subscription.Cancel()
		},
		nil,
	))
	subscription.Request(unboundedDemand)
}

func (s *sampleSubscriber) OnNext(value interface{}) {
	s.mu.Lock()
	s.latest, s.has = value, true
	s.mu.Unlock()
}

func (s *sampleSubscriber) OnError(cause error) {
	s.finish()
	s.sink.fail(cause)
}

func (s *sampleSubscriber) OnComplete() {
	s.mu.Lock()
	v, has := s.latest, s.has
	s.has = false
	s.mu.Unlock()
	if has {
		s.sink.push(v)
	}
	s.finish()
	s.sink.complete()
}

func (s *sampleSubscriber) finish() {
	if atomic.CompareAndSwapInt32(&s.done, 0, 1) && s.cancelTimer != nil {
		s.cancelTimer()
	}
}

func (s *sampleSubscriber) tick() {
	if atomic.LoadInt32(&s.done) == 1 {
		return
	}
	s.mu.Lock()
	v, has := s.latest, s.has
	s.has = false
	s.mu.Unlock()
	if has {
		s.sink.push(v)
	}
}

// SampleFirst (a throttling variant) emits the first value of every window
// and ignores the rest until the window elapses.
func (f Flux) SampleFirst(window time.Duration, executor DelayedExecutor) Flux {
	return f.lift("sampleFirst", func(downstream Subscriber) Subscriber {
		return &throttleSubscriber{sink: &meteredSink{downstream: downstream}, window: window, executor: executor}
	})
}

// Throttle is an alias for SampleFirst kept for naming parity: drop while
// within a throttling window started by the most recent emission.
func (f Flux) Throttle(window time.Duration, executor DelayedExecutor) Flux {
	return f.SampleFirst(window, executor)
}

type throttleSubscriber struct {
	upstream Subscription
	sink     *meteredSink
	window   time.Duration
	executor DelayedExecutor
	gate     int32 // atomic, 1 while inside a throttling window
}

func (t *throttleSubscriber) OnSubscribe(subscription Subscription) {
	t.upstream = subscription
	t.sink.downstream.OnSubscribe(newDemandSubscription(
		func(n int64) { t.sink.request(n) },
		func() { subscription.Cancel() },
		nil,
	))
	subscription.Request(unboundedDemand)
}

func (t *throttleSubscriber) OnNext(value interface{}) {
	if !atomic.CompareAndSwapInt32(&t.gate, 0, 1) {
		return
	}
	t.executor.ScheduleAfter(func() { atomic.StoreInt32(&t.gate, 0) }, t.window)
	t.sink.push(value)
}

func (t *throttleSubscriber) OnError(cause error) { t.sink.fail(cause) }
func (t *throttleSubscriber) OnComplete()         { t.sink.complete() }

// SampleTimeout latches the latest value and emits it once the companion
// Flux companionFactory(value) produces its first signal without a newer
// value having arrived in between (a debounce).
func (f Flux) SampleTimeout(companionFactory func(value interface{}) Flux) Flux {
	return FromPublisher(&sampleTimeoutPublisher{upstream: f.pub, companionFactory: companionFactory})
}

type sampleTimeoutPublisher struct {
	upstream         Publisher
	companionFactory func(interface{}) Flux
}

func (p *sampleTimeoutPublisher) Subscribe(subscriber Subscriber) {
	s := &sampleTimeoutSubscriber{sink: &meteredSink{downstream: subscriber}, companionFactory: p.companionFactory}
	p.upstream.Subscribe(s)
}

type sampleTimeoutSubscriber struct {
	upstream         Subscription
	sink             *meteredSink
	companionFactory func(interface{}) Flux
	mu               sync.Mutex
	generation       int64
	activeCancel     func()
	done             int32
}

func (s *sampleTimeoutSubscriber) OnSubscribe(subscription Subscription) {
	s.upstream = subscription
	s.sink.downstream.OnSubscribe(newDemandSubscription(
		func(n int64) { s.sink.request(n) },
		func() { subscription.Cancel() },
		nil,
	))
	subscription.Request(unboundedDemand)
}

func (s *sampleTimeoutSubscriber) OnNext(value interface{}) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	if s.activeCancel != nil {
		s.activeCancel()
	}
	s.mu.Unlock()

	companionSub := &sampleTimeoutCompanion{owner: s, value: value, generation: gen}
	s.companionFactory(value).Subscribe(companionSub)
	s.mu.Lock()
	s.activeCancel = companionSub.cancel
	s.mu.Unlock()
}

func (s *sampleTimeoutSubscriber) fireIfCurrent(value interface{}, generation int64) {
	s.mu.Lock()
	current := s.generation == generation && atomic.LoadInt32(&s.done) == 0
	s.mu.Unlock()
	if current {
		s.sink.push(value)
	}
}

func (s *sampleTimeoutSubscriber) OnError(cause error) {
	atomic.StoreInt32(&s.done, 1)
	s.sink.fail(cause)
}

func (s *sampleTimeoutSubscriber) OnComplete() {
	atomic.StoreInt32(&s.done, 1)
	s.sink.complete()
}

type sampleTimeoutCompanion struct {
	owner      *sampleTimeoutSubscriber
	value      interface{}
	generation int64
	sub        Subscription
	fired      int32
}

func (c *sampleTimeoutCompanion) OnSubscribe(subscription Subscription) {
	c.sub = subscription
	subscription.Request(1)
}

func (c *sampleTimeoutCompanion) cancel() {
	if c.sub != nil {
		c.sub.Cancel()
	}
}

func (c *sampleTimeoutCompanion) OnNext(interface{}) { c.complete() }
func (c *sampleTimeoutCompanion) OnError(error)      {}
func (c *sampleTimeoutCompanion) OnComplete()        { c.complete() }

func (c *sampleTimeoutCompanion) complete() {
	if atomic.CompareAndSwapInt32(&c.fired, 0, 1) {
		c.owner.fireIfCurrent(c.value, c.generation)
	}
}

// Buffer accumulates values into slices of at most maxSize, starting a new
// buffer every skip elements. skip == maxSize gives exact, non-overlapping
// buffers; skip < maxSize gives overlapping buffers; skip > maxSize drops
// elements between buffers.
func (f Flux) Buffer(maxSize, skip int) Flux {
	if skip <= 0 {
		skip = maxSize
	}
	return FromPublisher(&bufferPublisher{upstream: f.pub, maxSize: maxSize, skip: skip})
}

type bufferPublisher struct {
	upstream        Publisher
	maxSize, skip   int
}

func (p *bufferPublisher) Subscribe(subscriber Subscriber) {
	s := &bufferSubscriber{sink: &meteredSink{downstream: subscriber}, maxSize: p.maxSize, skip: p.skip}
	p.upstream.Subscribe(s)
}

type bufferSubscriber struct {
	upstream      Subscription
	sink          *meteredSink
	maxSize, skip int
	buffers       []([]interface{})
	seen          int
}

func (b *bufferSubscriber) OnSubscribe(subscription Subscription) {
	b.upstream = subscription
	b.sink.downstream.OnSubscribe(newDemandSubscription(
		func(n int64) { b.sink.request(n) },
		func() { subscription.Cancel() },
		nil,
	))
	subscription.Request(unboundedDemand)
}

func (b *bufferSubscriber) OnNext(value interface{}) {
	if b.seen%b.skip == 0 {
		b.buffers = append(b.buffers, make([]interface{}, 0, b.maxSize))
	}
	kept := b.buffers[:0:0]
	remaining := b.buffers
	b.buffers = nil
	for _, buf := range remaining {
		buf = append(buf, value)
		if len(buf) >= b.maxSize {
			b.sink.push(buf)
		} else {
			kept = append(kept, buf)
		}
	}
	b.buffers = kept
	b.seen++
}

func (b *bufferSubscriber) OnError(cause error) { b.sink.fail(cause) }

func (b *bufferSubscriber) OnComplete() {
	for _, buf := range b.buffers {
		if len(buf) > 0 {
			b.sink.push(buf)
		}
	}
	b.buffers = nil
	b.sink.complete()
}

// Window is Buffer's substream-producing counterpart: each window is emitted
// downstream as a Flux (backed by a fully materialized slice source) rather
// than a plain slice.
func (f Flux) Window(maxSize, skip int) Flux {
	return f.Buffer(maxSize, skip).Map(func(v interface{}) (interface{}, error) {
		return FromSlice(v.([]interface{})), nil
	})
}
