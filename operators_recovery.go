package reactor

// ============================================================================
// Error-recovery operators. MapError already lives in
// operators_map_filter.go; the rest of the family lives here. Grounded in
// xinjiayu-RxGo's absence of onErrorResumeWith/retry/repeat (the teacher has
// no recovery operators at all — RxGo leaves error handling to the caller)
// so the demand-resume and resubscribe discipline below is modeled directly
// on original_source's Flux.onErrorResume/retry/repeat family, expressed
// through this engine's demandSubscription/wip primitives.
// ============================================================================

// OnErrorResumeWith subscribes to fallback(cause) in place of signalling the
// error, carrying over whatever demand downstream still has outstanding.
func (f Flux) OnErrorResumeWith(fallback func(cause error) Flux) Flux {
	return FromPublisher(&resumePublisher{upstream: f.pub, fallback: fallback})
}

// OnErrorReturn resolves to just(value) instead of propagating the error.
func (f Flux) OnErrorReturn(value interface{}) Flux {
	return f.OnErrorResumeWith(func(error) Flux { return Just(value) })
}

type resumePublisher struct {
	upstream Publisher
	fallback func(error) Flux
}

func (p *resumePublisher) Subscribe(subscriber Subscriber) {
	s := &resumeSubscriber{downstream: subscriber, fallback: p.fallback}
	p.upstream.Subscribe(s)
}

type resumeSubscriber struct {
	downstream Subscriber
	fallback   func(error) Flux
	sub        *demandSubscription
	switched   bool
}

func (r *resumeSubscriber) OnSubscribe(subscription Subscription) {
	r.sub = newDemandSubscription(
		func(n int64) { subscription.Request(n) },
		func() { subscription.Cancel() },
		nil,
	)
	r.downstream.OnSubscribe(r.sub)
}

func (r *resumeSubscriber) OnNext(value interface{}) {
	r.sub.Consume(1)
	r.downstream.OnNext(value)
}

func (r *resumeSubscriber) OnError(cause error) {
	if r.switched || r.sub.IsCancelled() {
		return
	}
	r.switched = true
	outstanding := r.sub.Outstanding()
	relay := &resumeRelaySubscriber{downstream: r.downstream, outer: r.sub, outstanding: outstanding}
	r.fallback(cause).Subscribe(relay)
}

func (r *resumeSubscriber) OnComplete() { r.downstream.OnComplete() }

// resumeRelaySubscriber forwards the fallback's signals to the same
// downstream, reusing the outer demandSubscription so further Request calls
// still reach whichever source is currently active.
type resumeRelaySubscriber struct {
	downstream  Subscriber
	outer       *demandSubscription
	outstanding int64
}

func (r *resumeRelaySubscriber) OnSubscribe(subscription Subscription) {
	r.outer.onRequest = func(n int64) { subscription.Request(n) }
	r.outer.onCancel = func() { subscription.Cancel() }
	if r.outstanding > 0 {
		subscription.Request(r.outstanding)
	}
}

func (r *resumeRelaySubscriber) OnNext(value interface{}) { r.downstream.OnNext(value) }
func (r *resumeRelaySubscriber) OnError(cause error)      { r.downstream.OnError(cause) }
func (r *resumeRelaySubscriber) OnComplete()              { r.downstream.OnComplete() }

// Retry resubscribes to the original source up to maxAttempts additional
// times when predicate(cause) matches, emitting the original sequence again
// from the start on each attempt.
func (f Flux) Retry(maxAttempts int, predicate func(error) bool) Flux {
	return FromPublisher(&retryPublisher{source: f, maxAttempts: maxAttempts, predicate: predicate})
}

type retryPublisher struct {
	source      Flux
	maxAttempts int
	predicate   func(error) bool
}

func (p *retryPublisher) Subscribe(subscriber Subscriber) {
	s := &retrySubscriber{downstream: subscriber, source: p.source, maxAttempts: p.maxAttempts, predicate: p.predicate}
	s.attempt()
}

type retrySubscriber struct {
	downstream  Subscriber
	source      Flux
	maxAttempts int
	predicate   func(error) bool
	attempts    int
	outer       *demandSubscription
	firstPass   bool
}

func (r *retrySubscriber) attempt() {
	r.source.Subscribe(&retryAttemptSubscriber{owner: r})
}

// retryAttemptSubscriber is a fresh Subscriber per attempt so each resubscribe
// starts from a clean upstream Subscription.
type retryAttemptSubscriber struct {
	owner *retrySubscriber
	sub   Subscription
}

func (a *retryAttemptSubscriber) OnSubscribe(subscription Subscription) {
	a.sub = subscription
	r := a.owner
	if r.outer == nil {
		r.outer = newDemandSubscription(
			func(n int64) { subscription.Request(n) },
			func() { subscription.Cancel() },
			nil,
		)
		r.downstream.OnSubscribe(r.outer)
	} else {
		r.outer.onRequest = func(n int64) { subscription.Request(n) }
		r.outer.onCancel = func() { subscription.Cancel() }
		if outstanding := r.outer.Outstanding(); outstanding > 0 {
			subscription.Request(outstanding)
		}
	}
}

func (a *retryAttemptSubscriber) OnNext(value interface{}) { a.owner.downstream.OnNext(value) }

func (a *retryAttemptSubscriber) OnError(cause error) {
	r := a.owner
	if r.outer.IsCancelled() {
		return
	}
	if r.attempts < r.maxAttempts && r.predicate(cause) {
		r.attempts++
		r.attempt()
		return
	}
	r.downstream.OnError(cause)
}

func (a *retryAttemptSubscriber) OnComplete() { a.owner.downstream.OnComplete() }

// RetryWhen resubscribes to the source every time companion(cause) emits a
// value, and terminates the chain when the companion itself terminates:
// companion completion ends the chain with the original error, and a
// companion error ends it with a CompositeError of the original cause and
// the companion's error.
func (f Flux) RetryWhen(companionFactory func(cause error) Flux) Flux {
	return FromPublisher(&retryWhenPublisher{source: f, companionFactory: companionFactory})
}

type retryWhenPublisher struct {
	source           Flux
	companionFactory func(error) Flux
}

func (p *retryWhenPublisher) Subscribe(subscriber Subscriber) {
	rw := &retryWhenState{downstream: subscriber, source: p.source, companionFactory: p.companionFactory}
	rw.attempt()
}

type retryWhenState struct {
	downstream       Subscriber
	source           Flux
	companionFactory func(error) Flux
	outer            *demandSubscription
}

func (rw *retryWhenState) attempt() {
	rw.source.Subscribe(&retryWhenAttemptSubscriber{owner: rw})
}

type retryWhenAttemptSubscriber struct {
	owner *retryWhenState
}

func (a *retryWhenAttemptSubscriber) OnSubscribe(subscription Subscription) {
	rw := a.owner
	if rw.outer == nil {
		rw.outer = newDemandSubscription(
			func(n int64) { subscription.Request(n) },
			func() { subscription.Cancel() },
			nil,
		)
		rw.downstream.OnSubscribe(rw.outer)
	} else {
		rw.outer.onRequest = func(n int64) { subscription.Request(n) }
		rw.outer.onCancel = func() { subscription.Cancel() }
		if outstanding := rw.outer.Outstanding(); outstanding > 0 {
			subscription.Request(outstanding)
		}
	}
}

func (a *retryWhenAttemptSubscriber) OnNext(value interface{}) { a.owner.downstream.OnNext(value) }

func (a *retryWhenAttemptSubscriber) OnError(cause error) {
	rw := a.owner
	if rw.outer.IsCancelled() {
		return
	}
	companionSub := &recoveryCompanionSubscriber{
		onNext:     func(interface{}) { rw.attempt() },
		onError:    func(err error) { rw.downstream.OnError(newComposite(cause, err)) },
		onComplete: func() { rw.downstream.OnError(cause) },
	}
	rw.companionFactory(cause).Subscribe(companionSub)
}

func (a *retryWhenAttemptSubscriber) OnComplete() { a.owner.downstream.OnComplete() }

// recoveryCompanionSubscriber adapts plain callbacks into a Subscriber for
// the retryWhen/repeatWhen companion streams, requesting one signal at a
// time since only the first signal the companion produces matters.
type recoveryCompanionSubscriber struct {
	onNext     func(interface{})
	onError    func(error)
	onComplete func()
	fired      bool
}

func (c *recoveryCompanionSubscriber) OnSubscribe(subscription Subscription) { subscription.Request(1) }

func (c *recoveryCompanionSubscriber) OnNext(value interface{}) {
	if c.fired {
		return
	}
	c.fired = true
	c.onNext(value)
}

func (c *recoveryCompanionSubscriber) OnError(cause error) {
	if c.fired {
		return
	}
	c.fired = true
	c.onError(cause)
}

func (c *recoveryCompanionSubscriber) OnComplete() {
	if c.fired {
		return
	}
	c.fired = true
	c.onComplete()
}

// Repeat resubscribes to the source up to maxAttempts additional times when
// it completes (rather than errors) and predicate matches — the dual of
// Retry for normal completion.
func (f Flux) Repeat(maxAttempts int, predicate func() bool) Flux {
	return FromPublisher(&repeatPublisher{source: f, maxAttempts: maxAttempts, predicate: predicate})
}

type repeatPublisher struct {
	source      Flux
	maxAttempts int
	predicate   func() bool
}

func (p *repeatPublisher) Subscribe(subscriber Subscriber) {
	s := &repeatState{downstream: subscriber, source: p.source, maxAttempts: p.maxAttempts, predicate: p.predicate}
	s.attempt()
}

type repeatState struct {
	downstream  Subscriber
	source      Flux
	maxAttempts int
	predicate   func() bool
	attempts    int
	outer       *demandSubscription
}

func (r *repeatState) attempt() {
	r.source.Subscribe(&repeatAttemptSubscriber{owner: r})
}

type repeatAttemptSubscriber struct {
	owner *repeatState
}

func (a *repeatAttemptSubscriber) OnSubscribe(subscription Subscription) {
	r := a.owner
	if r.outer == nil {
		r.outer = newDemandSubscription(
			func(n int64) { subscription.Request(n) },
			func() { subscription.Cancel() },
			nil,
		)
		r.downstream.OnSubscribe(r.outer)
	} else {
		r.outer.onRequest = func(n int64) { subscription.Request(n) }
		r.outer.onCancel = func() { subscription.Cancel() }
		if outstanding := r.outer.Outstanding(); outstanding > 0 {
			subscription.Request(outstanding)
		}
	}
}

func (a *repeatAttemptSubscriber) OnNext(value interface{}) { a.owner.downstream.OnNext(value) }
func (a *repeatAttemptSubscriber) OnError(cause error)      { a.owner.downstream.OnError(cause) }

func (a *repeatAttemptSubscriber) OnComplete() {
	r := a.owner
	if r.outer.IsCancelled() {
		return
	}
	if r.attempts < r.maxAttempts && r.predicate() {
		r.attempts++
		r.attempt()
		return
	}
	r.downstream.OnComplete()
}

// RepeatWhen is Repeat's companion-driven dual of RetryWhen: every
// completion emits a signal into companion(); the companion's next triggers
// resubscription, its terminal ends the chain (successfully on complete,
// with that error on error).
func (f Flux) RepeatWhen(companionFactory func() Flux) Flux {
	return FromPublisher(&repeatWhenPublisher{source: f, companionFactory: companionFactory})
}

type repeatWhenPublisher struct {
	source           Flux
	companionFactory func() Flux
}

func (p *repeatWhenPublisher) Subscribe(subscriber Subscriber) {
	rw := &repeatWhenState{downstream: subscriber, source: p.source, companionFactory: p.companionFactory}
	rw.attempt()
}

type repeatWhenState struct {
	downstream       Subscriber
	source           Flux
	companionFactory func() Flux
	outer            *demandSubscription
}

func (rw *repeatWhenState) attempt() {
	rw.source.Subscribe(&repeatWhenAttemptSubscriber{owner: rw})
}

type repeatWhenAttemptSubscriber struct {
	owner *repeatWhenState
}

func (a *repeatWhenAttemptSubscriber) OnSubscribe(subscription Subscription) {
	rw := a.owner
	if rw.outer == nil {
		rw.outer = newDemandSubscription(
			func(n int64) { subscription.Request(n) },
			func() { subscription.Cancel() },
			nil,
		)
		rw.downstream.OnSubscribe(rw.outer)
	} else {
		rw.outer.onRequest = func(n int64) { subscription.Request(n) }
		rw.outer.onCancel = func() { subscription.Cancel() }
		if outstanding := rw.outer.Outstanding(); outstanding > 0 {
			subscription.Request(outstanding)
		}
	}
}

func (a *repeatWhenAttemptSubscriber) OnNext(value interface{}) { a.owner.downstream.OnNext(value) }
func (a *repeatWhenAttemptSubscriber) OnError(cause error)      { a.owner.downstream.OnError(cause) }

func (a *repeatWhenAttemptSubscriber) OnComplete() {
	rw := a.owner
	if rw.outer.IsCancelled() {
		return
	}
	companionSub := &recoveryCompanionSubscriber{
		onNext:     func(interface{}) { rw.attempt() },
		onError:    func(err error) { rw.downstream.OnError(err) },
		onComplete: func() { rw.downstream.OnComplete() },
	}
	rw.companionFactory().Subscribe(companionSub)
}
