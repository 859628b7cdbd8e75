package reactor

// ============================================================================
// Stateless 1:1 maps and filters
//
// Each of these forwards Subscribe untouched, transforms or drops each
// Next, and forwards terminals — exactly the shape of
// xinjiayu-RxGo/flowable_operators.go's
// mapSubscriber/filterSubscriber, generalized here to propagate demand
// correctly: Map and Cast/Hide/Peek are demand-transparent (1 downstream
// request == 1 upstream request), while Filter must re-request one item
// upstream for every item it drops, since a dropped item is never delivered
// downstream and so must not count against downstream's demand.
// ============================================================================

// Map applies transformer to every value. If transformer fails the stage
// terminates with a UserError and cancels upstream. Map identity
// (source.Map(identity) ≡ source) holds because mapSubscriber introduces
// no buffering or demand renegotiation of its own.
func (f Flux) Map(transformer Transformer) Flux {
	if scalar, ok := asScalar(f.pub); ok {
		if scalar.IsEmptyScalar() {
			return f
		}
		if v, has := scalar.ScalarValue(); has {
			return Defer(func() Flux {
				nv, err := transformer(v)
				if err != nil {
					return Raise(&UserError{Cause: err})
				}
				return Just(nv)
			})
		}
	}
	return f.lift("map", func(downstream Subscriber) Subscriber {
		return &mapSubscriber{downstream: downstream, transformer: transformer}
	})
}

type mapSubscriber struct {
	baseSubscriber
	downstream  Subscriber
	transformer Transformer
}

func (m *mapSubscriber) OnSubscribe(subscription Subscription) {
	if fused, ok := subscription.(FusionSubscription); ok {
		if granted := fused.RequestFusion(FusionSync); granted&FusionSync != 0 {
			m.baseSubscriber.OnSubscribe(fused)
			m.downstream.OnSubscribe(newFusedDrain(m.downstream, &fusedLiftSubscription{upstream: fused, stage: m}))
			return
		}
	}
	m.baseSubscriber.OnSubscribe(subscription)
	m.downstream.OnSubscribe(subscription)
}

func (m *mapSubscriber) OnNext(value interface{}) {
	result, err := m.transformer(value)
	if err != nil {
		m.Cancel()
		m.downstream.OnError(&UserError{Cause: err})
		return
	}
	m.downstream.OnNext(result)
}

func (m *mapSubscriber) OnError(cause error) { m.downstream.OnError(cause) }
func (m *mapSubscriber) OnComplete()         { m.downstream.OnComplete() }

// fusePoll lets Map (and Cast, which reuses mapSubscriber) run inside a
// fused Poll loop instead of the OnNext path.
func (m *mapSubscriber) fusePoll(value interface{}) (interface{}, bool, error) {
	result, err := m.transformer(value)
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

// MapError transforms the error before it reaches downstream, leaving
// values and completion untouched. Supplemented from original_source's
// Flux.onErrorMap.
func (f Flux) MapError(transformer func(error) error) Flux {
	return f.lift("mapError", func(downstream Subscriber) Subscriber {
		return &mapErrorSubscriber{downstream: downstream, transformer: transformer}
	})
}

type mapErrorSubscriber struct {
	baseSubscriber
	downstream  Subscriber
	transformer func(error) error
}

func (m *mapErrorSubscriber) OnSubscribe(subscription Subscription) {
	m.baseSubscriber.OnSubscribe(subscription)
	m.downstream.OnSubscribe(subscription)
}
func (m *mapErrorSubscriber) OnNext(value interface{}) { m.downstream.OnNext(value) }
func (m *mapErrorSubscriber) OnError(cause error)      { m.downstream.OnError(m.transformer(cause)) }
func (m *mapErrorSubscriber) OnComplete()              { m.downstream.OnComplete() }

// Filter keeps only values for which predicate returns true. Requests one
// additional item from upstream for every dropped item, so downstream's
// outstanding demand is preserved exactly. Filter idempotence
// (source.Filter(p).Filter(p) ≡ source.Filter(p)) holds trivially since a
// second identical predicate can never reject a value the first pass
// already accepted.
func (f Flux) Filter(predicate Predicate) Flux {
	return f.lift("filter", func(downstream Subscriber) Subscriber {
		return &filterSubscriber{downstream: downstream, predicate: predicate}
	})
}

type filterSubscriber struct {
	baseSubscriber
	downstream Subscriber
	predicate  Predicate
}

func (fs *filterSubscriber) OnSubscribe(subscription Subscription) {
	if fused, ok := subscription.(FusionSubscription); ok {
		if granted := fused.RequestFusion(FusionSync); granted&FusionSync != 0 {
			fs.baseSubscriber.OnSubscribe(fused)
			fs.downstream.OnSubscribe(newFusedDrain(fs.downstream, &fusedLiftSubscription{upstream: fused, stage: fs}))
			return
		}
	}
	fs.baseSubscriber.OnSubscribe(subscription)
	fs.downstream.OnSubscribe(subscription)
}

func (fs *filterSubscriber) OnNext(value interface{}) {
	keep, err := fs.predicate(value)
	if err != nil {
		fs.Cancel()
		fs.downstream.OnError(&UserError{Cause: err})
		return
	}
	if keep {
		fs.downstream.OnNext(value)
		return
	}
	fs.Request(1)
}

func (fs *filterSubscriber) OnError(cause error) { fs.downstream.OnError(cause) }
func (fs *filterSubscriber) OnComplete()         { fs.downstream.OnComplete() }

// fusePoll lets Filter run inside a fused Poll loop: keep == false tells the
// caller to pull the next upstream value rather than surface this one, which
// is why fused Filter needs no demand-replenishing Request(1) the way its
// OnNext path does — Poll only ever advances the upstream once per accepted
// value.
func (fs *filterSubscriber) fusePoll(value interface{}) (interface{}, bool, error) {
	keep, err := fs.predicate(value)
	if err != nil {
		return nil, false, err
	}
	return value, keep, nil
}

// Cast asserts every value is of the given runtime type, erroring otherwise.
// Grounded in the teacher's notion of a Cast operator implied by the
// interface{}-typed Item model (xinjiayu-RxGo/core.go's Item.Value
// interface{}), generalized with reflect-free type switching via a
// predicate-style check function the caller supplies.
func (f Flux) Cast(check func(interface{}) (interface{}, error)) Flux {
	return f.lift("cast", func(downstream Subscriber) Subscriber {
		return &mapSubscriber{downstream: downstream, transformer: check}
	})
}

// Hide erases any fusion/scalar capability the upstream exposes, forcing
// plain relay semantics — useful when an operator must prevent a downstream
// optimization from seeing through an intentionally-opaque boundary (e.g.
// before PublishOn, whose queue hop needs the BOUNDARY fusion mode rather
// than a transparent one).
func (f Flux) Hide() Flux {
	return f.lift("hide", func(downstream Subscriber) Subscriber {
		return &peekSubscriber{downstream: downstream}
	})
}

// Peek runs onNext/onError/onComplete side-effect callbacks without altering
// the sequence, forwarding every signal unchanged. Grounded in
// xinjiayu-RxGo/operators_side_effects.go's doOnNext/doOnError/doOnComplete
// family, consolidated into one operator with three optional callbacks
// instead of three separate methods.
func (f Flux) Peek(onNext func(interface{}), onError func(error), onComplete func()) Flux {
	return f.lift("peek", func(downstream Subscriber) Subscriber {
		return &peekSubscriber{downstream: downstream, onNext: onNext, onError: onError, onComplete: onComplete}
	})
}

type peekSubscriber struct {
	baseSubscriber
	downstream Subscriber
	onNext     func(interface{})
	onError    func(error)
	onComplete func()
}

func (p *peekSubscriber) OnSubscribe(subscription Subscription) {
	p.baseSubscriber.OnSubscribe(subscription)
	p.downstream.OnSubscribe(subscription)
}

func (p *peekSubscriber) OnNext(value interface{}) {
	if p.onNext != nil {
		p.onNext(value)
	}
	p.downstream.OnNext(value)
}

func (p *peekSubscriber) OnError(cause error) {
	if p.onError != nil {
		p.onError(cause)
	}
	p.downstream.OnError(cause)
}

func (p *peekSubscriber) OnComplete() {
	if p.onComplete != nil {
		p.onComplete()
	}
	p.downstream.OnComplete()
}
