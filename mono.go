package reactor

// Mono is a cold-by-default sequence of zero or one value, used as the
// output type of every reduction operator. Naming follows
// original_source's reactor-core (Flux/Mono) rather than the teacher's
// RxJava-style Single/Maybe/Completable split.
type Mono struct {
	pub Publisher
}

// MonoFromPublisher adapts an arbitrary Publisher (expected to emit at most
// one value before its terminal) into a Mono.
func MonoFromPublisher(p Publisher) Mono {
	return Mono{pub: p}
}

func (m Mono) Publisher() Publisher {
	return m.pub
}

func (m Mono) Subscribe(subscriber Subscriber) {
	if m.pub == nil {
		MonoEmpty().Subscribe(subscriber)
		return
	}
	m.pub.Subscribe(subscriber)
}

func (m Mono) SubscribeWith(onNext OnNextFunc, onError OnErrorFunc, onComplete OnCompleteFunc) Subscription {
	cs := &callbackSubscriber{onNext: onNext, onError: onError, onComplete: onComplete}
	m.Subscribe(cs)
	return cs.sub
}

// Block waits for the single value (or absence of one) and returns it,
// grounded in xinjiayu-RxGo/flowable.go's BlockingFirst.
func (m Mono) Block() (interface{}, error) {
	done := make(chan struct{})
	var value interface{}
	var err error
	var got bool
	m.SubscribeWith(
		func(v interface{}) { value = v; got = true },
		func(e error) { err = e; close(done) },
		func() { close(done) },
	)
	<-done
	if !got && err == nil {
		return nil, nil
	}
	return value, err
}

// AsFlux views the Mono as a Flux of at most one element.
func (m Mono) AsFlux() Flux {
	return Flux{pub: m.pub}
}

// MonoJust is a scalar Mono, grounded in original_source/MonoJust.java.
func MonoJust(value interface{}) Mono {
	return Mono{pub: &scalarPublisher{value: value, hasValue: true}}
}

// MonoEmpty completes immediately with no value.
func MonoEmpty() Mono {
	return Mono{pub: &scalarPublisher{}}
}

// MonoRaise signals err immediately, grounded in original_source's
// Mono.error.
func MonoRaise(err error) Mono {
	return Mono{pub: &raisePublisher{err: err}}
}

// Map transforms the Mono's single value, grounded in
// original_source/MonoWhere.java's transformation shape generalized from
// filtering to mapping.
func (m Mono) Map(transformer Transformer) Mono {
	return Mono{pub: &liftedPublisher{upstream: m.pub, name: "monoMap", factory: func(downstream Subscriber) Subscriber {
		return &mapSubscriber{downstream: downstream, transformer: transformer}
	}}}
}

// Filter keeps the value only if predicate matches, completing empty
// otherwise. Grounded directly in original_source/MonoWhere.java.
func (m Mono) Filter(predicate Predicate) Mono {
	return Mono{pub: &liftedPublisher{upstream: m.pub, name: "monoFilter", factory: func(downstream Subscriber) Subscriber {
		return &filterSubscriber{downstream: downstream, predicate: predicate}
	}}}
}
