package reactor

// ============================================================================
// Distinct / deduplication. Demand-renegotiating like
// Filter: a duplicate is never delivered downstream, so the stage must
// re-request one item upstream for every one it drops. Grounded in
// filterSubscriber's re-request discipline (operators_map_filter.go); the
// teacher has no distinct operator at all.
// ============================================================================

// Distinct emits a value only the first time keyFn(value) is seen,
// maintaining an unbounded key set for the lifetime of the subscription.
func (f Flux) Distinct(keyFn KeyFunc) Flux {
	return f.lift("distinct", func(downstream Subscriber) Subscriber {
		return &distinctSubscriber{downstream: downstream, keyFn: keyFn, seen: map[interface{}]struct{}{}}
	})
}

type distinctSubscriber struct {
	baseSubscriber
	downstream Subscriber
	keyFn      KeyFunc
	seen       map[interface{}]struct{}
}

func (d *distinctSubscriber) OnSubscribe(subscription Subscription) {
	d.baseSubscriber.OnSubscribe(subscription)
	d.downstream.OnSubscribe(subscription)
}

func (d *distinctSubscriber) OnNext(value interface{}) {
	key, err := d.keyFn(value)
	if err != nil {
		d.Cancel()
		d.downstream.OnError(&UserError{Cause: err})
		return
	}
	if _, dup := d.seen[key]; dup {
		d.Request(1)
		return
	}
	d.seen[key] = struct{}{}
	d.downstream.OnNext(value)
}

func (d *distinctSubscriber) OnError(cause error) { d.downstream.OnError(cause) }
func (d *distinctSubscriber) OnComplete()         { d.downstream.OnComplete() }

// DistinctUntilChanged emits a value only if keyFn(value) differs from the
// immediately previous emitted key, requiring only constant memory.
func (f Flux) DistinctUntilChanged(keyFn KeyFunc) Flux {
	return f.lift("distinctUntilChanged", func(downstream Subscriber) Subscriber {
		return &distinctUntilChangedSubscriber{downstream: downstream, keyFn: keyFn}
	})
}

type distinctUntilChangedSubscriber struct {
	baseSubscriber
	downstream Subscriber
	keyFn      KeyFunc
	hasLast    bool
	lastKey    interface{}
}

func (d *distinctUntilChangedSubscriber) OnSubscribe(subscription Subscription) {
	d.baseSubscriber.OnSubscribe(subscription)
	d.downstream.OnSubscribe(subscription)
}

func (d *distinctUntilChangedSubscriber) OnNext(value interface{}) {
	key, err := d.keyFn(value)
	if err != nil {
		d.Cancel()
		d.downstream.OnError(&UserError{Cause: err})
		return
	}
	if d.hasLast && d.lastKey == key {
		d.Request(1)
		return
	}
	d.hasLast, d.lastKey = true, key
	d.downstream.OnNext(value)
}

func (d *distinctUntilChangedSubscriber) OnError(cause error) { d.downstream.OnError(cause) }
func (d *distinctUntilChangedSubscriber) OnComplete()         { d.downstream.OnComplete() }
