package reactor

import "sync/atomic"

// unboundedDemand is the saturating sentinel meaning "no limit", mirroring
// Long.MAX_VALUE in the original reactor-core and
// xinjiayu-RxGo/flowable.go's maxValue guard in subscriptionImpl.Request.
const unboundedDemand = int64(^uint64(0) >> 1)

// Subscription is the bidirectional handle a Publisher exposes to its
// Subscriber: the Subscriber grants demand with Request and may withdraw at
// any time with Cancel. Both methods are safe to call from any goroutine.
type Subscription interface {
	// Request accumulates demand. n must be positive; a non-positive n is a
	// protocol violation. Stages that install a violation callback report
	// it to the Subscriber as OnError; stages without one ignore it.
	Request(n int64)
	// Cancel withdraws the subscription. Idempotent. After Cancel returns,
	// no further signal reaches the Subscriber, even if one is in flight.
	Cancel()
}

// demandSubscription is the base Subscription implementation shared by
// every stage that emits to a downstream Subscriber. It tracks outstanding
// demand as a saturating atomic counter and cancellation as a CAS-guarded
// flag, grounded in xinjiayu-RxGo/flowable.go:subscriptionImpl generalized
// so a non-positive Request is passed to the violation callback; with a nil
// callback it is dropped.
type demandSubscription struct {
	requested int64 // atomic
	cancelled int32 // atomic
	onRequest func(n int64)
	onCancel  func()
	violation func(error)
}

func newDemandSubscription(onRequest func(n int64), onCancel func(), violation func(error)) *demandSubscription {
	return &demandSubscription{onRequest: onRequest, onCancel: onCancel, violation: violation}
}

func (s *demandSubscription) Request(n int64) {
	if s.IsCancelled() {
		return
	}
	if n <= 0 {
		if s.violation != nil {
			s.violation(&ProtocolViolationError{Reason: "request(n) called with n <= 0"})
		}
		return
	}
	addSaturating(&s.requested, n)
	if s.onRequest != nil {
		s.onRequest(n)
	}
}

func (s *demandSubscription) Cancel() {
	if atomic.CompareAndSwapInt32(&s.cancelled, 0, 1) {
		if s.onCancel != nil {
			s.onCancel()
		}
	}
}

func (s *demandSubscription) IsCancelled() bool {
	return atomic.LoadInt32(&s.cancelled) == 1
}

// Outstanding returns the current demand without consuming it.
func (s *demandSubscription) Outstanding() int64 {
	return atomic.LoadInt64(&s.requested)
}

// Consume decrements the outstanding demand by up to n and returns how much
// was actually consumed. Once demand has saturated to unboundedDemand it
// stays there (an unbounded consumer never needs accounting again).
func (s *demandSubscription) Consume(n int64) int64 {
	for {
		cur := atomic.LoadInt64(&s.requested)
		if cur == unboundedDemand {
			return n
		}
		take := n
		if take > cur {
			take = cur
		}
		if atomic.CompareAndSwapInt64(&s.requested, cur, cur-take) {
			return take
		}
	}
}

// addSaturating adds n to *addr atomically, clamping at unboundedDemand on
// overflow, so concurrent Request calls compose additively without
// wrapping around.
func addSaturating(addr *int64, n int64) {
	for {
		cur := atomic.LoadInt64(addr)
		if cur == unboundedDemand {
			return
		}
		next := cur + n
		if next < 0 || next > unboundedDemand {
			next = unboundedDemand
		}
		if atomic.CompareAndSwapInt64(addr, cur, next) {
			return
		}
	}
}

// emptySubscription is handed to a Subscriber when there is nothing to
// request (e.g. a Publisher that is already terminated, or Never()).
type emptySubscription struct{}

func (emptySubscription) Request(int64) {}
func (emptySubscription) Cancel()       {}
