package reactor

import "sync/atomic"

// Fusion mode bitmask, grounded in
// xinjiayu-RxGo/queue_subscription_fusion.go's FUSION_NONE/SYNC/ASYNC/
// BOUNDARY constants.
const (
	// FusionNone means no fusion: the stage relays element-by-element
	// through the normal OnNext path.
	FusionNone = 0
	// FusionSync means the upstream produces values on demand: Poll never
	// blocks, and returning false from Poll means "drained, check
	// IsTerminated" rather than "nothing ready yet".
	FusionSync = 1
	// FusionAsync means values are produced asynchronously into a shared
	// queue; Poll returning false means "nothing ready yet", and terminal
	// state is signalled through IsTerminated independently of Poll.
	FusionAsync = 2
	// FusionAny is the mask a downstream passes when it accepts either
	// mode and lets the upstream choose.
	FusionAny = FusionSync | FusionAsync
	// FusionBoundary restricts async fusion to operators that don't need to
	// run their transformation on a particular goroutine (fusing across a
	// scheduler boundary is unsafe for operators with side effects pinned to
	// a thread).
	FusionBoundary = 4
)

// FusionSubscription is the pull-mode sub-protocol negotiated between two
// adjacent fusable stages during Subscribe. A stage that implements it
// alongside Subscription advertises that its downstream may bypass the
// push (OnNext) path entirely.
type FusionSubscription interface {
	Subscription
	// RequestFusion negotiates a mode: the downstream passes the modes it
	// supports (e.g. FusionAny), the upstream returns the mode it grants,
	// or FusionNone if it cannot fuse.
	RequestFusion(requested int) (granted int)
	// Poll returns the next value in SYNC mode, or the next available
	// value in ASYNC mode. ok is false when nothing is ready (ASYNC) or
	// the source is drained (SYNC, combined with IsTerminated()).
	Poll() (value interface{}, ok bool)
	// IsEmpty reports whether Poll would currently return ok == false.
	IsEmpty() bool
	// Clear discards any buffered values without emitting them downstream,
	// used when a downstream operator (e.g. take) cancels mid-fusion.
	Clear()
	// Size reports the number of buffered values, or -1 if unknown.
	Size() int
	// IsTerminated reports whether the source has signalled completion or
	// error; in ASYNC mode this is how a drained Poll is distinguished from
	// a not-yet-ready one.
	IsTerminated() (done bool, err error)
}

// fuser is implemented by Publishers that can participate in fusion
// negotiation in place of a normal Subscribe call. A lifted stage checks for
// this on its upstream at Subscribe time.
type fuser interface {
	// fusedSubscribe is the fusion-aware entry point: it receives the
	// requested mode and, if it can grant fusion, calls OnSubscribe with a
	// FusionSubscription and also returns that FusionSubscription. If it
	// returns ok == false the caller must fall back to a normal Subscribe.
	fusedSubscribe(subscriber Subscriber, requested int) (sub FusionSubscription, granted int, ok bool)
}

// ScalarSource is the scalar source capability: a 0-or-1-constant producer
// that exposes its value out-of-band without requiring a subscription,
// enabling compile-time-like specialization (e.g. just(x).map(f) becomes
// just(f(x))).
type ScalarSource interface {
	// ScalarValue returns (value, true) if this source is known to produce
	// exactly one constant value and then complete, or (nil, false)
	// otherwise (including the "known empty" case, which callers should
	// detect via IsEmptyScalar).
	ScalarValue() (value interface{}, ok bool)
	// IsEmptyScalar reports whether this source is known to complete
	// immediately with no value.
	IsEmptyScalar() bool
}

// asScalar extracts the ScalarSource capability from a Publisher, if any.
func asScalar(p Publisher) (ScalarSource, bool) {
	s, ok := p.(ScalarSource)
	return s, ok
}

// fusableStage is implemented by lift-produced subscribers whose transform
// is pure enough to run inside a fused Poll instead of the OnNext path.
// keep == false means "skip this value, pull the next one" (Filter's
// reject case), distinct from the err != nil terminal case.
type fusableStage interface {
	fusePoll(value interface{}) (result interface{}, keep bool, err error)
}

// fusedLiftSubscription composes a fusableStage's transform with an upstream
// FusionSubscription's Poll, so a chain of stateless lift operators reduces
// to a single Poll loop with no per-element OnNext dispatch. A transform
// error surfaces through IsTerminated rather than a direct OnError call,
// matching the "check IsTerminated after Poll returns false" contract
// FusionSubscription documents.
type fusedLiftSubscription struct {
	upstream FusionSubscription
	stage    fusableStage
	err      error
}

func (f *fusedLiftSubscription) Request(n int64) { f.upstream.Request(n) }
func (f *fusedLiftSubscription) Cancel()         { f.upstream.Cancel() }

func (f *fusedLiftSubscription) RequestFusion(requested int) int {
	return f.upstream.RequestFusion(requested)
}

func (f *fusedLiftSubscription) Poll() (interface{}, bool) {
	if f.err != nil {
		return nil, false
	}
	for {
		v, ok := f.upstream.Poll()
		if !ok {
			return nil, false
		}
		result, keep, err := f.stage.fusePoll(v)
		if err != nil {
			f.err = &UserError{Cause: err}
			f.upstream.Cancel()
			return nil, false
		}
		if keep {
			return result, true
		}
	}
}

func (f *fusedLiftSubscription) IsEmpty() bool { return f.err == nil && f.upstream.IsEmpty() }
func (f *fusedLiftSubscription) Clear()        { f.upstream.Clear() }
func (f *fusedLiftSubscription) Size() int     { return f.upstream.Size() }

func (f *fusedLiftSubscription) IsTerminated() (bool, error) {
	if f.err != nil {
		return true, f.err
	}
	return f.upstream.IsTerminated()
}

// fusedDrain is the Subscription a fusableStage hands its own downstream once
// it has negotiated SYNC fusion with its upstream: downstream still speaks
// the ordinary Request/OnNext protocol, but every element comes from Poll
// rather than a push from upstream, so the stage's own OnNext method is
// never invoked while fusion is active. Grounded in
// operators_backpressure.go's drain-loop shape, pulling from Poll instead of
// a push-filled buffer.
type fusedDrain struct {
	downstream Subscriber
	fused      FusionSubscription
	requested  int64
	drainWip   wip
	done       bool // set once the terminal signal is delivered; only touched inside the drain
}

func newFusedDrain(downstream Subscriber, fused FusionSubscription) *fusedDrain {
	return &fusedDrain{downstream: downstream, fused: fused}
}

func (d *fusedDrain) Request(n int64) {
	if n <= 0 {
		d.downstream.OnError(&ProtocolViolationError{Reason: "request(n) called with n <= 0"})
		return
	}
	addSaturating(&d.requested, n)
	d.schedule()
}

func (d *fusedDrain) Cancel() { d.fused.Cancel() }

func (d *fusedDrain) schedule() {
	if !d.drainWip.enter() {
		return
	}
	d.drainWip.drain(d.drainOnce)
}

func (d *fusedDrain) drainOnce() {
	for {
		if d.done {
			return
		}
		requested := atomic.LoadInt64(&d.requested)
		if requested <= 0 && requested != unboundedDemand {
			return
		}
		v, ok := d.fused.Poll()
		if !ok {
			done, err := d.fused.IsTerminated()
			if !done {
				return
			}
			d.done = true
			if err != nil {
				d.downstream.OnError(err)
			} else {
				d.downstream.OnComplete()
			}
			return
		}
		if requested != unboundedDemand {
			atomic.AddInt64(&d.requested, -1)
		}
		d.downstream.OnNext(v)
	}
}
