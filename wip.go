package reactor

import "sync/atomic"

// wip is the work-in-progress drain token: the first goroutine to move it
// from 0 to 1 becomes the drain owner and runs the emission loop; every
// other goroutine that arrives while a drain is in progress simply bumps
// the counter and returns, trusting the owner to notice and re-loop. This
// is the trampoline pattern used instead of holding a mutex across user
// callbacks, grounded in the reentrancy discussion in
// xinjiayu-RxGo/queue_subscription_fusion.go.
type wip struct {
	n int32
}

// enter attempts to become (or stay) the drain owner. It returns true if
// the caller must run (or re-run) the drain loop.
func (w *wip) enter() bool {
	return atomic.AddInt32(&w.n, 1) == 1
}

// leave decrements the counter after one pass of the drain loop and reports
// whether the caller remains the owner (more work arrived while draining)
// or may exit.
func (w *wip) leave() bool {
	return atomic.AddInt32(&w.n, -1) != 0
}

// drain runs fn repeatedly while leave() reports more work arrived. Callers
// that are not the drain owner (enter() returned false) must not call this.
func (w *wip) drain(fn func()) {
	for {
		fn()
		if !w.leave() {
			return
		}
	}
}

// tryOwn is a CAS-style single-owner gate used by stages that don't need
// re-looping accounting, only mutual exclusion for a single pass (e.g. amb's
// winner-slot). It returns true exactly once.
type tryOwn struct {
	owned int32
}

func (t *tryOwn) acquire() bool {
	return atomic.CompareAndSwapInt32(&t.owned, 0, 1)
}

func (t *tryOwn) isOwned() bool {
	return atomic.LoadInt32(&t.owned) == 1
}
