package reactor

import "time"

// Executor runs an action "soon" on some worker; cancellable. This is the
// only capability the core engine needs to dispatch next/error/complete/
// subscribe/request signals elsewhere. Concrete implementations are
// external collaborators — see the scheduler subpackage — the engine only
// ever consumes this interface.
type Executor interface {
	// Schedule runs action and returns a function that cancels it if it has
	// not yet started.
	Schedule(action func()) (cancel func())
}

// DelayedExecutor runs an action after a delay, or periodically, and is
// consumed by the time/rate operator family.
type DelayedExecutor interface {
	Executor
	// ScheduleAfter runs action once, after delay.
	ScheduleAfter(action func(), delay time.Duration) (cancel func())
	// SchedulePeriodically runs action repeatedly: first after initialDelay,
	// then every period, until cancelled.
	SchedulePeriodically(action func(), initialDelay, period time.Duration) (cancel func())
}
