// Package scheduler provides the concrete Executor/DelayedExecutor
// implementations the core reactor package consumes but deliberately does
// not own — thread-pool implementations and time-wheel details live here,
// outside the engine, which only depends on the two interfaces.
//
// Grounded in xinjiayu-RxGo/scheduler.go (immediateScheduler,
// newThreadScheduler, threadPoolScheduler) and
// xinjiayu-RxGo/work_stealing_parallel.go's bounded worker pool, generalized
// from RxGo-specific dispatch into the plain Executor/DelayedExecutor shape
// reactor.Executor/reactor.DelayedExecutor describe.
package scheduler

import (
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Immediate runs every action synchronously on the calling goroutine.
// Grounded in xinjiayu-RxGo/scheduler.go's immediateScheduler.
type Immediate struct{}

func (Immediate) Schedule(action func()) (cancel func()) {
	action()
	return func() {}
}

func (Immediate) ScheduleAfter(action func(), delay time.Duration) (cancel func()) {
	timer := time.AfterFunc(delay, action)
	return func() { timer.Stop() }
}

func (Immediate) SchedulePeriodically(action func(), initialDelay, period time.Duration) (cancel func()) {
	stop := make(chan struct{})
	go func() {
		t := time.NewTimer(initialDelay)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
			}
			select {
			case <-stop:
				return
			default:
				action()
			}
			t.Reset(period)
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}

// NewGoroutine dispatches every action onto its own goroutine. Grounded in
// xinjiayu-RxGo/scheduler.go's newThreadScheduler.
type NewGoroutine struct{}

func (NewGoroutine) Schedule(action func()) (cancel func()) {
	cancelled := make(chan struct{})
	go func() {
		select {
		case <-cancelled:
		default:
			recoverAndLog(action)
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(cancelled) }) }
}

func (NewGoroutine) ScheduleAfter(action func(), delay time.Duration) (cancel func()) {
	timer := time.AfterFunc(delay, func() { recoverAndLog(action) })
	return func() { timer.Stop() }
}

func (g NewGoroutine) SchedulePeriodically(action func(), initialDelay, period time.Duration) (cancel func()) {
	return Immediate{}.SchedulePeriodically(func() { go recoverAndLog(action) }, initialDelay, period)
}

// Pool is a fixed-size goroutine worker pool, grounded in
// xinjiayu-RxGo/work_stealing_parallel.go's bounded-concurrency dispatch
// generalized from that file's RxGo-specific ParallelFlowable draining into
// a general-purpose Executor any operator can target via PublishOn/
// SubscribeOn.
type Pool struct {
	tasks    chan func()
	closed   chan struct{}
	closeOne sync.Once
}

// NewPool starts a worker pool with the given number of workers (defaulting
// to runtime.NumCPU() when workers <= 0) and a task queue of the given
// backlog capacity.
func NewPool(workers, backlog int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if backlog <= 0 {
		backlog = workers * 2
	}
	p := &Pool{tasks: make(chan func(), backlog), closed: make(chan struct{})}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for {
		select {
		case <-p.closed:
			return
		case action, ok := <-p.tasks:
			if !ok {
				return
			}
			recoverAndLog(action)
		}
	}
}

func (p *Pool) Schedule(action func()) (cancel func()) {
	select {
	case <-p.closed:
		return func() {}
	default:
	}
	cancelled := make(chan struct{})
	task := func() {
		select {
		case <-cancelled:
		default:
			action()
		}
	}
	select {
	case p.tasks <- task:
	case <-p.closed:
	}
	var once sync.Once
	return func() { once.Do(func() { close(cancelled) }) }
}

func (p *Pool) ScheduleAfter(action func(), delay time.Duration) (cancel func()) {
	timer := time.AfterFunc(delay, func() { p.Schedule(action) })
	return func() { timer.Stop() }
}

func (p *Pool) SchedulePeriodically(action func(), initialDelay, period time.Duration) (cancel func()) {
	return Immediate{}.SchedulePeriodically(func() { p.Schedule(action) }, initialDelay, period)
}

// Close stops accepting new work and signals workers to exit once idle.
func (p *Pool) Close() {
	p.closeOne.Do(func() { close(p.closed) })
}

// recoverAndLog guards a scheduled action: a panic inside a user callback
// dispatched onto a pool goroutine must not take the whole pool down.
// Grounded in the defensive recover used throughout
// xinjiayu-RxGo/work_stealing_parallel.go's worker loops.
func recoverAndLog(action func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("reactor/scheduler: recovered panic in scheduled action")
		}
	}()
	action()
}

// Backlog reports the number of tasks currently queued but not yet picked
// up by a worker. Useful in tests asserting a Pool drained its queue.
func (p *Pool) Backlog() int {
	return len(p.tasks)
}
