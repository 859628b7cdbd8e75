// Package diag holds a lifecycle-bounded, injectable registry for optional
// diagnostic introspection, plus the goroutine-ownership assertions the
// drain-loop pattern relies on to catch reentrancy bugs during testing.
//
// Grounded in _examples/AnatoleLucet-sig/sig/sig.go and
// internal/runtime_default.go, which use goid.Get() to assert that a
// signal graph's scheduler is not being re-entered from the wrong
// goroutine, and in _examples/kbukum-gokit/observability/meter.go for the
// optional otel metrics wiring.
package diag

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/petermattis/goid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// StageInfo describes one live stage for introspection.
type StageInfo struct {
	ID       uuid.UUID
	Kind     string
	OwnerGID int64
}

// Registry tracks live stages. The zero value is unusable; use NewRegistry
// or the process-wide Default.
type Registry struct {
	mu     sync.Mutex
	stages map[uuid.UUID]StageInfo

	meter          metric.Meter
	activeStages   metric.Int64UpDownCounter
	droppedErrors  metric.Int64Counter
	overflowEvents metric.Int64Counter
}

// NewRegistry creates a Registry instrumented through the ambient
// OpenTelemetry MeterProvider. Without an SDK configured by the embedding
// process, the instruments are no-ops — this library never forces an
// exporter on its caller.
func NewRegistry() *Registry {
	meter := otel.GetMeterProvider().Meter("reactor-core")
	active, _ := meter.Int64UpDownCounter("reactor.stages.active")
	dropped, _ := meter.Int64Counter("reactor.errors.dropped")
	overflow, _ := meter.Int64Counter("reactor.backpressure.overflow")
	return &Registry{
		stages:         make(map[uuid.UUID]StageInfo),
		meter:          meter,
		activeStages:   active,
		droppedErrors:  dropped,
		overflowEvents: overflow,
	}
}

// Default is the process-wide registry used when a Flux/Mono pipeline does
// not have one injected explicitly.
var Default = NewRegistry()

// Register records a new live stage and returns its id.
func (r *Registry) Register(kind string) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	r.stages[id] = StageInfo{ID: id, Kind: kind, OwnerGID: goid.Get()}
	r.mu.Unlock()
	if r.activeStages != nil {
		r.activeStages.Add(context.Background(), 1)
	}
	return id
}

// Unregister removes a stage from the registry on terminal/cancel.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	delete(r.stages, id)
	r.mu.Unlock()
	if r.activeStages != nil {
		r.activeStages.Add(context.Background(), -1)
	}
}

// Snapshot returns a copy of all currently live stages.
func (r *Registry) Snapshot() []StageInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StageInfo, 0, len(r.stages))
	for _, s := range r.stages {
		out = append(out, s)
	}
	return out
}

// RecordDroppedError increments the dropped-error counter.
func (r *Registry) RecordDroppedError() {
	if r.droppedErrors != nil {
		r.droppedErrors.Add(context.Background(), 1)
	}
}

// RecordOverflow increments the backpressure-overflow counter.
func (r *Registry) RecordOverflow() {
	if r.overflowEvents != nil {
		r.overflowEvents.Add(context.Background(), 1)
	}
}

// Owner is a single-owner reentrancy assertion: it records the goroutine id
// that first entered a drain loop and reports whether a later entry comes
// from the same goroutine. It is advisory (used in tests and optional
// assertions), never load-bearing for correctness — the wip counter is what
// actually enforces single ownership.
type Owner struct {
	gid int64 // atomic, 0 means unset
}

// Enter records the calling goroutine as the owner if none is set yet, and
// reports whether the calling goroutine matches the recorded owner.
func (o *Owner) Enter() (matches bool) {
	gid := goid.Get()
	for {
		cur := atomic.LoadInt64(&o.gid)
		if cur == 0 {
			if atomic.CompareAndSwapInt64(&o.gid, 0, gid) {
				return true
			}
			continue
		}
		return cur == gid
	}
}

// Release clears the recorded owner so the Owner can be reused by a
// subsequent drain pass on a different goroutine.
func (o *Owner) Release() {
	atomic.StoreInt64(&o.gid, 0)
}

// CurrentGoroutineID exposes goid.Get() for log tagging.
func CurrentGoroutineID() int64 {
	return goid.Get()
}
