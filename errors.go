package reactor

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/prince2015999/reactor-core/diag"
)

// ProtocolViolationError reports a violation of the signal protocol: a
// non-positive Request, a double OnSubscribe, or a signal observed after a
// terminal one.
type ProtocolViolationError struct {
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return "protocol violation: " + e.Reason
}

// UserError wraps a panic or error raised from a user-supplied function
// (mapper, predicate, reducer, emitter). The stage that catches it cancels
// upstream and terminates downstream exactly once.
type UserError struct {
	Cause error
}

func (e *UserError) Error() string {
	return fmt.Sprintf("user callback failed: %v", e.Cause)
}

func (e *UserError) Unwrap() error {
	return e.Cause
}

// OverflowError is signalled by OnBackpressureError and by bounded queues
// configured with the Error overflow strategy when a value cannot be
// buffered because downstream demand is exhausted.
type OverflowError struct {
	Reason string
}

func (e *OverflowError) Error() string {
	return "backpressure overflow: " + e.Reason
}

// TimeoutError is signalled by Timeout when no item/companion signal arrives
// within the configured watchdog window and no fallback was configured.
type TimeoutError struct {
	Reason string
}

func (e *TimeoutError) Error() string {
	return "timeout: " + e.Reason
}

// CompositeError concatenates the causes accumulated by retryWhen/repeatWhen
// companions that themselves signal additional errors during recovery, and
// by delayError-enabled merge/flatMap stages.
type CompositeError struct {
	Causes []error
}

func (e *CompositeError) Error() string {
	if len(e.Causes) == 1 {
		return e.Causes[0].Error()
	}
	s := fmt.Sprintf("%d composite errors:", len(e.Causes))
	for _, c := range e.Causes {
		s += " [" + c.Error() + "]"
	}
	return s
}

// Unwrap exposes every cause so errors.Is/As can match any of them through a
// CompositeError.
func (e *CompositeError) Unwrap() []error {
	return e.Causes
}

// newComposite appends cause to existing (which may itself already be a
// CompositeError), returning a single error representing both.
func newComposite(existing error, cause error) error {
	if existing == nil {
		return cause
	}
	if c, ok := existing.(*CompositeError); ok {
		c.Causes = append(c.Causes, cause)
		return c
	}
	return &CompositeError{Causes: []error{existing, cause}}
}

// droppedErrorLog is the package-level zerolog logger used by the default
// DroppedErrorHook, grounded in
// _examples/kbukum-gokit/logger/logger.go's package-level logger pattern
// for a library that does not own the embedding process's logging
// configuration.
var droppedErrorLog = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).With().Timestamp().Logger()

// DroppedErrorHook is invoked for every error that cannot be delivered
// through the normal onError channel: an error thrown by onError itself, or
// one arriving after a terminal signal. The default logs and swallows;
// callers may replace it to route dropped errors elsewhere.
var DroppedErrorHook func(error) = defaultDroppedErrorHook

func defaultDroppedErrorHook(err error) {
	droppedErrorLog.Warn().
		Err(err).
		Int64("goroutine", diag.CurrentGoroutineID()).
		Msg("reactor: dropped error")
}

// reportDropped routes err through DroppedErrorHook and records it in the
// default diagnostic registry.
func reportDropped(err error) {
	diag.Default.RecordDroppedError()
	if DroppedErrorHook != nil {
		DroppedErrorHook(err)
	}
}
