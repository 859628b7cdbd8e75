package reactor

import (
	"sync"
)

// recordingSubscriber is the test double used throughout this package's
// tests: it captures every signal it receives and lets the test drive demand
// explicitly via Request, instead of subscribing with unbounded demand and
// hoping timing works out. Grounded in
// _examples/roach88-nysm/brutalist/internal/engine's table-driven harness
// style, adapted from its scenario recorder to this package's Subscriber
// shape.
type recordingSubscriber struct {
	mu         sync.Mutex
	sub        Subscription
	values     []interface{}
	err        error
	completed  bool
	subscribed bool
}

func (r *recordingSubscriber) OnSubscribe(subscription Subscription) {
	r.mu.Lock()
	r.sub = subscription
	r.subscribed = true
	r.mu.Unlock()
}

func (r *recordingSubscriber) OnNext(value interface{}) {
	r.mu.Lock()
	r.values = append(r.values, value)
	r.mu.Unlock()
}

func (r *recordingSubscriber) OnError(cause error) {
	r.mu.Lock()
	r.err = cause
	r.mu.Unlock()
}

func (r *recordingSubscriber) OnComplete() {
	r.mu.Lock()
	r.completed = true
	r.mu.Unlock()
}

func (r *recordingSubscriber) Request(n int64) {
	r.mu.Lock()
	s := r.sub
	r.mu.Unlock()
	s.Request(n)
}

func (r *recordingSubscriber) Cancel() {
	r.mu.Lock()
	s := r.sub
	r.mu.Unlock()
	s.Cancel()
}

func (r *recordingSubscriber) Values() []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]interface{}, len(r.values))
	copy(out, r.values)
	return out
}

func (r *recordingSubscriber) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *recordingSubscriber) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

func newRecordingSubscriber() *recordingSubscriber {
	return &recordingSubscriber{}
}
