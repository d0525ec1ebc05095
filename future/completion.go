/*
Package future implements Completion, the single-assignment, shareable
result handle spec.md §3/§4.3 uses as the public handle for both session
creation and every command execution. Nothing in the teacher module models
a future/promise directly — its Go code simply blocks the calling
goroutine — so this is grounded instead on the concurrency primitives the
teacher already relies on elsewhere: a done channel closed exactly once
(the same "close signals completion to every waiter" idiom behind
context.Context, which inet/mail_client.go uses for its MTA dial timeout)
guarded by a mutex for the single-assignment invariant (the same pattern
lalog.Logger uses sync.Once for its own lazy, exactly-once initialisation).
*/
package future

import (
	"sync"
	"time"

	"github.com/yahoo/smtp-client-nio-sub000/smtperr"
)

// Completion is a single-assignment future. The zero value is not usable;
// construct one with New.
type Completion[V any] struct {
	mutex     sync.Mutex
	done      chan struct{}
	value     V
	err       error
	cancelled bool
}

// New returns a fresh, unresolved Completion.
func New[V any]() *Completion[V] {
	return &Completion[V]{done: make(chan struct{})}
}

// Resolved returns a Completion that is already resolved with value v, for
// callers such as Session.Close that can answer synchronously.
func Resolved[V any](v V) *Completion[V] {
	c := New[V]()
	c.SetValue(v)
	return c
}

// resolve performs the single-assignment transition. Only the first call
// (value, error, or cancel) has any effect; every later call is a no-op,
// satisfying "done transitions false->true exactly once". Reports whether
// this call was the one that performed the transition.
func (c *Completion[V]) resolve(value V, err error, cancelled bool) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	select {
	case <-c.done:
		return false
	default:
	}
	c.value = value
	c.err = err
	c.cancelled = cancelled
	close(c.done)
	return true
}

// SetValue resolves the completion with a value. Idempotent: calls after
// the first are no-ops.
func (c *Completion[V]) SetValue(v V) {
	c.resolve(v, nil, false)
}

// SetError resolves the completion with an error. Idempotent.
func (c *Completion[V]) SetError(err error) {
	var zero V
	c.resolve(zero, err, false)
}

// Cancel resolves the completion with a cancellation error and marks it
// cancelled. It does not interrupt any in-flight network operation; a
// later response, if one arrives, finds the completion already resolved
// and is dropped by its owner. Returns true if this call performed the
// transition, false if the completion was already resolved.
func (c *Completion[V]) Cancel() bool {
	var zero V
	return c.resolve(zero, smtperr.New(smtperr.Cancelled, "completion was cancelled", nil), true)
}

// Done reports whether the completion has been resolved.
func (c *Completion[V]) Done() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Cancelled reports whether the completion was resolved via Cancel.
func (c *Completion[V]) Cancelled() bool {
	<-c.done
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.cancelled
}

// Wait blocks until the completion is resolved, returning its value or
// its (possibly wrapped) error.
func (c *Completion[V]) Wait() (V, error) {
	<-c.done
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.value, c.err
}

// WaitFor blocks until the completion is resolved or the timeout elapses,
// whichever comes first. On expiry it returns smtperr.Timeout.
func (c *Completion[V]) WaitFor(timeout time.Duration) (V, error) {
	select {
	case <-c.done:
		c.mutex.Lock()
		defer c.mutex.Unlock()
		return c.value, c.err
	case <-time.After(timeout):
		var zero V
		return zero, smtperr.New(smtperr.Timeout, "completion did not resolve within the deadline", nil)
	}
}
