package taozen

import "sync"

// CancelToken is the cancellation context shared by a graph run and every
// one of its steps. It supports polling via Cancelled, select-based waiting
// via Done, and callback registration via OnCancel. Firing is terminal and
// idempotent; Retry re-arms by installing a fresh token.
type CancelToken struct {
	mu        sync.Mutex
	done      chan struct{}
	fired     bool
	cause     error
	callbacks []func()
}

// NewCancelToken creates an unfired token.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel fires the token with the given cause and invokes registered
// callbacks, each independently recovered. Returns false if the token had
// already fired.
func (t *CancelToken) Cancel(cause error) bool {
	t.mu.Lock()
	if t.fired {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	t.cause = cause
	callbacks := t.callbacks
	t.callbacks = nil
	close(t.done)
	t.mu.Unlock()

	for _, fn := range callbacks {
		runRecovered(fn)
	}
	return true
}

// Done returns a channel closed when the token fires.
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}

// Cancelled reports whether the token has fired.
func (t *CancelToken) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Err returns the cancellation cause, or nil if the token has not fired.
func (t *CancelToken) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cause
}

// OnCancel registers a callback invoked when the token fires. If the token
// has already fired the callback runs immediately.
func (t *CancelToken) OnCancel(fn func()) {
	t.mu.Lock()
	if t.fired {
		t.mu.Unlock()
		runRecovered(fn)
		return
	}
	t.callbacks = append(t.callbacks, fn)
	t.mu.Unlock()
}

// runRecovered runs fn, swallowing panics so one callback cannot interrupt
// cancellation of the others.
func runRecovered(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}
