// Package cancel provides the session-wide cancellation token. Workers check
// it cooperatively at stage boundaries, never inside a stage's inner loop.
package cancel

import (
	"sync"
	"sync/atomic"
)

// Signal is the read side of a cancellation flag.
type Signal interface {
	Cancelled() bool
}

// Token is a write-once, read-many cancellation flag with a broadcast
// channel for select-based waiting.
type Token struct {
	once sync.Once
	done chan struct{}
}

// NewToken constructs an uncancelled token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel trips the token. Safe to call from any goroutine, any number of
// times.
func (t *Token) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed on cancellation, for use in select.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Holder wraps a swappable Token so long-lived readers always observe the
// token of the current session run. A finished session that restarts gets a
// fresh token via Reset while workers keep reading through the same Holder.
type Holder struct {
	current atomic.Pointer[Token]
}

// NewHolder constructs a Holder with an uncancelled token.
func NewHolder() *Holder {
	h := &Holder{}
	h.current.Store(NewToken())
	return h
}

// Cancel trips the current token.
func (h *Holder) Cancel() {
	h.current.Load().Cancel()
}

// Cancelled reports whether the current token has been cancelled.
func (h *Holder) Cancelled() bool {
	return h.current.Load().Cancelled()
}

// Reset installs a fresh, uncancelled token.
func (h *Holder) Reset() {
	h.current.Store(NewToken())
}
