// File: api/future.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Single-assignment reply future. Completed exactly once by the engine;
// supports blocking wait, abandonable wait, polling, and asynchronous
// completion callbacks.

package api

import "context"

// RequestState is the lifecycle state of one outstanding request.
type RequestState int32

const (
	// StatePending means no terminal event has been delivered yet.
	StatePending RequestState = iota
	// StateReplied means the request completed with a reply value.
	StateReplied
	// StateFailed means the request completed with a failure.
	StateFailed
	// StateCancelled means the remote peer acknowledged cancellation.
	StateCancelled
)

// String returns a short name for logs.
func (s RequestState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReplied:
		return "replied"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s RequestState) Terminal() bool { return s != StatePending }

// FutureReply is the caller-visible result container for one request.
// All methods are safe for concurrent use from any goroutine.
type FutureReply[O any] interface {
	// Get blocks until the future is terminal and returns the reply value
	// or the terminal failure. Not abandonable.
	Get() (O, error)

	// GetContext blocks like Get but abandons the wait when ctx expires,
	// returning ErrWaitInterrupted wrapping ctx.Err(). Abandoning the wait
	// does not affect the request; it may still complete later.
	GetContext(ctx context.Context) (O, error)

	// TryGet returns the terminal outcome without blocking.
	// ok is false while the request is still pending.
	TryGet() (value O, err error, ok bool)

	// State returns the current request state.
	State() RequestState

	// OnComplete registers fn to run when the future becomes terminal.
	// Each registered fn runs at most once; if the future is already
	// terminal, fn runs synchronously before OnComplete returns.
	OnComplete(fn func(FutureReply[O]))

	// Cancel requests cooperative cancellation from the remote peer.
	// It does not complete the future; the future resolves when an
	// acknowledgment arrives, unless a reply or exception wins the race.
	// The return value reports whether the cancel message was sent.
	Cancel(mayInterrupt bool) bool
}
