// File: api/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// User-facing contract of an open remote context. Thin surface over the
// engine; every call enforces the context lifecycle.

package api

import "context"

// AttrMap is the user-visible metadata bag attached to a context.
// It has no lifecycle coupling to requests.
type AttrMap interface {
	// Set assigns a value for a key.
	Set(key string, value any)
	// Get fetches a value, returning (value, exists).
	Get(key string) (any, bool)
	// Delete removes a key.
	Delete(key string)
	// Keys returns all present keys.
	Keys() []string
}

// RequestContext is a client-side handle bound to one remote service
// instance. All methods are safe for concurrent use.
type RequestContext[I, O any] interface {
	// Invoke issues a request and blocks on the calling goroutine until a
	// terminal outcome arrives. While blocked the caller drains its own
	// private dispatch queue instead of occupying a shared worker.
	Invoke(request I) (O, error)

	// InvokeContext behaves like Invoke but abandons the wait when ctx
	// expires. The request itself stays pending and may complete later.
	InvokeContext(ctx context.Context, request I) (O, error)

	// Send issues a request without blocking and returns its future.
	// Completion callbacks run on the shared background dispatcher.
	Send(request I) (FutureReply[O], error)

	// Close shuts the context down: pending requests fail with
	// ErrContextClosed and the context detaches from its session.
	// Idempotent.
	Close() error

	// AddCloseHandler registers fn to run once the context has finished
	// closing. Handlers run in registration order; registering on an
	// already-closed context runs fn synchronously.
	AddCloseHandler(fn func())

	// Attributes returns the open metadata bag of this context.
	Attributes() AttrMap
}
