// File: api/session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Boundary to the session collaborator: outbound operations the engine
// consumes, and the inbound event sink the engine exposes back. Wire
// formats, framing, and connection management live behind SessionHandle.

package api

// SessionHandle is the transport-facing collaborator of a context. It
// allocates identifiers and moves messages toward the wire.
type SessionHandle interface {
	// OpenRequest allocates a fresh request identifier for the context.
	// Fails with a transport-level error if the session cannot allocate.
	OpenRequest(ctxID ContextID) (RequestID, error)

	// SendRequest transmits a request payload. The dispatcher is the
	// execution context the session must use to deliver the eventual
	// completion events for this request.
	SendRequest(ctxID ContextID, reqID RequestID, payload any, dispatcher Dispatcher) error

	// SendCancelRequest forwards a cooperative cancellation to the peer.
	// The return value reports whether the message was actually sent.
	SendCancelRequest(ctxID ContextID, reqID RequestID, mayInterrupt bool) bool

	// RemoveContext notifies the session that a context has closed and
	// should be dropped from its registry. No return; must tolerate
	// unknown identifiers.
	RemoveContext(ctxID ContextID)
}

// EventSink receives inbound protocol events for one context. Every method
// is safe to call from any goroutine and is a no-op when the target request
// or context is already gone.
type EventSink interface {
	// ReceiveReply delivers a successful reply for a pending request.
	ReceiveReply(reqID RequestID, payload any)

	// ReceiveException delivers a remote-execution failure.
	ReceiveException(reqID RequestID, cause error)

	// ReceiveCancelAcknowledge delivers a cancellation acknowledgment.
	ReceiveCancelAcknowledge(reqID RequestID)

	// ReceiveCloseContext delivers the terminal remote-close event.
	// Idempotent under repeated delivery.
	ReceiveCloseContext()
}
