// File: core/remoting/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package remoting implements the client-side request/reply engine: the
// outbound context that owns every in-flight request issued against one
// remote service instance, the per-request completion state machine, and
// the synchronous pump that lets blocking callers service their own
// completion delivery.
//
// # Architecture
//
//   - OutboundContext tracks live requests in a concurrent table keyed by
//     request identifier and routes inbound session events to them.
//     Lifecycle is a one-shot Open → Closing transition guarded by
//     hold semantics: every public operation acquires a hold on the open
//     state and releases it on all exit paths.
//   - Each request owns a single-assignment future. The first terminal
//     event (reply, exception, close, cancel acknowledgment) wins;
//     later deliveries for the same identifier are dropped and logged.
//   - Blocking invocations drain a private Pump on the calling goroutine
//     instead of occupying the shared worker pool, so a bounded pool can
//     never deadlock on replies that need a worker to be delivered.
//
// Identifier allocation and message transport belong to the session
// collaborator behind api.SessionHandle; no wire format appears here.
package remoting
