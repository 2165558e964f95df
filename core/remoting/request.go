// File: core/remoting/request.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-request state machine. A request is created when a call is issued,
// registered in the owning context's table, and removed when the first
// terminal event arrives. Duplicate terminal events lose the race and are
// reported to the owner as late events.

package remoting

import (
	"sync/atomic"

	"github.com/momentics/hioload-rpc/api"
)

type outboundRequest[I, O any] struct {
	id    api.RequestID
	owner *OutboundContext[I, O]

	future *futureReply[O]

	// cancelRequested is orthogonal to the terminal state: it may be set
	// while pending and makes a later cancel acknowledgment meaningful.
	cancelRequested atomic.Bool
}

var _ canceller = (*outboundRequest[any, any])(nil)

func newOutboundRequest[I, O any](owner *OutboundContext[I, O], id api.RequestID) *outboundRequest[I, O] {
	r := &outboundRequest[I, O]{id: id, owner: owner}
	r.future = newFutureReply[O](r)
	return r
}

// receiveReply completes the future with a successful value. Reports
// whether this event won the terminal race.
func (r *outboundRequest[I, O]) receiveReply(value O) bool {
	if !r.future.complete(api.StateReplied, value, nil) {
		r.owner.lateEvent(r.id, "reply")
		return false
	}
	r.owner.dropRequest(r)
	return true
}

// receiveException completes the future with a remote-execution failure.
func (r *outboundRequest[I, O]) receiveException(cause error) bool {
	var zero O
	if !r.future.complete(api.StateFailed, zero, api.NewRemoteExecutionError(cause)) {
		r.owner.lateEvent(r.id, "exception")
		return false
	}
	r.owner.dropRequest(r)
	return true
}

// receiveClose force-fails a request whose owning context is closing.
func (r *outboundRequest[I, O]) receiveClose() bool {
	var zero O
	if !r.future.complete(api.StateFailed, zero, api.ErrContextClosed) {
		return false
	}
	r.owner.dropRequest(r)
	return true
}

// receiveCancelAcknowledge completes the future with a cancellation
// outcome. An acknowledgment with no prior cancel request is a protocol
// anomaly: logged, never fatal, and the request stays pending.
func (r *outboundRequest[I, O]) receiveCancelAcknowledge() bool {
	if !r.cancelRequested.Load() {
		log.Debugf("%s: cancel acknowledgment for request %s with no cancel requested",
			r.owner.id, r.id)
		return false
	}
	var zero O
	if !r.future.complete(api.StateCancelled, zero, api.ErrRequestCancelled) {
		r.owner.lateEvent(r.id, "cancel-ack")
		return false
	}
	r.owner.dropRequest(r)
	return true
}

// requestCancel marks the request cancel-requested and forwards the cancel
// message. Cancellation is cooperative: the future resolves only when the
// peer acknowledges, unless a reply or exception wins first.
func (r *outboundRequest[I, O]) requestCancel(mayInterrupt bool) bool {
	r.cancelRequested.Store(true)
	return r.owner.sendCancelRequest(r.id, mayInterrupt)
}
