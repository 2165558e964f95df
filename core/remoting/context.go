// File: core/remoting/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Outbound context: owns the live-request table for one remote context
// handle, routes inbound session events to the matching request, and runs
// the Open → Closing teardown. The userHandle inner type is the public
// api.RequestContext face.

package remoting

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/op/go-logging"

	"github.com/momentics/hioload-rpc/api"
)

var log = logging.MustGetLogger("hioload-rpc/remoting")

// recentTerminalCap bounds the cache of terminal request identifiers kept
// for late-event diagnostics.
const recentTerminalCap = 128

// OutboundContext tracks every in-flight request issued against one remote
// service instance. Created and owned by the session layer; user code
// operates through Handle().
type OutboundContext[I, O any] struct {
	id       api.ContextID
	session  api.SessionHandle
	executor api.Executor

	life lifecycle

	mu       sync.RWMutex
	requests map[api.RequestID]*outboundRequest[I, O]

	attrs *attrMap

	// recent remembers identifiers that already reached a terminal state,
	// so a late event can be logged as a duplicate rather than unknown.
	recent *lru.Cache

	stats counters

	closeMu       sync.Mutex
	closeHandlers []func()
	closeDone     bool

	handle *userHandle[I, O]
}

var _ api.EventSink = (*OutboundContext[any, any])(nil)

// NewOutboundContext creates a context for the identifier allocated by the
// session at open time. The executor is the shared dispatcher used for
// asynchronous (Send) completion delivery.
func NewOutboundContext[I, O any](id api.ContextID, session api.SessionHandle, executor api.Executor) *OutboundContext[I, O] {
	recent, _ := lru.New(recentTerminalCap)
	c := &OutboundContext[I, O]{
		id:       id,
		session:  session,
		executor: executor,
		requests: make(map[api.RequestID]*outboundRequest[I, O]),
		attrs:    newAttrMap(),
		recent:   recent,
	}
	c.handle = &userHandle[I, O]{ctx: c}
	return c
}

// ID returns the context identifier.
func (c *OutboundContext[I, O]) ID() api.ContextID { return c.id }

// Handle returns the user-facing surface bound to this context.
func (c *OutboundContext[I, O]) Handle() api.RequestContext[I, O] { return c.handle }

// Pending returns the number of in-flight requests.
func (c *OutboundContext[I, O]) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.requests)
}

// Metrics returns a snapshot of this context's counters.
func (c *OutboundContext[I, O]) Metrics() Counters { return c.stats.snapshot() }

// Closed reports whether teardown has run.
func (c *OutboundContext[I, O]) Closed() bool { return c.life.state() != stateOpen }

// --- request table management

func (c *OutboundContext[I, O]) lookup(reqID api.RequestID) *outboundRequest[I, O] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requests[reqID]
}

// dropRequest removes r from the table if it is still the registered entry
// for its identifier, and records the identifier for late-event diagnostics.
func (c *OutboundContext[I, O]) dropRequest(r *outboundRequest[I, O]) {
	c.mu.Lock()
	if c.requests[r.id] == r {
		delete(c.requests, r.id)
	}
	c.mu.Unlock()
	c.recent.Add(r.id, struct{}{})
}

// lateEvent records an inbound event that lost the terminal race or found
// no pending request. Expected under normal races between local teardown
// and in-flight network events; never an error.
func (c *OutboundContext[I, O]) lateEvent(reqID api.RequestID, kind string) {
	c.stats.late.Add(1)
	if c.recent.Contains(reqID) {
		log.Debugf("%s: dropped %s for already-completed request %s", c.id, kind, reqID)
	} else {
		log.Debugf("%s: dropped %s for unknown request %s", c.id, kind, reqID)
	}
}

// --- outbound protocol

func (c *OutboundContext[I, O]) openRequest() (api.RequestID, error) {
	reqID, err := c.session.OpenRequest(c.id)
	if err != nil {
		return "", api.NewRemotingError("open request", err)
	}
	return reqID, nil
}

// doSend allocates an identifier, registers a fresh request and hands the
// payload to the session. The request is registered strictly before
// transmission, so a reply can never arrive ahead of the bookkeeping.
// Caller must hold the open state.
func (c *OutboundContext[I, O]) doSend(request I, dispatcher api.Dispatcher) (*outboundRequest[I, O], error) {
	reqID, err := c.openRequest()
	if err != nil {
		return nil, err
	}
	r := newOutboundRequest(c, reqID)
	c.mu.Lock()
	c.requests[reqID] = r
	c.mu.Unlock()
	if err := c.session.SendRequest(c.id, reqID, request, dispatcher); err != nil {
		c.dropRequest(r)
		return nil, api.NewRemotingError("send request", err)
	}
	c.stats.opened.Add(1)
	// A teardown that raced this registration may have snapshotted the
	// table before the entry appeared; fail the request here so it cannot
	// linger past the close.
	if c.life.state() != stateOpen {
		if r.receiveClose() {
			c.stats.forceClosed.Add(1)
		}
	}
	return r, nil
}

// sendCancelRequest forwards a cancel message while the context is open.
// Returns whether the message was actually sent; false means "not
// delivered", not "request failed".
func (c *OutboundContext[I, O]) sendCancelRequest(reqID api.RequestID, mayInterrupt bool) bool {
	if !c.life.hold() {
		return false
	}
	defer c.life.release()
	return c.session.SendCancelRequest(c.id, reqID, mayInterrupt)
}

// --- inbound protocol (api.EventSink)

// ReceiveReply delivers a reply value for a pending request.
func (c *OutboundContext[I, O]) ReceiveReply(reqID api.RequestID, payload any) {
	r := c.lookup(reqID)
	if r == nil {
		c.lateEvent(reqID, "reply")
		return
	}
	value, ok := payload.(O)
	if !ok {
		if r.receiveException(fmt.Errorf("unexpected reply payload type %T", payload)) {
			c.stats.failed.Add(1)
		}
		return
	}
	if r.receiveReply(value) {
		c.stats.replied.Add(1)
	}
}

// ReceiveException delivers a remote-execution failure.
func (c *OutboundContext[I, O]) ReceiveException(reqID api.RequestID, cause error) {
	r := c.lookup(reqID)
	if r == nil {
		c.lateEvent(reqID, "exception")
		return
	}
	if r.receiveException(cause) {
		c.stats.failed.Add(1)
	}
}

// ReceiveCancelAcknowledge delivers a cancellation acknowledgment.
func (c *OutboundContext[I, O]) ReceiveCancelAcknowledge(reqID api.RequestID) {
	r := c.lookup(reqID)
	if r == nil {
		c.lateEvent(reqID, "cancel-ack")
		return
	}
	if r.receiveCancelAcknowledge() {
		c.stats.cancelled.Add(1)
	}
}

// ReceiveCloseContext performs the one-shot teardown: snapshot the request
// table, force-fail every pending request, detach from the session, then
// run close handlers. Idempotent under repeated delivery.
func (c *OutboundContext[I, O]) ReceiveCloseContext() {
	if !c.life.transition() {
		return
	}
	// Snapshot before notifying: receiveClose removes each entry from the
	// table, and the table must not be mutated while iterating.
	c.mu.RLock()
	snapshot := make([]*outboundRequest[I, O], 0, len(c.requests))
	for _, r := range c.requests {
		snapshot = append(snapshot, r)
	}
	c.mu.RUnlock()
	for _, r := range snapshot {
		if r.receiveClose() {
			c.stats.forceClosed.Add(1)
		}
	}
	c.session.RemoveContext(c.id)
	c.life.finish()
	c.runCloseHandlers()
}

// AddCloseHandler registers fn to run once teardown completes. Handlers
// run in registration order; on an already-closed context fn runs
// synchronously.
func (c *OutboundContext[I, O]) AddCloseHandler(fn func()) {
	c.closeMu.Lock()
	if c.closeDone {
		c.closeMu.Unlock()
		fn()
		return
	}
	c.closeHandlers = append(c.closeHandlers, fn)
	c.closeMu.Unlock()
}

func (c *OutboundContext[I, O]) runCloseHandlers() {
	c.closeMu.Lock()
	handlers := c.closeHandlers
	c.closeHandlers = nil
	c.closeDone = true
	c.closeMu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

// --- user-facing handle

// userHandle enforces the lifecycle hold on every public operation.
type userHandle[I, O any] struct {
	ctx *OutboundContext[I, O]
}

var _ api.RequestContext[any, any] = (*userHandle[any, any])(nil)

// Invoke issues a request and blocks on the calling goroutine, draining a
// private pump until the future resolves.
func (h *userHandle[I, O]) Invoke(request I) (O, error) {
	var zero O
	if !h.ctx.life.hold() {
		return zero, api.ErrContextNotOpen
	}
	defer h.ctx.life.release()
	pump := NewPump()
	r, err := h.ctx.doSend(request, pump)
	if err != nil {
		return zero, err
	}
	r.future.OnComplete(func(api.FutureReply[O]) { pump.Shutdown() })
	pump.Run()
	return r.future.Get()
}

// InvokeContext behaves like Invoke but abandons the wait when ctx
// expires; the request stays pending and may complete later.
func (h *userHandle[I, O]) InvokeContext(ctx context.Context, request I) (O, error) {
	var zero O
	if !h.ctx.life.hold() {
		return zero, api.ErrContextNotOpen
	}
	defer h.ctx.life.release()
	pump := NewPump()
	r, err := h.ctx.doSend(request, pump)
	if err != nil {
		return zero, err
	}
	r.future.OnComplete(func(api.FutureReply[O]) { pump.Shutdown() })
	if err := pump.RunContext(ctx); err != nil {
		return zero, fmt.Errorf("%w: %w", api.ErrWaitInterrupted, err)
	}
	return r.future.Get()
}

// Send issues a request without blocking; completion delivery runs on the
// shared executor.
func (h *userHandle[I, O]) Send(request I) (api.FutureReply[O], error) {
	if !h.ctx.life.hold() {
		return nil, api.ErrContextNotOpen
	}
	defer h.ctx.life.release()
	r, err := h.ctx.doSend(request, h.ctx.executor)
	if err != nil {
		return nil, err
	}
	return r.future, nil
}

// Close shuts the context down. Idempotent.
func (h *userHandle[I, O]) Close() error {
	h.ctx.ReceiveCloseContext()
	return nil
}

// AddCloseHandler registers a close handler on the owning context.
func (h *userHandle[I, O]) AddCloseHandler(fn func()) {
	h.ctx.AddCloseHandler(fn)
}

// Attributes returns the context's metadata bag.
func (h *userHandle[I, O]) Attributes() api.AttrMap {
	return h.ctx.attrs
}
