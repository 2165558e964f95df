// File: session/session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// In-process session: allocates identifiers, runs registered service
// handlers on the shared executor, and delivers completion events back
// through the dispatcher each request was sent with.

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/op/go-logging"
	uuid "github.com/satori/go.uuid"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-rpc/api"
	"github.com/momentics/hioload-rpc/core/concurrency"
	"github.com/momentics/hioload-rpc/core/remoting"
)

var log = logging.MustGetLogger("hioload-rpc/session")

// Option configures a Session.
type Option func(*Session)

// WithExecutor makes the session dispatch handlers on e instead of owning
// its own pool. The caller keeps ownership of e.
func WithExecutor(e api.Executor) Option {
	return func(s *Session) {
		s.executor = e
		s.ownExec = false
	}
}

// WithLeakSweep starts a background loop that every interval logs contexts
// left open and idle for longer than maxIdle. Diagnostic only; suspects
// are not closed.
func WithLeakSweep(interval, maxIdle time.Duration) Option {
	return func(s *Session) {
		s.sweepInterval = interval
		s.sweepMaxIdle = maxIdle
	}
}

// Session is an in-process implementation of api.SessionHandle.
type Session struct {
	executor api.Executor
	ownExec  bool

	svcMu    sync.RWMutex
	services map[string]HandlerFunc

	contexts *registry
	leaks    *leakTracker

	closed atomic.Bool
	cancel context.CancelFunc
	eg     *errgroup.Group

	sweepInterval time.Duration
	sweepMaxIdle  time.Duration
}

var _ api.SessionHandle = (*Session)(nil)

// New creates a session. Without WithExecutor it owns a pool sized to the
// CPU count, closed together with the session.
func New(opts ...Option) *Session {
	s := &Session{
		ownExec:  true,
		services: make(map[string]HandlerFunc),
		contexts: newRegistry(16),
		leaks:    newLeakTracker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.executor == nil {
		s.executor = concurrency.NewExecutor(0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.eg, ctx = errgroup.WithContext(ctx)
	if s.sweepInterval > 0 {
		s.eg.Go(func() error {
			s.sweepLoop(ctx)
			return nil
		})
	}
	return s
}

// Executor returns the dispatcher used for asynchronous completion
// delivery.
func (s *Session) Executor() api.Executor { return s.executor }

// Open opens an outbound context bound to the named service and returns
// its user-facing handle. The handle owner must Close it.
func Open[I, O any](s *Session, service string) (api.RequestContext[I, O], error) {
	if s.closed.Load() {
		return nil, api.NewRemotingError("open context", api.ErrSessionClosed)
	}
	h := s.serviceHandler(service)
	if h == nil {
		return nil, api.NewServiceNotFound(service)
	}
	ctxID := api.ContextID(uuid.NewV4().String())
	octx := remoting.NewOutboundContext[I, O](ctxID, s, s.executor)
	b := &binding{
		sink:     octx,
		handler:  h,
		inflight: make(map[api.RequestID]*inflight),
	}
	s.contexts.put(ctxID, b)
	s.leaks.track(ctxID, octx, octx)
	log.Debugf("opened context %s for service %q", ctxID, service)
	return octx.Handle(), nil
}

// binding joins one open context to its service handler and tracks the
// requests currently executing.
type binding struct {
	sink    api.EventSink
	handler HandlerFunc

	mu       sync.Mutex
	inflight map[api.RequestID]*inflight
}

// inflight is the server-side view of one executing request.
type inflight struct {
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

func (b *binding) addInflight(id api.RequestID, in *inflight) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inflight[id] = in
}

func (b *binding) removeInflight(id api.RequestID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, id)
}

func (b *binding) getInflight(id api.RequestID) *inflight {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inflight[id]
}

// --- api.SessionHandle

// OpenRequest allocates a request identifier.
func (s *Session) OpenRequest(ctxID api.ContextID) (api.RequestID, error) {
	if s.closed.Load() {
		return "", api.ErrSessionClosed
	}
	if s.contexts.get(ctxID) == nil {
		return "", fmt.Errorf("unknown context %s", ctxID)
	}
	return api.RequestID(uuid.NewV4().String()), nil
}

// SendRequest schedules the handler on the executor. The completion event
// is delivered through the dispatcher the request was sent with, falling
// back to inline delivery if the dispatcher refuses.
func (s *Session) SendRequest(ctxID api.ContextID, reqID api.RequestID, payload any, dispatcher api.Dispatcher) error {
	if s.closed.Load() {
		return api.ErrSessionClosed
	}
	b := s.contexts.get(ctxID)
	if b == nil {
		return fmt.Errorf("unknown context %s", ctxID)
	}
	hctx, cancel := context.WithCancel(context.Background())
	in := &inflight{cancel: cancel}
	b.addInflight(reqID, in)

	task := func() {
		defer b.removeInflight(reqID)
		defer cancel()
		// Cancelled before the handler ever ran: acknowledge without
		// doing the work.
		if in.cancelled.Load() {
			deliver(dispatcher, func() { b.sink.ReceiveCancelAcknowledge(reqID) })
			return
		}
		result, err := b.handler(hctx, payload)
		switch {
		case err != nil && in.cancelled.Load() && errors.Is(err, context.Canceled):
			deliver(dispatcher, func() { b.sink.ReceiveCancelAcknowledge(reqID) })
		case err != nil:
			deliver(dispatcher, func() { b.sink.ReceiveException(reqID, err) })
		default:
			deliver(dispatcher, func() { b.sink.ReceiveReply(reqID, result) })
		}
	}
	if err := s.executor.Submit(task); err != nil {
		b.removeInflight(reqID)
		cancel()
		return err
	}
	return nil
}

// SendCancelRequest marks the request cancelled; with mayInterrupt the
// handler's context is cancelled as well. Returns false only when the
// cancel message had nowhere to go (session closed or unknown context).
func (s *Session) SendCancelRequest(ctxID api.ContextID, reqID api.RequestID, mayInterrupt bool) bool {
	if s.closed.Load() {
		return false
	}
	b := s.contexts.get(ctxID)
	if b == nil {
		return false
	}
	if in := b.getInflight(reqID); in != nil {
		in.cancelled.Store(true)
		if mayInterrupt {
			in.cancel()
		}
	}
	// An already-finished request raced the cancel; the reply wins on the
	// engine side.
	return true
}

// RemoveContext detaches a closed context from the registry.
func (s *Session) RemoveContext(ctxID api.ContextID) {
	s.contexts.delete(ctxID)
	s.leaks.untrack(ctxID)
}

// --- lifecycle

// SweepLeaked runs one leak sweep: contexts open and idle for at least
// maxIdle are logged and, when forceClose is set, shut down. Diagnostic
// safety net on top of the owner-must-close contract.
func (s *Session) SweepLeaked(maxIdle time.Duration, forceClose bool) []api.ContextID {
	return s.leaks.sweep(maxIdle, forceClose)
}

func (s *Session) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.leaks.sweep(s.sweepMaxIdle, false)
		}
	}
}

// Close shuts the session down: every open context is torn down (failing
// its pending requests with the context-closed condition), the sweeper
// stops, and an owned executor is closed. Idempotent.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, b := range s.contexts.snapshot() {
		b.sink.ReceiveCloseContext()
	}
	s.cancel()
	_ = s.eg.Wait()
	if s.ownExec {
		if e, ok := s.executor.(*concurrency.Executor); ok {
			e.Close()
		}
	}
	return nil
}

// deliver routes an event through the request's dispatcher, inline as a
// fallback.
func deliver(d api.Dispatcher, event func()) {
	if d != nil {
		if err := d.Submit(event); err == nil {
			return
		}
	}
	event()
}
