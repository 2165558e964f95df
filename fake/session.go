// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides a predictable, controllable session collaborator for the
// request/reply engine.

package fake

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-rpc/api"
)

// SentRequest records one SendRequest observed by the fake.
type SentRequest struct {
	ContextID  api.ContextID
	RequestID  api.RequestID
	Payload    any
	Dispatcher api.Dispatcher
}

// CancelRequest records one SendCancelRequest observed by the fake.
type CancelRequest struct {
	ContextID    api.ContextID
	RequestID    api.RequestID
	MayInterrupt bool
}

// Session is a controllable implementation of api.SessionHandle.
type Session struct {
	mu        sync.Mutex
	nextReq   int
	sent      []SentRequest
	cancels   []CancelRequest
	removed   []api.ContextID
	openError error
	sendError error
	cancelOK  bool

	// onOpen and onSend, when set, run synchronously inside OpenRequest
	// and SendRequest. Used to observe or perturb engine state at
	// identifier-allocation and transmission time.
	onOpen func(api.ContextID)
	onSend func(api.ContextID, api.RequestID)
}

var _ api.SessionHandle = (*Session)(nil)

// NewSession creates a fake session that accepts everything.
func NewSession() *Session {
	return &Session{cancelOK: true}
}

// OpenRequest implements api.SessionHandle.OpenRequest with sequential
// identifiers.
func (s *Session) OpenRequest(ctxID api.ContextID) (api.RequestID, error) {
	s.mu.Lock()
	openErr := s.openError
	onOpen := s.onOpen
	var id api.RequestID
	if openErr == nil {
		s.nextReq++
		id = api.RequestID(fmt.Sprintf("req-%d", s.nextReq))
	}
	s.mu.Unlock()
	if openErr != nil {
		return "", openErr
	}
	if onOpen != nil {
		onOpen(ctxID)
	}
	return id, nil
}

// SendRequest implements api.SessionHandle.SendRequest.
func (s *Session) SendRequest(ctxID api.ContextID, reqID api.RequestID, payload any, dispatcher api.Dispatcher) error {
	s.mu.Lock()
	sendErr := s.sendError
	onSend := s.onSend
	s.mu.Unlock()
	if onSend != nil {
		onSend(ctxID, reqID)
	}
	if sendErr != nil {
		return sendErr
	}
	s.mu.Lock()
	s.sent = append(s.sent, SentRequest{ctxID, reqID, payload, dispatcher})
	s.mu.Unlock()
	return nil
}

// SendCancelRequest implements api.SessionHandle.SendCancelRequest.
func (s *Session) SendCancelRequest(ctxID api.ContextID, reqID api.RequestID, mayInterrupt bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cancelOK {
		return false
	}
	s.cancels = append(s.cancels, CancelRequest{ctxID, reqID, mayInterrupt})
	return true
}

// RemoveContext implements api.SessionHandle.RemoveContext.
func (s *Session) RemoveContext(ctxID api.ContextID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, ctxID)
}

// SetOpenError configures OpenRequest to fail.
func (s *Session) SetOpenError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openError = err
}

// SetSendError configures SendRequest to fail.
func (s *Session) SetSendError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendError = err
}

// SetCancelResult configures the result of SendCancelRequest.
func (s *Session) SetCancelResult(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelOK = ok
}

// OnOpen installs an observer invoked at identifier-allocation time.
func (s *Session) OnOpen(fn func(api.ContextID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onOpen = fn
}

// OnSend installs an observer invoked at transmission time.
func (s *Session) OnSend(fn func(api.ContextID, api.RequestID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSend = fn
}

// Sent returns the transmission history in order.
func (s *Session) Sent() []SentRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentRequest, len(s.sent))
	copy(out, s.sent)
	return out
}

// LastSent returns the most recent transmission, or ok=false.
func (s *Session) LastSent() (SentRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return SentRequest{}, false
	}
	return s.sent[len(s.sent)-1], true
}

// Cancels returns the cancel-message history in order.
func (s *Session) Cancels() []CancelRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CancelRequest, len(s.cancels))
	copy(out, s.cancels)
	return out
}

// RemovedContexts returns identifiers detached via RemoveContext.
func (s *Session) RemovedContexts() []api.ContextID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.ContextID, len(s.removed))
	copy(out, s.removed)
	return out
}

// DeliverReply routes a reply through the recorded dispatcher for the
// request, falling back to inline delivery when none was recorded.
func (s *Session) DeliverReply(sink api.EventSink, reqID api.RequestID, payload any) {
	s.dispatch(reqID, func() { sink.ReceiveReply(reqID, payload) })
}

// DeliverException routes a remote failure like DeliverReply.
func (s *Session) DeliverException(sink api.EventSink, reqID api.RequestID, cause error) {
	s.dispatch(reqID, func() { sink.ReceiveException(reqID, cause) })
}

// DeliverCancelAck routes a cancel acknowledgment like DeliverReply.
func (s *Session) DeliverCancelAck(sink api.EventSink, reqID api.RequestID) {
	s.dispatch(reqID, func() { sink.ReceiveCancelAcknowledge(reqID) })
}

func (s *Session) dispatch(reqID api.RequestID, event func()) {
	s.mu.Lock()
	var d api.Dispatcher
	for _, sr := range s.sent {
		if sr.RequestID == reqID {
			d = sr.Dispatcher
			break
		}
	}
	s.mu.Unlock()
	if d != nil {
		if err := d.Submit(event); err == nil {
			return
		}
	}
	event()
}
