package remoting

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	oplogging "github.com/op/go-logging"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-rpc/api"
	"github.com/momentics/hioload-rpc/fake"
	"github.com/momentics/hioload-rpc/internal/logging"
)

// forbiddenDispatcher fails the test if the engine ever schedules work on
// the shared pool during a blocking invocation.
type forbiddenDispatcher struct{ t *testing.T }

func (d *forbiddenDispatcher) Submit(func()) error {
	d.t.Error("blocking call touched the shared dispatcher")
	return nil
}
func (d *forbiddenDispatcher) NumWorkers() int { return 0 }
func (d *forbiddenDispatcher) Resize(int)     {}

// inlineDispatcher runs tasks on the submitting goroutine; stands in for
// the shared pool where pool behavior is irrelevant.
type inlineDispatcher struct{}

func (inlineDispatcher) Submit(task func()) error { task(); return nil }
func (inlineDispatcher) NumWorkers() int          { return 0 }
func (inlineDispatcher) Resize(int)               {}

func newTestContext(t *testing.T) (*OutboundContext[string, string], *fake.Session) {
	t.Helper()
	sess := fake.NewSession()
	c := NewOutboundContext[string, string]("ctx-1", sess, inlineDispatcher{})
	return c, sess
}

func TestSendRegistersBeforeTransmission(t *testing.T) {
	c, sess := newTestContext(t)
	var unregistered atomic.Int64
	sess.OnSend(func(_ api.ContextID, reqID api.RequestID) {
		if c.lookup(reqID) == nil {
			unregistered.Add(1)
		}
	})

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			_, err := c.Handle().Send("payload")
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n := unregistered.Load(); n != 0 {
		t.Errorf("%d requests transmitted before registration", n)
	}
	if got := c.Pending(); got != 32 {
		t.Errorf("Pending = %d, want 32", got)
	}
}

func TestSendReplyCompletesFutureAndClearsTable(t *testing.T) {
	c, sess := newTestContext(t)
	f, err := c.Handle().Send("hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	sent, ok := sess.LastSent()
	if !ok {
		t.Fatal("nothing transmitted")
	}
	sess.DeliverReply(c, sent.RequestID, "ok")
	v, err := f.Get()
	if v != "ok" || err != nil {
		t.Errorf("Get = %q, %v; want ok, nil", v, err)
	}
	if c.Pending() != 0 {
		t.Errorf("table still holds %d requests after completion", c.Pending())
	}
	if m := c.Metrics(); m.Replied != 1 {
		t.Errorf("Replied counter = %d, want 1", m.Replied)
	}
}

func TestDuplicateTerminalEventsAreDropped(t *testing.T) {
	c, sess := newTestContext(t)
	f, _ := c.Handle().Send("x")
	sent, _ := sess.LastSent()

	c.ReceiveReply(sent.RequestID, "first")
	c.ReceiveException(sent.RequestID, errors.New("late failure"))
	c.ReceiveReply(sent.RequestID, "second")

	v, err := f.Get()
	if v != "first" || err != nil {
		t.Errorf("Get = %q, %v; want first, nil", v, err)
	}
	if m := c.Metrics(); m.LateEvents != 2 {
		t.Errorf("LateEvents = %d, want 2", m.LateEvents)
	}
}

func TestUnknownRequestEventsAreNoOps(t *testing.T) {
	c, _ := newTestContext(t)
	c.ReceiveReply("nope", "v")
	c.ReceiveException("nope", errors.New("x"))
	c.ReceiveCancelAcknowledge("nope")
	if c.Pending() != 0 {
		t.Error("no-op events mutated the table")
	}
	if m := c.Metrics(); m.LateEvents != 3 {
		t.Errorf("LateEvents = %d, want 3", m.LateEvents)
	}
}

func TestCloseFailsAllPendingRequests(t *testing.T) {
	c, sess := newTestContext(t)
	const n = 8
	futures := make([]api.FutureReply[string], 0, n)
	for i := 0; i < n; i++ {
		f, err := c.Handle().Send("req")
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		futures = append(futures, f)
	}
	if err := c.Handle().Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for i, f := range futures {
		_, err := f.Get()
		if !errors.Is(err, api.ErrContextClosed) {
			t.Errorf("future %d error = %v, want ErrContextClosed", i, err)
		}
	}
	if c.Pending() != 0 {
		t.Errorf("table holds %d requests after close", c.Pending())
	}
	removed := sess.RemovedContexts()
	if len(removed) != 1 || removed[0] != "ctx-1" {
		t.Errorf("RemovedContexts = %v", removed)
	}
	if m := c.Metrics(); m.ForceClosed != n {
		t.Errorf("ForceClosed = %d, want %d", m.ForceClosed, n)
	}
}

func TestTeardownDuringTransmissionFailsRequest(t *testing.T) {
	c, sess := newTestContext(t)
	sess.OnSend(func(api.ContextID, api.RequestID) {
		c.ReceiveCloseContext()
	})

	f, err := c.Handle().Send("x")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	_, err = f.Get()
	if !errors.Is(err, api.ErrContextClosed) {
		t.Errorf("Get = %v, want ErrContextClosed", err)
	}
	if c.Pending() != 0 {
		t.Errorf("table holds %d requests after teardown", c.Pending())
	}
}

func TestTeardownBeforeRegistrationFailsRequest(t *testing.T) {
	c, sess := newTestContext(t)
	// Teardown runs after identifier allocation but before the request is
	// registered: its table snapshot is empty, so only the lifecycle
	// re-check after registration can fail the request.
	sess.OnOpen(func(api.ContextID) {
		c.ReceiveCloseContext()
	})

	f, err := c.Handle().Send("x")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	_, err = f.Get()
	if !errors.Is(err, api.ErrContextClosed) {
		t.Errorf("Get = %v, want ErrContextClosed", err)
	}
	if c.Pending() != 0 {
		t.Errorf("request lingered past close: Pending = %d", c.Pending())
	}
	if m := c.Metrics(); m.ForceClosed != 1 {
		t.Errorf("ForceClosed = %d, want 1", m.ForceClosed)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c, sess := newTestContext(t)
	c.ReceiveCloseContext()
	c.ReceiveCloseContext()
	_ = c.Handle().Close()
	if n := len(sess.RemovedContexts()); n != 1 {
		t.Errorf("context detached %d times, want 1", n)
	}
}

func TestOperationsFailFastWhenNotOpen(t *testing.T) {
	c, sess := newTestContext(t)
	c.ReceiveCloseContext()

	if _, err := c.Handle().Send("x"); !errors.Is(err, api.ErrContextNotOpen) {
		t.Errorf("Send = %v, want ErrContextNotOpen", err)
	}
	if _, err := c.Handle().Invoke("x"); !errors.Is(err, api.ErrContextNotOpen) {
		t.Errorf("Invoke = %v, want ErrContextNotOpen", err)
	}
	if len(sess.Sent()) != 0 {
		t.Error("request transmitted on a closed context")
	}
}

func TestCancelThenReplyRace(t *testing.T) {
	c, sess := newTestContext(t)
	f, _ := c.Handle().Send("work")
	sent, _ := sess.LastSent()

	if !f.Cancel(false) {
		t.Fatal("Cancel reported not sent on an open context")
	}
	cancels := sess.Cancels()
	if len(cancels) != 1 || cancels[0].RequestID != sent.RequestID {
		t.Fatalf("Cancels = %v", cancels)
	}

	// Reply beats the acknowledgment.
	c.ReceiveReply(sent.RequestID, "ok")
	c.ReceiveCancelAcknowledge(sent.RequestID)

	v, err := f.Get()
	if v != "ok" || err != nil {
		t.Errorf("Get = %q, %v; want ok, nil", v, err)
	}
	if f.State() != api.StateReplied {
		t.Errorf("State = %v, want replied", f.State())
	}
}

func TestCancelAcknowledged(t *testing.T) {
	c, sess := newTestContext(t)
	f, _ := c.Handle().Send("work")
	sent, _ := sess.LastSent()

	f.Cancel(true)
	c.ReceiveCancelAcknowledge(sent.RequestID)

	_, err := f.Get()
	if !errors.Is(err, api.ErrRequestCancelled) {
		t.Errorf("Get error = %v, want ErrRequestCancelled", err)
	}
	if f.State() != api.StateCancelled {
		t.Errorf("State = %v, want cancelled", f.State())
	}
	if m := c.Metrics(); m.Cancelled != 1 {
		t.Errorf("Cancelled counter = %d, want 1", m.Cancelled)
	}
}

func TestCancelAckWithoutRequestLeavesPending(t *testing.T) {
	c, sess := newTestContext(t)
	f, _ := c.Handle().Send("work")
	sent, _ := sess.LastSent()

	var buf bytes.Buffer
	logging.SetupWriter(&buf, oplogging.DEBUG)
	defer logging.SetupWriter(io.Discard, oplogging.WARNING)

	c.ReceiveCancelAcknowledge(sent.RequestID)
	if f.State() != api.StatePending {
		t.Errorf("State = %v, want pending after anomalous ack", f.State())
	}
	// A benign protocol race is trace-level diagnostics, not a warning.
	if out := buf.String(); !strings.Contains(out, "no cancel requested") {
		t.Error("anomalous ack was not logged")
	} else if !strings.Contains(out, "DEBUG") {
		t.Errorf("anomalous ack logged above trace level: %q", out)
	}
	// A real terminal event still works afterwards.
	c.ReceiveReply(sent.RequestID, "ok")
	if v, _ := f.Get(); v != "ok" {
		t.Errorf("Get = %q, want ok", v)
	}
}

func TestCancelOnClosedContextNotSent(t *testing.T) {
	c, sess := newTestContext(t)
	f, _ := c.Handle().Send("work")
	c.ReceiveCloseContext()
	if f.Cancel(false) {
		t.Error("Cancel reported sent on a closed context")
	}
	if len(sess.Cancels()) != 0 {
		t.Error("cancel message transmitted past close")
	}
}

func TestOpenAndSendFailuresSurfaceSynchronously(t *testing.T) {
	c, sess := newTestContext(t)

	sess.SetOpenError(errors.New("allocator down"))
	var remErr *api.RemotingError
	if _, err := c.Handle().Send("x"); !errors.As(err, &remErr) {
		t.Errorf("Send with open failure = %v, want RemotingError", err)
	}
	sess.SetOpenError(nil)

	sess.SetSendError(errors.New("wire down"))
	if _, err := c.Handle().Send("x"); !errors.As(err, &remErr) {
		t.Errorf("Send with send failure = %v, want RemotingError", err)
	}
	if c.Pending() != 0 {
		t.Errorf("failed send left %d table entries", c.Pending())
	}
}

func TestInvokeBlocksOnCallerWithoutSharedPool(t *testing.T) {
	sess := fake.NewSession()
	c := NewOutboundContext[string, string]("ctx-1", sess, &forbiddenDispatcher{t})

	type result struct {
		v   string
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		v, err := c.Handle().Invoke("ping")
		resCh <- result{v, err}
	}()

	// Wait for transmission, then deliver the reply from this goroutine.
	var sent fake.SentRequest
	deadline := time.Now().Add(2 * time.Second)
	for {
		var ok bool
		if sent, ok = sess.LastSent(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("request was never transmitted")
		}
		time.Sleep(time.Millisecond)
	}
	sess.DeliverReply(c, sent.RequestID, "ok")

	select {
	case r := <-resCh:
		if r.v != "ok" || r.err != nil {
			t.Errorf("Invoke = %q, %v; want ok, nil", r.v, r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Invoke did not return after reply delivery")
	}
	if c.Pending() != 0 {
		t.Errorf("table holds %d requests after invoke", c.Pending())
	}
}

func TestInvokeContextAbandonKeepsRequestPending(t *testing.T) {
	c, sess := newTestContext(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Handle().InvokeContext(ctx, "slow")
	if !errors.Is(err, api.ErrWaitInterrupted) {
		t.Fatalf("InvokeContext = %v, want ErrWaitInterrupted", err)
	}
	if c.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1 after abandoned wait", c.Pending())
	}

	// The request still completes once the reply arrives.
	sent, _ := sess.LastSent()
	sess.DeliverReply(c, sent.RequestID, "late")
	if c.Pending() != 0 {
		t.Errorf("table holds %d requests after late reply", c.Pending())
	}
}

func TestCloseHandlersRunOnceInOrder(t *testing.T) {
	c, _ := newTestContext(t)
	var order []int
	c.AddCloseHandler(func() { order = append(order, 1) })
	c.AddCloseHandler(func() { order = append(order, 2) })
	c.ReceiveCloseContext()
	c.ReceiveCloseContext()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("close handlers ran as %v, want [1 2]", order)
	}
	// Late registration runs immediately.
	ran := false
	c.AddCloseHandler(func() { ran = true })
	if !ran {
		t.Error("late close handler did not run synchronously")
	}
}

func TestAttributesBag(t *testing.T) {
	c, _ := newTestContext(t)
	attrs := c.Handle().Attributes()
	attrs.Set("k", 42)
	if v, ok := attrs.Get("k"); !ok || v != 42 {
		t.Errorf("Get = %v, %v", v, ok)
	}
	if keys := attrs.Keys(); len(keys) != 1 || keys[0] != "k" {
		t.Errorf("Keys = %v", keys)
	}
	attrs.Delete("k")
	if _, ok := attrs.Get("k"); ok {
		t.Error("key survived delete")
	}
	// Attributes survive context close.
	attrs.Set("post", "close")
	c.ReceiveCloseContext()
	if _, ok := attrs.Get("post"); !ok {
		t.Error("attribute lost on close")
	}
}

func TestReplyPayloadTypeMismatchFailsRequest(t *testing.T) {
	c, sess := newTestContext(t)
	f, _ := c.Handle().Send("x")
	sent, _ := sess.LastSent()
	c.ReceiveReply(sent.RequestID, 1234)
	_, err := f.Get()
	var remExec *api.RemoteExecutionError
	if !errors.As(err, &remExec) {
		t.Errorf("Get error = %v, want RemoteExecutionError", err)
	}
}
