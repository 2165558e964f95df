// File: core/remoting/future.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Single-assignment future implementation backing api.FutureReply.

package remoting

import (
	"context"
	"fmt"
	"sync"

	"github.com/momentics/hioload-rpc/api"
)

// canceller forwards a cooperative cancellation request to the peer on
// behalf of the owning request.
type canceller interface {
	requestCancel(mayInterrupt bool) bool
}

// futureReply is the single-assignment result cell for one request.
// complete may be called from any goroutine; only the first terminal event
// is recorded.
type futureReply[O any] struct {
	mu        sync.Mutex
	done      chan struct{}
	state     api.RequestState
	value     O
	err       error
	callbacks []func(api.FutureReply[O])
	cancel    canceller
}

var _ api.FutureReply[any] = (*futureReply[any])(nil)

func newFutureReply[O any](cancel canceller) *futureReply[O] {
	return &futureReply[O]{
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// complete resolves the future; the return value reports whether this call
// won the race to be the terminal event. Registered callbacks run on the
// completing goroutine, outside the lock, in registration order.
func (f *futureReply[O]) complete(state api.RequestState, value O, err error) bool {
	f.mu.Lock()
	if f.state.Terminal() {
		f.mu.Unlock()
		return false
	}
	f.state = state
	f.value = value
	f.err = err
	cbs := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()
	for _, cb := range cbs {
		cb(f)
	}
	return true
}

// Get blocks until terminal. Reads of value/err are ordered after the
// channel close.
func (f *futureReply[O]) Get() (O, error) {
	<-f.done
	return f.value, f.err
}

// GetContext blocks like Get but abandons the wait when ctx expires. The
// request is unaffected by abandonment.
func (f *futureReply[O]) GetContext(ctx context.Context) (O, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero O
		return zero, fmt.Errorf("%w: %w", api.ErrWaitInterrupted, ctx.Err())
	}
}

// TryGet polls for the terminal outcome.
func (f *futureReply[O]) TryGet() (O, error, bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		var zero O
		return zero, nil, false
	}
}

// State returns the current request state.
func (f *futureReply[O]) State() api.RequestState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// OnComplete registers fn; if the future is already terminal, fn runs
// synchronously before OnComplete returns. Each fn runs at most once.
func (f *futureReply[O]) OnComplete(fn func(api.FutureReply[O])) {
	f.mu.Lock()
	if !f.state.Terminal() {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn(f)
}

// Cancel requests cooperative cancellation via the owning request.
func (f *futureReply[O]) Cancel(mayInterrupt bool) bool {
	if f.cancel == nil {
		return false
	}
	return f.cancel.requestCancel(mayInterrupt)
}
