// File: core/remoting/pump.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-call synchronous pump. A blocking invocation creates one pump, asks
// the session to deliver its completion events onto it, and then drains the
// pump on its own goroutine until the future resolves. The shared worker
// pool is never occupied by a blocked caller, so a bounded pool cannot
// deadlock on replies. Safe under recursion: a callback that issues a
// nested blocking call gets a fresh pump of its own.

package remoting

import (
	"context"
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-rpc/api"
)

// Pump is a single-consumer task queue drained by the calling goroutine.
type Pump struct {
	mu    sync.Mutex
	cond  *sync.Cond
	tasks *queue.Queue

	// shut: drain remaining tasks, then the run loop exits.
	shut bool
	// detached: the run loop has exited (shutdown or abandoned wait);
	// submitted tasks now run on the submitting goroutine so no delivery
	// is ever lost.
	detached bool
}

var _ api.Dispatcher = (*Pump)(nil)

// NewPump creates an empty pump.
func NewPump() *Pump {
	p := &Pump{tasks: queue.New()}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Submit schedules task onto the pump. Never fails: once the drain loop is
// gone the task executes synchronously on the caller.
func (p *Pump) Submit(task func()) error {
	p.mu.Lock()
	if p.detached {
		p.mu.Unlock()
		task()
		return nil
	}
	p.tasks.Add(task)
	p.cond.Signal()
	p.mu.Unlock()
	return nil
}

// Shutdown tells the drain loop to stop once queued tasks are exhausted.
// Typically invoked from a completion callback of the awaited future.
func (p *Pump) Shutdown() {
	p.mu.Lock()
	p.shut = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Run drains the queue on the calling goroutine until Shutdown. Tasks run
// with the pump unlocked, so a task may submit further tasks or shut the
// pump down.
func (p *Pump) Run() {
	p.mu.Lock()
	for {
		for p.tasks.Length() == 0 && !p.shut {
			p.cond.Wait()
		}
		if p.tasks.Length() > 0 {
			task := p.tasks.Remove().(func())
			p.mu.Unlock()
			task()
			p.mu.Lock()
			continue
		}
		p.detached = true
		p.mu.Unlock()
		return
	}
}

// RunContext drains like Run but abandons the wait when ctx expires,
// returning ctx's error. Queued tasks are executed before returning; the
// associated request stays registered and completes later through the
// detached-submit path.
func (p *Pump) RunContext(ctx context.Context) error {
	if ctx.Done() == nil {
		p.Run()
		return nil
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-stop:
		}
	}()
	defer close(stop)

	p.mu.Lock()
	for {
		for p.tasks.Length() == 0 && !p.shut && ctx.Err() == nil {
			p.cond.Wait()
		}
		if p.tasks.Length() > 0 {
			task := p.tasks.Remove().(func())
			p.mu.Unlock()
			task()
			p.mu.Lock()
			continue
		}
		shut := p.shut
		p.detached = true
		p.mu.Unlock()
		if shut {
			return nil
		}
		return ctx.Err()
	}
}
