// File: core/concurrency/executor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks across worker goroutines, using lock-free local
// queues with a global channel fallback. This is the shared pool the engine
// uses for asynchronous completion delivery; blocking invocations never run
// on it (they drain their own pump instead), so the pool stays deadlock-free
// at any bounded size.

package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-rpc/api"
)

// TaskFunc is a unit of work submitted to the Executor.
type TaskFunc func()

const localQueueCapacity = 1024

// Ensure compile-time interface compliance.
var _ api.Executor = (*Executor)(nil)

// Executor manages a pool of worker goroutines.
type Executor struct {
	globalQueue chan TaskFunc
	localQueues []*LockFreeQueue[TaskFunc]
	workers     []*worker
	closeCh     chan struct{}
	closed      atomic.Bool
	next        atomic.Uint64 // round-robin local queue cursor
	pin         bool
	mu          sync.Mutex
	wg          sync.WaitGroup
}

// Option configures an Executor.
type Option func(*Executor)

// WithPinning pins each worker's OS thread to a CPU core (best effort;
// no-op on platforms without affinity support).
func WithPinning() Option {
	return func(e *Executor) { e.pin = true }
}

// NewExecutor creates a new Executor with the given number of workers.
// numWorkers <= 0 selects runtime.NumCPU().
func NewExecutor(numWorkers int, opts ...Option) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	e := &Executor{
		globalQueue: make(chan TaskFunc, numWorkers*4),
		closeCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.mu.Lock()
	e.spawnWorkers(numWorkers)
	e.mu.Unlock()
	return e
}

// spawnWorkers grows the pool to add n more workers. Caller holds e.mu.
func (e *Executor) spawnWorkers(n int) {
	base := len(e.workers)
	for i := 0; i < n; i++ {
		q := NewLockFreeQueue[TaskFunc](localQueueCapacity)
		w := &worker{
			id:         base + i,
			executor:   e,
			localQueue: q,
			stopCh:     make(chan struct{}),
			stoppedCh:  make(chan struct{}),
		}
		e.localQueues = append(e.localQueues, q)
		e.workers = append(e.workers, w)
		e.wg.Add(1)
		go w.run(&e.wg)
	}
}

// Submit schedules a task. Returns ErrExecutorClosed after Close. An
// accepted task always runs: the local enqueue happens under e.mu so a
// concurrent Resize cannot truncate the chosen queue out from under it.
func (e *Executor) Submit(task func()) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	e.mu.Lock()
	enqueued := false
	if n := len(e.localQueues); n > 0 {
		enqueued = e.localQueues[int(e.next.Add(1))%n].Enqueue(task)
	}
	e.mu.Unlock()
	if enqueued {
		return nil
	}
	select {
	case e.globalQueue <- task:
		if e.closed.Load() {
			// Close may already have drained; run leftovers here so the
			// accepted task cannot strand.
			e.drainGlobal()
		}
		return nil
	case <-e.closeCh:
		return ErrExecutorClosed
	default:
		return ErrQueueFull
	}
}

// Resize dynamically scales the worker pool. Shrinking waits for the removed
// workers to stop before truncating; each flushes its local queue on the way
// out and Submit enqueues under e.mu, so a removed queue is empty by the
// time it is dropped.
func (e *Executor) Resize(newCount int) {
	if newCount <= 0 {
		newCount = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	current := len(e.workers)
	if newCount > current {
		e.spawnWorkers(newCount - current)
		return
	}
	if newCount < current {
		for i := newCount; i < current; i++ {
			close(e.workers[i].stopCh)
		}
		for i := newCount; i < current; i++ {
			<-e.workers[i].stoppedCh
		}
		e.workers = e.workers[:newCount]
		e.localQueues = e.localQueues[:newCount]
	}
}

// Close shuts down the executor, waiting for workers to finish. Tasks
// already accepted still run: the workers flush their local queues into the
// global queue on stop, and the remainder is drained here.
func (e *Executor) Close() {
	if e.closed.CompareAndSwap(false, true) {
		close(e.closeCh)
		e.mu.Lock()
		for _, w := range e.workers {
			close(w.stopCh)
		}
		e.mu.Unlock()
		e.wg.Wait()
		e.drainGlobal()
	}
}

// drainGlobal runs tasks still sitting in the global queue once no worker
// is left to consume them.
func (e *Executor) drainGlobal() {
	for {
		select {
		case task := <-e.globalQueue:
			safeExecute(task)
		default:
			return
		}
	}
}

// NumWorkers returns active worker count.
func (e *Executor) NumWorkers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.workers)
}

// worker runs tasks from its local queue, falling back to the global queue.
// Signals stoppedCh only after full exit so Resize can truncate safely.
type worker struct {
	id         int
	executor   *Executor
	localQueue *LockFreeQueue[TaskFunc]
	stopCh     chan struct{}
	stoppedCh  chan struct{}
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer func() {
		wg.Done()
		close(w.stoppedCh)
	}()
	if w.executor.pin {
		pinCurrentThread(w.id)
	}
	for {
		select {
		case <-w.stopCh:
			w.flushLocal()
			return
		default:
			if task, ok := w.localQueue.Dequeue(); ok {
				safeExecute(task)
				continue
			}
			select {
			case task := <-w.executor.globalQueue:
				safeExecute(task)
			case <-w.stopCh:
				w.flushLocal()
				return
			default:
				time.Sleep(time.Millisecond)
			}
		}
	}
}

// flushLocal moves tasks left in the local queue onto the global queue so a
// stopping worker strands no accepted work. Must not run tasks inline: a
// Resize or Close holds e.mu while waiting for the stop, and a task calling
// Submit would deadlock on it.
func (w *worker) flushLocal() {
	for {
		task, ok := w.localQueue.Dequeue()
		if !ok {
			return
		}
		select {
		case w.executor.globalQueue <- task:
		default:
			go safeExecute(task)
		}
	}
}

// safeExecute isolates task panics from the calling loop.
func safeExecute(task TaskFunc) {
	defer func() { recover() }()
	task()
}
