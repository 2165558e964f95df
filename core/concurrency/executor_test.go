package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutorRunsSubmittedTasks(t *testing.T) {
	e := NewExecutor(4)
	defer e.Close()

	const n = 500
	var count atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		err := e.Submit(func() {
			count.Add(1)
			wg.Done()
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()
	if got := count.Load(); got != n {
		t.Errorf("executed %d tasks, want %d", got, n)
	}
}

func TestExecutorResizeLosesNoTasks(t *testing.T) {
	e := NewExecutor(8)
	defer e.Close()

	// Sustained submit load interleaved with repeated shrink/grow cycles:
	// a worker that exits without flushing its local queue, or a truncation
	// that orphans a queue, shows up as accepted tasks that never execute.
	var executed atomic.Int64
	accepted := 0
	for round := 0; round < 100; round++ {
		for i := 0; i < 200; i++ {
			if e.Submit(func() { executed.Add(1) }) == nil {
				accepted++
			}
		}
		if round%2 == 0 {
			e.Resize(1)
		} else {
			e.Resize(8)
		}
	}
	deadline := time.Now().Add(10 * time.Second)
	for executed.Load() < int64(accepted) {
		if time.Now().After(deadline) {
			t.Fatalf("accepted %d tasks but only %d executed", accepted, executed.Load())
		}
		time.Sleep(time.Millisecond)
	}
	if e.NumWorkers() != 8 {
		t.Errorf("NumWorkers = %d, want 8", e.NumWorkers())
	}
}

func TestExecutorCloseRunsAcceptedTasks(t *testing.T) {
	e := NewExecutor(2)
	var executed atomic.Int64
	accepted := 0
	for i := 0; i < 2000; i++ {
		if e.Submit(func() { executed.Add(1) }) == nil {
			accepted++
		}
	}
	e.Close()
	deadline := time.Now().Add(5 * time.Second)
	for executed.Load() < int64(accepted) {
		if time.Now().After(deadline) {
			t.Fatalf("accepted %d tasks but only %d executed after Close", accepted, executed.Load())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestExecutorSubmitAfterClose(t *testing.T) {
	e := NewExecutor(1)
	e.Close()
	if err := e.Submit(func() {}); err != ErrExecutorClosed {
		t.Errorf("Submit after Close = %v, want ErrExecutorClosed", err)
	}
}

func TestExecutorTaskPanicIsIsolated(t *testing.T) {
	e := NewExecutor(1)
	defer e.Close()

	if err := e.Submit(func() { panic("boom") }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := make(chan struct{})
	if err := e.Submit(func() { close(done) }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive task panic")
	}
}
