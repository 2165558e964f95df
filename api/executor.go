// File: api/executor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Dispatch contracts for asynchronous completion delivery.

package api

// Dispatcher schedules a task onto some execution context. Implemented by
// the shared worker pool and by the per-call synchronous pump.
type Dispatcher interface {
	// Submit schedules task for execution.
	Submit(task func()) error
}

// Executor abstracts parallel task execution over a worker pool.
type Executor interface {
	Dispatcher

	// NumWorkers returns current number of active worker routines.
	NumWorkers() int

	// Resize adjusts the concurrency at runtime.
	Resize(newCount int)
}
