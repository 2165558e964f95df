//go:build !linux
// +build !linux

// File: core/concurrency/pin_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pinning stub for platforms without sched_setaffinity.

package concurrency

import "runtime"

// pinCurrentThread locks the goroutine to its OS thread; no CPU affinity.
func pinCurrentThread(workerID int) {
	runtime.LockOSThread()
}
