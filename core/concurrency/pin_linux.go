//go:build linux
// +build linux

// File: core/concurrency/pin_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux thread pinning via sched_setaffinity, pure Go.

package concurrency

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinCurrentThread binds the calling OS thread to one CPU core, chosen by
// worker id modulo the CPU count. Best effort; failures are ignored.
func pinCurrentThread(workerID int) {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(workerID % runtime.NumCPU())
	_ = unix.SchedSetaffinity(0, &set)
}
