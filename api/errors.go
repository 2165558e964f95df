// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error taxonomy for the request/reply engine. Transport failures surface
// synchronously from Send/Invoke; remote execution failures travel inside a
// completed future; benign protocol races are absorbed and logged, never
// returned.

package api

import (
	"errors"
	"fmt"
)

// Sentinel errors used across the library.
var (
	// ErrContextNotOpen is returned when an operation is attempted on a
	// context that is closing or closed.
	ErrContextNotOpen = errors.New("context is not open")

	// ErrContextClosed completes every request that was still pending when
	// its owning context shut down.
	ErrContextClosed = errors.New("context closed")

	// ErrSessionClosed is returned by session operations after session
	// shutdown.
	ErrSessionClosed = errors.New("session is closed")

	// ErrRequestCancelled completes a request whose cancellation was
	// acknowledged by the remote peer.
	ErrRequestCancelled = errors.New("request cancelled")

	// ErrWaitInterrupted is returned when a blocking wait is abandoned.
	// The underlying request is unaffected and may still complete later.
	ErrWaitInterrupted = errors.New("wait interrupted")

	// ErrServiceNotFound reports that a remote lookup matched no
	// registered service.
	ErrServiceNotFound = errors.New("service not found")
)

// RemotingError is a transport/session-layer failure: identifier allocation
// failed, a send failed, or the session refused the operation. It is always
// surfaced synchronously to the caller.
type RemotingError struct {
	Op    string // operation that failed, e.g. "open request"
	Cause error
}

func (e *RemotingError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("remoting: %s failed", e.Op)
	}
	return fmt.Sprintf("remoting: %s failed: %v", e.Op, e.Cause)
}

func (e *RemotingError) Unwrap() error { return e.Cause }

// NewRemotingError wraps a session-layer failure of the named operation.
func NewRemotingError(op string, cause error) *RemotingError {
	return &RemotingError{Op: op, Cause: cause}
}

// RemoteExecutionError carries a failure reported by the remote peer while
// executing a request. Distinct from RemotingError: the request reached the
// other side and failed there.
type RemoteExecutionError struct {
	Cause error
}

func (e *RemoteExecutionError) Error() string {
	return fmt.Sprintf("remote execution failed: %v", e.Cause)
}

func (e *RemoteExecutionError) Unwrap() error { return e.Cause }

// NewRemoteExecutionError wraps a remote-reported failure.
func NewRemoteExecutionError(cause error) *RemoteExecutionError {
	return &RemoteExecutionError{Cause: cause}
}

// ServiceOpenError reports a failure to open a service on the remote side.
type ServiceOpenError struct {
	Service string
	Cause   error
}

func (e *ServiceOpenError) Error() string {
	return fmt.Sprintf("open service %q: %v", e.Service, e.Cause)
}

func (e *ServiceOpenError) Unwrap() error { return e.Cause }

// NewServiceNotFound constructs the service-not-found specialization of the
// service-open failure category.
func NewServiceNotFound(service string) *ServiceOpenError {
	return &ServiceOpenError{Service: service, Cause: ErrServiceNotFound}
}
