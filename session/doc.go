// File: session/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package session provides an in-process implementation of the session
// collaborator: identifier allocation, dispatch of requests to registered
// local service handlers over the shared executor, and delivery of
// completion events back into the engine.
//
// It is a reference api.SessionHandle for embedding and testing, not a
// network transport; framing and connection management belong to real
// transport sessions built on the same contracts.
package session
