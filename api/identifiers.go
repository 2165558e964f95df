// File: api/identifiers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Opaque protocol identifiers. Allocation and uniqueness are owned by the
// session layer; the engine only stores and compares them.

package api

// ContextID identifies one remote context within a session.
type ContextID string

// String returns the identifier in loggable form.
func (id ContextID) String() string { return string(id) }

// RequestID identifies one outstanding request within a context.
// Unique among pending requests of the owning context.
type RequestID string

// String returns the identifier in loggable form.
func (id RequestID) String() string { return string(id) }
