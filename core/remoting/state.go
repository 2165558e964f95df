// File: core/remoting/state.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Context lifecycle state machine. State and the operation hold count are
// packed into one atomic word so an open-check plus hold acquisition is a
// single CAS, with no lock on the request path.

package remoting

import "sync/atomic"

type contextState uint32

const (
	stateOpen contextState = iota
	stateClosing
	stateClosed
)

func (s contextState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// lifecycle packs the context state (low 32 bits) and the hold count
// (high 32 bits) into one atomic word.
type lifecycle struct {
	word atomic.Uint64
}

const (
	holdUnit  = uint64(1) << 32
	stateMask = uint64(1)<<32 - 1
)

func (l *lifecycle) state() contextState {
	return contextState(l.word.Load() & stateMask)
}

func (l *lifecycle) holds() uint32 {
	return uint32(l.word.Load() >> 32)
}

// hold acquires permission to proceed while the context is open. Returns
// false once the context has left the open state. Callers must release on
// every exit path.
func (l *lifecycle) hold() bool {
	for {
		w := l.word.Load()
		if contextState(w&stateMask) != stateOpen {
			return false
		}
		if l.word.CompareAndSwap(w, w+holdUnit) {
			return true
		}
	}
}

// release drops a hold acquired with hold.
func (l *lifecycle) release() {
	l.word.Add(^(holdUnit - 1)) // two's-complement -holdUnit
}

// transition performs the one-shot open → closing transition. Concurrent
// close attempts race harmlessly: exactly one caller observes true and
// performs teardown. Holds do not block the transition; a transition must
// not wait on holds, since a blocked invocation keeps its hold for the
// whole wait and would deadlock teardown.
func (l *lifecycle) transition() bool {
	for {
		w := l.word.Load()
		if contextState(w&stateMask) != stateOpen {
			return false
		}
		if l.word.CompareAndSwap(w, w&^stateMask|uint64(stateClosing)) {
			return true
		}
	}
}

// finish marks teardown complete (closing → closed).
func (l *lifecycle) finish() {
	for {
		w := l.word.Load()
		if contextState(w&stateMask) != stateClosing {
			return
		}
		if l.word.CompareAndSwap(w, w&^stateMask|uint64(stateClosed)) {
			return
		}
	}
}
