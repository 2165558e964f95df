// File: session/leak.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Diagnostic leak tracking. The primary contract is owner-must-close; this
// tracker is a best-effort safety net that surfaces contexts left open, and
// is never relied on for correctness.

package session

import (
	"sync"
	"time"

	"github.com/momentics/hioload-rpc/api"
)

// contextStatus is the view of an open context the tracker needs.
type contextStatus interface {
	Pending() int
	Closed() bool
}

type leakEntry struct {
	opened time.Time
	status contextStatus
	sink   api.EventSink
}

type leakTracker struct {
	mu      sync.Mutex
	entries map[api.ContextID]leakEntry
}

func newLeakTracker() *leakTracker {
	return &leakTracker{entries: make(map[api.ContextID]leakEntry)}
}

func (t *leakTracker) track(id api.ContextID, status contextStatus, sink api.EventSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[id] = leakEntry{opened: time.Now(), status: status, sink: sink}
}

func (t *leakTracker) untrack(id api.ContextID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// sweep returns contexts that have been open longer than maxIdle with no
// pending requests, logging each as a suspected leak. When forceClose is
// set, each suspect is also shut down through its event sink, which
// detaches it from the session.
func (t *leakTracker) sweep(maxIdle time.Duration, forceClose bool) []api.ContextID {
	now := time.Now()
	t.mu.Lock()
	type suspect struct {
		id   api.ContextID
		sink api.EventSink
	}
	var suspects []suspect
	for id, e := range t.entries {
		if e.status.Closed() || e.status.Pending() > 0 {
			continue
		}
		if now.Sub(e.opened) >= maxIdle {
			suspects = append(suspects, suspect{id, e.sink})
		}
	}
	t.mu.Unlock()

	ids := make([]api.ContextID, 0, len(suspects))
	for _, s := range suspects {
		log.Warningf("possibly leaked context %s: open with no activity for over %v", s.id, maxIdle)
		ids = append(ids, s.id)
		if forceClose {
			s.sink.ReceiveCloseContext()
		}
	}
	return ids
}
