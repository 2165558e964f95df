// File: core/remoting/attrs.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// User-visible metadata bag attached to a context. No lifecycle coupling
// to requests.

package remoting

import (
	"sync"

	"github.com/momentics/hioload-rpc/api"
)

// attrMap is a thread-safe implementation of api.AttrMap.
type attrMap struct {
	mu    sync.RWMutex
	store map[string]any
}

var _ api.AttrMap = (*attrMap)(nil)

func newAttrMap() *attrMap {
	return &attrMap{store: make(map[string]any)}
}

// Set assigns a value for a key.
func (a *attrMap) Set(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store[key] = value
}

// Get fetches a value, returning (value, exists).
func (a *attrMap) Get(key string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.store[key]
	return v, ok
}

// Delete removes a key.
func (a *attrMap) Delete(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.store, key)
}

// Keys returns all present keys.
func (a *attrMap) Keys() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	keys := make([]string, 0, len(a.store))
	for k := range a.store {
		keys = append(keys, k)
	}
	return keys
}
