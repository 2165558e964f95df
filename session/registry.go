// File: session/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Sharded, thread-safe registry of open context bindings.

package session

import (
	"hash/fnv"
	"sync"

	"github.com/momentics/hioload-rpc/api"
)

// registry implements sharded storage for context bindings.
type registry struct {
	shards []*registryShard
	mask   uint32
}

type registryShard struct {
	mu       sync.RWMutex
	contexts map[api.ContextID]*binding
}

// newRegistry constructs a sharded registry with shardCount shards rounded
// up to a power of two for bitmasking.
func newRegistry(shardCount int) *registry {
	if shardCount <= 0 {
		shardCount = 16
	}
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*registryShard, m)
	for i := range shards {
		shards[i] = &registryShard{contexts: make(map[api.ContextID]*binding)}
	}
	return &registry{shards: shards, mask: m - 1}
}

func (r *registry) shard(id api.ContextID) *registryShard {
	return r.shards[fnv32(string(id))&r.mask]
}

func (r *registry) put(id api.ContextID, b *binding) {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.contexts[id] = b
}

func (r *registry) get(id api.ContextID) *binding {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.contexts[id]
}

func (r *registry) delete(id api.ContextID) {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.contexts, id)
}

// snapshot copies out all bindings; safe to iterate while the registry
// mutates underneath.
func (r *registry) snapshot() []*binding {
	var out []*binding
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, b := range sh.contexts {
			out = append(out, b)
		}
		sh.mu.RUnlock()
	}
	return out
}

// fnv32 hashes a string to uint32.
func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
