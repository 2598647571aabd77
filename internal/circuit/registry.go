package circuit

import (
	"sort"
	"sync"
	"time"
)

// Registry is the in-memory source of truth mapping circuit names to
// their records. The map itself is guarded by an RWMutex; each entry
// carries its own mutex so circuits for independent dependencies never
// contend with each other on the hot path.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu sync.Mutex
	c  *Circuit

	// hydrated is set once persisted state has been loaded (or load has
	// been attempted) for this circuit. Guarded by mu.
	hydrated bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// getOrCreate returns the entry for name, creating it in CLOSED state
// with zero counters on first reference. Creation is idempotent.
func (r *Registry) getOrCreate(name string, now time.Time) *entry {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		return e
	}
	e = &entry{c: newCircuit(name, now)}
	r.entries[name] = e
	return e
}

// get returns the entry for name, or nil if it was never referenced.
func (r *Registry) get(name string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name]
}

// names returns all known circuit names in lexical order.
func (r *Registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of circuits currently tracked.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
