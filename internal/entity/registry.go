package entity

import (
	"sort"
	"sync"
)

// Registry is the in-memory entity inventory. It is rebuilt by the loader
// and read concurrently by the bridge and the status API.
type Registry struct {
	mu        sync.RWMutex
	byAddress map[string]Entity
	byItem    map[int][]Entity
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byAddress: make(map[string]Entity),
		byItem:    make(map[int][]Entity),
	}
}

// Add registers an entity under its address and every item id it listens
// on. A duplicate address is replaced.
func (r *Registry) Add(e Entity) {
	if e == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byAddress[e.Address()]; ok {
		r.removeFromIndexLocked(old)
	}
	r.byAddress[e.Address()] = e
	for _, id := range e.EventIDs() {
		r.byItem[id] = append(r.byItem[id], e)
	}
}

func (r *Registry) removeFromIndexLocked(e Entity) {
	for _, id := range e.EventIDs() {
		entities := r.byItem[id]
		for i, candidate := range entities {
			if candidate == e {
				r.byItem[id] = append(entities[:i], entities[i+1:]...)
				break
			}
		}
		if len(r.byItem[id]) == 0 {
			delete(r.byItem, id)
		}
	}
}

// ByAddress returns the entity with the given bus address.
func (r *Registry) ByAddress(address string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byAddress[address]
	return e, ok
}

// ByItem returns every entity listening on an item id.
func (r *Registry) ByItem(id int) []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Entity(nil), r.byItem[id]...)
}

// Has reports whether an item id routes to any entity.
func (r *Registry) Has(id int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byItem[id]) > 0
}

// All returns every entity sorted by address.
func (r *Registry) All() []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entity, 0, len(r.byAddress))
	for _, e := range r.byAddress {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address() < out[j].Address() })
	return out
}

// ItemIDs returns every item id with at least one listener, sorted. The
// bridge registers websocket callbacks for these.
func (r *Registry) ItemIDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.byItem))
	for id := range r.byItem {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Len returns the number of registered entities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAddress)
}

// CountByType returns entity counts per platform.
func (r *Registry) CountByType() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range r.byAddress {
		counts[e.Type()]++
	}
	return counts
}
