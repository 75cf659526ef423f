package conflict

import (
	"fmt"
	"sync"
)

// Registry holds conflicts parked for manual resolution, addressable by
// conflict id and by (collection, entity) pair. All methods are safe
// for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Conflict
	byEntity map[string]*Conflict
}

// NewRegistry creates an empty conflict registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[string]*Conflict),
		byEntity: make(map[string]*Conflict),
	}
}

func entityKey(collection, entityID string) string {
	return collection + "/" + entityID
}

// Park stores a conflict awaiting manual resolution. A newer conflict
// for the same entity replaces the previous one.
func (r *Registry) Park(c *Conflict) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := entityKey(c.Collection, c.EntityID)
	if prev, ok := r.byEntity[key]; ok {
		delete(r.byID, prev.ID)
	}
	r.byID[c.ID] = c
	r.byEntity[key] = c
}

// Get returns a parked conflict by id.
func (r *Registry) Get(id string) (*Conflict, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// ByEntity returns the parked conflict for a (collection, entity) pair.
func (r *Registry) ByEntity(collection, entityID string) (*Conflict, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byEntity[entityKey(collection, entityID)]
	return c, ok
}

// Remove deletes a parked conflict. It returns an error for unknown
// ids; manually resolving a conflict that does not exist is programmer
// misuse and fails synchronously.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("conflict %q not found in registry", id)
	}
	delete(r.byID, id)
	delete(r.byEntity, entityKey(c.Collection, c.EntityID))
	return nil
}

// List returns a snapshot of all parked conflicts.
func (r *Registry) List() []*Conflict {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conflict, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}

// Len returns the number of parked conflicts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
