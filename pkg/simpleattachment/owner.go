package simpleattachment

import (
	"context"
	"sort"
	"sync"
)

// OwnerLookup reports whether the entity with the given id still exists.
type OwnerLookup func(ctx context.Context, ownerID string) (bool, error)

// OwnerRegistry maps each owner kind to an explicit lookup function.
type OwnerRegistry struct {
	mu      sync.RWMutex
	lookups map[OwnerType]OwnerLookup
}

// NewOwnerRegistry creates an empty registry
func NewOwnerRegistry() *OwnerRegistry {
	return &OwnerRegistry{lookups: make(map[OwnerType]OwnerLookup)}
}

// Register installs the lookup for ownerType, replacing any previous one.
func (r *OwnerRegistry) Register(ownerType OwnerType, lookup OwnerLookup) error {
	if !ownerType.IsValid() {
		return ErrUnknownOwnerType
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[ownerType] = lookup
	return nil
}

// Types returns the registered owner kinds in sorted order.
func (r *OwnerRegistry) Types() []OwnerType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]OwnerType, 0, len(r.lookups))
	for t := range r.lookups {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Exists resolves ref through its registered lookup.
func (r *OwnerRegistry) Exists(ctx context.Context, ref OwnerRef) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}
	r.mu.RLock()
	lookup, ok := r.lookups[ref.Type]
	r.mu.RUnlock()
	if !ok {
		return false, ErrUnknownOwnerType
	}
	return lookup(ctx, ref.ID)
}
