package logic

import "sync"

// Registry holds the ordered list of registered units. Units are
// distinguished by reference; registration order is execution order.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	units []*Unit
	byRef map[*Unit]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byRef: make(map[*Unit]struct{})}
}

// Add appends units in order. A nil unit or a reference already present
// (including within the batch) is a configuration error and nothing is
// added.
func (r *Registry) Add(units ...*Unit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[*Unit]struct{}, len(units))
	for _, u := range units {
		if u == nil {
			return ErrNilUnit
		}
		if _, ok := r.byRef[u]; ok {
			return ErrDuplicateUnit
		}
		if _, ok := seen[u]; ok {
			return ErrDuplicateUnit
		}
		seen[u] = struct{}{}
	}

	for _, u := range units {
		r.units = append(r.units, u)
		r.byRef[u] = struct{}{}
	}
	return nil
}

// Merge appends only units not already present by identity, returning
// the units actually added. Safe for dynamic/incremental loading where
// the same bundle may arrive more than once.
func (r *Registry) Merge(units ...*Unit) ([]*Unit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var added []*Unit
	for _, u := range units {
		if u == nil {
			return nil, ErrNilUnit
		}
		if _, ok := r.byRef[u]; ok {
			continue
		}
		r.units = append(r.units, u)
		r.byRef[u] = struct{}{}
		added = append(added, u)
	}
	return added, nil
}

// Replace swaps the registry contents, returning the units removed.
// Future matching uses only the new units; callers keep in-flight work
// from prior units running to completion.
func (r *Registry) Replace(units ...*Unit) ([]*Unit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[*Unit]struct{}, len(units))
	for _, u := range units {
		if u == nil {
			return nil, ErrNilUnit
		}
		if _, ok := seen[u]; ok {
			return nil, ErrDuplicateUnit
		}
		seen[u] = struct{}{}
	}

	var removed []*Unit
	for _, u := range r.units {
		if _, ok := seen[u]; !ok {
			removed = append(removed, u)
		}
	}

	r.units = make([]*Unit, len(units))
	copy(r.units, units)
	r.byRef = seen
	return removed, nil
}

// Snapshot returns the units in registration order.
func (r *Registry) Snapshot() []*Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Unit, len(r.units))
	copy(out, r.units)
	return out
}

// Contains reports whether the unit is currently registered.
func (r *Registry) Contains(u *Unit) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byRef[u]
	return ok
}

// Len returns the number of registered units.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.units)
}
