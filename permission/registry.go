package permission

import "sync"

// Registry holds the declared permission set. Codes are unique within a
// scope; registration stops once the registry is frozen, after which
// reads are lock-cheap and the set is immutable.
type Registry struct {
	mu      sync.RWMutex
	byScope map[string]map[string]Permission
	frozen  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byScope: make(map[string]map[string]Permission)}
}

// Register adds a permission definition. Must be called before
// [Registry.Freeze].
func (r *Registry) Register(p Permission) error {
	if _, _, ok := splitCode(p.Code); !ok {
		return ErrInvalidCode
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}

	scope := r.byScope[p.Scope]
	if scope == nil {
		scope = make(map[string]Permission)
		r.byScope[p.Scope] = scope
	}

	if _, exists := scope[p.Code]; exists {
		return ErrDuplicateCode
	}

	scope[p.Code] = p
	return nil
}

// Get returns the definition for code in scope.
func (r *Registry) Get(scope, code string) (Permission, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byScope[scope][code]
	return p, ok
}

// Freeze prevents further registrations. Must be called before the
// registry is used for resolution.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered permissions across scopes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, scope := range r.byScope {
		n += len(scope)
	}
	return n
}

// Graph builds the implication graph from every registered DependsOn
// edge. Call after Freeze.
func (r *Registry) Graph() *Graph {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g := NewGraph()
	for _, scope := range r.byScope {
		for _, p := range scope {
			for _, dep := range p.DependsOn {
				g.AddEdge(p.Code, dep)
			}
		}
	}
	return g
}
