package job

import "sync"

// Registry maps family names to Family instances. Registration is
// first-call-wins: re-registering a name returns the existing instance,
// which prevents two worker loops racing on the same queue.
// Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	families map[string]*Family
}

// NewRegistry creates an empty family registry.
func NewRegistry() *Registry {
	return &Registry{
		families: make(map[string]*Family),
	}
}

// Register adds a family and returns it. If a family with the same name
// is already registered, the existing instance is returned instead and
// the argument is discarded.
func (r *Registry) Register(f *Family) *Family {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.families[f.Name]; ok {
		return existing
	}
	r.families[f.Name] = f
	return f
}

// Get returns the family registered under name.
// Returns false if no family is registered.
func (r *Registry) Get(name string) (*Family, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.families[name]
	return f, ok
}

// Names returns all registered family names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.families))
	for name := range r.families {
		names = append(names, name)
	}
	return names
}
