package embedded

import "sync"

// Registry tracks whether an embedded world is active.
type Registry struct {
	mu     sync.Mutex
	active bool
}

// DefaultRegistry is the process-wide registry.
var DefaultRegistry = &Registry{}

// Acquire claims the registry. It reports false if a world is already active.
func (r *Registry) Acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return false
	}
	r.active = true
	return true
}

// Release marks the registry free. Releasing a free registry is a no-op.
func (r *Registry) Release() {
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()
}

// Active reports whether a world currently holds the registry.
func (r *Registry) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
