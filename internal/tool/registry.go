package tool

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the global tool set. The active set handed to a turn is a
// snapshot; declarations are immutable for the duration of that turn.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Declaration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Declaration)}
}

// Register adds a declaration. On a name collision a platform tool replaces a
// user-declared one; a user-declared tool never displaces a platform tool.
func (r *Registry) Register(d *Declaration) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tools[d.Name]; ok {
		if existing.Platform && !d.Platform {
			return fmt.Errorf("tool %s is reserved by the platform", d.Name)
		}
	}
	r.tools[d.Name] = d
	return nil
}

// Lookup returns the declaration for name.
func (r *Registry) Lookup(name string) (*Declaration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return d, nil
}

// ActiveSet returns the declarations available to one turn, sorted by name
// for deterministic request bodies. Incognito conversations withhold
// memory-mutating tools.
func (r *Registry) ActiveSet(incognito bool) []*Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Declaration, 0, len(r.tools))
	for _, d := range r.tools {
		if incognito && d.MutatesMemory {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
