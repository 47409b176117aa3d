package payments

import "fmt"

// Registry is the validated, immutable set of configured adapters.
// Iteration order is configuration order; webhook claims depend on it.
type Registry struct {
	ordered     []Adapter
	byName      map[string]Adapter
	defaultName string
}

// NewRegistry fails if two adapters share a name or if a non-empty default
// name is not among them.
func NewRegistry(defaultName string, adapters ...Adapter) (*Registry, error) {
	r := &Registry{
		ordered:     make([]Adapter, 0, len(adapters)),
		byName:      make(map[string]Adapter, len(adapters)),
		defaultName: defaultName,
	}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		name := a.Name()
		if name == "" {
			return nil, fmt.Errorf("payment handler with empty name: %w", ErrUnregisteredHandler)
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
		}
		r.byName[name] = a
		r.ordered = append(r.ordered, a)
	}
	if defaultName != "" {
		if _, ok := r.byName[defaultName]; !ok {
			return nil, fmt.Errorf("default handler %q: %w", defaultName, ErrUnregisteredHandler)
		}
	}
	return r, nil
}

func (r *Registry) All() []Adapter {
	out := make([]Adapter, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.ordered))
	for _, a := range r.ordered {
		out = append(out, a.Name())
	}
	return out
}

func (r *Registry) ByName(name string) (Adapter, error) {
	a, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredHandler, name)
	}
	return a, nil
}

func (r *Registry) Default() (Adapter, error) {
	if r.defaultName == "" {
		return nil, ErrNoDefaultHandler
	}
	return r.ByName(r.defaultName)
}
