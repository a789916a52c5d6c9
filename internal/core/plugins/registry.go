package plugins

import (
	"sort"
	"sync"

	perr "rhat/internal/platform/errors"
)

// Registry indexes components by qualified name
type Registry struct {
	mu    sync.RWMutex
	comps map[string]*Component
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{comps: make(map[string]*Component, 64)}
}

// Register adds components; duplicate names and malformed components are rejected
func (r *Registry) Register(cs ...*Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cs {
		if c == nil || c.Name == "" {
			return perr.InvalidArgf("plugins: component without a name")
		}
		if !c.Kind.Valid() {
			return perr.WithField(perr.InvalidArgf("plugins: %s has unknown kind %q", c.Name, c.Kind), "kind")
		}
		if c.Eval == nil {
			return perr.InvalidArgf("plugins: %s has no evaluator", c.Name)
		}
		if _, dup := r.comps[c.Name]; dup {
			return perr.Newf(perr.ErrorCodeDuplicateKey, "plugins: %s registered twice", c.Name)
		}
		r.comps[c.Name] = c
	}
	return nil
}

// Get resolves a component by qualified name
func (r *Registry) Get(name string) (*Component, error) {
	r.mu.RLock()
	c, ok := r.comps[name]
	r.mu.RUnlock()
	if !ok {
		return nil, perr.NotFoundf("plugins: %s not found", name)
	}
	return c, nil
}

// Rule resolves name and checks that it is a rule
func (r *Registry) Rule(name string) (*Component, error) {
	c, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if !c.IsRule() {
		return nil, perr.NotARulef("%s is not a rule.", name)
	}
	return c, nil
}

// List returns components of the given kinds (all when none given), sorted by name
func (r *Registry) List(kinds ...Kind) []*Component {
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	r.mu.RLock()
	out := make([]*Component, 0, len(r.comps))
	for _, c := range r.comps {
		if len(want) == 0 || want[c.Kind] {
			out = append(out, c)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered components
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.comps)
}
