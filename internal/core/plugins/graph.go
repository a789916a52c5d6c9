package plugins

import (
	"sort"

	perr "rhat/internal/platform/errors"
)

// Graph is the transitive closure of one or more roots, in evaluation order
type Graph struct {
	nodes map[string]*Component
	order []string
}

// Len returns the node count
func (g *Graph) Len() int { return len(g.order) }

// Order returns names in dependency order (dependencies first)
func (g *Graph) Order() []string { return append([]string(nil), g.order...) }

// Names returns node names sorted alphabetically
func (g *Graph) Names() []string {
	out := g.Order()
	sort.Strings(out)
	return out
}

// Component returns a node by name
func (g *Graph) Component(name string) (*Component, bool) {
	c, ok := g.nodes[name]
	return c, ok
}

// Has reports whether name is part of the graph
func (g *Graph) Has(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Select returns the nodes of the given kinds, sorted by name
func (g *Graph) Select(kinds ...Kind) []*Component {
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []*Component
	for _, n := range g.order {
		if c := g.nodes[n]; want[c.Kind] {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DependencyGraph builds the union of the dependency graphs of roots.
// Unknown required names and cycles are errors; unknown optional names are dropped
func (r *Registry) DependencyGraph(roots ...string) (*Graph, error) {
	const (
		white = iota
		grey
		black
	)
	g := &Graph{nodes: make(map[string]*Component, 16)}
	color := make(map[string]int, 16)

	var visit func(name, parent string, optional bool) error
	visit = func(name, parent string, optional bool) error {
		switch color[name] {
		case grey:
			return perr.Newf(perr.ErrorCodeValidation, "plugins: dependency cycle through %s", name)
		case black:
			return nil
		}
		c, err := r.Get(name)
		if err != nil {
			if optional {
				return nil
			}
			if parent != "" {
				return perr.WithOp(perr.Wrapf(err, perr.ErrorCodeNotFound, "plugins: %s requires %s", parent, name), "plugins.graph")
			}
			return err
		}
		color[name] = grey

		req := append([]string(nil), c.Requires...)
		opt := append([]string(nil), c.Optional...)
		sort.Strings(req)
		sort.Strings(opt)
		for _, d := range req {
			if err := visit(d, name, false); err != nil {
				return err
			}
		}
		for _, d := range opt {
			if err := visit(d, name, true); err != nil {
				return err
			}
		}

		color[name] = black
		g.nodes[name] = c
		g.order = append(g.order, name)
		return nil
	}

	sorted := append([]string(nil), roots...)
	sort.Strings(sorted)
	for _, root := range sorted {
		if err := visit(root, "", false); err != nil {
			return nil, err
		}
	}
	return g, nil
}
