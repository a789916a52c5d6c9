package service

import (
	"sort"
	"sync"

	"rhat/internal/core/frame"
	"rhat/internal/core/plugins"
	perr "rhat/internal/platform/errors"
)

// RuleGraph is the resolved evaluation plan of one rule
type RuleGraph struct {
	Rule  *plugins.Component
	Graph *plugins.Graph

	// BoolDeps are the conditions and incidents of Graph, aligned with Columns
	BoolDeps []*plugins.Component
	Columns  []string
}

// Schema declares the frame columns of the rule
func (g *RuleGraph) Schema() (frame.Schema, error) {
	return frame.NewSchema(g.Columns)
}

// GraphCache memoizes rule graphs by rule name. Entries live for the life of
// the cache
type GraphCache struct {
	mu     sync.Mutex
	graphs map[string]*RuleGraph
}

// NewGraphCache returns an empty cache
func NewGraphCache() *GraphCache {
	return &GraphCache{graphs: make(map[string]*RuleGraph)}
}

// Len returns the number of cached graphs
func (c *GraphCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.graphs)
}

// Resolve returns the cached graph of rule, building it from reg on a miss.
// Unknown names are NotFound and non-rule components are NotARule
func (c *GraphCache) Resolve(reg *plugins.Registry, rule string) (*RuleGraph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.graphs[rule]; ok {
		return g, nil
	}

	comp, err := reg.Rule(rule)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return nil, perr.WithField(perr.NotFoundf("%s is not a rule.", rule), "plugin")
		}
		return nil, err
	}
	graph, err := reg.DependencyGraph(rule, plugins.RedHatRelease)
	if err != nil {
		return nil, perr.WithOp(err, "analyze.graph")
	}

	deps := graph.Select(plugins.KindCondition, plugins.KindIncident)
	cols := columnNames(deps)
	idx := make([]int, len(deps))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return cols[idx[a]] < cols[idx[b]] })

	g := &RuleGraph{Rule: comp, Graph: graph, BoolDeps: make([]*plugins.Component, len(deps)), Columns: make([]string, len(deps))}
	for i, j := range idx {
		g.BoolDeps[i], g.Columns[i] = deps[j], cols[j]
	}
	c.graphs[rule] = g
	return g, nil
}

// columnNames uses short names, falling back to the qualified name for every
// component whose short name is shared
func columnNames(deps []*plugins.Component) []string {
	seen := make(map[string]int, len(deps))
	for _, d := range deps {
		seen[d.ShortName()]++
	}
	out := make([]string, len(deps))
	for i, d := range deps {
		if seen[d.ShortName()] > 1 {
			out[i] = d.Name
		} else {
			out[i] = d.ShortName()
		}
	}
	return out
}
