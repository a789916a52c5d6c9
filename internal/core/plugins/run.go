package plugins

import (
	"context"
	"fmt"

	perr "rhat/internal/platform/errors"
)

// Broker carries the evaluation context for one archive: the content root
// and every value produced so far
type Broker struct {
	Root       string
	results    map[string]any
	Exceptions map[string]error
}

// NewBroker returns a broker rooted at an extracted archive tree
func NewBroker(root string) *Broker {
	return &Broker{
		Root:       root,
		results:    make(map[string]any, 32),
		Exceptions: make(map[string]error),
	}
}

// Get returns a produced value
func (b *Broker) Get(name string) (any, bool) {
	v, ok := b.results[name]
	return v, ok
}

// Has reports whether name produced a value
func (b *Broker) Has(name string) bool {
	_, ok := b.results[name]
	return ok
}

// Set stores a value; nil values are not stored
func (b *Broker) Set(name string, v any) {
	if v != nil {
		b.results[name] = v
	}
}

// Run evaluates g against b in dependency order. Components whose required
// dependencies are missing are skipped; component errors and panics are
// recorded in b.Exceptions and the component is treated as missing. Only
// ctx cancellation stops the walk
func Run(ctx context.Context, g *Graph, b *Broker) error {
	for _, name := range g.order {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := g.nodes[name]

		deps := make(Deps, len(c.Requires)+len(c.Optional))
		ready := true
		for _, d := range c.Requires {
			v, ok := b.results[d]
			if !ok {
				ready = false
				break
			}
			deps[d] = v
		}
		if !ready {
			continue
		}
		for _, d := range c.Optional {
			if v, ok := b.results[d]; ok {
				deps[d] = v
			}
		}

		v, err := evalSafe(c, b, deps)
		if err != nil {
			b.Exceptions[name] = err
			continue
		}
		b.Set(name, v)
	}
	return nil
}

func evalSafe(c *Component, b *Broker, deps Deps) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, perr.PanicErrf("plugins: %s panicked: %v", c.Name, r)
		}
	}()
	v, err = c.Eval(b, deps)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name, err)
	}
	return v, nil
}
