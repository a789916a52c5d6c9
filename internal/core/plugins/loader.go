package plugins

import (
	"sync"
	"sync/atomic"
)

// Loader builds a registry once: built-ins, the embedded packs, then every
// extra pack directory in order. Later calls return the same registry
type Loader struct {
	dirs   []string
	once   sync.Once
	loaded atomic.Bool
	reg    *Registry
	err    error
}

// NewLoader returns a loader for the embedded packs plus dirs
func NewLoader(dirs ...string) *Loader {
	return &Loader{dirs: append([]string(nil), dirs...)}
}

// Registry loads on first use and returns the loaded registry
func (l *Loader) Registry() (*Registry, error) {
	l.once.Do(func() {
		l.reg, l.err = l.load()
		l.loaded.Store(true)
	})
	return l.reg, l.err
}

// Loaded reports whether a load has happened
func (l *Loader) Loaded() bool { return l.loaded.Load() }

func (l *Loader) load() (*Registry, error) {
	reg := NewRegistry()
	if err := reg.Register(Builtins()...); err != nil {
		return nil, err
	}
	def, err := Default()
	if err != nil {
		return nil, err
	}
	if err := reg.Register(def...); err != nil {
		return nil, err
	}
	for _, d := range l.dirs {
		cs, err := LoadDir(d)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(cs...); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
