package modkit

import (
	"github.com/go-chi/chi/v5"
)

// Module is the common surface for service modules that can mount routes
// and expose ports
type Module interface {
	// MountRoutes mounts HTTP routes on the ops router
	MountRoutes(r chi.Router)
	// Ports returns a module specific port set for cross wiring
	Ports() any
	// Name returns the module name
	Name() string
}

// Builder constructs a Module from shared deps
type Builder func(Deps) (Module, error)
