package store

import (
	"rhat/internal/platform/logger"
)

// Option adjusts a Store before any backend is opened
type Option func(*Store) error

// WithLogger routes backend logs through log, tagged subsystem=store
func WithLogger(log logger.Logger) Option {
	return func(s *Store) error {
		s.Log = log.With().Str("subsystem", "store").Logger()
		return nil
	}
}
