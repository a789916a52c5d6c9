// Package modkit provides module wiring and core deps
package modkit

import (
	"rhat/internal/modkit/repokit"
	"rhat/internal/platform/config"
	"rhat/internal/platform/logger"
	"rhat/internal/platform/metrics"
	"rhat/internal/platform/store"
)

// Deps holds core dependencies passed to modules
// PG and CH are nil when the backend is disabled
type Deps struct {
	Log     logger.Logger
	Cfg     config.Conf
	PG      repokit.TxRunner
	CH      store.Clickhouse
	Metrics *metrics.Metrics
}

// FromStore copies the backends of an opened store into d
func (d Deps) FromStore(s *store.Store) Deps {
	if s == nil {
		return d
	}
	d.PG = s.PG
	d.CH = s.CH
	return d
}
