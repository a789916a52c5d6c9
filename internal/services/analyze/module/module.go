// Package module implements the analyze service module
package module

import (
	"context"

	"rhat/internal/adapters/archive"
	"rhat/internal/core/plugins"
	"rhat/internal/modkit"
	"rhat/internal/modkit/repokit"
	"rhat/internal/platform/metrics"
	"rhat/internal/services/analyze/domain"
	"rhat/internal/services/analyze/guardrails"
	"rhat/internal/services/analyze/repo"
	"rhat/internal/services/analyze/service"
	"rhat/internal/services/cluster"
)

// Ports exposed by the analyze module
type Ports struct {
	Runner domain.RunnerPort
	Runs   domain.RunReader // nil without a ledger
}

// Module implements the analyze service module
type Module struct {
	deps  modkit.Deps
	opts  Options
	eval  *service.Evaluator
	svc   *service.Service
	ports Ports
}

var _ modkit.Module = (*Module)(nil)

// NewExtractor builds the archive extractor with its download cache
func NewExtractor(opts Options) *archive.Extractor {
	fetcher := archive.NewCachedFetcher(opts.CacheDir,
		archive.NewHTTPFetcherWithTimeout(opts.FetchTimeout),
		archive.WithRevalidate(true),
		archive.WithRetention(opts.CacheRetention, 0),
	)
	return archive.NewExtractor(fetcher, opts.MaxBytes)
}

// extractorFor builds the extractor of one evaluator
var extractorFor = func(opts Options) domain.Extractor { return NewExtractor(opts) }

// NewEvaluator builds an evaluator with its own loader and caches
func NewEvaluator(opts Options, threads int, m *metrics.Metrics) *service.Evaluator {
	return service.NewEvaluator(
		plugins.NewLoader(opts.PluginDirs...),
		extractorFor(opts),
		service.WithThreads(threads),
		service.WithMetrics(m),
	)
}

// TaskEvaluator builds the executor of one pool worker. The pool already runs
// threads_per_worker tasks at once per worker, so archives of one task are
// evaluated one after the other
func TaskEvaluator(opts Options, m *metrics.Metrics) *service.Evaluator {
	return NewEvaluator(opts, 1, m)
}

// Factory returns a cluster factory giving every local worker its own evaluator
func Factory(opts Options, m *metrics.Metrics) cluster.Factory {
	return func(string) (cluster.Executor, error) {
		return TaskEvaluator(opts, m), nil
	}
}

// New wires the analyze service on a provisioned cluster. The ledger and the
// hit export are enabled when deps carry the PG and CH backends
func New(ctx context.Context, deps modkit.Deps, client cluster.Client, opts Options) (*Module, error) {
	eval := NewEvaluator(opts, 1, deps.Metrics)
	runner := service.NewRunner(client, eval, opts.RunOptions(), deps.Metrics)

	var (
		ledger *repo.TxLedger
		hits   *repo.CHHits
		log    = deps.Log
	)
	if deps.PG != nil {
		tx := repokit.WithBeginHooks(deps.PG, repokit.StatementTimeout(opts.DBTimeout))
		ledger = repo.NewLedger(tx, repo.NewPG())
		if err := ledger.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		log.Debug().Msg("run ledger enabled")
	}
	if deps.CH != nil {
		hits = repo.NewCH(deps.CH, repo.DefaultChunk)
		if err := hits.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		log.Debug().Msg("hit export enabled")
	}

	svc := service.New(runner, ledgerPort(ledger), hitsPort(hits), service.Config{
		MaxRetries: opts.MaxRetries,
		Timeouts:   guardrails.Timeouts{DB: opts.DBTimeout},
	})

	m := &Module{deps: deps, opts: opts, eval: eval, svc: svc}
	m.ports = Ports{Runner: svc}
	if ledger != nil {
		m.ports.Runs = ledger
	}
	return m, nil
}

// typed nils must not reach the optional interfaces of the service
func ledgerPort(l *repo.TxLedger) domain.LedgerRepo {
	if l == nil {
		return nil
	}
	return l
}

func hitsPort(h *repo.CHHits) domain.HitWriter {
	if h == nil {
		return nil
	}
	return h
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "analyze" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Evaluator exposes the coordinator evaluator for schema and plugin lookups
func (m *Module) Evaluator() *service.Evaluator { return m.eval }

// Options returns the module options
func (m *Module) Options() Options { return m.opts }
