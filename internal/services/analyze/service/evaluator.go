// Package service evaluates rules over archive lists and aggregates the hits
package service

import (
	"context"

	"rhat/internal/adapters/archive"
	"rhat/internal/core/frame"
	"rhat/internal/core/plugins"
	perr "rhat/internal/platform/errors"
	"rhat/internal/platform/logger"
	"rhat/internal/platform/metrics"
	"rhat/internal/services/analyze/domain"
	"rhat/internal/services/analyze/guardrails"
	"rhat/internal/services/cluster"

	"fortio.org/safecast"
	"golang.org/x/sync/errgroup"
)

// Evaluator turns archives into hit records. It owns the registry loader and
// the graph cache; give each worker its own
type Evaluator struct {
	loader  *plugins.Loader
	graphs  *GraphCache
	extract domain.Extractor
	metrics *metrics.Metrics
	threads int
}

// EvaluatorOption configures an Evaluator
type EvaluatorOption func(*Evaluator)

// WithThreads bounds concurrent archive evaluations within a partition
func WithThreads(n int) EvaluatorOption {
	return func(e *Evaluator) { e.threads = max(n, 1) }
}

// WithMetrics counts archive outcomes
func WithMetrics(m *metrics.Metrics) EvaluatorOption {
	return func(e *Evaluator) { e.metrics = m }
}

// NewEvaluator returns an evaluator over the components of loader
func NewEvaluator(loader *plugins.Loader, ex domain.Extractor, opts ...EvaluatorOption) *Evaluator {
	if loader == nil {
		panic("analyze.Evaluator requires a non nil plugin loader")
	}
	if ex == nil {
		panic("analyze.Evaluator requires a non nil extractor")
	}
	e := &Evaluator{loader: loader, graphs: NewGraphCache(), extract: ex, threads: 1}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Graphs exposes the graph cache
func (e *Evaluator) Graphs() *GraphCache { return e.graphs }

// Resolve loads the registry on first use and returns the cached graph of rule
func (e *Evaluator) Resolve(rule string) (*RuleGraph, error) {
	reg, err := e.loader.Registry()
	if err != nil {
		return nil, perr.WithOp(err, "analyze.load")
	}
	return e.graphs.Resolve(reg, rule)
}

// Schema returns the frame schema of rule
func (e *Evaluator) Schema(rule string) (frame.Schema, error) {
	g, err := e.Resolve(rule)
	if err != nil {
		return frame.Schema{}, err
	}
	return g.Schema()
}

// Evaluate extracts one archive, runs the rule graph against it and reduces
// the results to a record. Only extraction is bounded by opts.Timeout
func (e *Evaluator) Evaluate(ctx context.Context, ref, rule string, opts domain.EvalOptions) (frame.Record, error) {
	g, err := e.Resolve(rule)
	if err != nil {
		return frame.Record{}, err
	}

	ectx, cancel := guardrails.ForExtract(ctx, guardrails.Timeouts{Extract: opts.Timeout})
	ex, err := e.extract.Extract(ectx, ref, archive.Options{TmpDir: opts.TmpDir})
	cancel()
	if err != nil {
		return frame.Record{}, err
	}
	defer func() { _ = ex.Close() }()

	b := plugins.NewBroker(ex.Root)
	if err := plugins.Run(ctx, g.Graph, b); err != nil {
		return frame.Record{}, perr.Wrapf(err, perr.ErrorCodeUnavailable, "evaluate %s: canceled", ref)
	}
	for name, xerr := range b.Exceptions {
		logger.C(ctx).Debug().Err(xerr).Str("archive", ref).Str("component", name).Msg("component failed")
	}
	return reduce(g, ref, b), nil
}

// reduce flattens broker results into a record
func reduce(g *RuleGraph, ref string, b *plugins.Broker) frame.Record {
	rec := frame.Record{
		Archive: ref,
		Hits:    make(map[string]*bool, len(g.Columns)),
		Major:   frame.UnknownVersion,
		Minor:   frame.UnknownVersion,
	}
	for i, d := range g.BoolDeps {
		if v, ok := b.Get(d.Name); ok {
			if bv, ok := v.(bool); ok {
				rec.Hits[g.Columns[i]] = frame.Bool(bv)
				continue
			}
		}
		rec.Hits[g.Columns[i]] = nil
	}

	if v, ok := b.Get(g.Rule.Name); ok {
		if resp, ok := v.(*plugins.Response); ok {
			rec.Key = frame.Str(resp.Key)
			rec.Type = frame.Str(resp.TypeName())
			rec.MakeFail = resp.IsFail()
		}
	}

	if v, ok := b.Get(plugins.RedHatRelease); ok {
		if rel, ok := v.(plugins.Release); ok {
			rec.Major = version(rel.Major)
			rec.Minor = version(rel.Minor)
		}
	}
	return rec
}

// version narrows a release number, mapping anything outside int8 to unknown
func version(n int) int8 {
	v, err := safecast.Conv[int8](n)
	if err != nil || v < 0 {
		return frame.UnknownVersion
	}
	return v
}

// EvaluatePartition evaluates archives concurrently and returns one record per
// archive in input order. Per archive failures become null records; only
// cancellation of ctx fails the partition
func (e *Evaluator) EvaluatePartition(ctx context.Context, archives []string, rule string, opts domain.EvalOptions) ([]frame.Record, error) {
	out := make([]frame.Record, len(archives))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.threads)
	for i, ref := range archives {
		g.Go(func() error {
			rec, err := e.Evaluate(gctx, ref, rule, opts)
			if err != nil {
				if cerr := ctx.Err(); cerr != nil {
					return cerr
				}
				logger.C(ctx).Warn().Err(err).Str("archive", ref).Msg("archive failed")
				e.metrics.ObserveArchive(false)
				out[i] = frame.NullRecord(ref, err)
				return nil
			}
			e.metrics.ObserveArchive(true)
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnavailable, "partition canceled")
	}
	return out, nil
}

// Execute serves a cluster task
func (e *Evaluator) Execute(ctx context.Context, t cluster.Task) ([]frame.Record, error) {
	return e.EvaluatePartition(ctx, t.Archives, t.Rule, domain.EvalOptions{Timeout: t.Timeout, TmpDir: t.TmpDir})
}

var _ cluster.Executor = (*Evaluator)(nil)
