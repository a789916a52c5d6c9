package service

import (
	"context"
	"fmt"
	"time"

	"rhat/internal/core/frame"
	perr "rhat/internal/platform/errors"
	"rhat/internal/platform/logger"
	"rhat/internal/platform/metrics"
	"rhat/internal/services/cluster"
)

// DefaultPartitionSize is the number of archives per task
const DefaultPartitionSize = 10

// Options tunes a run
type Options struct {
	PartitionSize int           // archives per task; <=0 -> DefaultPartitionSize
	Timeout       time.Duration // per archive extraction budget; 0 = none
	TmpDir        string        // extraction scratch parent; "" = OS temp
	SpillDir      string        // frame partition parent; "" = OS temp
}

func (o Options) partitionSize() int {
	if o.PartitionSize <= 0 {
		return DefaultPartitionSize
	}
	return o.PartitionSize
}

// Result is the materialized output of the map stage
type Result struct {
	Frame *frame.Frame

	// Failed counts records that carry an error
	Failed int
}

// Runner maps the evaluator over an archive list on a cluster
type Runner struct {
	client  cluster.Client
	schemas *Evaluator
	opts    Options
	metrics *metrics.Metrics
}

// NewRunner returns a runner submitting to client. schemas resolves the
// column set on the coordinator before anything is submitted
func NewRunner(client cluster.Client, schemas *Evaluator, opts Options, m *metrics.Metrics) *Runner {
	if client == nil {
		panic("analyze.Runner requires a non nil cluster client")
	}
	if schemas == nil {
		panic("analyze.Runner requires a non nil evaluator")
	}
	return &Runner{client: client, schemas: schemas, opts: opts, metrics: m}
}

type pending struct {
	archives []string
	fut      *cluster.Future
	start    time.Time
}

// Run evaluates rule over archives and persists every partition into a spill
// backed frame. Transport failures of a partition turn its archives into null
// records; the caller owns the returned frame and must Close it
func (r *Runner) Run(ctx context.Context, rule string, archives []string) (*Result, error) {
	schema, err := r.schemas.Schema(rule)
	if err != nil {
		return nil, err
	}
	store, err := frame.NewDiskStore(r.opts.SpillDir)
	if err != nil {
		return nil, err
	}
	f := frame.New(schema, store)

	parts := frame.Partition(archives, r.opts.partitionSize())
	log := logger.C(ctx)
	log.Info().Int("archives", len(archives)).Int("partitions", len(parts)).Int("workers", r.client.Workers()).Msg("submitting partitions")

	queue := make([]pending, len(parts))
	for i, p := range parts {
		queue[i] = pending{
			archives: p,
			start:    time.Now(),
			fut: r.client.Submit(ctx, cluster.Task{
				ID:       fmt.Sprintf("p%05d", i),
				Rule:     rule,
				Archives: p,
				Timeout:  r.opts.Timeout,
				TmpDir:   r.opts.TmpDir,
			}),
		}
	}

	res := &Result{Frame: f}
	for i, p := range queue {
		recs, err := p.fut.Wait(ctx)
		if err == nil && len(recs) != len(p.archives) {
			err = perr.Clusterf("worker returned %d records for %d archives", len(recs), len(p.archives))
		}
		r.metrics.ObservePartition(err == nil, time.Since(p.start))
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				_ = f.Close()
				return nil, perr.Wrap(cerr, perr.ErrorCodeUnavailable, "run canceled")
			}
			log.Warn().Err(err).Int("partition", i).Int("archives", len(p.archives)).Msg("partition failed")
			recs = make([]frame.Record, len(p.archives))
			for j, a := range p.archives {
				recs[j] = frame.NullRecord(a, err)
			}
		}
		for _, rec := range recs {
			if rec.Error != nil {
				res.Failed++
			}
		}
		if err := f.Append(ctx, recs); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	log.Info().Int("rows", f.Len()).Int("failed", res.Failed).Msg("partitions collected")
	return res, nil
}
