package service

import (
	"context"
	"math/rand"
	"time"

	perr "rhat/internal/platform/errors"
	"rhat/internal/platform/logger"
	"rhat/internal/services/analyze/domain"
	"rhat/internal/services/analyze/guardrails"

	"github.com/google/uuid"
)

// Config holds the knobs of the bookkeeping around a run
type Config struct {
	// MaxRetries bounds attempts of ledger and export writes; <=0 -> 1
	MaxRetries int
	// RetryBase is the first backoff step; <=0 -> 500ms
	RetryBase time.Duration
	// Timeouts caps each bookkeeping write through DB
	Timeouts guardrails.Timeouts
}

// Service runs an analysis end to end: map, aggregate and the optional
// ledger and hit export
type Service struct {
	Runner *Runner
	Ledger domain.LedgerRepo // optional
	Hits   domain.HitWriter  // optional
	Cfg    Config
}

// New constructs the analysis service. ledger and hits may be nil
func New(r *Runner, ledger domain.LedgerRepo, hits domain.HitWriter, cfg Config) *Service {
	if r == nil {
		panic("analyze.Service requires a non nil runner")
	}
	return &Service{Runner: r, Ledger: ledger, Hits: hits, Cfg: cfg}
}

var _ domain.RunnerPort = (*Service)(nil)

// Analyze evaluates rule over archives and aggregates the hits. input names
// the archive list in the ledger
func (s *Service) Analyze(ctx context.Context, input string, archives []string, rule string) (domain.Report, error) {
	if _, err := s.Runner.schemas.Schema(rule); err != nil {
		return domain.Report{}, err
	}

	runID := uuid.New()
	ctx = logger.WithRun(ctx, runID.String(), rule)
	log := logger.C(ctx)
	started := time.Now()

	if s.Ledger != nil {
		err := s.retry(ctx, func(ctx context.Context) error {
			return s.Ledger.StartRun(ctx, domain.RunStart{ID: runID, Rule: rule, Input: input, Archives: len(archives)})
		})
		if err != nil {
			log.Error().Err(err).Msg("ledger start failed")
		}
	}
	finish := func(fin domain.RunFinish) {
		if s.Ledger == nil {
			return
		}
		fin.ElapsedMS = int(time.Since(started).Milliseconds())
		// the run outcome must be recorded even when ctx was canceled
		fctx := context.WithoutCancel(ctx)
		if err := s.retry(fctx, func(ctx context.Context) error { return s.Ledger.FinishRun(ctx, runID, fin) }); err != nil {
			log.Error().Err(err).Msg("ledger finish failed")
		}
	}

	res, err := s.Runner.Run(ctx, rule, archives)
	if err != nil {
		finish(domain.RunFinish{Status: domain.RunError, ErrText: err.Error()})
		return domain.Report{}, err
	}
	defer func() {
		if cerr := res.Frame.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("frame cleanup failed")
		}
	}()

	rep, err := Aggregate(ctx, res.Frame)
	if err != nil {
		finish(domain.RunFinish{Status: domain.RunError, Failed: res.Failed, ErrText: err.Error()})
		return domain.Report{}, err
	}

	if s.Hits != nil {
		var n int
		err := s.retry(ctx, func(ctx context.Context) error {
			var werr error
			n, werr = s.Hits.WriteHits(ctx, runID, rule, res.Frame)
			return werr
		})
		if err != nil {
			log.Error().Err(err).Msg("hit export failed")
		} else {
			log.Info().Int("rows", n).Msg("hits exported")
		}
	}

	finish(domain.RunFinish{Status: domain.RunOK, Failed: res.Failed, Report: &rep})
	log.Info().
		Int("archives", rep.NumArchives).
		Int("failed", res.Failed).
		Dur("elapsed", time.Since(started)).
		Msg("analysis done")
	return rep, nil
}

// retry runs fn under the DB budget with jittered exponential backoff while
// the error is retryable
func (s *Service) retry(ctx context.Context, fn func(context.Context) error) error {
	attempts := max(s.Cfg.MaxRetries, 1)
	base := s.Cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}

	var last error
	for i := range attempts {
		dctx, cancel := guardrails.ForDB(ctx, s.Cfg.Timeouts)
		err := fn(dctx)
		cancel()
		if err == nil {
			return nil
		}
		last = err

		if !perr.Retryable(err) {
			return last
		}
		if i == attempts-1 {
			break
		}

		// capped at 10s
		d := min(base<<i, 10*time.Second)
		j := d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
		if se := sleepCtx(ctx, j); se != nil {
			return se
		}
	}
	return last
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
