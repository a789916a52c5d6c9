// Package pg owns the pgxpool behind the run ledger and its statement tracing
package pg

import (
	"context"
	"time"

	perr "rhat/internal/platform/errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config is the pool shape the ledger needs
type Config struct {
	URL             string
	AppName         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration

	// SlowMs flags statements at or above this many milliseconds, <0 never
	SlowMs int
}

// PG is the ledger pool plus the tracer its statements report to
type PG struct {
	Pool   *pgxpool.Pool
	Tracer QueryTracer

	slow time.Duration
}

var newPool = pgxpool.NewWithConfig

// poolConfig parses the dsn and layers the non zero knobs of cfg over it
func poolConfig(cfg Config) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, perr.WithField(perr.Wrap(err, perr.ErrorCodeInvalidArgument, "pg: parse dsn"), "SERVICE_PGSQL_DBURL")
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = min(cfg.MinConns, pc.MaxConns)
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.AppName != "" {
		if pc.ConnConfig.RuntimeParams == nil {
			pc.ConnConfig.RuntimeParams = map[string]string{}
		}
		pc.ConnConfig.RuntimeParams["application_name"] = cfg.AppName
	}
	return pc, nil
}

// Open builds the pool; tracer may be nil
func Open(ctx context.Context, cfg Config, tracer QueryTracer) (*PG, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := newPool(ctx, pc)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnavailable, "pg: new pool")
	}
	slow := time.Duration(-1)
	if cfg.SlowMs >= 0 {
		slow = time.Duration(cfg.SlowMs) * time.Millisecond
	}
	return &PG{Pool: pool, Tracer: tracer, slow: slow}, nil
}

// Observe reports one finished statement to the tracer, if any
func (p *PG) Observe(ctx context.Context, sql string, args []any, start time.Time, err error) {
	if p == nil || p.Tracer == nil {
		return
	}
	took := time.Since(start)
	p.Tracer.OnQuery(ctx, QueryEvent{
		SQL:       sql,
		Args:      args,
		ElapsedUS: took.Microseconds(),
		Err:       err,
		Slow:      p.slow >= 0 && took >= p.slow,
	})
}

// Close closes the pool
func (p *PG) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}
