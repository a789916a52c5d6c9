package store

import (
	"context"
	"time"

	perr "rhat/internal/platform/errors"
	chx "rhat/internal/platform/store/ch"
	"rhat/internal/platform/store/pg"
)

// openPG opens pg, waits for the pool to answer, and wraps it with the sql adapter
func openPG(ctx context.Context, cfg Config, s *Store) (TxRunner, error) {
	var tracer pg.QueryTracer
	if cfg.PG.LogSQL {
		tracer = pg.Tracer(s.Log)
	}

	p, err := pg.Open(ctx, pg.Config{
		URL:             cfg.PG.URL,
		AppName:         cfg.AppName,
		MaxConns:        cfg.PG.MaxConns,
		MinConns:        cfg.PG.MinConns,
		MaxConnLifetime: cfg.PG.MaxConnLifetime,
		SlowMs:          cfg.PG.SlowQueryMs,
	}, tracer)
	if err != nil {
		return nil, err
	}

	attempts := cfg.PG.ConnectRetries
	if attempts <= 0 {
		attempts = 20
	}
	pingTimeout := cfg.PG.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}
	const (
		backoffStart   = 150 * time.Millisecond
		backoffCeiling = 2 * time.Second
	)

	var lastErr error
	backoff := backoffStart
	for range attempts {
		toCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = p.Pool.Ping(toCtx) // pool directly, no trace line
		cancel()

		if lastErr == nil {
			return newSQL(p), nil
		}
		s.Log.Debug().Err(lastErr).Dur("backoff", backoff).Msg("pg not ready")

		select {
		case <-ctx.Done():
			p.Close()
			return nil, perr.Wrap(ctx.Err(), perr.ErrorCodeUnavailable, "pg: open canceled")
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, backoffCeiling)
	}

	p.Close()
	return nil, perr.Wrapf(lastErr, perr.ErrorCodeUnavailable, "pg: ping failed after %d attempts", attempts)
}

func openCH(ctx context.Context, cfg Config) (Clickhouse, error) {
	c, err := chx.Open(ctx, chx.Config{
		URL:         cfg.CH.URL,
		Role:        cfg.CH.ClientName,
		Tag:         cfg.AppName,
		DialTimeout: cfg.CH.DialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return newCHAdapter(c), nil
}
