package store

import (
	"context"
	"time"

	perr "rhat/internal/platform/errors"
	"rhat/internal/platform/store/pg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxConn is what a pool and an open transaction have in common
type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// sqlQuerier runs statements on conn and reports each one to obs
type sqlQuerier struct {
	conn pgxConn
	obs  *pg.PG
}

func (q sqlQuerier) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	start := time.Now()
	ct, err := q.conn.Exec(ctx, sql, args...)
	q.obs.Observe(ctx, sql, args, start, err)
	return ct, perr.FromPostgres(err, "pg: exec")
}

func (q sqlQuerier) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	start := time.Now()
	rs, err := q.conn.Query(ctx, sql, args...)
	q.obs.Observe(ctx, sql, args, start, err)
	if err != nil {
		return nil, perr.FromPostgres(err, "pg: query")
	}
	return pgRows{rs}, nil
}

// QueryRow reports after Scan so the trace carries the scan error
func (q sqlQuerier) QueryRow(ctx context.Context, sql string, args ...any) Row {
	start := time.Now()
	return &pgRow{
		r:     q.conn.QueryRow(ctx, sql, args...),
		start: start,
		sql:   sql,
		args:  args,
		ctx:   ctx,
		obs:   q.obs,
	}
}

// pgSQL is the ledger TxRunner backed by a pool
type pgSQL struct {
	sqlQuerier
	p *pg.PG
}

func newSQL(p *pg.PG) *pgSQL {
	return &pgSQL{sqlQuerier: sqlQuerier{conn: p.Pool, obs: p}, p: p}
}

func (s *pgSQL) Ping(ctx context.Context) error {
	if s == nil || s.p == nil || s.p.Pool == nil {
		return perr.Unavailablef("pg: not open")
	}
	if err := s.p.Pool.Ping(ctx); err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "pg: ping")
	}
	return nil
}

func (s *pgSQL) Close() error { s.p.Close(); return nil }

// Tx commits when fn returns nil and rolls back otherwise, panics included
func (s *pgSQL) Tx(ctx context.Context, fn func(q RowQuerier) error) error {
	tx, err := s.p.Pool.Begin(ctx)
	if err != nil {
		return perr.FromPostgres(err, "pg: begin")
	}
	return runTx(ctx, tx, sqlQuerier{conn: tx, obs: s.p}, fn)
}

// txEnd is the part of pgx.Tx runTx settles
type txEnd interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

func runTx(ctx context.Context, tx txEnd, q RowQuerier, fn func(q RowQuerier) error) error {
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()
	if err := fn(q); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return perr.FromPostgres(tx.Commit(ctx), "pg: commit")
}

type pgRow struct {
	r     pgx.Row
	start time.Time
	sql   string
	args  []any
	ctx   context.Context
	obs   *pg.PG
}

func (x *pgRow) Scan(dst ...any) error {
	err := x.r.Scan(dst...)
	x.obs.Observe(x.ctx, x.sql, x.args, x.start, err)
	return err
}

type pgRows struct{ pgx.Rows }

func (x pgRows) Columns() []string {
	f := x.FieldDescriptions()
	out := make([]string, len(f))
	for i := range f {
		out[i] = f[i].Name
	}
	return out
}
