package pg

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	perr "rhat/internal/platform/errors"
	kit "rhat/internal/platform/testkit"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

func TestOpen_BadURL(t *testing.T) {
	_, err := Open(context.Background(), Config{URL: "postgres://%zz"}, nil)
	kit.MustCode(t, err, perr.ErrorCodeInvalidArgument)
}

func TestOpen_PoolFailureCarriesConfig(t *testing.T) {
	kit.Serial(t)
	var seen *pgxpool.Config
	kit.Swap(t, &newPool, func(_ context.Context, c *pgxpool.Config) (*pgxpool.Pool, error) {
		seen = c
		return nil, perr.Unavailablef("refused")
	})

	_, err := Open(context.Background(), Config{
		URL:             "postgres://u:p@localhost:5432/db",
		AppName:         "rhat-test",
		MaxConns:        7,
		MinConns:        2,
		MaxConnLifetime: time.Minute,
	}, nil)
	kit.MustCode(t, err, perr.ErrorCodeUnavailable)
	if seen == nil || seen.MaxConns != 7 || seen.MinConns != 2 || seen.MaxConnLifetime != time.Minute {
		t.Fatalf("pool config not applied: %+v", seen)
	}
	if got := seen.ConnConfig.RuntimeParams["application_name"]; got != "rhat-test" {
		t.Fatalf("application_name = %q", got)
	}
}

func TestPoolConfig_MinConnsCappedByMax(t *testing.T) {
	pc, err := poolConfig(Config{URL: "postgres://u:p@localhost:5432/db", MaxConns: 2, MinConns: 5})
	if err != nil {
		t.Fatal(err)
	}
	if pc.MinConns != 2 {
		t.Fatalf("MinConns = %d, want 2", pc.MinConns)
	}
}

type recordTracer struct{ evs []QueryEvent }

func (r *recordTracer) OnQuery(_ context.Context, ev QueryEvent) { r.evs = append(r.evs, ev) }

func TestObserve_SlowThreshold(t *testing.T) {
	rec := &recordTracer{}
	fast := &PG{Tracer: rec, slow: time.Hour}
	never := &PG{Tracer: rec, slow: -1}
	always := &PG{Tracer: rec, slow: 0}

	start := time.Now().Add(-5 * time.Millisecond)
	fast.Observe(context.Background(), "SELECT 1", nil, start, nil)
	never.Observe(context.Background(), "SELECT 2", nil, start, nil)
	always.Observe(context.Background(), "SELECT 3", []any{1}, start, perr.Unavailablef("gone"))

	if len(rec.evs) != 3 {
		t.Fatalf("want 3 events, got %d", len(rec.evs))
	}
	if rec.evs[0].Slow || rec.evs[1].Slow || !rec.evs[2].Slow {
		t.Fatalf("slow flags = %v %v %v", rec.evs[0].Slow, rec.evs[1].Slow, rec.evs[2].Slow)
	}
	if rec.evs[2].ElapsedUS < 5000 || rec.evs[2].Err == nil {
		t.Fatalf("event not populated: %+v", rec.evs[2])
	}

	var nilPG *PG
	kit.MustNotPanic(t, func() { nilPG.Observe(context.Background(), "SELECT 4", nil, start, nil) })
}

func TestClose_Nil(t *testing.T) {
	var p *PG
	kit.MustNotPanic(t, p.Close)
}

func TestTracer_LogsCompactSQL(t *testing.T) {
	var buf bytes.Buffer
	root := zerolog.New(&buf).Level(zerolog.ErrorLevel)

	tr := Tracer(root)
	tr.OnQuery(context.Background(), QueryEvent{
		SQL:       "SELECT  1\n\tFROM   analysis_runs",
		ElapsedUS: 1500,
	})
	tr.OnQuery(context.Background(), QueryEvent{SQL: "SELECT pg_sleep(1)", Slow: true})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d: %s", len(lines), buf.String())
	}
	var first, second map[string]any
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(lines[1], &second); err != nil {
		t.Fatal(err)
	}
	if first["sql"] != "SELECT 1 FROM analysis_runs" || first["level"] != "info" || first["component"] != "pg" {
		t.Fatalf("unexpected first line: %v", first)
	}
	if first["elapsed_ms"] != 1.5 {
		t.Fatalf("elapsed_ms = %v", first["elapsed_ms"])
	}
	if second["level"] != "warn" || second["slow"] != true {
		t.Fatalf("slow query not flagged: %v", second)
	}
}
