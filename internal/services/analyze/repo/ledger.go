// Package repo provides the run ledger and hit export repositories
package repo

import (
	"context"
	"encoding/json"

	"rhat/internal/modkit/repokit"
	perr "rhat/internal/platform/errors"
	strs "rhat/internal/platform/strings"
	"rhat/internal/services/analyze/domain"

	"github.com/google/uuid"
)

type pgLedger struct{ q repokit.Queryer }

// NewPG binds the Postgres ledger to whatever queryer a transaction hands it
func NewPG() repokit.Binder[Ledger] {
	return repokit.BindFunc[Ledger](func(q repokit.Queryer) Ledger { return &pgLedger{q: q} })
}

// Ledger is the sql surface of the run ledger
type Ledger interface {
	EnsureSchema(ctx context.Context) error
	StartRun(ctx context.Context, run domain.RunStart) error
	FinishRun(ctx context.Context, id uuid.UUID, fin domain.RunFinish) error
	GetRun(ctx context.Context, id uuid.UUID) (domain.RunRow, error)
}

const ledgerDDL = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	id          uuid PRIMARY KEY,
	rule        text NOT NULL,
	input       text NOT NULL DEFAULT '',
	archives    integer NOT NULL DEFAULT 0,
	status      text NOT NULL,
	failed      integer NOT NULL DEFAULT 0,
	report      jsonb,
	err_text    text,
	elapsed_ms  integer,
	started_at  timestamptz NOT NULL DEFAULT now(),
	finished_at timestamptz
)`

func (s *pgLedger) EnsureSchema(ctx context.Context) error {
	_, err := s.q.Exec(ctx, ledgerDDL)
	return err
}

// StartRun inserts the run or resets a row left behind under the same id
func (s *pgLedger) StartRun(ctx context.Context, run domain.RunStart) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO analysis_runs (id, rule, input, archives, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			rule = EXCLUDED.rule,
			input = EXCLUDED.input,
			archives = EXCLUDED.archives,
			status = EXCLUDED.status,
			failed = 0,
			report = NULL,
			err_text = NULL,
			elapsed_ms = NULL,
			started_at = now(),
			finished_at = NULL`,
		run.ID, run.Rule, run.Input, run.Archives, string(domain.RunRunning))
	return err
}

func (s *pgLedger) FinishRun(ctx context.Context, id uuid.UUID, fin domain.RunFinish) error {
	var report []byte
	if fin.Report != nil {
		b, err := json.Marshal(fin.Report)
		if err != nil {
			return perr.Wrap(err, perr.ErrorCodeInvalidArgument, "ledger: encode report")
		}
		report = b
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE analysis_runs SET
			status = $2,
			failed = $3,
			report = $4::jsonb,
			err_text = $5,
			elapsed_ms = $6,
			finished_at = now()
		WHERE id = $1`,
		id, string(fin.Status), fin.Failed, report, strs.SQLNull(fin.ErrText), fin.ElapsedMS)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return perr.WithField(perr.NotFoundf("ledger: run %s not found", id), "id")
	}
	return nil
}

func (s *pgLedger) GetRun(ctx context.Context, id uuid.UUID) (domain.RunRow, error) {
	var (
		r      domain.RunRow
		status string
		report []byte
		errTxt *string
		ms     *int
	)
	err := s.q.QueryRow(ctx, `
		SELECT id, rule, input, archives, status, failed, report, err_text, elapsed_ms, started_at, finished_at
		FROM analysis_runs WHERE id = $1`, id).
		Scan(&r.ID, &r.Rule, &r.Input, &r.Archives, &status, &r.Failed, &report, &errTxt, &ms, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		if perr.IsNoRows(err) {
			return domain.RunRow{}, perr.WithField(perr.NotFoundf("run %s not found", id), "id")
		}
		return domain.RunRow{}, perr.FromPostgres(err, "ledger: get run")
	}
	r.Status = domain.RunStatus(status)
	r.ErrText = strs.Deref(errTxt)
	if ms != nil {
		r.ElapsedMS = *ms
	}
	if len(report) > 0 {
		var rep domain.Report
		if err := json.Unmarshal(report, &rep); err != nil {
			return domain.RunRow{}, perr.Wrap(err, perr.ErrorCodeDB, "ledger: decode report")
		}
		r.Report = &rep
	}
	return r, nil
}
