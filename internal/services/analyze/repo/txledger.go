package repo

import (
	"context"

	"rhat/internal/modkit/repokit"
	"rhat/internal/services/analyze/domain"

	"github.com/google/uuid"
)

// TxLedger runs every ledger call in its own transaction
type TxLedger struct {
	tx repokit.TxRunner
	b  repokit.Binder[Ledger]
}

var (
	_ domain.LedgerRepo = (*TxLedger)(nil)
	_ domain.RunReader  = (*TxLedger)(nil)
)

// NewLedger binds b to transactions of tx
func NewLedger(tx repokit.TxRunner, b repokit.Binder[Ledger]) *TxLedger {
	if tx == nil || b == nil {
		panic("repo.NewLedger requires a tx runner and a binder")
	}
	return &TxLedger{tx: tx, b: b}
}

// EnsureSchema implements domain.LedgerRepo
func (l *TxLedger) EnsureSchema(ctx context.Context) error {
	return repokit.InTx(ctx, l.tx, l.b, func(s Ledger) error { return s.EnsureSchema(ctx) })
}

// StartRun implements domain.LedgerRepo
func (l *TxLedger) StartRun(ctx context.Context, run domain.RunStart) error {
	return repokit.InTx(ctx, l.tx, l.b, func(s Ledger) error { return s.StartRun(ctx, run) })
}

// FinishRun implements domain.LedgerRepo
func (l *TxLedger) FinishRun(ctx context.Context, id uuid.UUID, fin domain.RunFinish) error {
	return repokit.InTx(ctx, l.tx, l.b, func(s Ledger) error { return s.FinishRun(ctx, id, fin) })
}

// GetRun implements domain.RunReader
func (l *TxLedger) GetRun(ctx context.Context, id uuid.UUID) (domain.RunRow, error) {
	var out domain.RunRow
	err := repokit.InTx(ctx, l.tx, l.b, func(s Ledger) error {
		r, err := s.GetRun(ctx, id)
		out = r
		return err
	})
	return out, err
}
