package domain

import (
	"context"

	"rhat/internal/adapters/archive"
	"rhat/internal/core/frame"

	"github.com/google/uuid"
)

// RunnerPort is the public port of the analysis module
type RunnerPort interface {
	// Analyze evaluates rule over archives and returns the aggregate report
	Analyze(ctx context.Context, input string, archives []string, rule string) (Report, error)
}

// Extractor unpacks one archive reference
type Extractor interface {
	Extract(ctx context.Context, ref string, opts archive.Options) (*archive.Extracted, error)
}

// LedgerRepo records run lifecycle rows
type LedgerRepo interface {
	EnsureSchema(ctx context.Context) error
	StartRun(ctx context.Context, run RunStart) error
	FinishRun(ctx context.Context, id uuid.UUID, fin RunFinish) error
}

// HitWriter exports per-archive hit rows
type HitWriter interface {
	EnsureSchema(ctx context.Context) error
	WriteHits(ctx context.Context, runID uuid.UUID, rule string, f *frame.Frame) (int, error)
}

// RunReader reads ledger rows back
type RunReader interface {
	GetRun(ctx context.Context, id uuid.UUID) (RunRow, error)
}
