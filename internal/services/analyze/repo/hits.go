package repo

import (
	"context"

	"rhat/internal/core/frame"
	perr "rhat/internal/platform/errors"
	"rhat/internal/platform/store"
	"rhat/internal/services/analyze/domain"

	"github.com/google/uuid"
)

// DefaultChunk is the number of rows sent per clickhouse batch
const DefaultChunk = 5000

const hitsDDL = `
CREATE TABLE IF NOT EXISTS rule_hits (
	run_id      UUID,
	rule        LowCardinality(String),
	archive     String,
	hits        Array(String),
	misses      Array(String),
	key         Nullable(String),
	type        Nullable(String),
	make_fail   Bool,
	major       Int8,
	minor       Int8,
	error       Nullable(String),
	exported_at DateTime64(3) DEFAULT now64(3)
)
ENGINE = ReplacingMergeTree(exported_at)
ORDER BY (run_id, archive)`

const hitsInsert = `INSERT INTO rule_hits (run_id, rule, archive, hits, misses, key, type, make_fail, major, minor, error)`

// CHHits exports per archive rows to clickhouse
type CHHits struct {
	ch    store.Clickhouse
	chunk int
}

var _ domain.HitWriter = (*CHHits)(nil)

// NewCH constructs the hit exporter. chunk <= 0 uses DefaultChunk
func NewCH(ch store.Clickhouse, chunk int) *CHHits {
	if ch == nil {
		panic("repo.NewCH requires a clickhouse seam")
	}
	if chunk <= 0 {
		chunk = DefaultChunk
	}
	return &CHHits{ch: ch, chunk: chunk}
}

// EnsureSchema implements domain.HitWriter
func (h *CHHits) EnsureSchema(ctx context.Context) error {
	return h.ch.Exec(ctx, hitsDDL)
}

// WriteHits streams the frame in chunks. A rerun of the same run id replaces
// rows on merge
func (h *CHHits) WriteHits(ctx context.Context, runID uuid.UUID, rule string, f *frame.Frame) (int, error) {
	if f == nil {
		return 0, nil
	}
	cols := f.Schema().Hits()

	var (
		b       store.Batch
		pending int
		total   int
	)
	flush := func() error {
		if b == nil {
			return nil
		}
		err := b.Send()
		b, pending = nil, 0
		if err != nil {
			return perr.Wrap(err, perr.ErrorCodeUnavailable, "rule_hits: send")
		}
		return nil
	}

	err := f.Partitions(ctx, func(_ int, recs []frame.Record) error {
		for _, r := range recs {
			if b == nil {
				nb, err := h.ch.PrepareBatch(ctx, hitsInsert)
				if err != nil {
					return err
				}
				b = nb
			}
			hits, misses := split(cols, r)
			if err := b.Append(runID, rule, r.Archive, hits, misses, r.Key, r.Type, r.MakeFail, r.Major, r.Minor, r.Error); err != nil {
				return perr.Wrap(err, perr.ErrorCodeInvalidArgument, "rule_hits: append")
			}
			pending++
			total++
			if pending >= h.chunk {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		if b != nil {
			_ = b.Abort()
		}
		return 0, err
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return total, nil
}

// split returns the true and the false checks of r; nulls go to neither
func split(cols []string, r frame.Record) (hits, misses []string) {
	hits, misses = []string{}, []string{}
	for _, c := range cols {
		v, ok := r.Hit(c)
		switch {
		case !ok:
		case v:
			hits = append(hits, c)
		default:
			misses = append(misses, c)
		}
	}
	return hits, misses
}
