package frame

import (
	"context"
	"slices"

	perr "rhat/internal/platform/errors"
)

// Frame is an append-only partitioned table of records over a Store
type Frame struct {
	schema Schema
	store  Store
	parts  []int
	rows   int
}

// New returns an empty frame
func New(schema Schema, store Store) *Frame {
	return &Frame{schema: schema, store: store}
}

// Schema returns the declared schema
func (f *Frame) Schema() Schema { return f.schema }

// Len returns the row count
func (f *Frame) Len() int { return f.rows }

// NumPartitions returns the partition count
func (f *Frame) NumPartitions() int { return len(f.parts) }

// Append conforms recs to the schema and persists them as the next partition
func (f *Frame) Append(ctx context.Context, recs []Record) error {
	conformed := make([]Record, len(recs))
	for i, r := range recs {
		conformed[i] = f.schema.Conform(r)
	}
	idx := len(f.parts)
	if err := f.store.Put(ctx, idx, conformed); err != nil {
		return perr.WithOp(err, "frame.append")
	}
	f.parts = append(f.parts, idx)
	f.rows += len(recs)
	return nil
}

// Partitions streams partitions in order, loading one at a time
func (f *Frame) Partitions(ctx context.Context, fn func(idx int, recs []Record) error) error {
	for _, idx := range f.parts {
		recs, err := f.store.Get(ctx, idx)
		if err != nil {
			return perr.WithOp(err, "frame.partitions")
		}
		if err := fn(idx, recs); err != nil {
			return err
		}
	}
	return nil
}

// BoolColumns is a column-major projection of bool columns. Nulls read as false
type BoolColumns struct {
	Names []string
	Data  [][]bool
}

// Rows returns the row count of the projection
func (b BoolColumns) Rows() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Project pulls just the named bool columns (hit columns or make_fail) into memory
func (f *Frame) Project(ctx context.Context, cols []string) (BoolColumns, error) {
	known := f.schema.BoolColumns()
	for _, c := range cols {
		if !slices.Contains(known, c) {
			return BoolColumns{}, perr.WithField(perr.InvalidArgf("frame: %q is not a bool column", c), c)
		}
	}

	out := BoolColumns{Names: append([]string(nil), cols...), Data: make([][]bool, len(cols))}
	for i := range out.Data {
		out.Data[i] = make([]bool, 0, f.rows)
	}
	err := f.Partitions(ctx, func(_ int, recs []Record) error {
		for _, r := range recs {
			for i, c := range cols {
				var v bool
				if c == ColMakeFail {
					v = r.MakeFail
				} else {
					v, _ = r.Hit(c)
				}
				out.Data[i] = append(out.Data[i], v)
			}
		}
		return nil
	})
	if err != nil {
		return BoolColumns{}, err
	}
	return out, nil
}

// Close releases the store
func (f *Frame) Close() error { return f.store.Close() }
