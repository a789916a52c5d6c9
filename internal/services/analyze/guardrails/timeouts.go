// Package guardrails holds cross cutting safety helpers for analysis runs
package guardrails

import (
	"context"
	"time"
)

// Timeouts is an optional budget bundle for evaluating one archive.
// Zero values mean no extra timeout at that level
type Timeouts struct {
	// Archive is the overall budget for one archive evaluation
	Archive time.Duration

	// Fetch caps downloading a remote archive
	Fetch time.Duration

	// Extract caps unpacking the archive
	Extract time.Duration

	// DB caps a ledger or export write
	DB time.Duration
}

// ForArchive returns a context limited by the archive budget without extending any parent deadline
func ForArchive(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Archive)
}

// ForFetch returns a sub context for the fetch phase bounded by Fetch and any remaining parent budget
func ForFetch(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Fetch)
}

// ForExtract returns a sub context for extraction bounded by Extract and any remaining parent budget
func ForExtract(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Extract)
}

// ForDB returns a sub context for a db write bounded by DB and any remaining parent budget
func ForDB(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.DB)
}

// Remaining returns the time until the deadline on ctx or zero when none is set or already expired
func Remaining(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		d := time.Until(dl)
		if d > 0 {
			return d
		}
	}
	return 0
}

// withChildTimeout chooses the tighter of the requested duration and any parent remainder.
// Zero d returns a cancelable child inheriting the parent deadline
func withChildTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if rem := Remaining(parent); rem > 0 && rem < d {
		return context.WithTimeout(parent, rem)
	}
	return context.WithTimeout(parent, d)
}
