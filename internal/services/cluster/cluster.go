package cluster

import (
	"context"

	perr "rhat/internal/platform/errors"
)

// Client submits tasks to a provisioned pool. Close must always be called
type Client interface {
	// Submit hands t to the pool; the future resolves with the partition records
	Submit(ctx context.Context, t Task) *Future
	// Scale resizes the pool to exactly n workers
	Scale(ctx context.Context, n int) error
	// Workers reports the current pool size
	Workers() int
	// Close stops every worker; safe to call more than once
	Close() error
}

// Open provisions the cluster described by spec. factory builds executors
// for in-process workers and is unused by the nats backend
func Open(ctx context.Context, spec Spec, factory Factory) (Client, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Kind {
	case KindLocal:
		if factory == nil {
			return nil, perr.InvalidArgf("local cluster needs an executor factory")
		}
		return openLocal(ctx, spec, factory)
	case KindNATS:
		return openNATS(ctx, spec)
	default:
		return nil, perr.InvalidArgf("unknown cluster kind %q", spec.Kind)
	}
}

var errClosed = perr.Clusterf("cluster is closed")
