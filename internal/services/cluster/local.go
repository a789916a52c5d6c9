package cluster

import (
	"context"
	"fmt"
	"sync"

	perr "rhat/internal/platform/errors"
	"rhat/internal/platform/logger"
)

type localJob struct {
	ctx  context.Context
	task Task
	fut  *Future
}

type localWorker struct {
	name string
	exec Executor
	stop chan struct{}
}

// localCluster runs workers as goroutines sharing one unbuffered job channel,
// so a job is handed over only when some worker thread is free
type localCluster struct {
	spec    Spec
	factory Factory
	log     *logger.Logger

	jobs chan localJob
	quit chan struct{}

	mu      sync.Mutex
	workers []*localWorker
	seq     int
	closed  bool
	once    sync.Once
	wg      sync.WaitGroup
}

func openLocal(ctx context.Context, spec Spec, factory Factory) (*localCluster, error) {
	c := &localCluster{
		spec:    spec,
		factory: factory,
		log:     logger.Named("cluster"),
		jobs:    make(chan localJob),
		quit:    make(chan struct{}),
	}
	if err := c.Scale(ctx, spec.Workers); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.log.Info().Str("kind", string(KindLocal)).Int("workers", spec.Workers).Int("threads", spec.ThreadsPerWorker).Msg("cluster ready")
	return c, nil
}

// Submit queues t; it never blocks the caller
func (c *localCluster) Submit(ctx context.Context, t Task) *Future {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return Failed(errClosed)
	}

	f := newFuture()
	go func() {
		select {
		case c.jobs <- localJob{ctx: ctx, task: t, fut: f}:
		case <-ctx.Done():
			f.resolve(nil, ctx.Err())
		case <-c.quit:
			f.resolve(nil, errClosed)
		}
	}()
	return f
}

// Scale starts or stops workers. Stopped workers finish their current task
func (c *localCluster) Scale(_ context.Context, n int) error {
	if n < 0 {
		return perr.InvalidArgf("cannot scale to %d workers", n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}

	for len(c.workers) < n {
		c.seq++
		name := fmt.Sprintf("local-%d", c.seq)
		exec, err := c.factory(name)
		if err != nil {
			return perr.Wrapf(err, perr.ErrorCodeCluster, "start worker %s", name)
		}
		w := &localWorker{name: name, exec: exec, stop: make(chan struct{})}
		c.workers = append(c.workers, w)
		for range c.spec.ThreadsPerWorker {
			c.wg.Add(1)
			go c.run(w)
		}
	}
	for len(c.workers) > n {
		last := c.workers[len(c.workers)-1]
		close(last.stop)
		c.workers = c.workers[:len(c.workers)-1]
	}
	return nil
}

func (c *localCluster) run(w *localWorker) {
	defer c.wg.Done()
	for {
		select {
		case <-w.stop:
			return
		case <-c.quit:
			return
		case j := <-c.jobs:
			ctx := logger.WithWorker(j.ctx, w.name)
			recs, err := execSafe(ctx, w.exec, j.task)
			j.fut.resolve(recs, err)
		}
	}
}

// Workers reports the number of running workers
func (c *localCluster) Workers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.workers)
}

// Close stops all workers and fails tasks that were never picked up
func (c *localCluster) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		for _, w := range c.workers {
			close(w.stop)
		}
		c.workers = nil
		close(c.quit)
		c.mu.Unlock()
		c.wg.Wait()
		c.log.Debug().Msg("cluster closed")
	})
	return nil
}
