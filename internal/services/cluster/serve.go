package cluster

import (
	"context"
	"sync"

	perr "rhat/internal/platform/errors"
	"rhat/internal/platform/logger"

	"github.com/nats-io/nats.go"
)

// ServeOptions configures a worker process
type ServeOptions struct {
	Name    string
	Subject string
	Queue   string
	Threads int
}

// Serve answers tasks on opts.Subject in queue group opts.Queue with at most
// opts.Threads concurrent evaluations, and answers readiness pings. It
// returns once ctx ends and in-flight tasks have replied
func Serve(ctx context.Context, nc *nats.Conn, opts ServeOptions, exec Executor) error {
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}
	if opts.Queue == "" {
		opts.Queue = DefaultQueue
	}
	threads := max(opts.Threads, 1)
	log := logger.Named("worker").With().Str("worker", opts.Name).Logger()
	wctx := logger.WithWorker(ctx, opts.Name)

	d := newDispatcher(wctx, exec, threads)
	sub, err := nc.QueueSubscribe(opts.Subject, opts.Queue, d.handle)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeCluster, "subscribe %s", opts.Subject)
	}
	ping, err := nc.Subscribe(PingSubject(opts.Subject), func(m *nats.Msg) {
		_ = m.Respond([]byte(opts.Name))
	})
	if err != nil {
		_ = sub.Unsubscribe()
		return perr.Wrapf(err, perr.ErrorCodeCluster, "subscribe %s", PingSubject(opts.Subject))
	}
	if err := nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		_ = ping.Unsubscribe()
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "flush subscriptions")
	}
	log.Info().Str("subject", opts.Subject).Str("queue", opts.Queue).Int("threads", threads).Msg("worker serving")

	<-ctx.Done()
	_ = ping.Unsubscribe()
	_ = sub.Unsubscribe()
	d.drain()
	log.Info().Msg("worker stopped")
	return nil
}

// dispatcher runs each delivered task on its own goroutine, at most threads
// at a time. The subscription callback never waits for a slot
type dispatcher struct {
	ctx  context.Context
	exec Executor
	sem  chan struct{}

	mu       sync.Mutex
	stopping bool
	wg       sync.WaitGroup
}

func newDispatcher(ctx context.Context, exec Executor, threads int) *dispatcher {
	return &dispatcher{ctx: ctx, exec: exec, sem: make(chan struct{}, max(threads, 1))}
}

func (d *dispatcher) handle(m *nats.Msg) {
	d.mu.Lock()
	if d.stopping {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		select {
		case d.sem <- struct{}{}:
		case <-d.ctx.Done():
			return
		}
		defer func() { <-d.sem }()
		respond(d.ctx, m, d.exec)
	}()
}

// drain stops accepting tasks and waits for in-flight ones to reply
func (d *dispatcher) drain() {
	d.mu.Lock()
	d.stopping = true
	d.mu.Unlock()
	d.wg.Wait()
}

func respond(ctx context.Context, m *nats.Msg, exec Executor) {
	var reply Reply
	t, err := DecodeTask(m.Data)
	if err == nil {
		reply.Records, err = execSafe(ctx, exec, t)
	}
	if err != nil {
		reply = Reply{Error: err.Error()}
		logger.C(ctx).Warn().Err(err).Str("task", t.ID).Msg("task failed")
	}
	data, err := EncodeReply(reply)
	if err != nil {
		data, _ = EncodeReply(Reply{Error: err.Error()})
	}
	if err := m.Respond(data); err != nil {
		logger.C(ctx).Error().Err(err).Str("task", t.ID).Msg("reply failed")
	}
}
