package cluster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	perr "rhat/internal/platform/errors"
	"rhat/internal/platform/logger"

	"github.com/nats-io/nats.go"
)

const (
	connectTimeout = 10 * time.Second
	stopGrace      = 5 * time.Second
	pingInterval   = 200 * time.Millisecond
)

// PingSubject is the readiness subject workers answer on
func PingSubject(subject string) string { return subject + ".ping" }

type workerProc struct {
	name string
	cmd  *exec.Cmd
	done chan struct{}
}

// natsCluster sends tasks as request-reply messages to worker processes
// subscribed in a queue group. With an empty command, workers are managed
// outside this process and Scale is not available
type natsCluster struct {
	spec Spec
	nc   *nats.Conn
	log  *logger.Logger

	mu     sync.Mutex
	procs  []*workerProc
	seq    int
	closed bool
	once   sync.Once
}

func openNATS(ctx context.Context, spec Spec) (*natsCluster, error) {
	nc, err := nats.Connect(spec.NATS.URL,
		nats.Name("rhat-coordinator"),
		nats.Timeout(connectTimeout),
	)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "connect nats %s", spec.NATS.URL)
	}
	c := &natsCluster{spec: spec, nc: nc, log: logger.Named("cluster")}

	if c.managed() {
		if err := c.Scale(ctx, spec.Workers); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	if err := c.awaitReady(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.log.Info().Str("kind", string(KindNATS)).Str("subject", spec.NATS.Subject).Int("workers", c.Workers()).Msg("cluster ready")
	return c, nil
}

func (c *natsCluster) managed() bool { return len(c.spec.Command) > 0 }

// awaitReady pings until some worker answers or the startup budget runs out
func (c *natsCluster) awaitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.spec.StartupTimeout)
	defer cancel()

	subject := PingSubject(c.spec.NATS.Subject)
	var last error
	for {
		pctx, pcancel := context.WithTimeout(ctx, time.Second)
		_, err := c.nc.RequestWithContext(pctx, subject, nil)
		pcancel()
		if err == nil {
			return nil
		}
		last = err
		select {
		case <-ctx.Done():
			return perr.Wrapf(last, perr.ErrorCodeCluster, "no worker answered on %s within %s", subject, c.spec.StartupTimeout)
		case <-time.After(pingInterval):
		}
	}
}

// Submit sends t and resolves the future with the decoded reply
func (c *natsCluster) Submit(ctx context.Context, t Task) *Future {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return Failed(errClosed)
	}

	data, err := EncodeTask(t)
	if err != nil {
		return Failed(perr.Wrapf(err, perr.ErrorCodeCluster, "encode task %s", t.ID))
	}

	f := newFuture()
	go func() {
		rctx := ctx
		if d := c.spec.NATS.RequestTimeout; d > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		msg, err := c.nc.RequestWithContext(rctx, c.spec.NATS.Subject, data)
		if err != nil {
			if errors.Is(err, nats.ErrNoResponders) {
				f.resolve(nil, perr.Wrapf(err, perr.ErrorCodeCluster, "task %s: no workers", t.ID))
				return
			}
			f.resolve(nil, perr.Wrapf(err, perr.ErrorCodeCluster, "task %s", t.ID))
			return
		}
		reply, err := DecodeReply(msg.Data)
		if err != nil {
			f.resolve(nil, err)
			return
		}
		if reply.Error != "" {
			f.resolve(nil, perr.Clusterf("task %s: worker: %s", t.ID, reply.Error))
			return
		}
		f.resolve(reply.Records, nil)
	}()
	return f
}

// Scale spawns or stops worker processes
func (c *natsCluster) Scale(_ context.Context, n int) error {
	if n < 0 {
		return perr.InvalidArgf("cannot scale to %d workers", n)
	}
	if !c.managed() {
		return perr.InvalidArgf("workers are managed outside this process; set command in the worker spec to scale")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}

	for len(c.procs) < n {
		c.seq++
		p, err := c.spawn(fmt.Sprintf("worker-%d", c.seq))
		if err != nil {
			return err
		}
		c.procs = append(c.procs, p)
	}
	for len(c.procs) > n {
		last := c.procs[len(c.procs)-1]
		c.procs = c.procs[:len(c.procs)-1]
		stop(last)
	}
	return nil
}

func (c *natsCluster) spawn(name string) (*workerProc, error) {
	args := append([]string(nil), c.spec.Command[1:]...)
	args = append(args,
		"--nats-url", c.spec.NATS.URL,
		"--subject", c.spec.NATS.Subject,
		"--queue", c.spec.NATS.Queue,
		"--threads", strconv.Itoa(c.spec.ThreadsPerWorker),
		"--name", name,
	)
	cmd := exec.Command(c.spec.Command[0], args...)
	cmd.Env = append(os.Environ(), envList(c.spec.Env)...)
	// stdout of the coordinator carries only the report
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeCluster, "start %s", name)
	}

	p := &workerProc{name: name, cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		close(p.done)
		ev := c.log.Debug()
		if err != nil {
			ev = c.log.Warn().Err(err)
		}
		ev.Str("worker", name).Msg("worker exited")
	}()
	c.log.Debug().Str("worker", name).Int("pid", cmd.Process.Pid).Msg("worker started")
	return p, nil
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// stop interrupts a worker and kills it after the grace period
func stop(p *workerProc) {
	if p.cmd.Process == nil {
		return
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.done:
	case <-time.After(stopGrace):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
}

// Workers reports spawned processes, or the declared size for external workers
func (c *natsCluster) Workers() int {
	if !c.managed() {
		return c.spec.Workers
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.procs)
}

// Close stops spawned workers and drains the connection
func (c *natsCluster) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		procs := c.procs
		c.procs = nil
		c.mu.Unlock()

		var wg sync.WaitGroup
		for _, p := range procs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				stop(p)
			}()
		}
		wg.Wait()
		if c.nc != nil {
			err = c.nc.Drain()
		}
		c.log.Debug().Msg("cluster closed")
	})
	return err
}
