package cluster

import (
	"context"
	"sync"
	"time"

	"rhat/internal/core/frame"
	perr "rhat/internal/platform/errors"

	"github.com/vmihailenco/msgpack/v5"
)

// Task is one partition of archives to evaluate with a rule
type Task struct {
	ID       string        `msgpack:"id"`
	Rule     string        `msgpack:"rule"`
	Archives []string      `msgpack:"archives"`
	Timeout  time.Duration `msgpack:"timeout_ns"`
	TmpDir   string        `msgpack:"tmp_dir"`
}

// Reply is a worker's answer to a Task
type Reply struct {
	Records []frame.Record `msgpack:"records"`
	Error   string         `msgpack:"error,omitempty"`
}

// EncodeTask serializes a task for the wire
func EncodeTask(t Task) ([]byte, error) { return msgpack.Marshal(t) }

// DecodeTask parses a wire task
func DecodeTask(b []byte) (Task, error) {
	var t Task
	if err := msgpack.Unmarshal(b, &t); err != nil {
		return Task{}, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "decode task")
	}
	return t, nil
}

// EncodeReply serializes a reply for the wire
func EncodeReply(r Reply) ([]byte, error) { return msgpack.Marshal(r) }

// DecodeReply parses a wire reply
func DecodeReply(b []byte) (Reply, error) {
	var r Reply
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return Reply{}, perr.Wrap(err, perr.ErrorCodeCluster, "decode reply")
	}
	return r, nil
}

// Executor evaluates tasks. Each worker owns one
type Executor interface {
	Execute(ctx context.Context, t Task) ([]frame.Record, error)
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(ctx context.Context, t Task) ([]frame.Record, error)

// Execute calls f
func (f ExecutorFunc) Execute(ctx context.Context, t Task) ([]frame.Record, error) { return f(ctx, t) }

// Factory builds the private executor of a named worker
type Factory func(worker string) (Executor, error)

// execSafe runs e and turns a panic into an error
func execSafe(ctx context.Context, e Executor, t Task) (recs []frame.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			recs, err = nil, perr.PanicErrf("task %s panicked: %v", t.ID, r)
		}
	}()
	return e.Execute(ctx, t)
}

// Future is the deferred result of a submitted task
type Future struct {
	done chan struct{}
	once sync.Once
	recs []frame.Record
	err  error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

// Failed returns an already resolved future carrying err
func Failed(err error) *Future {
	f := newFuture()
	f.resolve(nil, err)
	return f
}

func (f *Future) resolve(recs []frame.Record, err error) {
	f.once.Do(func() {
		f.recs, f.err = recs, err
		close(f.done)
	})
}

// Done is closed once the result is available
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the task resolves or ctx ends
func (f *Future) Wait(ctx context.Context) ([]frame.Record, error) {
	select {
	case <-f.done:
		return f.recs, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
