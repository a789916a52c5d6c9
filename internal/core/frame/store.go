package frame

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	perr "rhat/internal/platform/errors"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Store persists partitions by index. Implementations are used by one
// goroutine at a time; Close is idempotent
type Store interface {
	Put(ctx context.Context, idx int, recs []Record) error
	Get(ctx context.Context, idx int) ([]Record, error)
	Close() error
}

// MemStore keeps partitions in memory
type MemStore struct {
	mu    sync.Mutex
	parts map[int][]Record
}

// NewMemStore returns an empty in-memory store
func NewMemStore() *MemStore { return &MemStore{parts: make(map[int][]Record)} }

// Put stores a copy of recs
func (m *MemStore) Put(_ context.Context, idx int, recs []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parts[idx] = append([]Record(nil), recs...)
	return nil
}

// Get returns partition idx
func (m *MemStore) Get(_ context.Context, idx int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs, ok := m.parts[idx]
	if !ok {
		return nil, perr.NotFoundf("frame: partition %d not stored", idx)
	}
	return recs, nil
}

// Close drops all partitions
func (m *MemStore) Close() error {
	m.mu.Lock()
	m.parts = map[int][]Record{}
	m.mu.Unlock()
	return nil
}

// DiskStore spills partitions to zstd-compressed msgpack files in a private
// directory that is removed on Close
type DiskStore struct {
	dir    string
	once   sync.Once
	closed error
}

// NewDiskStore creates a private spill directory under parent (OS temp dir when empty)
func NewDiskStore(parent string) (*DiskStore, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "frame: spill parent %s", parent)
		}
	}
	dir, err := os.MkdirTemp(parent, "rhat-frame-*")
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnavailable, "frame: create spill dir")
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the spill directory
func (d *DiskStore) Dir() string { return d.dir }

func (d *DiskStore) path(idx int) string {
	return filepath.Join(d.dir, fmt.Sprintf("part-%06d.msgpack.zst", idx))
}

// Put writes partition idx via a temp file and rename
func (d *DiskStore) Put(ctx context.Context, idx int, recs []Record) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	final := d.path(idx)
	tmp := final + ".part"

	f, err := os.Create(tmp)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "frame: create %s", tmp)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnknown, "frame: zstd writer")
	}
	if err = msgpack.NewEncoder(zw).Encode(recs); err != nil {
		_ = zw.Close()
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "frame: encode partition %d", idx)
	}
	if err = zw.Close(); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "frame: flush partition %d", idx)
	}
	if err = f.Close(); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "frame: close partition %d", idx)
	}
	if err = os.Rename(tmp, final); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "frame: commit partition %d", idx)
	}
	return nil
}

// Get reads partition idx back
func (d *DiskStore) Get(ctx context.Context, idx int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(d.path(idx))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perr.NotFoundf("frame: partition %d not stored", idx)
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "frame: open partition %d", idx)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnknown, "frame: zstd reader")
	}
	defer zr.Close()

	var recs []Record
	if err := msgpack.NewDecoder(zr).Decode(&recs); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "frame: decode partition %d", idx)
	}
	return recs, nil
}

// Close removes the spill directory
func (d *DiskStore) Close() error {
	d.once.Do(func() {
		if err := os.RemoveAll(d.dir); err != nil {
			d.closed = perr.Wrapf(err, perr.ErrorCodeUnavailable, "frame: remove %s", d.dir)
		}
	})
	return d.closed
}
