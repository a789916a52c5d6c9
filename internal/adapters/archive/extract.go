package archive

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/bzip2"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	perr "rhat/internal/platform/errors"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// DefaultMaxBytes caps the total uncompressed size of one archive
const DefaultMaxBytes int64 = 8 << 30

// Fetcher resolves a remote reference to a local file
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Options controls a single extraction
type Options struct {
	// TmpDir is the parent for scratch directories; empty means os.TempDir
	TmpDir string
	// Timeout bounds the extraction; zero means only ctx applies
	Timeout time.Duration
}

// Extracted is an unpacked archive. Close removes any scratch directory
type Extracted struct {
	Root string
	dir  string
}

// Close removes the scratch directory; safe to call more than once
func (x *Extracted) Close() error {
	if x == nil || x.dir == "" {
		return nil
	}
	dir := x.dir
	x.dir = ""
	return os.RemoveAll(dir)
}

// Extractor unpacks tar (plain, gzip, zstd, bzip2) and zip archives.
// Directories are used in place
type Extractor struct {
	fetcher  Fetcher
	maxBytes int64
}

// NewExtractor builds an extractor; fetcher may be nil when only local
// references are expected
func NewExtractor(fetcher Fetcher, maxBytes int64) *Extractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Extractor{fetcher: fetcher, maxBytes: maxBytes}
}

type format int

const (
	formatUnknown format = iota
	formatTar
	formatGzip
	formatZstd
	formatBzip2
	formatZip
	formatXz
)

func (f format) String() string {
	switch f {
	case formatTar:
		return "tar"
	case formatGzip:
		return "gzip"
	case formatZstd:
		return "zstd"
	case formatBzip2:
		return "bzip2"
	case formatZip:
		return "zip"
	case formatXz:
		return "xz"
	default:
		return "unknown"
	}
}

var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicBzip2 = []byte("BZh")
	magicZip   = []byte("PK\x03\x04")
	magicXz    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicUstar = []byte("ustar")
)

// sniff identifies the container from its leading bytes
func sniff(head []byte) format {
	switch {
	case bytes.HasPrefix(head, magicGzip):
		return formatGzip
	case bytes.HasPrefix(head, magicZstd):
		return formatZstd
	case bytes.HasPrefix(head, magicBzip2):
		return formatBzip2
	case bytes.HasPrefix(head, magicZip):
		return formatZip
	case bytes.HasPrefix(head, magicXz):
		return formatXz
	case len(head) >= 262 && bytes.Equal(head[257:262], magicUstar):
		return formatTar
	}
	return formatUnknown
}

// Extract resolves ref (local path, directory or http(s) URL) and unpacks it
func (e *Extractor) Extract(ctx context.Context, ref string, opts Options) (*Extracted, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	path := ref
	if IsRemote(ref) {
		if e.fetcher == nil {
			return nil, perr.InvalidArgf("archive %s is remote but no fetcher is configured", ref)
		}
		p, err := e.fetcher.Fetch(ctx, ref)
		if err != nil {
			return nil, e.classify(ctx, ref, err)
		}
		path = p
	}

	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perr.Wrapf(err, perr.ErrorCodeNotFound, "archive %s", ref)
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeExtract, "archive %s", ref)
	}
	if fi.IsDir() {
		return &Extracted{Root: path}, nil
	}

	dir, err := os.MkdirTemp(opts.TmpDir, "rhat-archive-*")
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "scratch dir for %s", ref)
	}
	if err := e.unpack(ctx, path, dir); err != nil {
		_ = os.RemoveAll(dir)
		return nil, e.classify(ctx, ref, err)
	}
	return &Extracted{Root: singleTopDir(dir), dir: dir}, nil
}

func (e *Extractor) classify(ctx context.Context, ref string, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return perr.Wrapf(err, perr.ErrorCodeTimeout, "extract %s: timed out", ref)
	case ctx.Err() != nil:
		return perr.Wrapf(ctx.Err(), perr.ErrorCodeUnavailable, "extract %s: canceled", ref)
	}
	if _, ok := perr.As(err); ok {
		return perr.WithOp(err, "extract")
	}
	return perr.Wrapf(err, perr.ErrorCodeExtract, "extract %s", ref)
}

func (e *Extractor) unpack(ctx context.Context, path, dir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 64*1024)
	head, _ := br.Peek(512)
	kind := sniff(head)

	var src io.Reader = &ctxReader{ctx: ctx, r: br}
	switch kind {
	case formatZip:
		return e.unzip(ctx, path, dir)
	case formatTar:
	case formatGzip:
		zr, err := gzip.NewReader(src)
		if err != nil {
			return perr.Wrap(err, perr.ErrorCodeExtract, "gzip header")
		}
		defer zr.Close()
		src = zr
	case formatZstd:
		zr, err := zstd.NewReader(src)
		if err != nil {
			return perr.Wrap(err, perr.ErrorCodeExtract, "zstd header")
		}
		defer zr.Close()
		src = zr
	case formatBzip2:
		src = bzip2.NewReader(src)
	default:
		return perr.Extractf("unsupported archive format %s", kind)
	}
	return e.untar(ctx, src, dir)
}

func (e *Extractor) untar(ctx context.Context, src io.Reader, dir string) error {
	tr := tar.NewReader(src)
	budget := &byteBudget{left: e.maxBytes}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return perr.Wrap(err, perr.ErrorCodeExtract, "read tar")
		}
		target, err := safeJoin(dir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, budget); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := safeSymlink(dir, target, hdr.Linkname); err != nil {
				return err
			}
		case tar.TypeLink:
			old, err := safeJoin(dir, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Link(old, target); err != nil {
				return perr.Wrapf(err, perr.ErrorCodeExtract, "hard link %s", hdr.Name)
			}
		default:
			// devices, fifos and the like carry no collected content
		}
	}
}

func (e *Extractor) unzip(ctx context.Context, path, dir string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeExtract, "read zip")
	}
	defer zr.Close()

	budget := &byteBudget{left: e.maxBytes}
	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := safeJoin(dir, zf.Name)
		if err != nil {
			return err
		}
		mode := zf.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case mode&os.ModeSymlink != 0:
			rc, err := zf.Open()
			if err != nil {
				return perr.Wrapf(err, perr.ErrorCodeExtract, "zip entry %s", zf.Name)
			}
			link, err := io.ReadAll(io.LimitReader(rc, 4096))
			_ = rc.Close()
			if err != nil {
				return perr.Wrapf(err, perr.ErrorCodeExtract, "zip entry %s", zf.Name)
			}
			if err := safeSymlink(dir, target, string(link)); err != nil {
				return err
			}
		default:
			rc, err := zf.Open()
			if err != nil {
				return perr.Wrapf(err, perr.ErrorCodeExtract, "zip entry %s", zf.Name)
			}
			err = writeFile(target, &ctxReader{ctx: ctx, r: rc}, budget)
			_ = rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// safeJoin maps an archive member name under root, rejecting names that
// would land outside it
func safeJoin(root, name string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(strings.TrimLeft(name, "/")))
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", perr.WithField(perr.Extractf("archive member %q escapes the extraction root", name), name)
	}
	return filepath.Join(root, rel), nil
}

// within reports whether path lies under root
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// safeSymlink creates a symlink only when its target resolves inside root.
// Links pointing elsewhere are skipped
func safeSymlink(root, target, link string) error {
	if link == "" || filepath.IsAbs(link) {
		return nil
	}
	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(link))
	if !within(root, resolved) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	_ = os.Remove(target)
	return os.Symlink(link, target)
}

type byteBudget struct{ left int64 }

func writeFile(target string, r io.Reader, budget *byteBudget) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, io.LimitReader(r, budget.left+1))
	cerr := out.Close()
	budget.left -= n
	if err != nil {
		return err
	}
	if budget.left < 0 {
		return perr.Extractf("archive exceeds the uncompressed size limit")
	}
	return cerr
}

// singleTopDir descends into the lone top-level directory most archives carry
func singleTopDir(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 || !entries[0].IsDir() {
		return dir
	}
	return filepath.Join(dir, entries[0].Name())
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
