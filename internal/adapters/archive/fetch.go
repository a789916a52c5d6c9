package archive

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	perr "rhat/internal/platform/errors"
	"rhat/internal/platform/logger"

	"github.com/google/uuid"
)

const defaultHTTPTO = 10 * time.Minute

// HTTPFetcher downloads remote archives
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcherWithTimeout creates a fetcher whose client times out after d
func NewHTTPFetcherWithTimeout(d time.Duration) *HTTPFetcher {
	if d <= 0 {
		d = defaultHTTPTO
	}
	return &HTTPFetcher{Client: &http.Client{Timeout: d}}
}

// CachedFetcher keeps downloaded archives on disk, one file per URL plus a
// .meta sidecar, and revalidates with ETag / Last-Modified on reuse
type CachedFetcher struct {
	dir             string
	client          *http.Client
	revalidate      bool
	retainMaxAge    time.Duration
	retainMaxBytes  int64
	lastCleanupUnix atomic.Int64
}

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	Size         int64     `json:"size,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
	LastChecked  time.Time `json:"last_checked"`
}

// CachedOption configures the fetcher
type CachedOption func(*CachedFetcher)

// WithRevalidate issues conditional GETs for archives already in the cache
func WithRevalidate(on bool) CachedOption {
	return func(c *CachedFetcher) { c.revalidate = on }
}

// WithRetention sets optional age and size retention. Zero disables either dimension
func WithRetention(maxAge time.Duration, maxBytes int64) CachedOption {
	return func(c *CachedFetcher) {
		c.retainMaxAge = maxAge
		c.retainMaxBytes = maxBytes
	}
}

// NewCachedFetcher builds a caching fetcher; base may be nil
func NewCachedFetcher(dir string, base *HTTPFetcher, opts ...CachedOption) *CachedFetcher {
	c := &CachedFetcher{dir: dir, client: &http.Client{Timeout: defaultHTTPTO}}
	if base != nil && base.Client != nil {
		c.client = base.Client
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// cacheName derives a stable file name from the URL, keeping its archive suffix
func cacheName(url string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String() + archiveSuffix(url)
}

func archiveSuffix(url string) string {
	base := url
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	base = strings.ToLower(filepath.Base(base))
	for _, s := range []string{".tar.gz", ".tar.zst", ".tar.bz2", ".tgz", ".tar", ".zip"} {
		if strings.HasSuffix(base, s) {
			return s
		}
	}
	return ".bin"
}

// Fetch returns the local path of url, downloading it on a cache miss
func (c *CachedFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUnavailable, "archive cache %s", c.dir)
	}
	path := filepath.Join(c.dir, cacheName(url))
	metaPath := path + ".meta"

	if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
		if c.revalidate {
			if err := c.conditionalFetch(ctx, url, path, metaPath); err != nil {
				logger.C(ctx).Warn().Err(err).Str("url", url).Msg("archive revalidation failed; using cached copy")
			}
		}
		c.maybeCleanup()
		return path, nil
	}

	resp, err := c.get(ctx, url, nil)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return "", perr.Extractf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	if err := c.store(resp, url, path, metaPath); err != nil {
		return "", err
	}
	c.maybeCleanup()
	return path, nil
}

func (c *CachedFetcher) get(ctx context.Context, url string, meta *cacheMeta) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "fetch %s", url)
	}
	if meta != nil {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, perr.Wrapf(ctx.Err(), perr.ErrorCodeTimeout, "fetch %s", url)
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "fetch %s", url)
	}
	return resp, nil
}

// conditionalFetch refreshes path when the server has a newer copy
func (c *CachedFetcher) conditionalFetch(ctx context.Context, url, path, metaPath string) error {
	meta, _ := loadMeta(metaPath)
	resp, err := c.get(ctx, url, meta)
	if err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusNotModified:
		_ = resp.Body.Close()
		if meta == nil {
			meta = &cacheMeta{URL: url}
		}
		meta.LastChecked = time.Now().UTC()
		return saveMeta(metaPath, meta)
	case http.StatusOK:
		return c.store(resp, url, path, metaPath)
	default:
		_ = resp.Body.Close()
		return perr.Unavailablef("revalidate %s: unexpected status %d", url, resp.StatusCode)
	}
}

// store saves body atomically (.part then rename) and writes the sidecar
func (c *CachedFetcher) store(resp *http.Response, url, path, metaPath string) error {
	defer resp.Body.Close()
	tmp := path + ".part"
	defer func() { _ = os.Remove(tmp) }()

	out, err := os.Create(tmp)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "cache %s", tmp)
	}
	n, werr := io.Copy(out, resp.Body)
	cerr := out.Close()
	if werr != nil {
		return perr.Wrapf(werr, perr.ErrorCodeExtract, "download %s", url)
	}
	if cerr != nil {
		return perr.Wrapf(cerr, perr.ErrorCodeUnavailable, "cache %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "cache %s", path)
	}

	now := time.Now().UTC()
	return saveMeta(metaPath, &cacheMeta{
		URL:          url,
		ETag:         strings.TrimSpace(resp.Header.Get("ETag")),
		LastModified: strings.TrimSpace(resp.Header.Get("Last-Modified")),
		Size:         n,
		FetchedAt:    now,
		LastChecked:  now,
	})
}

func loadMeta(path string) (*cacheMeta, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m cacheMeta
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func saveMeta(path string, m *cacheMeta) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// maybeCleanup throttles retention cleanup to once per ten minutes
func (c *CachedFetcher) maybeCleanup() {
	if c.retainMaxAge <= 0 && c.retainMaxBytes <= 0 {
		return
	}
	now := time.Now().Unix()
	last := c.lastCleanupUnix.Load()
	if last != 0 && now-last < 600 {
		return
	}
	if !c.lastCleanupUnix.CompareAndSwap(last, now) {
		return
	}
	_ = c.cleanupOnce()
}

// cleanupOnce applies age and size retention by modification time
func (c *CachedFetcher) cleanupOnce() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	type item struct {
		path  string
		size  int64
		mtime time.Time
	}
	var items []item
	var total int64
	cutoff := time.Now().Add(-c.retainMaxAge)

	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".meta") || strings.HasSuffix(name, ".part") {
			continue
		}
		full := filepath.Join(c.dir, name)
		fi, err := os.Stat(full)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		if c.retainMaxAge > 0 && fi.ModTime().Before(cutoff) {
			_ = os.Remove(full)
			_ = os.Remove(full + ".meta")
			continue
		}
		items = append(items, item{path: full, size: fi.Size(), mtime: fi.ModTime()})
		total += fi.Size()
	}

	if c.retainMaxBytes > 0 && total > c.retainMaxBytes {
		sort.Slice(items, func(i, j int) bool { return items[i].mtime.Before(items[j].mtime) })
		for _, it := range items {
			if total <= c.retainMaxBytes {
				break
			}
			_ = os.Remove(it.path)
			_ = os.Remove(it.path + ".meta")
			total -= it.size
		}
	}
	return nil
}
