package archive

import (
	"archive/tar"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	perr "rhat/internal/platform/errors"
	kit "rhat/internal/platform/testkit"

	"github.com/google/go-cmp/cmp"
)

func TestLoadList(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "input.txt")
	body := "a.tar.gz  \n\n   \nb.tar.gz\r\n/srv/c.tar.gz\t\n"
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := LoadList(p)
	if err != nil {
		t.Fatalf("LoadList: %v", err)
	}
	if diff := cmp.Diff([]string{"a.tar.gz", "b.tar.gz", "/srv/c.tar.gz"}, got); diff != "" {
		t.Fatalf("LoadList mismatch (-want +got):\n%s", diff)
	}

	_, err = LoadList(filepath.Join(dir, "missing.txt"))
	kit.MustCode(t, err, perr.ErrorCodeNotFound)
}

func TestLoadList_Empty(t *testing.T) {
	p := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(p, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := LoadList(p)
	if err != nil || len(got) != 0 {
		t.Fatalf("LoadList(empty) = %v, %v", got, err)
	}
}

func TestSniff(t *testing.T) {
	ustar := make([]byte, 300)
	copy(ustar[257:], "ustar")
	cases := map[string]struct {
		head []byte
		want format
	}{
		"gzip":  {[]byte{0x1f, 0x8b, 0x08}, formatGzip},
		"zstd":  {[]byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}, formatZstd},
		"bzip2": {[]byte("BZh91AY"), formatBzip2},
		"zip":   {[]byte("PK\x03\x04rest"), formatZip},
		"xz":    {[]byte{0xfd, '7', 'z', 'X', 'Z', 0x00, 0x00}, formatXz},
		"tar":   {ustar, formatTar},
		"text":  {[]byte("hello"), formatUnknown},
	}
	for name, c := range cases {
		if got := sniff(c.head); got != c.want {
			t.Fatalf("%s: sniff = %s, want %s", name, got, c.want)
		}
	}
}

var collected = map[string]string{
	"sosreport-host/etc/redhat-release": "Red Hat Enterprise Linux Server release 7.9 (Maipo)\n",
	"sosreport-host/installed-rpms":     "bash-4.2.46-34.el7.x86_64\n",
}

func TestExtract_Formats(t *testing.T) {
	dir := t.TempDir()
	archives := map[string]string{
		"plain": kit.TarFile(t, dir, "a.tar", collected, kit.Plain),
		"gzip":  kit.TarFile(t, dir, "a.tar.gz", collected, kit.Gzip),
		"zstd":  kit.TarFile(t, dir, "a.tar.zst", collected, kit.Zstd),
		"zip":   kit.ZipFile(t, dir, "a.zip", collected),
	}
	x := NewExtractor(nil, 0)
	for name, path := range archives {
		t.Run(name, func(t *testing.T) {
			ex, err := x.Extract(context.Background(), path, Options{TmpDir: t.TempDir()})
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if filepath.Base(ex.Root) != "sosreport-host" {
				t.Fatalf("Root = %s, want the single top-level dir", ex.Root)
			}
			b, err := os.ReadFile(filepath.Join(ex.Root, "etc", "redhat-release"))
			if err != nil {
				t.Fatalf("read extracted file: %v", err)
			}
			kit.MustContain(t, string(b), "release 7.9")

			scratch := ex.dir
			if err := ex.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if _, err := os.Stat(scratch); !os.IsNotExist(err) {
				t.Fatalf("scratch dir survived Close")
			}
		})
	}
}

func TestExtract_DirectoryInPlace(t *testing.T) {
	dir := kit.WriteTree(t, t.TempDir(), map[string]string{"etc/redhat-release": "x"})
	ex, err := NewExtractor(nil, 0).Extract(context.Background(), dir, Options{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ex.Root != dir {
		t.Fatalf("Root = %s, want %s", ex.Root, dir)
	}
	if err := ex.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("Close removed a caller-owned directory")
	}
}

func TestExtract_Errors(t *testing.T) {
	dir := t.TempDir()
	x := NewExtractor(nil, 0)
	ctx := context.Background()

	_, err := x.Extract(ctx, filepath.Join(dir, "nope.tar.gz"), Options{})
	kit.MustCode(t, err, perr.ErrorCodeNotFound)

	junk := filepath.Join(dir, "junk.tar.gz")
	if err := os.WriteFile(junk, []byte("not an archive at all"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err = x.Extract(ctx, junk, Options{TmpDir: dir})
	kit.MustCode(t, err, perr.ErrorCodeExtract)

	evil := kit.TarFile(t, dir, "evil.tar", map[string]string{"../../etc/passwd": "root::0:0"}, kit.Plain)
	_, err = x.Extract(ctx, evil, Options{TmpDir: dir})
	kit.MustCode(t, err, perr.ErrorCodeExtract)

	_, err = x.Extract(ctx, "https://example.invalid/a.tar.gz", Options{})
	kit.MustCode(t, err, perr.ErrorCodeInvalidArgument)

	entries, _ := filepath.Glob(filepath.Join(dir, "rhat-archive-*"))
	if len(entries) != 0 {
		t.Fatalf("failed extractions left scratch dirs: %v", entries)
	}
}

func TestExtract_SizeLimit(t *testing.T) {
	dir := t.TempDir()
	big := kit.TarFile(t, dir, "big.tar.gz", map[string]string{"f": string(make([]byte, 4096))}, kit.Gzip)
	_, err := NewExtractor(nil, 1024).Extract(context.Background(), big, Options{TmpDir: dir})
	kit.MustCode(t, err, perr.ErrorCodeExtract)
}

func TestExtract_Timeout(t *testing.T) {
	dir := t.TempDir()
	path := kit.TarFile(t, dir, "a.tar.gz", collected, kit.Gzip)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := NewExtractor(nil, 0).Extract(ctx, path, Options{TmpDir: dir})
	kit.MustCode(t, err, perr.ErrorCodeTimeout)
}

func TestSafeSymlink(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "d")
	path := filepath.Join(dir, "tmp.tar")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	tw := tar.NewWriter(f)
	body := "PermitRootLogin yes\n"
	_ = tw.WriteHeader(&tar.Header{Name: "h/etc/ssh/sshd_config", Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg})
	_, _ = tw.Write([]byte(body))
	_ = tw.WriteHeader(&tar.Header{Name: "h/sshd", Linkname: "etc/ssh/sshd_config", Typeflag: tar.TypeSymlink})
	_ = tw.WriteHeader(&tar.Header{Name: "h/shadow", Linkname: "../../../etc/shadow", Typeflag: tar.TypeSymlink})
	_ = tw.WriteHeader(&tar.Header{Name: "h/abs", Linkname: "/etc/shadow", Typeflag: tar.TypeSymlink})
	_ = tw.Close()
	_ = f.Close()

	ex, err := NewExtractor(nil, 0).Extract(context.Background(), path, Options{TmpDir: root})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	defer ex.Close()
	b, err := os.ReadFile(filepath.Join(ex.Root, "sshd"))
	if err != nil || string(b) != body {
		t.Fatalf("in-root symlink = %q, %v", b, err)
	}
	for _, name := range []string{"shadow", "abs"} {
		if _, err := os.Lstat(filepath.Join(ex.Root, name)); !os.IsNotExist(err) {
			t.Fatalf("escaping symlink %s was created", name)
		}
	}
}

func TestCachedFetcher_ConditionalGET(t *testing.T) {
	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewCachedFetcher(dir, NewHTTPFetcherWithTimeout(5*time.Second), WithRevalidate(true))
	url := srv.URL + "/archives/host.tar.gz"
	ctx := context.Background()

	p1, err := f.Fetch(ctx, url)
	if err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	if filepath.Ext(p1) != ".gz" {
		t.Fatalf("cache path %s lost the archive suffix", p1)
	}
	p2, err := f.Fetch(ctx, url)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if p1 != p2 {
		t.Fatalf("cache path changed: %s vs %s", p1, p2)
	}
	if hits.Load() != 2 || notModified.Load() != 1 {
		t.Fatalf("hits=%d notModified=%d, want 2/1", hits.Load(), notModified.Load())
	}
	b, _ := os.ReadFile(p2)
	if string(b) != "payload" {
		t.Fatalf("cached body = %q", b)
	}
	meta, err := loadMeta(p2 + ".meta")
	if err != nil || meta.ETag != `"v1"` || meta.Size != 7 {
		t.Fatalf("meta = %+v, %v", meta, err)
	}
}

func TestCachedFetcher_Errors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	f := NewCachedFetcher(t.TempDir(), nil)
	_, err := f.Fetch(context.Background(), srv.URL+"/missing.tar.gz")
	kit.MustCode(t, err, perr.ErrorCodeExtract)
}

func TestCachedFetcher_Retention(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.tar.gz")
	fresh := filepath.Join(dir, "fresh.tar.gz")
	for _, p := range []string{old, fresh} {
		if err := os.WriteFile(p, []byte("12345"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	f := NewCachedFetcher(dir, nil, WithRetention(24*time.Hour, 0))
	if err := f.cleanupOnce(); err != nil {
		t.Fatalf("cleanupOnce: %v", err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expired entry kept")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh entry removed: %v", err)
	}
}

func TestExtract_RemoteThroughFetcher(t *testing.T) {
	dir := t.TempDir()
	src := kit.TarFile(t, dir, "host.tar.gz", collected, kit.Gzip)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, src)
	}))
	defer srv.Close()

	x := NewExtractor(NewCachedFetcher(filepath.Join(dir, "cache"), nil), 0)
	ex, err := x.Extract(context.Background(), srv.URL+"/host.tar.gz", Options{TmpDir: dir})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	defer ex.Close()
	if _, err := os.Stat(filepath.Join(ex.Root, "installed-rpms")); err != nil {
		t.Fatalf("remote archive not extracted: %v", err)
	}
}
