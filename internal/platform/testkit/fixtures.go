package testkit

import (
	"archive/tar"
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression selects the outer stream of a tar fixture
type Compression int

const (
	// Plain writes an uncompressed tar
	Plain Compression = iota
	// Gzip writes a .tar.gz
	Gzip
	// Zstd writes a .tar.zst
	Zstd
)

func sortedKeys(files map[string]string) []string {
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// WriteTree materializes files (relative path -> content) under dir
func WriteTree(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	for _, rel := range sortedKeys(files) {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", p, err)
		}
		if err := os.WriteFile(p, []byte(files[rel]), 0o600); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	return dir
}

// TarFile writes a tar archive named name into dir and returns its path
func TarFile(t *testing.T, dir, name string, files map[string]string, c Compression) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create %s: %v", p, err)
	}
	defer f.Close()

	var w io.Writer = f
	var closer io.Closer
	switch c {
	case Gzip:
		gz := gzip.NewWriter(f)
		w, closer = gz, gz
	case Zstd:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			t.Fatalf("zstd writer: %v", err)
		}
		w, closer = zw, zw
	}

	tw := tar.NewWriter(w)
	for _, rel := range sortedKeys(files) {
		body := files[rel]
		hdr := &tar.Header{Name: rel, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", rel, err)
		}
		if _, err := io.WriteString(tw, body); err != nil {
			t.Fatalf("tar body %s: %v", rel, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if closer != nil {
		if err := closer.Close(); err != nil {
			t.Fatalf("compressor close: %v", err)
		}
	}
	return p
}

// ZipFile writes a zip archive named name into dir and returns its path
func ZipFile(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create %s: %v", p, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, rel := range sortedKeys(files) {
		w, err := zw.Create(rel)
		if err != nil {
			t.Fatalf("zip entry %s: %v", rel, err)
		}
		if _, err := io.WriteString(w, files[rel]); err != nil {
			t.Fatalf("zip body %s: %v", rel, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return p
}
