// Package archive loads archive lists, fetches remote archives into a local
// cache and unpacks archives into scratch directories
package archive

import (
	"bufio"
	"os"
	"strings"

	perr "rhat/internal/platform/errors"
)

// LoadList reads a newline-delimited archive list. Trailing whitespace is
// stripped and blank lines are skipped; order is preserved
func LoadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perr.WithField(perr.Wrapf(err, perr.ErrorCodeNotFound, "archive list %s", path), "input")
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "archive list %s", path)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r\n\v\f")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "read archive list %s", path)
	}
	return out, nil
}

// IsRemote reports whether ref is an http(s) location
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
