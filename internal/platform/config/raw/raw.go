// Package raw reads the LOG_* environment before the logger exists, so it must
// not import the logger or the config package
package raw

import (
	"os"
	"strconv"
	"strings"
)

// Conf is a prefixed view over the environment
type Conf struct{ prefix string }

// New returns the unprefixed root
func New() Conf { return Conf{} }

// Prefix nests p under the current prefix
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

func (c Conf) key(k string) string { return c.prefix + k }

// Get returns the trimmed env var or the provided default if empty
func (c Conf) Get(key, def string) string {
	v := strings.TrimSpace(os.Getenv(c.key(key)))
	if v == "" {
		return def
	}
	return v
}

// GetBool reads 1|true|yes|on as true and 0|false|no|off as false;
// anything else, empty included, yields def
func (c Conf) GetBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(c.key(key)))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// GetInt reads a non negative integer, falling back to def
func (c Conf) GetInt(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(c.key(key))))
	if err != nil || n < 0 {
		return def
	}
	return n
}
