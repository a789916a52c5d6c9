// Package strings holds small string helpers for sql arguments
package strings

import std "strings"

// SQLNull returns nil if s is blank, else s. Use it for query args where
// NULL is wanted for blanks
func SQLNull(s string) any {
	if std.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// Deref returns "" if ps is nil, else *ps
func Deref(ps *string) string {
	if ps == nil {
		return ""
	}
	return *ps
}
