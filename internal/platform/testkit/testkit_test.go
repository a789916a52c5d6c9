package testkit

import (
	"testing"

	perr "rhat/internal/platform/errors"
)

func TestMustPanic(t *testing.T) {
	t.Parallel()
	MustPanic(t, func() { panic("boom") })
}

func TestMustNotPanic(t *testing.T) {
	t.Parallel()
	MustNotPanic(t, func() {})
}

func TestMustContain(t *testing.T) {
	t.Parallel()
	MustContain(t, "alpha beta gamma", "beta")
}

func TestMustCode(t *testing.T) {
	t.Parallel()
	MustCode(t, perr.NotARulef("x is not a rule"), perr.ErrorCodeNotARule)
}
