package errors

import (
	"context"
	stderrs "errors"
	"fmt"
	"testing"
)

func TestErrorTypeAndMethods(t *testing.T) {
	var e *Error
	if e.Error() != "<nil>" {
		t.Fatalf("nil *Error render = %q, want <nil>", e.Error())
	}

	e1 := New(ErrorCodeValidation, "bad spec")
	if CodeOf(e1) != ErrorCodeValidation {
		t.Fatalf("CodeOf(New) = %v", CodeOf(e1))
	}
	e2 := Newf(ErrorCodeExtract, "bad archive %d", 12)
	if got := e2.Error(); got != "bad archive 12" {
		t.Fatalf("Newf().Error = %q", got)
	}

	src := stderrs.New("root")
	e3 := Wrap(src, ErrorCodeDB, "db failed")
	if u := stderrs.Unwrap(e3); u == nil || u.Error() != "root" {
		t.Fatalf("Wrap did not keep orig")
	}
	e4 := Wrapf(src, ErrorCodeCluster, "worker %s", "w1")
	if want := "worker w1: root"; e4.Error() != want {
		t.Fatalf("Wrapf().Error = %q, want %q", e4.Error(), want)
	}
	if got, ok := As(e4); !ok || got.Code() != ErrorCodeCluster || got.Message() != "worker w1" {
		t.Fatalf("As() failed for our error")
	}
	if _, ok := As(src); ok {
		t.Fatalf("As() true for foreign error")
	}

	e5 := Wrap(src, ErrorCodeInvalidArgument, "oops")
	e6 := WithField(e5, "workers")
	e7 := WithOp(e6, "cluster.validate")
	if fe, ok := As(e6); !ok || fe.Field() != "workers" {
		t.Fatalf("WithField failed")
	}
	if oe, ok := As(e7); !ok || oe.Op() != "cluster.validate" {
		t.Fatalf("WithOp failed")
	}
	if fe0, _ := As(e5); fe0.Field() != "" || fe0.Op() != "" {
		t.Fatalf("copy-on-write mutated original")
	}
	if WithField(src, "x") != src || WithOp(src, "x") != src {
		t.Fatalf("mutators should pass foreign errors through")
	}

	if WrapIf(nil, ErrorCodeDB, "ignored") != nil {
		t.Fatalf("WrapIf(nil) should return nil")
	}
	if WrapIf(src, ErrorCodeDB, "db") == nil {
		t.Fatalf("WrapIf(non-nil) should wrap")
	}

	deep := fmt.Errorf("level2: %w", fmt.Errorf("level1: %w", src))
	if got := Root(deep); got == nil || got.Error() != "root" {
		t.Fatalf("Root() failed, got %v", got)
	}
	if !IsCode(ErrNotFound, ErrorCodeNotFound) {
		t.Fatalf("ErrNotFound code mismatch")
	}
}

func TestSugarCodes(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{NotFoundf("x"), ErrorCodeNotFound},
		{InvalidArgf("x"), ErrorCodeInvalidArgument},
		{Validationf("x"), ErrorCodeValidation},
		{DBf("x"), ErrorCodeDB},
		{PanicErrf("x"), ErrorCodePanic},
		{Unavailablef("x"), ErrorCodeUnavailable},
		{Timeoutf("x"), ErrorCodeTimeout},
		{NotARulef("x"), ErrorCodeNotARule},
		{Extractf("x"), ErrorCodeExtract},
		{Clusterf("x"), ErrorCodeCluster},
		{Internalf("x"), ErrorCodeUnknown},
	}
	for _, c := range cases {
		if got := CodeOf(c.err); got != c.want {
			t.Fatalf("CodeOf(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestCodeOf_DeadlineMapsToTimeout(t *testing.T) {
	err := fmt.Errorf("extract: %w", context.DeadlineExceeded)
	if got := CodeOf(err); got != ErrorCodeTimeout {
		t.Fatalf("CodeOf(deadline) = %v, want timeout", got)
	}
	if got := CodeOf(stderrs.New("x")); got != ErrorCodeUnknown {
		t.Fatalf("CodeOf(foreign) = %v, want unknown", got)
	}
}

func TestErrorCodeString(t *testing.T) {
	if got := ErrorCodeNotARule.String(); got != "not_a_rule" {
		t.Fatalf("String() = %q, want not_a_rule", got)
	}
	if got := ErrorCode(999).String(); got != "code(999)" {
		t.Fatalf("String(999) = %q", got)
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(Unavailablef("nats down")) {
		t.Fatalf("Unavailable should be retryable")
	}
	if Retryable(NotFoundf("x")) {
		t.Fatalf("NotFound should not be retryable")
	}
}
