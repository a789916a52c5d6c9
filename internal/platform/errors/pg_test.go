package errors

import (
	"context"
	stderrs "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func pg(code string) *pgconn.PgError { return &pgconn.PgError{Code: code} }

func TestDBErrorCodeMappings(t *testing.T) {
	cases := []struct {
		code string
		want ErrorCode
	}{
		{"23505", ErrorCodeDuplicateKey},
		{"23503", ErrorCodeInvalidArgument},
		{"23502", ErrorCodeValidation},
		{"23514", ErrorCodeValidation},
		{"22001", ErrorCodeInvalidArgument},
		{"22P02", ErrorCodeInvalidArgument},
		{"42P01", ErrorCodeNotFound},
		{"40001", ErrorCodeDB},
		{"25006", ErrorCodeUnavailable},
		{"57P03", ErrorCodeUnavailable},
		{"XXXXX", ErrorCodeDB},
	}
	for _, c := range cases {
		got, ok := DBErrorCode(pg(c.code))
		if !ok {
			t.Fatalf("expected ok for PgError code %s", c.code)
		}
		if got != c.want {
			t.Fatalf("DBErrorCode(%s) = %v, want %v", c.code, got, c.want)
		}
	}
	if _, ok := DBErrorCode(stderrs.New("nope")); ok {
		t.Fatalf("DBErrorCode should return ok=false for non-pg error")
	}
}

func TestFromPostgres(t *testing.T) {
	if FromPostgres(nil, "x") != nil {
		t.Fatalf("FromPostgres(nil) should be nil")
	}
	if got := CodeOf(FromPostgres(pg("23505"), "start run")); got != ErrorCodeDuplicateKey {
		t.Fatalf("FromPostgres code = %v, want duplicate_key", got)
	}
	if got := CodeOf(FromPostgres(stderrs.New("conn reset"), "start run")); got != ErrorCodeDB {
		t.Fatalf("FromPostgres(foreign) code = %v, want db", got)
	}
	err := FromPostgresf(pg("42P01"), "finish run %s", "r1")
	if !IsCode(err, ErrorCodeNotFound) || !IsUndefinedTable(err) {
		t.Fatalf("FromPostgresf undefined table = %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization", pg("40001"), true},
		{"deadlock", pg("40P01"), true},
		{"lock", pg("55P03"), true},
		{"startup", pg("57P03"), true},
		{"unique", pg("23505"), false},
		{"wrapped serialization", fmt.Errorf("tx: %w", pg("40001")), true},
		{"commit text", stderrs.New("commit unexpectedly resulted in rollback"), true},
		{"canceled", context.Canceled, false},
		{"foreign", stderrs.New("nope"), false},
	}
	for _, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Fatalf("IsRetryable(%s) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(Wrap(pgx.ErrNoRows, ErrorCodeDB, "get")) {
		t.Fatalf("wrapped ErrNoRows not recognized")
	}
	if IsNoRows(Unavailablef("down")) {
		t.Fatalf("unrelated error recognized as no rows")
	}
}
