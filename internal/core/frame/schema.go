// Package frame holds hit records in typed, partitioned tables. The column
// set is declared up front from the rule graph; partitions are persisted to a
// Store as they arrive and read back one at a time
package frame

import (
	"sort"

	perr "rhat/internal/platform/errors"
)

// Fixed column names
const (
	ColArchive  = "archive"
	ColKey      = "key"
	ColType     = "type"
	ColMakeFail = "make_fail"
	ColMajor    = "major"
	ColMinor    = "minor"
	ColError    = "error"
)

var reserved = map[string]bool{
	ColArchive: true, ColKey: true, ColType: true, ColMakeFail: true,
	ColMajor: true, ColMinor: true, ColError: true,
}

// ColumnType is the declared type of a column
type ColumnType uint8

// Column types
const (
	TypeBool ColumnType = iota + 1
	TypeString
	TypeInt8
)

// String returns the dtype name
func (t ColumnType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeString:
		return "str"
	case TypeInt8:
		return "int8"
	}
	return "unknown"
}

// Column is one declared column
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Schema declares the hit columns of a frame. Fixed metadata columns are implied
type Schema struct {
	hits []string
}

// NewSchema declares hit columns, sorted by name. Duplicates and reserved names are rejected
func NewSchema(hits []string) (Schema, error) {
	cols := append([]string(nil), hits...)
	sort.Strings(cols)
	for i, c := range cols {
		if c == "" {
			return Schema{}, perr.InvalidArgf("frame: empty column name")
		}
		if reserved[c] {
			return Schema{}, perr.WithField(perr.InvalidArgf("frame: %q is a reserved column", c), c)
		}
		if i > 0 && cols[i-1] == c {
			return Schema{}, perr.WithField(perr.InvalidArgf("frame: duplicate column %q", c), c)
		}
	}
	return Schema{hits: cols}, nil
}

// Hits returns the hit column names in declared order
func (s Schema) Hits() []string { return append([]string(nil), s.hits...) }

// BoolColumns returns the hit columns followed by make_fail
func (s Schema) BoolColumns() []string {
	return append(s.Hits(), ColMakeFail)
}

// Columns returns the full typed column list
func (s Schema) Columns() []Column {
	out := make([]Column, 0, len(s.hits)+7)
	for _, h := range s.hits {
		out = append(out, Column{Name: h, Type: TypeBool, Nullable: true})
	}
	return append(out,
		Column{Name: ColArchive, Type: TypeString},
		Column{Name: ColKey, Type: TypeString, Nullable: true},
		Column{Name: ColType, Type: TypeString, Nullable: true},
		Column{Name: ColMajor, Type: TypeInt8},
		Column{Name: ColMinor, Type: TypeInt8},
		Column{Name: ColMakeFail, Type: TypeBool},
		Column{Name: ColError, Type: TypeString, Nullable: true},
	)
}

// Conform returns r restricted to the declared hit columns; undeclared hits
// are dropped and missing ones are null
func (s Schema) Conform(r Record) Record {
	hits := make(map[string]*bool, len(s.hits))
	for _, h := range s.hits {
		hits[h] = r.Hits[h]
	}
	r.Hits = hits
	return r
}
