package frame

// UnknownVersion marks a major/minor that could not be determined
const UnknownVersion int8 = -1

// Record is one evaluated archive
type Record struct {
	Archive  string           `msgpack:"archive" json:"archive"`
	Hits     map[string]*bool `msgpack:"hits" json:"hits"`
	Key      *string          `msgpack:"key" json:"key"`
	Type     *string          `msgpack:"type" json:"type"`
	MakeFail bool             `msgpack:"make_fail" json:"make_fail"`
	Major    int8             `msgpack:"major" json:"major"`
	Minor    int8             `msgpack:"minor" json:"minor"`
	Error    *string          `msgpack:"error" json:"error,omitempty"`
}

// NullRecord is the row of an archive that could not be evaluated: every
// check is null and the archive reference and error text are kept
func NullRecord(archive string, err error) Record {
	r := Record{Archive: archive, Hits: map[string]*bool{}, Major: UnknownVersion, Minor: UnknownVersion}
	if err != nil {
		r.Error = Str(err.Error())
	}
	return r
}

// Hit returns the value of a hit column as (value, present)
func (r Record) Hit(col string) (bool, bool) {
	if p := r.Hits[col]; p != nil {
		return *p, true
	}
	return false, false
}

// Bool returns a pointer to v
func Bool(v bool) *bool { return &v }

// Str returns a pointer to s
func Str(s string) *string { return &s }

// Partition splits xs into consecutive chunks of at most size items.
// size < 1 is treated as 1
func Partition[T any](xs []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	out := make([][]T, 0, (len(xs)+size-1)/size)
	for start := 0; start < len(xs); start += size {
		end := min(start+size, len(xs))
		out = append(out, xs[start:end:end])
	}
	return out
}
