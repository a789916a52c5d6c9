// Package similarity computes pairwise 1 - Hamming similarity between bool columns
package similarity

// Matrix is a square similarity matrix in column order. A nil cell means the
// value is undefined (no rows to compare)
type Matrix struct {
	Names  []string
	Values [][]*float64
}

// Hamming returns the fraction of positions where a and b disagree.
// ok is false for empty or unequal-length inputs
func Hamming(a, b []bool) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	diff := 0
	for i := range a {
		if a[i] != b[i] {
			diff++
		}
	}
	return float64(diff) / float64(len(a)), true
}

// Compute builds the similarity matrix of cols. Names and cols must align;
// with zero rows every cell is undefined
func Compute(names []string, cols [][]bool) Matrix {
	n := len(names)
	m := Matrix{Names: append([]string(nil), names...), Values: make([][]*float64, n)}
	for i := range m.Values {
		m.Values[i] = make([]*float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			d, ok := Hamming(cols[i], cols[j])
			if !ok {
				continue
			}
			s := 1 - d
			m.Values[i][j] = &s
			if i != j {
				m.Values[j][i] = &s
			}
		}
	}
	return m
}

// At returns the cell for (a, b) by name
func (m Matrix) At(a, b string) (float64, bool) {
	i, j := m.index(a), m.index(b)
	if i < 0 || j < 0 || m.Values[i][j] == nil {
		return 0, false
	}
	return *m.Values[i][j], true
}

func (m Matrix) index(name string) int {
	for i, n := range m.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Nested returns the matrix as row name -> column name -> value, the shape
// the report serializes
func (m Matrix) Nested() map[string]map[string]*float64 {
	out := make(map[string]map[string]*float64, len(m.Names))
	for i, a := range m.Names {
		row := make(map[string]*float64, len(m.Names))
		for j, b := range m.Names {
			row[b] = m.Values[i][j]
		}
		out[a] = row
	}
	return out
}
