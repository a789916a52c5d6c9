package service

import (
	"cmp"
	"context"
	"slices"

	"rhat/internal/core/frame"
	"rhat/internal/core/similarity"
	"rhat/internal/services/analyze/domain"
)

type vtkKey struct {
	major int8
	typ   string
	key   string
}

// partial is the aggregate of one partition; partials merge associatively
type partial struct {
	n       int
	byMajor map[int8]int
	sums    map[int8]map[string]int
	vtk     map[vtkKey]int
}

func newPartial() partial {
	return partial{
		byMajor: map[int8]int{},
		sums:    map[int8]map[string]int{},
		vtk:     map[vtkKey]int{},
	}
}

func partialOf(cols []string, recs []frame.Record) partial {
	p := newPartial()
	for _, r := range recs {
		p.n++
		p.byMajor[r.Major]++
		row := p.sums[r.Major]
		if row == nil {
			row = make(map[string]int, len(cols))
			p.sums[r.Major] = row
		}
		for _, c := range cols {
			var v bool
			if c == frame.ColMakeFail {
				v = r.MakeFail
			} else {
				v, _ = r.Hit(c)
			}
			if v {
				row[c]++
			} else if _, ok := row[c]; !ok {
				row[c] = 0
			}
		}
		if r.Type != nil && r.Key != nil {
			p.vtk[vtkKey{major: r.Major, typ: *r.Type, key: *r.Key}]++
		}
	}
	return p
}

func (p *partial) merge(o partial) {
	p.n += o.n
	for m, c := range o.byMajor {
		p.byMajor[m] += c
	}
	for m, row := range o.sums {
		dst := p.sums[m]
		if dst == nil {
			dst = make(map[string]int, len(row))
			p.sums[m] = dst
		}
		for c, v := range row {
			dst[c] += v
		}
	}
	for k, v := range o.vtk {
		p.vtk[k] += v
	}
}

// Aggregate reduces a frame to a report. Partitions are streamed one at a
// time; only the bool projection used for similarity is held in memory
func Aggregate(ctx context.Context, f *frame.Frame) (domain.Report, error) {
	cols := f.Schema().BoolColumns()

	total := newPartial()
	err := f.Partitions(ctx, func(_ int, recs []frame.Record) error {
		total.merge(partialOf(cols, recs))
		return nil
	})
	if err != nil {
		return domain.Report{}, err
	}

	rep := domain.Report{
		NumArchives:       total.n,
		NumArchivesByRHEL: total.byMajor,
		HitsByRHEL:        total.sums,
		HitsByVTK:         make([]domain.VTK, 0, len(total.vtk)),
		GrandTotals:       make(map[string]int, len(cols)),
		Columns:           cols,
	}
	for _, c := range cols {
		rep.GrandTotals[c] = 0
	}
	for _, row := range total.sums {
		for c, v := range row {
			rep.GrandTotals[c] += v
		}
	}
	for k, n := range total.vtk {
		rep.HitsByVTK = append(rep.HitsByVTK, domain.VTK{Major: k.major, Type: k.typ, Key: k.key, Counts: n})
	}
	slices.SortFunc(rep.HitsByVTK, func(a, b domain.VTK) int {
		return cmp.Or(cmp.Compare(a.Major, b.Major), cmp.Compare(a.Type, b.Type), cmp.Compare(a.Key, b.Key))
	})

	proj, err := f.Project(ctx, cols)
	if err != nil {
		return domain.Report{}, err
	}
	rep.Similarity = similarity.Compute(proj.Names, proj.Data).Nested()
	return rep, nil
}
