package service

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	perr "rhat/internal/platform/errors"
	"rhat/internal/services/analyze/domain"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ParseFormat validates a format name; empty means json
func ParseFormat(s string) (domain.Format, error) {
	switch domain.Format(s) {
	case "", domain.FormatJSON:
		return domain.FormatJSON, nil
	case domain.FormatTable:
		return domain.FormatTable, nil
	}
	return "", perr.WithField(perr.InvalidArgf("unknown format %q (want json or table)", s), "format")
}

// Emit writes the report to w
func Emit(w io.Writer, rep domain.Report, format domain.Format) error {
	switch format {
	case "", domain.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return perr.Wrap(err, perr.ErrorCodeUnavailable, "write report")
		}
		return nil
	case domain.FormatTable:
		return emitTables(w, rep)
	}
	return perr.InvalidArgf("unknown format %q", format)
}

// NewTable returns a table writer with the house style
func NewTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(cases.Title(language.English).String(title))
	t.Style().Title.Align = text.AlignLeft
	return t
}

func emitTables(w io.Writer, rep domain.Report) error {
	majors := make([]int8, 0, len(rep.NumArchivesByRHEL))
	for m := range rep.NumArchivesByRHEL {
		majors = append(majors, m)
	}
	slices.Sort(majors)

	sections := make([]table.Writer, 0, 4)

	byRel := NewTable("archives by release")
	header := table.Row{"major", "archives"}
	for _, c := range rep.Columns {
		header = append(header, c)
	}
	byRel.AppendHeader(header)
	for _, m := range majors {
		row := table.Row{majorLabel(m), rep.NumArchivesByRHEL[m]}
		for _, c := range rep.Columns {
			row = append(row, rep.HitsByRHEL[m][c])
		}
		byRel.AppendRow(row)
	}
	footer := table.Row{"total", rep.NumArchives}
	for _, c := range rep.Columns {
		footer = append(footer, rep.GrandTotals[c])
	}
	byRel.AppendFooter(footer)
	sections = append(sections, byRel)

	vtk := NewTable("responses")
	vtk.AppendHeader(table.Row{"major", "type", "key", "archives"})
	for _, v := range rep.HitsByVTK {
		vtk.AppendRow(table.Row{majorLabel(v.Major), v.Type, v.Key, v.Counts})
	}
	sections = append(sections, vtk)

	sim := NewTable("similarity")
	header = table.Row{""}
	for _, c := range rep.Columns {
		header = append(header, c)
	}
	sim.AppendHeader(header)
	for _, a := range rep.Columns {
		row := table.Row{a}
		for _, b := range rep.Columns {
			row = append(row, cell(rep.Similarity[a][b]))
		}
		sim.AppendRow(row)
	}
	sections = append(sections, sim)

	for i, t := range sections {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return perr.Wrap(err, perr.ErrorCodeUnavailable, "write report")
			}
		}
		if _, err := io.WriteString(w, t.Render()+"\n"); err != nil {
			return perr.Wrap(err, perr.ErrorCodeUnavailable, "write report")
		}
	}
	return nil
}

func majorLabel(m int8) string {
	if m < 0 {
		return "unknown"
	}
	return fmt.Sprintf("RHEL %d", m)
}

func cell(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *v)
}
