// Package domain holds the types and ports of the analysis service
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Format selects the report rendering
type Format string

const (
	// FormatJSON renders the report as indented JSON
	FormatJSON Format = "json"
	// FormatTable renders a human summary with tables
	FormatTable Format = "table"
)

// EvalOptions bounds the evaluation of a single archive
type EvalOptions struct {
	Timeout time.Duration
	TmpDir  string
}

// VTK is one (major, type, key) group and the number of archives in it
type VTK struct {
	Major  int8   `json:"major"`
	Type   string `json:"type"`
	Key    string `json:"key"`
	Counts int    `json:"counts"`
}

// Report is the aggregate result of one run
type Report struct {
	NumArchives       int                            `json:"num_archives"`
	NumArchivesByRHEL map[int8]int                   `json:"num_archives_by_rhel"`
	HitsByRHEL        map[int8]map[string]int        `json:"hits_by_rhel"`
	HitsByVTK         []VTK                          `json:"hits_by_vtk"`
	GrandTotals       map[string]int                 `json:"grand_totals"`
	Columns           []string                       `json:"columns"`
	Similarity        map[string]map[string]*float64 `json:"similarity"`
}

// RunStatus is the terminal state recorded in the run ledger
type RunStatus string

const (
	// RunRunning marks a run in progress
	RunRunning RunStatus = "running"
	// RunOK marks a run that produced a report
	RunOK RunStatus = "ok"
	// RunError marks a run that aborted
	RunError RunStatus = "error"
)

// RunStart is written when a run begins
type RunStart struct {
	ID       uuid.UUID
	Rule     string
	Input    string
	Archives int
}

// RunFinish is written when a run ends
type RunFinish struct {
	Status    RunStatus
	Failed    int
	Report    *Report
	ElapsedMS int
	ErrText   string
}

// RunRow is one ledger row as read back
type RunRow struct {
	ID         uuid.UUID  `json:"id"`
	Rule       string     `json:"rule"`
	Input      string     `json:"input"`
	Archives   int        `json:"archives"`
	Status     RunStatus  `json:"status"`
	Failed     int        `json:"failed"`
	Report     *Report    `json:"report,omitempty"`
	ErrText    string     `json:"error,omitempty"`
	ElapsedMS  int        `json:"elapsed_ms"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
