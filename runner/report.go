package runner

import (
	"sort"
	"time"
)

// Report summarises one cascade run.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool

	// NodesVisited counts workflow invocations, one per (node, parameter).
	NodesVisited int
	// Statements counts DELETE statements issued (or planned in a dry run).
	Statements int
	// RowsDeleted is keyed by table. In a dry run it holds matched rows.
	RowsDeleted  map[string]int64
	FilesDeleted int
	FileFailures int
}

func newReport(dryRun bool) *Report {
	return &Report{DryRun: dryRun, RowsDeleted: make(map[string]int64)}
}

// TotalRows returns the rows deleted across every table.
func (r *Report) TotalRows() int64 {
	var n int64
	for _, v := range r.RowsDeleted {
		n += v
	}
	return n
}

// Duration is the wall time between start and finish.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Tables returns the tables with deleted rows in name order.
func (r *Report) Tables() []string {
	out := make([]string, 0, len(r.RowsDeleted))
	for t := range r.RowsDeleted {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
