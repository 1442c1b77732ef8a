package trace

import (
	"errors"
	"io"

	"github.com/inference-sim/parsim/sim"
)

// TraceSummary aggregates statistics over a trace.
type TraceSummary struct {
	Records            int
	FirstTime          sim.SimTime
	LastTime           sim.SimTime
	NonMonotonic       int           // records whose time precedes the previous record
	SourceDistribution map[int32]int // source partition → record count
}

// Summarize reads r to the end and computes aggregate statistics.
// Safe for an empty trace (returns zero-value fields).
func Summarize(r *Reader) (*TraceSummary, error) {
	summary := &TraceSummary{
		SourceDistribution: make(map[int32]int),
	}
	for {
		e, err := r.LoadNext()
		if errors.Is(err, io.EOF) {
			return summary, nil
		}
		if err != nil {
			return summary, err
		}
		if summary.Records == 0 {
			summary.FirstTime = e.Time
		} else if e.Time < summary.LastTime {
			summary.NonMonotonic++
		}
		summary.LastTime = e.Time
		summary.Records++
		summary.SourceDistribution[e.SourcePartition]++
	}
}
