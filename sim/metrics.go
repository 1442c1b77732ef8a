// Tracks per-partition run statistics such as executed events, remote
// arrivals and the number of polls that yielded no event.

package sim

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Metrics aggregates statistics about one partition's run
// for final reporting.
type Metrics struct {
	PartitionID    int
	EventsExecuted int     // Events handed to the handler
	LocalEvents    int     // Executed events originated in this partition
	RemoteEvents   int     // Executed events received from other partitions
	EmptyPolls     int     // TakeNextEvent calls that returned no event
	FinalClock     SimTime // Clock when the run ended
	WallTime       time.Duration

	Termination string // Reason of a clean termination, empty if the horizon ended the run
}

// Print displays aggregated metrics at the end of the run.
func (m *Metrics) Print() {
	fmt.Printf("=== Partition %d Metrics ===\n", m.PartitionID)
	fmt.Printf("Events Executed      : %d\n", m.EventsExecuted)
	fmt.Printf("  local              : %d\n", m.LocalEvents)
	fmt.Printf("  remote             : %d\n", m.RemoteEvents)
	fmt.Printf("Empty Polls          : %d\n", m.EmptyPolls)
	fmt.Printf("Final Clock          : %d ticks\n", m.FinalClock)
	fmt.Printf("Wall Time            : %s\n", m.WallTime)
	if m.WallTime > 0 {
		fmt.Printf("Event Rate           : %.2f events/s\n", float64(m.EventsExecuted)/m.WallTime.Seconds())
	}
	if m.Termination != "" {
		fmt.Printf("Termination          : %s\n", m.Termination)
	}
}

// RunSummary aggregates the metrics of all partitions of one run.
type RunSummary struct {
	Partitions      int
	TotalEvents     int
	TotalRemote     int
	MeanEvents      float64 // Mean executed events per partition
	StdDevEvents    float64 // Load imbalance across partitions
	MaxWallTime     time.Duration
	EventsPerSecond float64
}

// Summarize computes aggregate statistics over partition metrics.
// Safe for nil or empty input (returns zero-value fields).
func Summarize(all []*Metrics) *RunSummary {
	s := &RunSummary{}
	counts := make([]float64, 0, len(all))
	for _, m := range all {
		if m == nil {
			continue
		}
		s.Partitions++
		s.TotalEvents += m.EventsExecuted
		s.TotalRemote += m.RemoteEvents
		counts = append(counts, float64(m.EventsExecuted))
		if m.WallTime > s.MaxWallTime {
			s.MaxWallTime = m.WallTime
		}
	}
	if len(counts) == 0 {
		return s
	}
	s.MeanEvents = stat.Mean(counts, nil)
	if len(counts) > 1 {
		s.StdDevEvents = stat.StdDev(counts, nil)
	}
	if s.MaxWallTime > 0 {
		s.EventsPerSecond = float64(s.TotalEvents) / s.MaxWallTime.Seconds()
	}
	return s
}

// Print displays the run summary.
func (s *RunSummary) Print() {
	fmt.Println("=== Run Summary ===")
	fmt.Printf("Partitions           : %d\n", s.Partitions)
	fmt.Printf("Total Events         : %d\n", s.TotalEvents)
	fmt.Printf("Remote Events        : %d\n", s.TotalRemote)
	fmt.Printf("Events / Partition   : %.2f (stddev %.2f)\n", s.MeanEvents, s.StdDevEvents)
	fmt.Printf("Wall Time            : %s\n", s.MaxWallTime)
	fmt.Printf("Event Rate           : %.2f events/s\n", s.EventsPerSecond)
}
