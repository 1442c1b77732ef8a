package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"

	"github.com/inference-sim/parsim/sim/trace"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect external event traces recorded by the ispeventlogger protocol",
}

var traceDumpCmd = &cobra.Command{
	Use:   "dump <trace-file>",
	Short: "Print every record of a trace, one per line",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := dumpTrace(os.Stdout, args[0], traceTableSize); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

var traceSummaryCmd = &cobra.Command{
	Use:   "summary <trace-file>",
	Short: "Print aggregate statistics of a trace",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r, err := trace.Open(args[0], traceTableSize)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		defer r.Close()
		s, err := trace.Summarize(r)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		printTraceSummary(os.Stdout, s)
	},
}

// dumpTrace writes "time<TAB>source" lines for every record of the trace at path.
func dumpTrace(w io.Writer, path string, tableSize int) error {
	r, err := trace.Open(path, tableSize)
	if err != nil {
		return err
	}
	defer r.Close()
	fmt.Fprintln(w, "time\tsrc")
	for {
		e, err := r.LoadNext()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%d\n", e.Time, e.SourcePartition)
	}
}

func printTraceSummary(w io.Writer, s *trace.TraceSummary) {
	fmt.Fprintln(w, "=== Trace Summary ===")
	fmt.Fprintf(w, "Records              : %d\n", s.Records)
	if s.Records == 0 {
		return
	}
	fmt.Fprintf(w, "Time Range           : %d .. %d ticks\n", s.FirstTime, s.LastTime)
	fmt.Fprintf(w, "Non-monotonic        : %d\n", s.NonMonotonic)
	sources := make([]int32, 0, len(s.SourceDistribution))
	for src := range s.SourceDistribution {
		sources = append(sources, src)
	}
	slices.Sort(sources)
	for _, src := range sources {
		fmt.Fprintf(w, "  from partition %-4d: %d\n", src, s.SourceDistribution[src])
	}
}
