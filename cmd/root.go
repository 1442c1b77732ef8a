package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/parsim/sim"
	"github.com/inference-sim/parsim/sim/parsim"
)

var (
	// CLI flags shared by run and partition
	configPath     string        // YAML run configuration
	logLevel       string        // Log verbosity level
	protocol       string        // Synchronization protocol name
	partitions     int           // Number of partitions
	simHorizon     int64         // Total simulation time (in ticks)
	seed           int64         // Seed for the PHOLD workload
	traceDir       string        // Directory of the per-partition trace files
	tableSize      int           // Trace records per disk read
	transport      string        // memory or grpc
	addresses      []string      // gRPC listen address of every partition
	receiveTimeout time.Duration // Receive timeout, 0 waits indefinitely
	debug          bool          // Log every synchronization decision

	// CLI flags for the PHOLD workload
	population     int
	remoteFraction float64
	meanDelay      float64
	lookahead      int64

	// partition-only
	partitionID int

	// trace-only
	traceTableSize int
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "parsim",
	Short: "Parallel discrete-event simulation with pluggable partition synchronization",
}

// runCmd executes all partitions in this process
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every partition of the PHOLD benchmark in this process",
	Run: func(cmd *cobra.Command, args []string) {
		reg := parsim.NewRegistry()
		cfg := mustResolveConfig(cmd, reg)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		all, err := runAll(ctx, cfg, reg)
		for _, m := range all {
			if m != nil {
				m.Print()
			}
		}
		sim.Summarize(all).Print()
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Info("Simulation complete.")
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// mustResolveConfig merges the config file and explicitly set flags, then
// sets up logging. Invalid configurations end the process.
func mustResolveConfig(cmd *cobra.Command, reg *parsim.Registry) RunConfig {
	cfg, err := resolveConfig(cmd, reg)
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

func resolveConfig(cmd *cobra.Command, reg *parsim.Registry) (RunConfig, error) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return RunConfig{}, err
	}
	logrus.SetLevel(level)

	cfg := defaultRunConfig()
	if configPath != "" {
		if cfg, err = loadRunConfig(configPath); err != nil {
			return cfg, err
		}
	}
	applyFlagOverrides(cmd, &cfg)
	if cfg.Debug && !logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.SetLevel(logrus.DebugLevel)
	}
	return cfg, cfg.Validate(reg)
}

// applyFlagOverrides copies flags the user set explicitly over the file values.
func applyFlagOverrides(cmd *cobra.Command, cfg *RunConfig) {
	flags := cmd.Flags()
	if flags.Changed("protocol") {
		cfg.Protocol = protocol
	}
	if flags.Changed("partitions") {
		cfg.Partitions = partitions
	}
	if flags.Changed("horizon") {
		cfg.Horizon = simHorizon
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("trace-dir") {
		cfg.TraceDir = traceDir
	}
	if flags.Changed("ideal-table-size") {
		cfg.IdealTableSize = tableSize
	}
	if flags.Changed("transport") {
		cfg.Transport = transport
	}
	if flags.Changed("addresses") {
		cfg.Addresses = addresses
	}
	if flags.Changed("receive-timeout") {
		cfg.ReceiveTimeout = receiveTimeout
	}
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	if flags.Changed("population") {
		cfg.Model.Population = population
	}
	if flags.Changed("remote-fraction") {
		cfg.Model.RemoteFraction = remoteFraction
	}
	if flags.Changed("mean-delay") {
		cfg.Model.MeanDelay = meanDelay
	}
	if flags.Changed("lookahead") {
		cfg.Model.Lookahead = sim.SimTime(lookahead)
	}
}

func addRunFlags(cmd *cobra.Command) {
	defaults := defaultRunConfig()
	cmd.Flags().StringVar(&configPath, "config", "", "YAML run configuration; explicitly set flags override it")
	cmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	cmd.Flags().StringVar(&protocol, "protocol", defaults.Protocol, "Synchronization protocol (ideal, ispeventlogger, nosync)")
	cmd.Flags().IntVar(&partitions, "partitions", defaults.Partitions, "Number of partitions")
	cmd.Flags().Int64Var(&simHorizon, "horizon", defaults.Horizon, "Total simulation horizon (in ticks)")
	cmd.Flags().Int64Var(&seed, "seed", defaults.Seed, "Seed for the PHOLD workload")
	cmd.Flags().StringVar(&traceDir, "trace-dir", defaults.TraceDir, "Directory of the per-partition event traces")
	cmd.Flags().IntVar(&tableSize, "ideal-table-size", defaults.IdealTableSize, "Trace records loaded per disk read")
	cmd.Flags().StringVar(&transport, "transport", defaults.Transport, "Communication layer (memory, grpc)")
	cmd.Flags().StringSliceVar(&addresses, "addresses", nil, "Comma-separated gRPC address of every partition, in partition order")
	cmd.Flags().DurationVar(&receiveTimeout, "receive-timeout", 0, "Receive timeout while waiting for other partitions (0 waits indefinitely)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Log every synchronization decision")

	// PHOLD workload
	cmd.Flags().IntVar(&population, "population", defaults.Model.Population, "Initial jobs per partition")
	cmd.Flags().Float64Var(&remoteFraction, "remote-fraction", defaults.Model.RemoteFraction, "Probability that a job moves to another partition")
	cmd.Flags().Float64Var(&meanDelay, "mean-delay", defaults.Model.MeanDelay, "Mean exponential job delay (in ticks)")
	cmd.Flags().Int64Var(&lookahead, "lookahead", int64(defaults.Model.Lookahead), "Minimum job delay (in ticks)")
}

// init sets up CLI flags and subcommands
func init() {
	addRunFlags(runCmd)
	addRunFlags(partitionCmd)
	partitionCmd.Flags().IntVar(&partitionID, "id", 0, "Partition served by this process")

	traceCmd.PersistentFlags().IntVar(&traceTableSize, "table-size", 0, "Trace records loaded per disk read (0 selects the default)")
	traceCmd.AddCommand(traceDumpCmd, traceSummaryCmd)

	rootCmd.AddCommand(runCmd, partitionCmd, traceCmd)
}
