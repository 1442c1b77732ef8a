package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/parsim/sim"
	"github.com/inference-sim/parsim/sim/comm"
	"github.com/inference-sim/parsim/sim/parsim"
)

// partitionCmd executes one partition per OS process, connected over gRPC
var partitionCmd = &cobra.Command{
	Use:   "partition",
	Short: "Run a single partition that talks to its peers over gRPC",
	Run: func(cmd *cobra.Command, args []string) {
		reg := parsim.NewRegistry()
		cfg := mustResolveConfig(cmd, reg)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		m, err := serveOne(ctx, cfg, reg, partitionID)
		if m != nil {
			m.Print()
		}
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Info("Simulation complete.")
	},
}

// serveOne runs partition id of a multi-process run. Peers are reached at
// cfg.Addresses, which must list every partition.
func serveOne(ctx context.Context, cfg RunConfig, reg *parsim.Registry, id int) (*sim.Metrics, error) {
	if cfg.Transport != TransportGRPC {
		return nil, fmt.Errorf("partition mode requires the %s transport, got %q", TransportGRPC, cfg.Transport)
	}
	if len(cfg.Addresses) != cfg.Partitions {
		return nil, fmt.Errorf("partition mode needs one address per partition, got %d for %d partitions", len(cfg.Addresses), cfg.Partitions)
	}
	c, err := comm.NewGRPCComm(id, cfg.Addresses)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	addr, err := c.ListenAndServe()
	if err != nil {
		return nil, err
	}
	logrus.Infof("partition %d: listening on %s", id, addr)
	return runPartition(ctx, cfg, reg, c)
}
