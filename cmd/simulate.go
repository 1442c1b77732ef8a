package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/parsim/sim"
	"github.com/inference-sim/parsim/sim/comm"
	"github.com/inference-sim/parsim/sim/model"
	"github.com/inference-sim/parsim/sim/parsim"
)

// runPartition builds the scheduler and workload of the partition served by
// c and runs it to completion.
func runPartition(ctx context.Context, cfg RunConfig, reg *parsim.Registry, c comm.Comm) (*sim.Metrics, error) {
	p := parsim.NewPartition(c)
	sched, err := reg.New(parsim.ProtocolKind(cfg.Protocol), p, cfg.protocolConfig())
	if err != nil {
		return nil, err
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	phold, err := model.NewPHOLD(cfg.Model, p, rng)
	if err != nil {
		return nil, err
	}
	phold.Seed()

	logrus.Infof("partition %d/%d: starting %s run, horizon=%dticks", p.ID, p.Count, cfg.Protocol, cfg.Horizon)
	m, err := p.Run(ctx, sched, phold, sim.SimTime(cfg.Horizon))
	if err != nil {
		return m, fmt.Errorf("partition %d: %w", p.ID, err)
	}
	logrus.Infof("partition %d: sent %d jobs, dropped %d", p.ID, phold.Sent, phold.Dropped)
	return m, nil
}

// runAll runs every partition in this process, one goroutine each.
func runAll(ctx context.Context, cfg RunConfig, reg *parsim.Registry) ([]*sim.Metrics, error) {
	comms, err := newComms(cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, c := range comms {
			_ = c.Close()
		}
	}()

	metrics := make([]*sim.Metrics, len(comms))
	errs := make([]error, len(comms))
	var wg sync.WaitGroup
	for i, c := range comms {
		wg.Add(1)
		go func(i int, c comm.Comm) {
			defer wg.Done()
			metrics[i], errs[i] = runPartition(ctx, cfg, reg, c)
		}(i, c)
	}
	wg.Wait()
	return metrics, errors.Join(errs...)
}

// newGRPCComm is replaced in tests.
var newGRPCComm = comm.NewGRPCComm

// newComms creates the endpoints of all partitions for an in-process run.
func newComms(cfg RunConfig) ([]comm.Comm, error) {
	comms := make([]comm.Comm, cfg.Partitions)
	if cfg.Transport == TransportMemory {
		hub := comm.NewHub(cfg.Partitions)
		for i := range comms {
			comms[i] = hub.Endpoint(i)
		}
		return comms, nil
	}

	addrs := cfg.Addresses
	if len(addrs) == 0 {
		addrs = make([]string, cfg.Partitions)
		for i := range addrs {
			addrs[i] = "127.0.0.1:0"
		}
	}
	listeners := make([]net.Listener, len(addrs))
	resolved := make([]string, len(addrs))
	for i, addr := range addrs {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			for _, l := range listeners[:i] {
				_ = l.Close()
			}
			return nil, fmt.Errorf("listening on %s: %w", addr, err)
		}
		listeners[i] = lis
		resolved[i] = lis.Addr().String()
	}
	for i := range comms {
		c, err := newGRPCComm(i, resolved)
		if err != nil {
			for _, started := range comms[:i] {
				_ = started.Close()
			}
			for _, l := range listeners {
				_ = l.Close()
			}
			return nil, err
		}
		go func(c *comm.GRPCComm, lis net.Listener) {
			if err := c.Serve(lis); err != nil {
				logrus.Debugf("partition %d: gRPC server stopped: %v", c.PartitionID(), err)
			}
		}(c, listeners[i])
		comms[i] = c
	}
	return comms, nil
}
