// Package model holds synthetic workloads that exercise the partition
// synchronization protocols.
package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/inference-sim/parsim/sim"
	"github.com/inference-sim/parsim/sim/comm"
	"github.com/inference-sim/parsim/sim/parsim"
)

// KindPHOLD is the event kind of PHOLD jobs.
const KindPHOLD = 1

const sendTimeout = 10 * time.Second

// Config describes a PHOLD workload.
type Config struct {
	Population     int         `yaml:"population"`      // initial events per partition
	RemoteFraction float64     `yaml:"remote_fraction"` // probability that a successor goes to another partition
	MeanDelay      float64     `yaml:"mean_delay"`      // mean of the exponential delay, in ticks
	Lookahead      sim.SimTime `yaml:"lookahead"`       // minimum delay added to every successor
}

// DefaultConfig returns a small workload suitable for demos.
func DefaultConfig() Config {
	return Config{Population: 16, RemoteFraction: 0.25, MeanDelay: 10, Lookahead: 1}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Population <= 0:
		return fmt.Errorf("population must be positive, got %d", c.Population)
	case c.RemoteFraction < 0 || c.RemoteFraction > 1 || math.IsNaN(c.RemoteFraction):
		return fmt.Errorf("remote_fraction must be in [0,1], got %v", c.RemoteFraction)
	case c.MeanDelay <= 0 || math.IsInf(c.MeanDelay, 0) || math.IsNaN(c.MeanDelay):
		return fmt.Errorf("mean_delay must be a positive finite number, got %v", c.MeanDelay)
	case c.Lookahead < 0:
		return fmt.Errorf("lookahead must be non-negative, got %d", c.Lookahead)
	}
	return nil
}

// PHOLD is the classic hold benchmark: a fixed population of jobs where
// every executed job schedules exactly one successor.
type PHOLD struct {
	cfg   Config
	part  *parsim.Partition
	rng   *rand.Rand
	delay distuv.Exponential

	// Sent counts successors delivered to other partitions.
	Sent int
	// Dropped counts successors addressed to partitions that already stopped.
	Dropped int
}

// NewPHOLD creates the workload of partition p, drawing from p's own stream of rng.
func NewPHOLD(cfg Config, p *parsim.Partition, rng *sim.PartitionedRNG) (*PHOLD, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("phold: %w", err)
	}
	src := rng.ForSubsystem(sim.SubsystemPartition(p.ID))
	return &PHOLD{
		cfg:   cfg,
		part:  p,
		rng:   src,
		delay: distuv.Exponential{Rate: 1 / cfg.MeanDelay, Src: src},
	}, nil
}

// Seed schedules the initial population into the local FES.
func (m *PHOLD) Seed() {
	for i := 0; i < m.cfg.Population; i++ {
		m.part.Schedule(sim.NewEvent(m.nextTime(0), 0, KindPHOLD, nil))
	}
}

func (m *PHOLD) nextTime(now sim.SimTime) sim.SimTime {
	return now + m.cfg.Lookahead + sim.SimTime(math.Floor(m.delay.Rand()))
}

// pickDestination returns the partition of the next successor.
func (m *PHOLD) pickDestination() int {
	n := m.part.Count
	if n == 1 || m.rng.Float64() >= m.cfg.RemoteFraction {
		return m.part.ID
	}
	// uniformly among the other partitions
	dest := m.rng.IntN(n - 1)
	if dest >= m.part.ID {
		dest++
	}
	return dest
}

// HandleEvent executes one job and schedules its successor.
func (m *PHOLD) HandleEvent(ev *sim.Event) error {
	if ev.Kind() != KindPHOLD {
		return fmt.Errorf("phold: unexpected event kind %d", ev.Kind())
	}
	next := sim.NewEvent(m.nextTime(ev.ArrivalTime()), 0, KindPHOLD, nil)
	dest := m.pickDestination()
	if dest == m.part.ID {
		m.part.Schedule(next)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	err := m.part.SendEvent(ctx, next, dest)
	if errors.Is(err, comm.ErrInterrupted) {
		logrus.Debugf("partition %d: dropping job for stopped partition %d", m.part.ID, dest)
		m.Dropped++
		return nil
	}
	if err != nil {
		return err
	}
	m.Sent++
	return nil
}
