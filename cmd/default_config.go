package cmd

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/parsim/sim/model"
	"github.com/inference-sim/parsim/sim/parsim"
	"github.com/inference-sim/parsim/sim/trace"
)

// Transports selectable with the transport key.
const (
	TransportMemory = "memory"
	TransportGRPC   = "grpc"
)

// RunConfig represents the full run configuration file.
// Every key must be listed to satisfy KnownFields(true) strict parsing.
type RunConfig struct {
	Protocol       string        `yaml:"protocol"`
	Partitions     int           `yaml:"partitions"`
	Debug          bool          `yaml:"debug"`            // log every synchronization decision
	IdealTableSize int           `yaml:"ideal_table_size"` // trace records per disk read
	TraceDir       string        `yaml:"trace_dir"`
	ReceiveTimeout time.Duration `yaml:"receive_timeout"` // 0 waits indefinitely
	Transport      string        `yaml:"transport"`
	Addresses      []string      `yaml:"addresses"` // one per partition, grpc only
	Horizon        int64         `yaml:"horizon"`
	Seed           int64         `yaml:"seed"`
	Model          model.Config  `yaml:"model"`
}

func defaultRunConfig() RunConfig {
	return RunConfig{
		Protocol:       string(parsim.ProtocolNoSync),
		Partitions:     2,
		IdealTableSize: trace.DefaultTableSize,
		TraceDir:       ".",
		Transport:      TransportMemory,
		Horizon:        10000,
		Seed:           42,
		Model:          model.DefaultConfig(),
	}
}

// loadRunConfig parses the YAML file at path over the defaults.
// Uses strict field checking: typos must cause errors.
func loadRunConfig(path string) (RunConfig, error) {
	cfg := defaultRunConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config YAML %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration against the protocols known to reg.
func (c RunConfig) Validate(reg *parsim.Registry) error {
	if !reg.Has(parsim.ProtocolKind(c.Protocol)) {
		return fmt.Errorf("unknown protocol %q (valid: %v)", c.Protocol, reg.Names())
	}
	if c.Partitions < 1 {
		return fmt.Errorf("partitions must be at least 1, got %d", c.Partitions)
	}
	if c.IdealTableSize <= 0 {
		return fmt.Errorf("ideal_table_size must be positive, got %d", c.IdealTableSize)
	}
	if c.ReceiveTimeout < 0 {
		return fmt.Errorf("receive_timeout must be non-negative, got %s", c.ReceiveTimeout)
	}
	if c.Horizon <= 0 {
		return fmt.Errorf("horizon must be positive, got %d", c.Horizon)
	}
	switch c.Transport {
	case TransportMemory:
	case TransportGRPC:
		if len(c.Addresses) > 0 && len(c.Addresses) != c.Partitions {
			return fmt.Errorf("partitions (%d) must match the number of addresses (%d)", c.Partitions, len(c.Addresses))
		}
	default:
		return fmt.Errorf("unknown transport %q (valid: %s, %s)", c.Transport, TransportMemory, TransportGRPC)
	}
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	return nil
}

// protocolConfig returns the settings handed to the synchronization protocols.
func (c RunConfig) protocolConfig() parsim.Config {
	return parsim.Config{
		Debug:          c.Debug,
		ReceiveTimeout: c.ReceiveTimeout,
		TableSize:      c.IdealTableSize,
		TraceDir:       c.TraceDir,
	}
}
