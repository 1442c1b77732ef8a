package parsim

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/inference-sim/parsim/sim"
)

// ProtocolKind names a synchronization protocol variant.
type ProtocolKind string

const (
	ProtocolNoSync         ProtocolKind = "nosync"
	ProtocolIdeal          ProtocolKind = "ideal"
	ProtocolISPEventLogger ProtocolKind = "ispeventlogger"
)

// Constructor builds the scheduler of one partition.
type Constructor func(p *Partition, cfg Config) (sim.Scheduler, error)

// Registry maps protocol names to constructors. It is built at startup and
// passed to whoever configures the run.
type Registry struct {
	ctors map[ProtocolKind]Constructor
}

// NewRegistry returns a registry holding the built-in protocols.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[ProtocolKind]Constructor)}
	r.mustRegister(ProtocolNoSync, func(p *Partition, cfg Config) (sim.Scheduler, error) {
		return NewNoSynchronization(p, cfg), nil
	})
	r.mustRegister(ProtocolIdeal, func(p *Partition, cfg Config) (sim.Scheduler, error) {
		if cfg.TableSize <= 0 {
			return nil, fmt.Errorf("ideal simulation protocol: table size must be positive, got %d", cfg.TableSize)
		}
		return NewIdealSimulationProtocol(p, cfg), nil
	})
	r.mustRegister(ProtocolISPEventLogger, func(p *Partition, cfg Config) (sim.Scheduler, error) {
		ns := NewNoSynchronization(p, cfg)
		ns.stampSourcePriority()
		return NewEventLogger(ns, p, cfg), nil
	})
	return r
}

// Register adds a protocol. Names must be unique.
func (r *Registry) Register(kind ProtocolKind, ctor Constructor) error {
	if kind == "" {
		return fmt.Errorf("protocol name cannot be empty")
	}
	if ctor == nil {
		return fmt.Errorf("protocol %q: nil constructor", kind)
	}
	if _, exists := r.ctors[kind]; exists {
		return fmt.Errorf("protocol %q already registered", kind)
	}
	r.ctors[kind] = ctor
	return nil
}

func (r *Registry) mustRegister(kind ProtocolKind, ctor Constructor) {
	if err := r.Register(kind, ctor); err != nil {
		panic(err)
	}
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind ProtocolKind) bool {
	_, ok := r.ctors[kind]
	return ok
}

// Names returns the registered protocol names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ctors))
	for k := range r.ctors {
		names = append(names, string(k))
	}
	slices.Sort(names)
	return names
}

// New builds the scheduler named kind for partition p.
func (r *Registry) New(kind ProtocolKind, p *Partition, cfg Config) (sim.Scheduler, error) {
	ctor, ok := r.ctors[kind]
	if !ok {
		return nil, fmt.Errorf("unknown synchronization protocol %q (valid: %s)", kind, strings.Join(r.Names(), ", "))
	}
	return ctor(p, cfg)
}
