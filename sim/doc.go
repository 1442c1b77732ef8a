// Package sim provides the event-ordering core of a partitioned discrete-event
// simulation.
//
// # Reading Guide
//
// Start with these files:
//   - event.go: Event, SimTime and the FES ordering key
//   - fes.go: FutureEventSet, the per-partition priority structure
//   - scheduler.go: the Scheduler strategy consumed by the main loop
//   - runner.go: the main loop that drives one partition
//
// # Architecture
//
// The sim package defines the data model and interfaces; implementations
// live in sub-packages:
//   - sim/comm/: communication layers (in-memory hub, gRPC)
//   - sim/parsim/: partitions, the shared synchronization base and the
//     protocol variants (nosync, ideal, ispeventlogger)
//   - sim/trace/: the binary external-event trace store
//   - sim/model/: the PHOLD benchmark model
//
// Protocols are selected through an explicit parsim.Registry that the caller
// builds at startup; nothing is registered globally.
//
// # Error Taxonomy
//
// Clean ends of the simulation are *TerminationError values (IsTermination).
// Everything else returned by a Scheduler is fatal: CausalityTraceMismatchError,
// ErrUnsupportedOperation, ErrPreconditionViolation, IncausalityError, or a
// wrapped resource error from StartRun.
package sim
