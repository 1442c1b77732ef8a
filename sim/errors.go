package sim

import (
	"errors"
	"fmt"
)

// Fatal protocol errors. These abort the run.
var (
	// ErrPreconditionViolation marks a call made in a state that forbids it.
	ErrPreconditionViolation = errors.New("precondition violation")

	// ErrEmptyFES is returned by RemoveFirst on an empty future event set.
	ErrEmptyFES = fmt.Errorf("future event set is empty: %w", ErrPreconditionViolation)

	// ErrUnsupportedOperation is returned by schedulers that cannot honour a call,
	// e.g. PutBackEvent after a trace cursor was advanced.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// Reasons carried by a TerminationError.
var (
	ErrTraceExhausted = errors.New("end of event trace")
	ErrInterrupted    = errors.New("communication interrupted")
	ErrPeerTerminated = errors.New("peer partition terminated")
	ErrNoMoreEvents   = errors.New("no more events")
)

// TerminationError signals an expected, clean end of the simulation.
// It is never used for failures.
type TerminationError struct {
	Reason error
	Detail string
}

func (e *TerminationError) Error() string {
	if e.Detail == "" {
		return "simulation terminated: " + e.Reason.Error()
	}
	return fmt.Sprintf("simulation terminated: %s: %s", e.Reason, e.Detail)
}

func (e *TerminationError) Unwrap() error { return e.Reason }

// NewTermination wraps a termination reason.
func NewTermination(reason error, detail string) *TerminationError {
	return &TerminationError{Reason: reason, Detail: detail}
}

// IsTermination reports whether err signals a clean end of the simulation.
func IsTermination(err error) bool {
	var te *TerminationError
	return errors.As(err, &te)
}

// CausalityTraceMismatchError reports that the recorded trace no longer matches
// what actually arrived: a nondeterminism bug or a stale/tampered trace file.
type CausalityTraceMismatchError struct {
	ExpectedTime   SimTime
	ExpectedSource int
	ActualTime     SimTime
	ActualSource   int
}

func (e *CausalityTraceMismatchError) Error() string {
	return fmt.Sprintf("event trace does not match actual events: expected event with timestamp %d from partition %d, got one with timestamp %d from partition %d",
		e.ExpectedTime, e.ExpectedSource, e.ActualTime, e.ActualSource)
}

// IncausalityError reports an event whose timestamp precedes the simulation clock.
type IncausalityError struct {
	Clock SimTime
	Event *Event
}

func (e *IncausalityError) Error() string {
	return fmt.Sprintf("incausality: %v arrived in the past (clock=%d)", e.Event, e.Clock)
}
