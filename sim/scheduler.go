package sim

// Scheduler decides, for a single partition, which event executes next.
// It is consumed by the simulation main loop (see Runner).
//
// TakeNextEvent returns (nil, nil) when the next event cannot currently be
// determined, e.g. a receive timeout elapsed so the host can poll for
// cancellation; callers must re-invoke it later. The end of the simulation is
// reported as an error satisfying IsTermination, never as a nil event.
//
// PutBackEvent undoes the most recent TakeNextEvent that returned ev.
// Schedulers that cannot restore their internal state fail with
// ErrUnsupportedOperation.
//
// EndRun must be called after a successful StartRun, including after
// abnormal termination.
type Scheduler interface {
	StartRun() error
	EndRun() error
	TakeNextEvent() (*Event, error)
	PutBackEvent(ev *Event) error
}
