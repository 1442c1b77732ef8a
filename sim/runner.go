package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// EventHandler executes events released by a Scheduler.
type EventHandler interface {
	HandleEvent(ev *Event) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ev *Event) error

func (f EventHandlerFunc) HandleEvent(ev *Event) error { return f(ev) }

// Runner is the main loop of one partition. It repeatedly asks its Scheduler
// for the next event, advances the clock and dispatches to the handler.
type Runner struct {
	Scheduler Scheduler
	Handler   EventHandler
	Horizon   SimTime
	Clock     SimTime
	Metrics   *Metrics

	// Termination is the condition that ended the run cleanly, if any.
	Termination error
}

// NewRunner creates a runner for partition id that stops after horizon.
func NewRunner(id int, s Scheduler, h EventHandler, horizon SimTime) *Runner {
	return &Runner{
		Scheduler: s,
		Handler:   h,
		Horizon:   horizon,
		Metrics:   &Metrics{PartitionID: id},
	}
}

// Now returns the current simulation time.
func (r *Runner) Now() SimTime {
	return r.Clock
}

// Run executes events until the horizon, a termination condition, ctx
// cancellation or an error. ctx is checked after every event and on every
// empty poll; a Scheduler blocked in a receive is woken by closing its
// communication endpoint (see parsim.Partition.Run). Termination conditions end the run cleanly and
// return nil; the reason is kept in Metrics.Termination.
func (r *Runner) Run(ctx context.Context) (err error) {
	start := time.Now()
	if err := r.Scheduler.StartRun(); err != nil {
		return fmt.Errorf("starting run: %w", err)
	}
	defer func() {
		if endErr := r.Scheduler.EndRun(); endErr != nil && err == nil {
			err = fmt.Errorf("ending run: %w", endErr)
		}
		r.Metrics.FinalClock = r.Clock
		r.Metrics.WallTime = time.Since(start)
		logrus.Infof("[tick %07d] partition %d: run ended", r.Clock, r.Metrics.PartitionID)
	}()

	for {
		ev, err := r.Scheduler.TakeNextEvent()
		if err != nil {
			if IsTermination(err) {
				// an interrupted wait caused by cancellation is not a clean end
				if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ErrInterrupted) {
					return ctxErr
				}
				r.Termination = err
				r.Metrics.Termination = err.Error()
				logrus.Infof("[tick %07d] partition %d: %v", r.Clock, r.Metrics.PartitionID, err)
				return nil
			}
			return err
		}
		if ev == nil {
			r.Metrics.EmptyPolls++
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			continue
		}

		if ev.ArrivalTime() > r.Horizon {
			if pbErr := r.Scheduler.PutBackEvent(ev); pbErr != nil && !errors.Is(pbErr, ErrUnsupportedOperation) {
				return fmt.Errorf("returning event past horizon: %w", pbErr)
			}
			r.Clock = r.Horizon
			return nil
		}

		// Clock monotonicity
		if ev.ArrivalTime() < r.Clock {
			return &IncausalityError{Clock: r.Clock, Event: ev}
		}
		r.Clock = ev.ArrivalTime()

		logrus.Debugf("[tick %07d] partition %d: executing %v", r.Clock, r.Metrics.PartitionID, ev)
		if err := r.Handler.HandleEvent(ev); err != nil {
			return fmt.Errorf("handling %v: %w", ev, err)
		}
		r.Metrics.EventsExecuted++
		if ev.IsLocal() {
			r.Metrics.LocalEvents++
		} else {
			r.Metrics.RemoteEvents++
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
}
