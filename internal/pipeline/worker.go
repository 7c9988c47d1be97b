package pipeline

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/conneroisu/workpipe/internal/errors"
)

// WorkerState tracks where a worker is in its loop.
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerReceiving
	WorkerExecuting
	WorkerSending
	WorkerExited
)

// String returns the string representation of the worker state
func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerReceiving:
		return "receiving"
	case WorkerExecuting:
		return "executing"
	case WorkerSending:
		return "sending"
	case WorkerExited:
		return "exited"
	default:
		return "unknown"
	}
}

// worker is the pool loop: receive a task, execute it, send the result,
// repeat. It exits when the task channel is closed and drained, or when the
// context is cancelled. Workers share nothing but the two channels.
func (d *Dispatcher[P, R]) worker(ctx context.Context, id int, tasks <-chan Task[P]) {
	defer d.workerWg.Done()
	defer d.setState(id, WorkerExited)

	for {
		d.setState(id, WorkerReceiving)

		select {
		case <-ctx.Done():
			return
		case task, ok := <-tasks:
			if !ok {
				// Closed and drained: the single no-more-work signal.
				return
			}

			result := d.execute(ctx, id, task)

			d.setState(id, WorkerSending)
			select {
			case d.results <- result:
			case <-ctx.Done():
				// Cancelled while the sink was full; the result is
				// abandoned along with the rest of the run.
				return
			}
		}
	}
}

// execute invokes the work function for one task, converting panics into
// failure results at the worker boundary. A panicking task costs exactly
// that task, never the worker or any other task.
func (d *Dispatcher[P, R]) execute(ctx context.Context, workerID int, task Task[P]) (result Result[R]) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			err := errors.NewTaskError(task.ID, errors.NewPanicError(rec, debug.Stack()))
			result = Result[R]{
				TaskID:   task.ID,
				Err:      err,
				WorkerID: workerID,
				Duration: time.Since(start),
			}
			d.metrics.Record(err, result.Duration)
			d.logger.Error(ctx, err, "work function panicked",
				"task_id", task.ID,
				"worker_id", workerID,
			)
		}
	}()

	d.setState(workerID, WorkerExecuting)

	value, err := d.work(ctx, task)
	duration := time.Since(start)
	if err != nil {
		err = errors.NewTaskError(task.ID, err)
		d.logger.Debug(ctx, "task failed",
			"task_id", task.ID,
			"worker_id", workerID,
			"duration", duration,
		)
	}

	result = Result[R]{
		TaskID:   task.ID,
		Value:    value,
		Err:      err,
		WorkerID: workerID,
		Duration: duration,
	}
	d.metrics.Record(err, duration)

	return result
}

func (d *Dispatcher[P, R]) setState(workerID int, state WorkerState) {
	d.states[workerID].Store(int32(state))
}
