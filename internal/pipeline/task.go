package pipeline

import (
	"context"
	"time"
)

// Task pairs a payload with the id that follows it through the pipeline.
// Ids are sequence indexes assigned in submission order, starting at zero,
// so any result can be traced back to its task and results can be re-sorted
// into submission order after the fact.
type Task[P any] struct {
	ID      int
	Payload P
}

// Result is the outcome of exactly one task: the value produced on success
// or the error on failure, tagged with the originating task id. WorkerID and
// Duration record which worker executed the task and for how long.
type Result[R any] struct {
	TaskID   int
	Value    R
	Err      error
	WorkerID int
	Duration time.Duration
}

// Failed reports whether the task produced an error instead of a value.
func (r Result[R]) Failed() bool {
	return r.Err != nil
}

// Func is the work applied to every task. It runs on a pool worker and is
// invoked exactly once per task. Returning an error marks the task failed.
// A panic inside Func is recovered at the worker boundary and converted into
// a failure result; it never takes down the worker.
type Func[P, R any] func(ctx context.Context, task Task[P]) (R, error)
