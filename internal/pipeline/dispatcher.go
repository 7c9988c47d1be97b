// Package pipeline implements a bounded work-dispatch pipeline: a task
// source feeds a channel, a fixed pool of workers drains it, and every
// worker reports through a shared result channel sized to the pool.
//
// Channels are the only coordination primitive. The task channel closing is
// the single no-more-work signal; the result channel closes only after the
// last worker has exited, so a receiver that sees it closed knows the run is
// complete. Task order is not preserved across workers: results arrive in
// completion order, tagged with task ids for callers that need to
// reconstruct submission order.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/conneroisu/workpipe/internal/channel"
	"github.com/conneroisu/workpipe/internal/errors"
	"github.com/conneroisu/workpipe/internal/logging"
)

// Dispatcher owns a fixed worker pool connected by a task channel and a
// result channel. The pool size and both channel shapes are set at
// construction and never change.
//
// A dispatcher is used one of two ways: the one-shot Run/Dispatch, which
// feeds a payload slice and closes the pipeline itself, or the long-lived
// Start/Submit/Close cycle where the caller is the task source. Either way
// the caller must drain Results; workers suspend when the result channel is
// full, which is the pipeline's backpressure.
type Dispatcher[P, R any] struct {
	cfg    Config
	work   Func[P, R]
	logger logging.Logger
	runID  string

	tasks     chan Task[P]
	unbounded *channel.Unbounded[Task[P]]
	results   chan Result[R]

	metrics *Metrics
	states  []atomic.Int32

	workerWg sync.WaitGroup

	// closeMu serializes task-channel sends against the close in Close:
	// submitters hold the read side across their send, Close takes the
	// write side before closing, so a submit racing Close gets ErrClosed
	// instead of a send-on-closed-channel panic.
	closeMu sync.RWMutex

	mu      sync.Mutex
	started bool
	closed  bool
	nextID  int
	cancel  context.CancelFunc
}

// Stats is a point-in-time view of the pipeline.
type Stats struct {
	Workers        int  `json:"workers"`
	Submitted      int  `json:"submitted"`
	QueuedTasks    int  `json:"queued_tasks"`
	PendingResults int  `json:"pending_results"`
	Receiving      int  `json:"receiving"`
	Executing      int  `json:"executing"`
	Sending        int  `json:"sending"`
	Exited         int  `json:"exited"`
	Started        bool `json:"started"`
	Closed         bool `json:"closed"`
}

// New creates a dispatcher. The configuration is validated immediately: a
// worker count below one or a negative queue capacity is rejected here, not
// at Start, so a misconfigured pipeline never accepts a task.
func New[P, R any](cfg Config, work Func[P, R], opts ...Option) (*Dispatcher[P, R], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if work == nil {
		return nil, errors.ErrNilWork
	}

	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	logger := s.logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("pipeline")

	runID := uuid.NewString()
	if s.name != "" {
		logger = logger.With("pipeline", s.name, "run_id", runID)
	} else {
		logger = logger.With("run_id", runID)
	}

	return &Dispatcher[P, R]{
		cfg:     cfg,
		work:    work,
		logger:  logger,
		runID:   runID,
		results: make(chan Result[R], cfg.Workers),
		metrics: NewMetrics(),
		states:  make([]atomic.Int32, cfg.Workers),
	}, nil
}

// Start creates the task channel and spawns the worker pool. The context
// governs cancellation: cancelling it makes workers exit after their
// in-flight task instead of draining the queue.
func (d *Dispatcher[P, R]) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return errors.ErrAlreadyStarted
	}
	if d.closed {
		return errors.ErrClosed
	}
	d.started = true

	ctx, d.cancel = context.WithCancel(ctx)

	if d.cfg.Unbounded {
		d.unbounded = channel.NewUnbounded[Task[P]]()
	} else {
		d.tasks = make(chan Task[P], d.cfg.QueueCapacity)
	}

	taskCh := d.taskSource()
	for i := 0; i < d.cfg.Workers; i++ {
		d.workerWg.Add(1)
		go d.worker(ctx, i, taskCh)
	}

	// The result channel closes only after every worker has exited; that
	// close is the sink's completion signal. The derived context is
	// released at the same point.
	go func() {
		d.workerWg.Wait()
		d.cancel()
		close(d.results)

		// Cancelled workers exit without draining the queue. Discard
		// whatever an unbounded queue still buffers so its pump
		// goroutine terminates once the queue is closed; on a normal
		// drain the endpoint is already closed and this is a no-op.
		if d.unbounded != nil {
			for range d.unbounded.Out() {
			}
		}
	}()

	d.logger.Info(ctx, "pipeline started",
		"workers", d.cfg.Workers,
		"queue_capacity", d.cfg.QueueCapacity,
		"unbounded", d.cfg.Unbounded,
	)

	return nil
}

// Submit hands one payload to the pipeline, blocking while a bounded task
// queue is full. The returned task carries the id assigned to the payload.
// Submit fails fast with ErrNotStarted or ErrClosed when the dispatcher is
// not accepting work, and returns the context error if ctx is cancelled
// while waiting for queue space.
//
// Submit is safe to race with Close: a submit that loses the race gets
// ErrClosed, never a send on a closed channel.
func (d *Dispatcher[P, R]) Submit(ctx context.Context, payload P) (Task[P], error) {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()

	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return Task[P]{}, errors.ErrNotStarted
	}
	if d.closed {
		d.mu.Unlock()
		return Task[P]{}, errors.ErrClosed
	}
	task := Task[P]{ID: d.nextID, Payload: payload}
	d.nextID++
	d.mu.Unlock()

	if d.cfg.Unbounded {
		d.unbounded.Send(task)
		return task, nil
	}

	select {
	case d.tasks <- task:
		return task, nil
	case <-ctx.Done():
		return Task[P]{}, ctx.Err()
	}
}

// TrySubmit is the non-blocking variant of Submit: when a bounded task queue
// is full it returns ErrQueueFull instead of waiting.
func (d *Dispatcher[P, R]) TrySubmit(payload P) (Task[P], error) {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()

	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return Task[P]{}, errors.ErrNotStarted
	}
	if d.closed {
		d.mu.Unlock()
		return Task[P]{}, errors.ErrClosed
	}
	task := Task[P]{ID: d.nextID, Payload: payload}
	d.nextID++
	d.mu.Unlock()

	if d.cfg.Unbounded {
		d.unbounded.Send(task)
		return task, nil
	}

	select {
	case d.tasks <- task:
		return task, nil
	default:
		// The id was consumed; ids number submissions, not acceptances.
		return Task[P]{}, errors.ErrQueueFull
	}
}

// Close signals that no more work is coming: it closes the task channel,
// waits for the workers to drain it and exit, and leaves the result channel
// to close behind them. Close blocks until the drain completes, so the
// caller must keep receiving from Results while closing. Closing twice is a
// no-op; only the first call closes the channel.
func (d *Dispatcher[P, R]) Close() {
	d.mu.Lock()
	if !d.started || d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	// Taking the write side waits out any submit still holding the read
	// side across its send; new submits already fail on the closed flag.
	d.closeMu.Lock()
	if d.cfg.Unbounded {
		d.unbounded.Close()
	} else {
		close(d.tasks)
	}
	d.closeMu.Unlock()

	d.workerWg.Wait()

	d.logger.Info(context.Background(), "pipeline closed",
		"metrics", d.metrics.Snapshot(),
	)
}

// Results exposes the result stream: a finite sequence that ends when the
// channel closes after the last worker exits. Order follows completion, not
// submission.
func (d *Dispatcher[P, R]) Results() <-chan Result[R] {
	return d.results
}

// Sink wraps the result stream in a Sink for drain helpers.
func (d *Dispatcher[P, R]) Sink() *Sink[R] {
	return NewSink(d.results)
}

// Dispatch runs the one-shot form over a payload slice: start the pool, feed
// every payload from a source goroutine in slice order, close the pipeline
// after the last send, and return the sink immediately. Results stream as
// workers finish.
func (d *Dispatcher[P, R]) Dispatch(ctx context.Context, payloads []P) (*Sink[R], error) {
	if err := d.Start(ctx); err != nil {
		return nil, err
	}

	// The source goroutine owns the no-more-work signal, so a bounded
	// queue cannot block the caller.
	go func() {
		defer d.Close()
		for _, payload := range payloads {
			if _, err := d.Submit(ctx, payload); err != nil {
				return
			}
		}
	}()

	return d.Sink(), nil
}

// Run is Dispatch plus a full drain: it blocks until every result has
// arrived and returns them in completion order. Under cancellation it
// returns the results delivered so far together with the context's error.
func (d *Dispatcher[P, R]) Run(ctx context.Context, payloads []P) ([]Result[R], error) {
	sink, err := d.Dispatch(ctx, payloads)
	if err != nil {
		return nil, err
	}

	results := sink.Collect()
	if err := ctx.Err(); err != nil {
		return results, err
	}

	return results, nil
}

// Stats reports a point-in-time view of the pipeline.
func (d *Dispatcher[P, R]) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := Stats{
		Workers:   d.cfg.Workers,
		Submitted: d.nextID,
		Started:   d.started,
		Closed:    d.closed,
	}

	if d.cfg.Unbounded {
		if d.unbounded != nil {
			stats.QueuedTasks = d.unbounded.Len()
		}
	} else {
		stats.QueuedTasks = len(d.tasks)
	}
	stats.PendingResults = len(d.results)

	for i := range d.states {
		switch WorkerState(d.states[i].Load()) {
		case WorkerReceiving:
			stats.Receiving++
		case WorkerExecuting:
			stats.Executing++
		case WorkerSending:
			stats.Sending++
		case WorkerExited:
			stats.Exited++
		}
	}

	return stats
}

// Metrics returns a snapshot of the pipeline's counters.
func (d *Dispatcher[P, R]) Metrics() MetricsSnapshot {
	return d.metrics.Snapshot()
}

// RunID returns the id correlating this dispatcher's log records.
func (d *Dispatcher[P, R]) RunID() string {
	return d.runID
}

func (d *Dispatcher[P, R]) taskSource() <-chan Task[P] {
	if d.cfg.Unbounded {
		return d.unbounded.Out()
	}

	return d.tasks
}

// Run constructs a dispatcher and runs it over payloads in one call. It is
// the package's front door: validate, spawn workers, feed, drain, done.
func Run[P, R any](ctx context.Context, cfg Config, payloads []P, work Func[P, R], opts ...Option) ([]Result[R], error) {
	d, err := New(cfg, work, opts...)
	if err != nil {
		return nil, err
	}

	return d.Run(ctx, payloads)
}

// Dispatch constructs a dispatcher and starts the one-shot form, returning
// the sink for lazy draining.
func Dispatch[P, R any](ctx context.Context, cfg Config, payloads []P, work Func[P, R], opts ...Option) (*Sink[R], error) {
	d, err := New(cfg, work, opts...)
	if err != nil {
		return nil, err
	}

	return d.Dispatch(ctx, payloads)
}
