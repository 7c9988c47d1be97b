package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/conneroisu/workpipe/internal/errors"
)

var errTestRefused = errors.New("refused")

// double is the canonical test workload: twice the task id, with an optional
// set of ids that fail instead.
func double(failing ...int) Func[int, int] {
	fail := make(map[int]bool, len(failing))
	for _, id := range failing {
		fail[id] = true
	}

	return func(ctx context.Context, task Task[int]) (int, error) {
		if fail[task.ID] {
			return 0, fmt.Errorf("task %d refused", task.ID)
		}
		return task.ID * 2, nil
	}
}

func payloads(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestNewValidatesConfig(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		work    Func[int, int]
		wantErr error
	}{
		{"zero workers", Config{Workers: 0}, double(), errs.ErrNoWorkers},
		{"negative workers", Config{Workers: -3}, double(), errs.ErrNoWorkers},
		{"negative capacity", Config{Workers: 1, QueueCapacity: -1}, double(), errs.ErrNegativeCapacity},
		{"nil work", Config{Workers: 1}, nil, errs.ErrNilWork},
		{"capacity ignored when unbounded", Config{Workers: 1, QueueCapacity: -1, Unbounded: true}, double(), nil},
		{"zero capacity is valid", Config{Workers: 1, QueueCapacity: 0}, double(), nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := New(tc.cfg, tc.work)
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.wantErr))
				assert.Nil(t, d)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, d)
			}
		})
	}
}

func TestRunDeliversEveryResultExactlyOnce(t *testing.T) {
	results, err := Run(context.Background(), Config{Workers: 4, QueueCapacity: 8}, payloads(100), double())
	require.NoError(t, err)
	require.Len(t, results, 100)

	seen := make(map[int]bool, 100)
	for _, result := range results {
		assert.False(t, seen[result.TaskID], "task %d delivered twice", result.TaskID)
		seen[result.TaskID] = true

		require.NoError(t, result.Err)
		assert.Equal(t, result.TaskID*2, result.Value)
	}
	assert.Len(t, seen, 100)
}

func TestRunEmptyPayloads(t *testing.T) {
	done := make(chan struct{})

	var results []Result[int]
	var err error
	go func() {
		defer close(done)
		results, err = Run(context.Background(), DefaultConfig(), nil, double())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("empty run did not terminate")
	}

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunSingleWorkerPreservesOrder(t *testing.T) {
	results, err := Run(context.Background(), Config{Workers: 1, QueueCapacity: 4}, payloads(50), double())
	require.NoError(t, err)
	require.Len(t, results, 50)

	// One worker serializes the pipeline, so completion order is
	// submission order.
	for i, result := range results {
		assert.Equal(t, i, result.TaskID)
	}
}

func TestRunFailureIsolation(t *testing.T) {
	results, err := Run(context.Background(), Config{Workers: 4, QueueCapacity: 8}, payloads(20), double(7))
	require.NoError(t, err)
	require.Len(t, results, 20)

	succeeded, failed := Partition(results)
	assert.Len(t, succeeded, 19)
	require.Len(t, failed, 1)
	assert.Equal(t, 7, failed[0].TaskID)

	id, ok := errs.TaskIDOf(failed[0].Err)
	require.True(t, ok)
	assert.Equal(t, 7, id)
}

func TestRunTenTasksFourWorkersOneFailure(t *testing.T) {
	results, err := Run(context.Background(), Config{Workers: 4, QueueCapacity: 10}, payloads(10), double(5))
	require.NoError(t, err)
	require.Len(t, results, 10)

	succeeded, failed := Partition(results)
	require.Len(t, succeeded, 9)
	require.Len(t, failed, 1)
	assert.Equal(t, 5, failed[0].TaskID)

	values := make(map[int]bool, len(succeeded))
	for _, result := range succeeded {
		values[result.Value] = true
	}
	assert.Equal(t, map[int]bool{
		0: true, 2: true, 4: true, 6: true, 8: true,
		12: true, 14: true, 16: true, 18: true,
	}, values)
}

func TestRunPanicBecomesFailureResult(t *testing.T) {
	work := func(ctx context.Context, task Task[int]) (int, error) {
		if task.ID == 3 {
			panic("intentional")
		}
		return task.ID, nil
	}

	results, err := Run(context.Background(), Config{Workers: 2, QueueCapacity: 4}, payloads(8), work)
	require.NoError(t, err)
	require.Len(t, results, 8, "a panicking task must still cost exactly one result")

	succeeded, failed := Partition(results)
	assert.Len(t, succeeded, 7)
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].TaskID)
	assert.True(t, errs.IsPanic(failed[0].Err))

	id, ok := errs.TaskIDOf(failed[0].Err)
	require.True(t, ok)
	assert.Equal(t, 3, id)
}

func TestRunEveryWorkerPanicking(t *testing.T) {
	work := func(ctx context.Context, task Task[int]) (int, error) {
		panic(task.ID)
	}

	results, err := Run(context.Background(), Config{Workers: 4, QueueCapacity: 4}, payloads(16), work)
	require.NoError(t, err)
	require.Len(t, results, 16)

	for _, result := range results {
		assert.True(t, result.Failed())
		assert.True(t, errs.IsPanic(result.Err))
	}
}

func TestRunZeroCapacityHandoff(t *testing.T) {
	results, err := Run(context.Background(), Config{Workers: 2, QueueCapacity: 0}, payloads(20), double())
	require.NoError(t, err)
	assert.Len(t, results, 20)
}

func TestRunUnboundedQueue(t *testing.T) {
	results, err := Run(context.Background(), Config{Workers: 4, Unbounded: true}, payloads(200), double())
	require.NoError(t, err)
	assert.Len(t, results, 200)
}

func TestRunAssignsWorkerIDs(t *testing.T) {
	results, err := Run(context.Background(), Config{Workers: 3, QueueCapacity: 4}, payloads(30), double())
	require.NoError(t, err)

	for _, result := range results {
		assert.GreaterOrEqual(t, result.WorkerID, 0)
		assert.Less(t, result.WorkerID, 3)
		assert.GreaterOrEqual(t, result.Duration, time.Duration(0))
	}
}

func TestRunContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	work := func(ctx context.Context, task Task[int]) (int, error) {
		select {
		case <-time.After(50 * time.Millisecond):
			return task.ID, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	results, err := Run(ctx, Config{Workers: 2, QueueCapacity: 2}, payloads(50), work)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, len(results), 50, "cancellation must abandon queued work")
}

func TestStartLifecycleErrors(t *testing.T) {
	d, err := New(Config{Workers: 1, QueueCapacity: 1}, double())
	require.NoError(t, err)

	_, err = d.Submit(context.Background(), 1)
	assert.True(t, errors.Is(err, errs.ErrNotStarted))

	_, err = d.TrySubmit(1)
	assert.True(t, errors.Is(err, errs.ErrNotStarted))

	require.NoError(t, d.Start(context.Background()))
	assert.True(t, errors.Is(d.Start(context.Background()), errs.ErrAlreadyStarted))

	go func() {
		for range d.Results() {
		}
	}()

	d.Close()

	_, err = d.Submit(context.Background(), 1)
	assert.True(t, errors.Is(err, errs.ErrClosed))

	_, err = d.TrySubmit(1)
	assert.True(t, errors.Is(err, errs.ErrClosed))
}

func TestCloseIsIdempotent(t *testing.T) {
	d, err := New(Config{Workers: 1, QueueCapacity: 1}, double())
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))

	go func() {
		for range d.Results() {
		}
	}()

	assert.NotPanics(t, func() {
		d.Close()
		d.Close()
	})
}

func TestSubmitAssignsSequentialIDs(t *testing.T) {
	d, err := New(Config{Workers: 2, QueueCapacity: 16}, double())
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))

	for i := 0; i < 10; i++ {
		task, err := d.Submit(context.Background(), i)
		require.NoError(t, err)
		assert.Equal(t, i, task.ID)
		assert.Equal(t, i, task.Payload)
	}

	var results []Result[int]
	done := make(chan struct{})
	go func() {
		defer close(done)
		for result := range d.Results() {
			results = append(results, result)
		}
	}()

	d.Close()
	<-done

	assert.Len(t, results, 10)
}

func TestTrySubmitQueueFull(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	work := func(ctx context.Context, task Task[int]) (int, error) {
		started <- struct{}{}
		<-release
		return task.ID, nil
	}

	d, err := New(Config{Workers: 1, QueueCapacity: 1}, work)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))

	// First task is taken by the worker, which then blocks inside work.
	_, err = d.Submit(context.Background(), 0)
	require.NoError(t, err)
	<-started

	// Second task occupies the single queue slot.
	_, err = d.TrySubmit(1)
	require.NoError(t, err)

	// Third has nowhere to go.
	_, err = d.TrySubmit(2)
	assert.True(t, errors.Is(err, errs.ErrQueueFull))

	var results []Result[int]
	done := make(chan struct{})
	go func() {
		defer close(done)
		for result := range d.Results() {
			results = append(results, result)
		}
	}()

	close(release)
	<-started // the worker picks up the queued task
	d.Close()
	<-done

	assert.Len(t, results, 2)
}

func TestSubmitBlocksUntilContextExpires(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	work := func(ctx context.Context, task Task[int]) (int, error) {
		started <- struct{}{}
		<-release
		return task.ID, nil
	}

	d, err := New(Config{Workers: 1, QueueCapacity: 0}, work)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))

	_, err = d.Submit(context.Background(), 0)
	require.NoError(t, err)
	<-started

	// The only worker is busy and the queue has no slots: this submit can
	// never be accepted before the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = d.Submit(ctx, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range d.Results() {
		}
	}()

	close(release)
	d.Close()
	<-done
}

func TestBackpressureBoundsResultChannel(t *testing.T) {
	d, err := New(Config{Workers: 4, QueueCapacity: 40}, double())
	require.NoError(t, err)

	sink, err := d.Dispatch(context.Background(), payloads(40))
	require.NoError(t, err)

	// Let the pool run ahead of the sink: with nobody draining, at most
	// Workers results can be buffered and the rest of the pool suspends
	// in its send.
	require.Eventually(t, func() bool {
		return d.Stats().PendingResults == 4
	}, 2*time.Second, time.Millisecond)

	count := 0
	for range sink.Results() {
		count++
		assert.LessOrEqual(t, d.Stats().PendingResults, 4)
	}
	assert.Equal(t, 40, count)
}

func TestStatsLifecycle(t *testing.T) {
	d, err := New(Config{Workers: 3, QueueCapacity: 2}, double())
	require.NoError(t, err)

	stats := d.Stats()
	assert.False(t, stats.Started)
	assert.Equal(t, 3, stats.Workers)
	assert.Zero(t, stats.Submitted)

	require.NoError(t, d.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range d.Results() {
		}
	}()

	for i := 0; i < 5; i++ {
		_, err := d.Submit(context.Background(), i)
		require.NoError(t, err)
	}

	d.Close()
	<-done

	stats = d.Stats()
	assert.True(t, stats.Started)
	assert.True(t, stats.Closed)
	assert.Equal(t, 5, stats.Submitted)
	assert.Equal(t, 3, stats.Exited)
	assert.Zero(t, stats.QueuedTasks)
}

func TestMetricsCountExecutions(t *testing.T) {
	work := func(ctx context.Context, task Task[int]) (int, error) {
		switch task.ID {
		case 2:
			return 0, errors.New("refused")
		case 4:
			panic("boom")
		default:
			return task.ID, nil
		}
	}

	d, err := New(Config{Workers: 2, QueueCapacity: 8}, work)
	require.NoError(t, err)

	results, err := d.Run(context.Background(), payloads(10))
	require.NoError(t, err)
	require.Len(t, results, 10)

	snapshot := d.Metrics()
	assert.Equal(t, int64(10), snapshot.TotalTasks)
	assert.Equal(t, int64(8), snapshot.Succeeded)
	assert.Equal(t, int64(2), snapshot.Failed)
	assert.Equal(t, int64(1), snapshot.Recovered)
}

func TestRunIDIsStable(t *testing.T) {
	d, err := New(DefaultConfig(), double())
	require.NoError(t, err)

	assert.NotEmpty(t, d.RunID())
	assert.Equal(t, d.RunID(), d.RunID())

	other, err := New(DefaultConfig(), double())
	require.NoError(t, err)
	assert.NotEqual(t, d.RunID(), other.RunID())
}

func TestConcurrentSubmitters(t *testing.T) {
	d, err := New(Config{Workers: 4, Unbounded: true}, double())
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))

	const submitters = 8
	const perSubmitter = 50

	var wg sync.WaitGroup
	for s := 0; s < submitters; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perSubmitter; i++ {
				_, err := d.Submit(context.Background(), i)
				assert.NoError(t, err)
			}
		}()
	}

	var results []Result[int]
	done := make(chan struct{})
	go func() {
		defer close(done)
		for result := range d.Results() {
			results = append(results, result)
		}
	}()

	wg.Wait()
	d.Close()
	<-done

	require.Len(t, results, submitters*perSubmitter)

	ids := make(map[int]bool, len(results))
	for _, result := range results {
		assert.False(t, ids[result.TaskID])
		ids[result.TaskID] = true
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 8, cfg.QueueCapacity)
	assert.False(t, cfg.Unbounded)
}

func TestWorkerStateString(t *testing.T) {
	testCases := []struct {
		state    WorkerState
		expected string
	}{
		{WorkerIdle, "idle"},
		{WorkerReceiving, "receiving"},
		{WorkerExecuting, "executing"},
		{WorkerSending, "sending"},
		{WorkerExited, "exited"},
		{WorkerState(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.state.String())
		})
	}
}

func TestCancelledUnboundedRunsReleaseQueueGoroutines(t *testing.T) {
	before := runtime.NumGoroutine()

	// Each cancelled run abandons buffered tasks in the unbounded queue;
	// the dispatcher must still let the queue's pump goroutine terminate.
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := Run(ctx, Config{Workers: 2, Unbounded: true}, payloads(500), double())
		require.ErrorIs(t, err, context.Canceled)
	}

	assert.Eventually(t, func() bool {
		runtime.GC()
		return runtime.NumGoroutine() <= before+2
	}, 5*time.Second, 10*time.Millisecond,
		"queue goroutines survived cancelled runs: before=%d now=%d", before, runtime.NumGoroutine())
}

func TestSubmitRacingCloseNeverPanics(t *testing.T) {
	for iter := 0; iter < 50; iter++ {
		d, err := New(Config{Workers: 2, QueueCapacity: 4}, double())
		require.NoError(t, err)
		require.NoError(t, d.Start(context.Background()))

		var delivered int64
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for range d.Results() {
				atomic.AddInt64(&delivered, 1)
			}
		}()

		var accepted int64
		var wg sync.WaitGroup
		for s := 0; s < 4; s++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; ; i++ {
					if _, err := d.Submit(context.Background(), i); err != nil {
						assert.True(t, errors.Is(err, errs.ErrClosed))
						return
					}
					atomic.AddInt64(&accepted, 1)
				}
			}()
		}

		runtime.Gosched()
		assert.NotPanics(t, d.Close)
		wg.Wait()
		<-drained

		// Every accepted task is accounted for; a submit that lost the
		// race was refused, not dropped.
		assert.Equal(t, atomic.LoadInt64(&accepted), atomic.LoadInt64(&delivered))
	}
}

func TestSinkDrainsLongLivedDispatcher(t *testing.T) {
	d, err := New(Config{Workers: 2, QueueCapacity: 8}, double())
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))

	sink := d.Sink()

	collected := make(chan []Result[int], 1)
	go func() {
		collected <- sink.Collect()
	}()

	for i := 0; i < 10; i++ {
		_, err := d.Submit(context.Background(), i)
		require.NoError(t, err)
	}
	d.Close()

	results := <-collected
	require.Len(t, results, 10)

	SortByID(results)
	for i, result := range results {
		assert.Equal(t, i, result.TaskID)
		assert.Equal(t, i*2, result.Value)
	}
}
