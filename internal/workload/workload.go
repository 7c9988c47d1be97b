// Package workload provides the built-in work functions the CLI runs
// through the pipeline, plus a registry mapping workload names to
// constructors.
package workload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/conneroisu/workpipe/internal/pipeline"
)

// Options carries the knobs shared by the built-in workloads.
type Options struct {
	// FailIDs lists task ids the workload fails on purpose, for
	// demonstrating failure isolation.
	FailIDs []int

	// Sleep is how long the sleep workload holds a worker per task.
	Sleep time.Duration
}

func (o Options) shouldFail(id int) bool {
	for _, fail := range o.FailIDs {
		if fail == id {
			return true
		}
	}
	return false
}

// Double returns a work function that doubles its payload. Tasks whose id is
// in the failing set return an error instead.
func Double(opts Options) pipeline.Func[int, int] {
	return func(ctx context.Context, task pipeline.Task[int]) (int, error) {
		if opts.shouldFail(task.ID) {
			return 0, fmt.Errorf("task %d configured to fail", task.ID)
		}
		return task.Payload * 2, nil
	}
}

// Hash returns a work function that computes the SHA-256 digest of the
// payload's decimal form.
func Hash(opts Options) pipeline.Func[int, string] {
	return func(ctx context.Context, task pipeline.Task[int]) (string, error) {
		if opts.shouldFail(task.ID) {
			return "", fmt.Errorf("task %d configured to fail", task.ID)
		}
		sum := sha256.Sum256([]byte(strconv.Itoa(task.Payload)))
		return hex.EncodeToString(sum[:]), nil
	}
}

// Sleep returns a work function that holds a worker for the configured
// duration, honoring cancellation. It is the slow-task stand-in for
// demonstrating backpressure.
func Sleep(opts Options) pipeline.Func[int, time.Duration] {
	return func(ctx context.Context, task pipeline.Task[int]) (time.Duration, error) {
		if opts.shouldFail(task.ID) {
			return 0, fmt.Errorf("task %d configured to fail", task.ID)
		}

		select {
		case <-time.After(opts.Sleep):
			return opts.Sleep, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// builders adapt every workload to a common string-valued shape so the CLI
// can print results uniformly.
var builders = map[string]func(Options) pipeline.Func[int, string]{
	"double": func(opts Options) pipeline.Func[int, string] {
		work := Double(opts)
		return func(ctx context.Context, task pipeline.Task[int]) (string, error) {
			value, err := work(ctx, task)
			if err != nil {
				return "", err
			}
			return strconv.Itoa(value), nil
		}
	},
	"hash": Hash,
	"sleep": func(opts Options) pipeline.Func[int, string] {
		work := Sleep(opts)
		return func(ctx context.Context, task pipeline.Task[int]) (string, error) {
			value, err := work(ctx, task)
			if err != nil {
				return "", err
			}
			return value.String(), nil
		}
	},
}

// Build looks a workload up by name and constructs its work function.
func Build(name string, opts Options) (pipeline.Func[int, string], error) {
	builder, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown workload %q (available: %v)", name, Names())
	}
	return builder(opts), nil
}

// Names lists the registered workloads in stable order.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
