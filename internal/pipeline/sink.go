package pipeline

import (
	"sort"

	"github.com/conneroisu/workpipe/internal/channel"
)

// Sink consumes a result stream. The stream is lazy: nothing is buffered
// beyond the result channel itself, so draining slowly applies backpressure
// all the way to the workers. A sink is not restartable; once the underlying
// channel is closed and drained, it stays empty.
type Sink[R any] struct {
	results <-chan Result[R]
}

// NewSink wraps a result channel.
func NewSink[R any](results <-chan Result[R]) *Sink[R] {
	return &Sink[R]{results: results}
}

// Results exposes the raw stream.
func (s *Sink[R]) Results() <-chan Result[R] {
	return s.results
}

// Collect drains the stream to completion and returns every result in
// arrival order.
func (s *Sink[R]) Collect() []Result[R] {
	var out []Result[R]
	for result := range s.results {
		out = append(out, result)
	}

	return out
}

// Partition splits collected results into successes and failures, keeping
// the relative order within each group.
func Partition[R any](results []Result[R]) (succeeded, failed []Result[R]) {
	for _, result := range results {
		if result.Failed() {
			failed = append(failed, result)
		} else {
			succeeded = append(succeeded, result)
		}
	}

	return succeeded, failed
}

// SortByID orders results by task id in place, reconstructing submission
// order from an unordered drain.
func SortByID[R any](results []Result[R]) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].TaskID < results[j].TaskID
	})
}

// Merge fans several sinks into one stream. Sources are raced fairly: when
// more than one has a result ready, the winner is chosen uniformly at
// random, so a fast pipeline cannot starve a slow one. The merged stream
// closes once every source is closed and drained.
func Merge[R any](sinks ...*Sink[R]) *Sink[R] {
	out := make(chan Result[R])

	sources := make([]<-chan Result[R], len(sinks))
	for i, sink := range sinks {
		sources[i] = sink.Results()
	}

	go func() {
		defer close(out)
		for len(sources) > 0 {
			result, idx, ok := channel.First(sources...)
			if !ok {
				sources = append(sources[:idx], sources[idx+1:]...)
				continue
			}
			out <- result
		}
	}()

	return NewSink(out)
}
