package pipeline

import (
	"github.com/conneroisu/workpipe/internal/errors"
	"github.com/conneroisu/workpipe/internal/logging"
)

// Config controls pool size and task queue shape.
type Config struct {
	// Workers is the number of pool workers, fixed for the life of the
	// dispatcher. It must be at least 1; a dispatcher with no workers
	// would accept tasks it can never run.
	Workers int

	// QueueCapacity bounds the task queue. Zero means direct handoff:
	// every submit waits until a worker takes the task. Ignored when
	// Unbounded is set.
	QueueCapacity int

	// Unbounded removes the task queue bound; submits never block for
	// space. Memory is the only limit.
	Unbounded bool
}

// DefaultConfig returns the configuration used when the caller has no
// opinion: a small pool with a modest queue.
func DefaultConfig() Config {
	return Config{
		Workers:       4,
		QueueCapacity: 8,
	}
}

func (c Config) validate() error {
	if c.Workers < 1 {
		return errors.ErrNoWorkers
	}
	if !c.Unbounded && c.QueueCapacity < 0 {
		return errors.ErrNegativeCapacity
	}

	return nil
}

// settings collects the optional dispatcher knobs so Option stays free of
// type parameters.
type settings struct {
	logger logging.Logger
	name   string
}

// Option customizes a dispatcher.
type Option func(*settings)

// WithLogger attaches a structured logger. Without it the dispatcher is
// silent.
func WithLogger(logger logging.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithName tags the dispatcher's log records with a pipeline name, useful
// when several dispatchers share one process.
func WithName(name string) Option {
	return func(s *settings) {
		s.name = name
	}
}
