package pipeline

import (
	"sync"
	"time"

	"github.com/conneroisu/workpipe/internal/errors"
)

// Metrics tracks pipeline throughput and timing. Counters cover executed
// tasks; a task abandoned by cancellation before execution is not counted.
type Metrics struct {
	TotalTasks      int64
	Succeeded       int64
	Failed          int64
	Recovered       int64
	AverageDuration time.Duration
	TotalDuration   time.Duration
	mutex           sync.RWMutex
}

// MetricsSnapshot is a mutex-free copy of Metrics, safe to pass around and
// marshal.
type MetricsSnapshot struct {
	TotalTasks      int64         `json:"total_tasks" yaml:"total_tasks"`
	Succeeded       int64         `json:"succeeded" yaml:"succeeded"`
	Failed          int64         `json:"failed" yaml:"failed"`
	Recovered       int64         `json:"recovered_panics" yaml:"recovered_panics"`
	AverageDuration time.Duration `json:"average_duration" yaml:"average_duration"`
	TotalDuration   time.Duration `json:"total_duration" yaml:"total_duration"`
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Record records one executed task
func (m *Metrics) Record(err error, duration time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalTasks++
	m.TotalDuration += duration

	if err != nil {
		m.Failed++
		if errors.IsPanic(err) {
			m.Recovered++
		}
	} else {
		m.Succeeded++
	}

	if m.TotalTasks > 0 {
		m.AverageDuration = m.TotalDuration / time.Duration(m.TotalTasks)
	}
}

// Snapshot returns a copy of the current metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return MetricsSnapshot{
		TotalTasks:      m.TotalTasks,
		Succeeded:       m.Succeeded,
		Failed:          m.Failed,
		Recovered:       m.Recovered,
		AverageDuration: m.AverageDuration,
		TotalDuration:   m.TotalDuration,
	}
}

// Reset resets all counters
func (m *Metrics) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalTasks = 0
	m.Succeeded = 0
	m.Failed = 0
	m.Recovered = 0
	m.AverageDuration = 0
	m.TotalDuration = 0
}

// SuccessRate returns the success rate as a percentage
func (m *Metrics) SuccessRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.TotalTasks == 0 {
		return 0.0
	}

	return float64(m.Succeeded) / float64(m.TotalTasks) * 100.0
}
