// Package telemetry provides the structured logger and stage-event hooks
// shared by the extraction, retrieval, and matching drivers.
package telemetry

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Logger is the minimal logging surface the pipeline core depends on,
// injected rather than imported directly so the core never names slog.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
}

// SlogLogger wraps the standard library slog.Logger to satisfy Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a logger backed by slog.
func NewSlogLogger(l *slog.Logger) *SlogLogger { return &SlogLogger{log: l} }

func (s *SlogLogger) Debug(msg string, fields ...any) { s.log.Debug(msg, fields...) }
func (s *SlogLogger) Info(msg string, fields ...any)  { s.log.Info(msg, fields...) }
func (s *SlogLogger) Warn(msg string, fields ...any)  { s.log.Warn(msg, fields...) }
func (s *SlogLogger) Error(msg string, fields ...any) { s.log.Error(msg, fields...) }

// noop satisfies Logger while discarding everything; used as the zero value
// default so callers need not nil-check before logging.
type noop struct{}

func (noop) Debug(string, ...any) {}
func (noop) Info(string, ...any)  {}
func (noop) Warn(string, ...any)  {}
func (noop) Error(string, ...any) {}

// Noop is a Logger that discards all messages.
var Noop Logger = noop{}

// StageHook observes a pipeline stage's per-task lifecycle. BeforeTask and
// AfterTask are invoked around every task(index) closure run by a worker or
// the pinned stage; stageName identifies the owning stage ("load",
// "extract", "match", ...).
type StageHook interface {
	BeforeTask(stageName string, index int)
	AfterTask(stageName string, index int, d time.Duration, err error)
}

// LoggingHook logs before/after each stage task.
type LoggingHook struct {
	logger Logger
}

// NewLoggingHook creates a LoggingHook.
func NewLoggingHook(l Logger) *LoggingHook { return &LoggingHook{logger: l} }

func (h *LoggingHook) BeforeTask(stage string, index int) {
	h.logger.Debug("stage.task.start", "stage", stage, "index", index)
}

func (h *LoggingHook) AfterTask(stage string, index int, d time.Duration, err error) {
	if err != nil {
		h.logger.Warn("stage.task.error", "stage", stage, "index", index,
			"duration_ms", d.Milliseconds(), "error", err.Error())
		return
	}
	h.logger.Debug("stage.task.done", "stage", stage, "index", index,
		"duration_ms", d.Milliseconds())
}

// Metrics accumulates per-stage counters; safe for concurrent use.
type Metrics struct {
	mu sync.RWMutex

	taskDurationsMs map[string]int64
	taskCalls       map[string]int64
	taskErrors      map[string]int64
}

// NewMetrics creates an empty metrics store.
func NewMetrics() *Metrics {
	return &Metrics{
		taskDurationsMs: make(map[string]int64),
		taskCalls:       make(map[string]int64),
		taskErrors:      make(map[string]int64),
	}
}

func (m *Metrics) record(stage string, d time.Duration, err error) {
	ms := d.Milliseconds()
	m.mu.Lock()
	m.taskDurationsMs[stage] += ms
	m.taskCalls[stage]++
	if err != nil {
		m.taskErrors[stage]++
	}
	m.mu.Unlock()
}

// MetricsHook feeds stage events into a Metrics store.
type MetricsHook struct {
	m *Metrics
}

// NewMetricsHook creates a MetricsHook.
func NewMetricsHook(m *Metrics) *MetricsHook { return &MetricsHook{m: m} }

func (h *MetricsHook) BeforeTask(string, int) {}

func (h *MetricsHook) AfterTask(stage string, _ int, d time.Duration, err error) {
	h.m.record(stage, d, err)
}

// Snapshot is an immutable point-in-time copy of a Metrics store.
type Snapshot struct {
	TaskDurationsMs map[string]int64
	TaskCalls       map[string]int64
	TaskErrors      map[string]int64
}

// Snapshot returns a copy of the current metrics.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{
		TaskDurationsMs: make(map[string]int64, len(m.taskDurationsMs)),
		TaskCalls:       make(map[string]int64, len(m.taskCalls)),
		TaskErrors:      make(map[string]int64, len(m.taskErrors)),
	}
	for k, v := range m.taskDurationsMs {
		snap.TaskDurationsMs[k] = v
	}
	for k, v := range m.taskCalls {
		snap.TaskCalls[k] = v
	}
	for k, v := range m.taskErrors {
		snap.TaskErrors[k] = v
	}
	return snap
}

// AddProcessed/AddError tally running totals for a driver's own
// processed/error counters; kept as free functions operating on atomics
// owned by the caller rather than wrapped in additional mutex state here.
func AddProcessed(counter *int64) { atomic.AddInt64(counter, 1) }
func AddError(counter *int64)     { atomic.AddInt64(counter, 1) }
