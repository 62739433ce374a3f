// Package profiler - Runtime profiling of the detection host.
package profiler

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MetricsCollector defines the interface for collecting custom metrics.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// Recorder is the subset of the profiler the detection path depends on.
type Recorder interface {
	StartOperation(name string) func()
	RecordMetric(name string, value float64)
	Increment(name string)
}

// RuntimeProfiler tracks operation timings, custom metrics and counters and
// reports them periodically through a zap logger.
//
// All methods are safe for concurrent use.
type RuntimeProfiler struct {
	reportInterval time.Duration
	sampleInterval time.Duration
	maxSamples     int
	logger         *zap.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	startTime time.Time
	running   bool

	memStats    runtime.MemStats
	lastGCCount uint32

	customMetrics  map[string]*MetricTracker
	counters       map[string]int64
	collectors     []MetricsCollector
	operationTimes map[string]*TimeTracker
}

// MetricTracker tracks statistics for a custom metric over a sliding window.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

func newMetricTracker(capacity int, first float64) *MetricTracker {
	return &MetricTracker{
		values: make([]float64, 0, capacity),
		min:    first,
		max:    first,
	}
}

func (t *MetricTracker) add(value float64, window int) {
	t.values = append(t.values, value)
	if len(t.values) > window {
		t.sum -= t.values[0]
		t.values = t.values[1:]
	}
	t.sum += value
	t.count++
	if value < t.min {
		t.min = value
	}
	if value > t.max {
		t.max = value
	}
}

// TimeTracker tracks operation timing statistics over a sliding window.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

func (t *TimeTracker) add(d time.Duration, window int) {
	t.durations = append(t.durations, d)
	if len(t.durations) > window {
		t.totalTime -= t.durations[0]
		t.durations = t.durations[1:]
	}
	t.totalTime += d
	t.count++
	if d < t.minTime {
		t.minTime = d
	}
	if d > t.maxTime {
		t.maxTime = d
	}
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to emit status reports (default: 10s)
	ReportInterval time.Duration
	// SampleInterval specifies how often to poll collectors (default: 1s)
	SampleInterval time.Duration
	// MaxSamples specifies the sliding window of each tracker (default: 600)
	MaxSamples int
	// Logger receives the reports. Defaults to a no-op logger.
	Logger *zap.Logger
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
//   - opts: Configuration options for the profiler.
//
// Returns:
//   - A configured RuntimeProfiler instance. Call Start to begin reporting.
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval == 0 {
		opts.ReportInterval = 10 * time.Second
	}
	if opts.SampleInterval == 0 {
		opts.SampleInterval = time.Second
	}
	if opts.MaxSamples == 0 {
		opts.MaxSamples = 600
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		sampleInterval: opts.SampleInterval,
		maxSamples:     opts.MaxSamples,
		logger:         opts.Logger,
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
		customMetrics:  make(map[string]*MetricTracker),
		counters:       make(map[string]int64),
		operationTimes: make(map[string]*TimeTracker),
	}
}

// Start begins the sampling and reporting goroutines. Calling it again while
// running has no effect.
func (rp *RuntimeProfiler) Start() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}

	rp.running = true
	rp.startTime = time.Now()

	rp.wg.Add(2)
	go rp.loop(rp.sampleInterval, rp.sample)
	go rp.loop(rp.reportInterval, rp.report)
}

// Stop stops the profiler, waits for its goroutines and emits a final report.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	rp.mu.Unlock()

	rp.cancel()
	rp.wg.Wait()
	rp.report()
}

func (rp *RuntimeProfiler) loop(interval time.Duration, fn func()) {
	defer rp.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rp.ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// AddMetricsCollector registers a custom metrics collector polled every sample interval.
func (rp *RuntimeProfiler) AddMetricsCollector(collector MetricsCollector) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.collectors = append(rp.collectors, collector)
}

// RecordMetric records a custom metric value.
//
// Arguments:
//   - name: The name of the metric.
//   - value: The metric value to record.
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.recordMetricLocked(name, value)
}

func (rp *RuntimeProfiler) recordMetricLocked(name string, value float64) {
	tracker, exists := rp.customMetrics[name]
	if !exists {
		tracker = newMetricTracker(rp.maxSamples, value)
		rp.customMetrics[name] = tracker
	}
	tracker.add(value, rp.maxSamples)
}

// Increment adds one to a named counter.
func (rp *RuntimeProfiler) Increment(name string) {
	rp.mu.Lock()
	rp.counters[name]++
	rp.mu.Unlock()
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - A function to call when the operation completes.
//
// Example:
//
// ```go
//
//	done := profiler.StartOperation("inference")
//	defer done()
//
// ```
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		rp.recordOperationTime(name, time.Since(start))
	}
}

func (rp *RuntimeProfiler) recordOperationTime(name string, duration time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{minTime: duration, maxTime: duration}
		rp.operationTimes[name] = tracker
	}
	tracker.add(duration, rp.maxSamples)
}

func (rp *RuntimeProfiler) sample() {
	rp.mu.Lock()
	collectors := append([]MetricsCollector(nil), rp.collectors...)
	rp.mu.Unlock()

	// Collectors run without the lock so they may call back into the profiler.
	collected := make([]map[string]float64, 0, len(collectors))
	for _, c := range collectors {
		collected = append(collected, c.CollectMetrics())
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()

	runtime.ReadMemStats(&rp.memStats)
	for _, metrics := range collected {
		for name, value := range metrics {
			rp.recordMetricLocked(name, value)
		}
	}
}

// OperationStats summarizes an operation's timings.
type OperationStats struct {
	Name  string
	Count int64
	Avg   time.Duration
	Min   time.Duration
	Max   time.Duration
}

// MetricStats summarizes a custom metric.
type MetricStats struct {
	Name    string
	Count   int64
	Avg     float64
	Min     float64
	Max     float64
	Samples int
}

// Snapshot is a point-in-time copy of the profiler state.
type Snapshot struct {
	Uptime     time.Duration
	Goroutines int
	HeapAlloc  uint64
	NumGC      uint32
	Operations []OperationStats
	Metrics    []MetricStats
	Counters   map[string]int64
}

// Snapshot returns the current statistics sorted by name.
func (rp *RuntimeProfiler) Snapshot() Snapshot {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	s := Snapshot{
		Uptime:     time.Since(rp.startTime),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  rp.memStats.HeapAlloc,
		NumGC:      rp.memStats.NumGC,
		Counters:   make(map[string]int64, len(rp.counters)),
	}

	for name, t := range rp.operationTimes {
		if len(t.durations) == 0 {
			continue
		}
		s.Operations = append(s.Operations, OperationStats{
			Name:  name,
			Count: t.count,
			Avg:   t.totalTime / time.Duration(len(t.durations)),
			Min:   t.minTime,
			Max:   t.maxTime,
		})
	}
	sort.Slice(s.Operations, func(i, j int) bool { return s.Operations[i].Name < s.Operations[j].Name })

	for name, t := range rp.customMetrics {
		if len(t.values) == 0 {
			continue
		}
		s.Metrics = append(s.Metrics, MetricStats{
			Name:    name,
			Count:   t.count,
			Avg:     t.sum / float64(len(t.values)),
			Min:     t.min,
			Max:     t.max,
			Samples: len(t.values),
		})
	}
	sort.Slice(s.Metrics, func(i, j int) bool { return s.Metrics[i].Name < s.Metrics[j].Name })

	for name, v := range rp.counters {
		s.Counters[name] = v
	}
	return s
}

func (rp *RuntimeProfiler) report() {
	s := rp.Snapshot()

	rp.mu.Lock()
	newGC := s.NumGC - rp.lastGCCount
	rp.lastGCCount = s.NumGC
	rp.mu.Unlock()

	rp.logger.Info("runtime profile",
		zap.Duration("uptime", s.Uptime.Truncate(time.Millisecond)),
		zap.Int("goroutines", s.Goroutines),
		zap.Uint64("heap_alloc", s.HeapAlloc),
		zap.Uint32("gc_new", newGC),
		zap.Any("counters", s.Counters),
	)
	for _, op := range s.Operations {
		rp.logger.Info("operation timing",
			zap.String("operation", op.Name),
			zap.Int64("count", op.Count),
			zap.Duration("avg", op.Avg.Truncate(time.Microsecond)),
			zap.Duration("min", op.Min.Truncate(time.Microsecond)),
			zap.Duration("max", op.Max.Truncate(time.Microsecond)),
		)
	}
	for _, m := range s.Metrics {
		rp.logger.Info("metric",
			zap.String("metric", m.Name),
			zap.Float64("avg", m.Avg),
			zap.Float64("min", m.Min),
			zap.Float64("max", m.Max),
			zap.Int("samples", m.Samples),
		)
	}
}

// Nop is a Recorder that discards everything.
var Nop Recorder = nopRecorder{}

type nopRecorder struct{}

func (nopRecorder) StartOperation(string) func()  { return func() {} }
func (nopRecorder) RecordMetric(string, float64) {}
func (nopRecorder) Increment(string)             {}
