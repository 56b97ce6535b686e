// Package profiler - Stage timing for the face blurring pipeline.
package profiler

import (
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"
)

// RuntimeProfiler accumulates timing statistics per named operation.
//
// It's safe for concurrent use, so pipeline workers can share one instance.
type RuntimeProfiler struct {
	mu             sync.Mutex
	startTime      time.Time
	operationTimes map[string]*TimeTracker
}

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	name      string
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// OperationStats is a point-in-time copy of a TimeTracker.
type OperationStats struct {
	Name  string
	Count int64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Avg returns the mean duration, or zero if the operation never ran.
func (s OperationStats) Avg() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// NewRuntimeProfiler creates a profiler whose uptime starts now.
func NewRuntimeProfiler() *RuntimeProfiler {
	return &RuntimeProfiler{
		startTime:      time.Now(),
		operationTimes: make(map[string]*TimeTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
//
// @example
// defer rp.StartOperation("detect")()
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		rp.RecordOperation(name, time.Since(start))
	}
}

// RecordOperation adds one completed run of an operation.
func (rp *RuntimeProfiler) RecordOperation(name string, duration time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{
			name:    name,
			minTime: duration,
			maxTime: duration,
		}
		rp.operationTimes[name] = tracker
	}

	tracker.totalTime += duration
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Snapshot returns the statistics of every operation, sorted by name.
func (rp *RuntimeProfiler) Snapshot() []OperationStats {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	stats := make([]OperationStats, 0, len(rp.operationTimes))
	for _, t := range rp.operationTimes {
		stats = append(stats, OperationStats{
			Name:  t.name,
			Count: t.count,
			Total: t.totalTime,
			Min:   t.minTime,
			Max:   t.maxTime,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Report logs one line per operation plus the process memory usage.
func (rp *RuntimeProfiler) Report(logger *slog.Logger) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	logger.Info("runtime profile",
		"uptime", time.Since(rp.startTime).Truncate(time.Millisecond),
		"goroutines", runtime.NumGoroutine(),
		"heap_alloc", formatBytes(mem.HeapAlloc),
		"gc_cycles", mem.NumGC,
	)

	for _, s := range rp.Snapshot() {
		logger.Info("operation timing",
			"operation", s.Name,
			"count", s.Count,
			"avg", s.Avg().Truncate(time.Microsecond),
			"min", s.Min.Truncate(time.Microsecond),
			"max", s.Max.Truncate(time.Microsecond),
		)
	}
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return strconv.FormatUint(bytes, 10) + " B"
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(bytes)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "B"
}
