package benchmark

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"
)

// Timer provides simple timing utilities for benchmarking.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
}

// NewTimer creates a new timer with the given name.
func NewTimer(name string) *Timer {
	return &Timer{
		name:  name,
		start: time.Now(),
	}
}

// Stop stops the timer and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// String returns a formatted string representation of the timer.
func (t *Timer) String() string {
	if t.name == "" {
		return t.duration.String()
	}
	return fmt.Sprintf("%s: %v", t.name, t.duration)
}

// MemoryStats holds memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64  // Currently allocated bytes
	TotalAllocBytes uint64  // Total allocated bytes (cumulative)
	Mallocs         uint64  // Cumulative heap allocations
	NumGC           uint32  // Number of GC runs
	GCCPUFraction   float64 // Fraction of CPU time spent in GC
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		Mallocs:         m.Mallocs,
		NumGC:           m.NumGC,
		GCCPUFraction:   m.GCCPUFraction,
	}
}

// String returns a formatted string representation of memory stats.
func (m MemoryStats) String() string {
	return fmt.Sprintf("Alloc: %d KB, Total: %d KB, Mallocs: %d, GC: %d (%.2f%% CPU)",
		m.AllocBytes/1024,
		m.TotalAllocBytes/1024,
		m.Mallocs,
		m.NumGC,
		m.GCCPUFraction*100)
}

// BenchmarkResult holds the result of a benchmark run.
type BenchmarkResult struct {
	Name         string
	Duration     time.Duration
	MemoryBefore MemoryStats
	MemoryAfter  MemoryStats
	Iterations   int
	Error        error
}

// AvgDuration is the mean wall time of one iteration.
func (br BenchmarkResult) AvgDuration() time.Duration {
	if br.Iterations <= 0 {
		return 0
	}
	return br.Duration / time.Duration(br.Iterations)
}

// BytesPerOp is the mean number of bytes allocated by one iteration.
func (br BenchmarkResult) BytesPerOp() uint64 {
	if br.Iterations <= 0 || br.MemoryAfter.TotalAllocBytes < br.MemoryBefore.TotalAllocBytes {
		return 0
	}
	return (br.MemoryAfter.TotalAllocBytes - br.MemoryBefore.TotalAllocBytes) / uint64(br.Iterations) //nolint:gosec // G115: iterations is positive
}

// AllocsPerOp is the mean number of heap allocations of one iteration.
func (br BenchmarkResult) AllocsPerOp() uint64 {
	if br.Iterations <= 0 || br.MemoryAfter.Mallocs < br.MemoryBefore.Mallocs {
		return 0
	}
	return (br.MemoryAfter.Mallocs - br.MemoryBefore.Mallocs) / uint64(br.Iterations) //nolint:gosec // G115: iterations is positive
}

// String returns a formatted string representation of the benchmark result.
func (br BenchmarkResult) String() string {
	if br.Error != nil {
		return fmt.Sprintf("%s: ERROR - %v", br.Name, br.Error)
	}

	return fmt.Sprintf("%s: %d iterations, avg: %v, total: %v, %d B/op, %d allocs/op",
		br.Name, br.Iterations, br.AvgDuration(), br.Duration, br.BytesPerOp(), br.AllocsPerOp())
}

// Benchmark represents a benchmark function.
type Benchmark struct {
	Name string
	Func func() error
}

// BenchmarkSuite manages multiple benchmarks.
type BenchmarkSuite struct {
	benchmarks []Benchmark
	results    []BenchmarkResult
	mu         sync.Mutex
}

// NewBenchmarkSuite creates a new benchmark suite.
func NewBenchmarkSuite() *BenchmarkSuite {
	return &BenchmarkSuite{
		benchmarks: make([]Benchmark, 0),
		results:    make([]BenchmarkResult, 0),
	}
}

// Add adds a benchmark to the suite.
func (bs *BenchmarkSuite) Add(name string, fn func() error) {
	bs.benchmarks = append(bs.benchmarks, Benchmark{
		Name: name,
		Func: fn,
	})
}

// Run runs a single benchmark with the specified number of iterations.
func (bs *BenchmarkSuite) Run(name string, iterations int) BenchmarkResult {
	for _, b := range bs.benchmarks {
		if b.Name == name {
			return bs.runBenchmark(b, iterations)
		}
	}

	return BenchmarkResult{
		Name:  name,
		Error: fmt.Errorf("benchmark '%s' not found", name),
	}
}

// RunAll runs all benchmarks in the suite.
func (bs *BenchmarkSuite) RunAll(iterations int) []BenchmarkResult {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	bs.results = make([]BenchmarkResult, 0, len(bs.benchmarks))

	for _, benchmark := range bs.benchmarks {
		result := bs.runBenchmark(benchmark, iterations)
		bs.results = append(bs.results, result)
	}

	return bs.results
}

// runBenchmark executes a single benchmark.
func (bs *BenchmarkSuite) runBenchmark(benchmark Benchmark, iterations int) BenchmarkResult {
	// Force garbage collection before measuring
	runtime.GC()
	memBefore := GetMemoryStats()

	timer := NewTimer(benchmark.Name)
	var err error

	for range iterations {
		if e := benchmark.Func(); e != nil {
			err = e
			break
		}
	}

	duration := timer.Stop()
	memAfter := GetMemoryStats()

	return BenchmarkResult{
		Name:         benchmark.Name,
		Duration:     duration,
		MemoryBefore: memBefore,
		MemoryAfter:  memAfter,
		Iterations:   iterations,
		Error:        err,
	}
}

// Results returns the last run results.
func (bs *BenchmarkSuite) Results() []BenchmarkResult {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.results
}

// PrintResults writes formatted benchmark results to w.
func (bs *BenchmarkSuite) PrintResults(w io.Writer) {
	_, _ = fmt.Fprintln(w, "\nBenchmark Results:")
	_, _ = fmt.Fprintln(w, "==================")
	for _, result := range bs.Results() {
		_, _ = fmt.Fprintln(w, result.String())
	}
	_, _ = fmt.Fprintln(w)
}
