package batch

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MeKo-Tech/homest/internal/calibration"
	"github.com/MeKo-Tech/homest/internal/homography"
	"github.com/MeKo-Tech/homest/internal/report"
)

// Config holds all configuration for batch processing.
type Config struct {
	// Estimation settings
	Estimation homography.Config
	TrainCount int // overrides the dataset train count when > 0

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Failure handling
	ContinueOnError bool

	// Output settings
	Format     string
	OutputFile string
	Precision  int
	Quiet      bool
	ShowStats  bool
}

// DefaultConfig returns a configuration that processes every supported
// dataset file in the given directories without recursion.
func DefaultConfig() *Config {
	return &Config{
		Estimation:      homography.DefaultConfig(),
		IncludePatterns: []string{"*.yaml", "*.yml", "*.json", "*.csv"},
		Format:          report.FormatText,
		Precision:       report.DefaultPrecision,
	}
}

// Failure records a dataset that could not be processed.
type Failure struct {
	Path string `json:"path" yaml:"path"`
	Err  error  `json:"-" yaml:"-"`
}

// Error returns the failure message.
func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

// Result holds the result of batch processing.
type Result struct {
	Reports  []*calibration.Report
	Failures []Failure
	Paths    []string
	Duration time.Duration
}

// FormatResults formats the batch processing results in the specified format.
func (r *Result) FormatResults(format string, precision int) (string, error) {
	return formatBatchResults(r, format, precision)
}

// SaveResults writes the formatted results to outputFile, or to w when
// outputFile is empty.
func (r *Result) SaveResults(w io.Writer, format, outputFile string, precision int, quiet bool) error {
	output, err := r.FormatResults(format, precision)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !quiet {
			_, _ = fmt.Fprintf(w, "Results written to %s\n", outputFile)
		}
	} else {
		_, _ = fmt.Fprint(w, output)
	}

	return nil
}

// Stats summarizes a batch run.
type Stats struct {
	TotalFiles       int
	Processed        int
	Failed           int
	Warnings         int
	MeanTrainRMS     float64
	WorstValidation  float64
	WorstDataset     string
	TotalDuration    time.Duration
	AveragePerFile   time.Duration
	ThroughputPerSec float64
}

// Stats computes aggregate statistics over the processed datasets.
func (r *Result) Stats() Stats {
	s := Stats{
		TotalFiles:    len(r.Paths),
		Processed:     len(r.Reports),
		Failed:        len(r.Failures),
		TotalDuration: r.Duration,
	}
	for _, rep := range r.Reports {
		s.MeanTrainRMS += rep.Train.RMS
		if rep.Warning != "" {
			s.Warnings++
		}
		if v := rep.ValidationRMS(); rep.Validation != nil && (s.WorstDataset == "" || v > s.WorstValidation) {
			s.WorstValidation = v
			s.WorstDataset = rep.Dataset
		}
	}
	if s.Processed > 0 {
		s.MeanTrainRMS /= float64(s.Processed)
	}
	if s.TotalFiles > 0 {
		s.AveragePerFile = r.Duration / time.Duration(s.TotalFiles)
	}
	if r.Duration > 0 {
		s.ThroughputPerSec = float64(s.TotalFiles) / r.Duration.Seconds()
	}
	return s
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(w io.Writer, quiet bool) {
	if quiet {
		return
	}
	stats := r.Stats()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total datasets: %d\n", stats.TotalFiles)
	_, _ = fmt.Fprintf(w, "  Processed: %d\n", stats.Processed)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", stats.Failed)
	_, _ = fmt.Fprintf(w, "  Rank warnings: %d\n", stats.Warnings)
	_, _ = fmt.Fprintf(w, "  Mean train RMS: %.6g\n", stats.MeanTrainRMS)
	if stats.WorstDataset != "" {
		_, _ = fmt.Fprintf(w, "  Worst validation RMS: %.6g (%s)\n", stats.WorstValidation, stats.WorstDataset)
	}
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", stats.TotalDuration.Round(time.Microsecond))
	_, _ = fmt.Fprintf(w, "  Avg per dataset: %v\n", stats.AveragePerFile.Round(time.Microsecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f datasets/sec\n", stats.ThroughputPerSec)
}
