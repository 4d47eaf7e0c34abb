// Package batch runs the calibration pipeline over many dataset files.
package batch

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/homest/internal/calibration"
	"github.com/MeKo-Tech/homest/internal/correspondence"
)

// ErrNoDatasets is returned when discovery finds nothing to process.
var ErrNoDatasets = errors.New("no dataset files found")

// ProcessBatch evaluates every dataset found under paths. Without
// ContinueOnError the first failing dataset aborts the run.
func ProcessBatch(paths []string, config *Config) (*Result, error) {
	files, err := discoverDatasetFiles(paths, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover dataset files: %w", err)
	}

	if len(files) == 0 {
		return nil, ErrNoDatasets
	}

	result := &Result{Paths: files}
	startTime := time.Now()
	for _, path := range files {
		rep, err := processDataset(path, config)
		if err != nil {
			if !config.ContinueOnError {
				return nil, fmt.Errorf("batch processing failed: %w", err)
			}
			slog.Warn("Skipping dataset", "file", path, "error", err)
			result.Failures = append(result.Failures, Failure{Path: path, Err: err})
			continue
		}
		result.Reports = append(result.Reports, rep)
	}
	result.Duration = time.Since(startTime)

	slog.Info("Batch finished",
		"datasets", len(files),
		"processed", len(result.Reports),
		"failed", len(result.Failures),
		"duration", result.Duration)
	return result, nil
}

// processDataset loads one file and runs the calibration pipeline on it.
func processDataset(path string, config *Config) (*calibration.Report, error) {
	ds, err := correspondence.Load(path)
	if err != nil {
		return nil, err
	}
	if config.TrainCount > 0 {
		ds.Train = min(config.TrainCount, ds.Len())
	}
	rep, err := calibration.Run(ds, config.Estimation)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rep, nil
}
