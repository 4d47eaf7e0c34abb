package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/homest/internal/benchmark"
	"github.com/MeKo-Tech/homest/internal/homography"
)

// truth is the mild perspective transform the synthetic problems are drawn from.
var truth = homography.Matrix{
	{1.2, 0.1, 5},
	{-0.05, 0.9, -3},
	{1e-4, 2e-4, 1},
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("Benchmark failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	defaults := benchmark.DefaultEstimationOptions()
	fs := flag.NewFlagSet("benchmark", flag.ContinueOnError)
	var (
		sizes      = fs.String("sizes", joinInts(defaults.Sizes), "Comma separated correspondence counts")
		noise      = fs.Float64("noise", defaults.NoiseSigma, "Standard deviation of destination noise")
		seed       = fs.Uint64("seed", defaults.Seed, "Random seed")
		iterations = fs.Int("iterations", 100, "Number of iterations per benchmark")
		conv       = fs.String("scale", string(defaults.Estimation.ScaleConvention), "Scale convention (h22 or frobenius)")
		outputFile = fs.String("output", "", "Output CSV file for results (optional)")
		verbose    = fs.Bool("verbose", false, "Verbose output")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	_, _ = fmt.Fprintln(stdout, "homest Estimation Benchmark")
	_, _ = fmt.Fprintln(stdout, "===========================")

	opts := defaults
	opts.NoiseSigma = *noise
	opts.Seed = *seed
	opts.Estimation.ScaleConvention = homography.ScaleConvention(*conv)

	parsed, err := parseInts(*sizes)
	if err != nil {
		return fmt.Errorf("invalid -sizes: %w", err)
	}
	opts.Sizes = parsed

	bench, err := benchmark.NewEstimationBenchmark(truth, opts)
	if err != nil {
		return fmt.Errorf("failed to set up benchmark: %w", err)
	}

	_, _ = fmt.Fprintf(stdout, "Running benchmarks with %d iterations per problem...\n", *iterations)

	results, err := bench.RunBenchmark(*iterations)
	if err != nil {
		return err
	}

	bench.PrintResults(stdout)
	bench.PrintDetailedResults(stdout)

	if *outputFile != "" {
		if err := saveResultsToFile(*outputFile, results); err != nil {
			slog.Error("Failed to save results to file", "file", *outputFile, "error", err)
		} else {
			_, _ = fmt.Fprintf(stdout, "Results saved to: %s\n", *outputFile)
		}
	}
	return nil
}

func saveResultsToFile(filename string, results []benchmark.EstimationResult) error {
	file, err := os.Create(filename) //nolint:gosec // G304: output path is provided by the user
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	return benchmark.WriteCSV(file, results)
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid size %q: %w", field, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
