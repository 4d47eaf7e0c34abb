package benchmark

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/MeKo-Tech/homest/internal/calibration"
	"github.com/MeKo-Tech/homest/internal/correspondence"
	"github.com/MeKo-Tech/homest/internal/homography"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// EstimationOptions selects the synthetic problems an EstimationBenchmark runs.
type EstimationOptions struct {
	Sizes      []int   // correspondence counts, one problem per size
	NoiseSigma float64 // Gaussian noise on the destinations
	Extent     float64 // source coordinates are drawn from [-Extent, Extent]
	Seed       uint64
	Estimation homography.Config
}

// DefaultEstimationOptions covers the minimal case up to a dense calibration grid.
func DefaultEstimationOptions() EstimationOptions {
	return EstimationOptions{
		Sizes:      []int{4, 8, 32, 128, 512, 2048},
		NoiseSigma: 0.5,
		Extent:     100,
		Seed:       1,
		Estimation: homography.DefaultConfig(),
	}
}

// EstimationResult pairs a timing result with the accuracy reached on the problem.
type EstimationResult struct {
	Pairs         int
	TrainPairs    int
	NoiseSigma    float64
	Result        BenchmarkResult
	TrainRMS      float64
	ValidationRMS float64
}

// String returns a formatted representation of the result.
func (r EstimationResult) String() string {
	return fmt.Sprintf("%s (train %d, val RMS %.4f)", r.Result.String(), r.TrainPairs, r.ValidationRMS)
}

// EstimationBenchmark times calibration.Run on synthetic datasets drawn from
// a known homography.
type EstimationBenchmark struct {
	*BenchmarkSuite
	truth    homography.Matrix
	opts     EstimationOptions
	datasets []*correspondence.Dataset
	results  []EstimationResult
}

// NewEstimationBenchmark synthesizes one dataset per size. Three quarters of
// every dataset are used for training, never fewer than four pairs.
func NewEstimationBenchmark(truth homography.Matrix, opts EstimationOptions) (*EstimationBenchmark, error) {
	if len(opts.Sizes) == 0 {
		return nil, fmt.Errorf("no problem sizes given")
	}

	b := &EstimationBenchmark{
		BenchmarkSuite: NewBenchmarkSuite(),
		truth:          truth,
		opts:           opts,
	}
	for _, n := range opts.Sizes {
		train := max(n*3/4, homography.MinCorrespondences)
		ds, err := correspondence.Synthesize(truth, correspondence.SyntheticOptions{
			Name:       fmt.Sprintf("Estimate_N%d", n),
			Count:      n,
			Train:      min(train, n),
			Extent:     opts.Extent,
			NoiseSigma: opts.NoiseSigma,
			Seed:       opts.Seed,
		})
		if err != nil {
			return nil, fmt.Errorf("synthesize %d pairs: %w", n, err)
		}
		b.datasets = append(b.datasets, ds)
		b.Add(ds.Name, func() error {
			_, err := calibration.Run(ds, opts.Estimation)
			return err
		})
	}
	return b, nil
}

// RunBenchmark runs every problem and records its accuracy next to its timing.
func (b *EstimationBenchmark) RunBenchmark(iterations int) ([]EstimationResult, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", iterations)
	}

	slog.Debug("Benchmarking", "problems", len(b.datasets), "iterations", iterations)
	runs := b.RunAll(iterations)

	b.results = make([]EstimationResult, 0, len(b.datasets))
	for i, ds := range b.datasets {
		result := EstimationResult{
			Pairs:      ds.Len(),
			TrainPairs: ds.TrainCount(),
			NoiseSigma: b.opts.NoiseSigma,
			Result:     runs[i],
		}
		if result.Result.Error == nil {
			report, err := calibration.Run(ds, b.opts.Estimation)
			if err != nil {
				return nil, err
			}
			result.TrainRMS = report.Train.RMS
			result.ValidationRMS = report.ValidationRMS()
		}
		b.results = append(b.results, result)
	}
	return b.results, nil
}

// PrintDetailedResults writes one line per problem, with grouped digits.
func (b *EstimationBenchmark) PrintDetailedResults(w io.Writer) {
	p := message.NewPrinter(language.English)
	_, _ = fmt.Fprintln(w, "\nEstimation Benchmark Results:")
	_, _ = fmt.Fprintln(w, "=============================")
	for _, r := range b.results {
		if r.Result.Error != nil {
			_, _ = fmt.Fprintln(w, r.Result.String())
			continue
		}
		_, _ = p.Fprintf(w, "%-16s %6d pairs  avg %12v  %10d B/op  %6d allocs/op  val RMS %.4f\n",
			r.Result.Name, r.Pairs, r.Result.AvgDuration(), r.Result.BytesPerOp(), r.Result.AllocsPerOp(), r.ValidationRMS)
	}
	_, _ = fmt.Fprintln(w)
}

// WriteCSV writes the results in CSV form.
func WriteCSV(w io.Writer, results []EstimationResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"name", "pairs", "train_pairs", "noise_sigma", "iterations",
		"avg_ns", "bytes_per_op", "allocs_per_op", "train_rms", "validation_rms", "error",
	}); err != nil {
		return err
	}
	for _, r := range results {
		errText := ""
		if r.Result.Error != nil {
			errText = r.Result.Error.Error()
		}
		record := []string{
			r.Result.Name,
			strconv.Itoa(r.Pairs),
			strconv.Itoa(r.TrainPairs),
			strconv.FormatFloat(r.NoiseSigma, 'g', -1, 64),
			strconv.Itoa(r.Result.Iterations),
			strconv.FormatInt(r.Result.AvgDuration().Nanoseconds(), 10),
			strconv.FormatUint(r.Result.BytesPerOp(), 10),
			strconv.FormatUint(r.Result.AllocsPerOp(), 10),
			strconv.FormatFloat(r.TrainRMS, 'g', -1, 64),
			strconv.FormatFloat(r.ValidationRMS, 'g', -1, 64),
			errText,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
