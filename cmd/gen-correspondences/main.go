package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/homest/internal/correspondence"
	"github.com/MeKo-Tech/homest/internal/homography"
	"github.com/MeKo-Tech/homest/internal/testutil"
)

// perspectiveH is used when -h is not given.
const perspectiveH = "1.2,0.1,5,-0.05,0.9,-3,1e-4,2e-4,1"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	defaults := correspondence.DefaultSyntheticOptions()
	var (
		hSpec    = flag.String("h", perspectiveH, "ground truth homography as 9 comma separated row-major values")
		count    = flag.Int("count", defaults.Count, "number of correspondences")
		train    = flag.Int("train", defaults.Train, "number of leading training pairs (0: all)")
		extent   = flag.Float64("extent", defaults.Extent, "source coordinates are drawn from [-extent, extent]")
		noise    = flag.Float64("noise", 0, "standard deviation of Gaussian noise added to destinations")
		seed     = flag.Uint64("seed", defaults.Seed, "random seed")
		name     = flag.String("name", "", "dataset name (default: file name)")
		output   = flag.String("o", "", "output file (.yaml, .json, .csv); default: testdata/datasets/synthetic.yaml")
		fixtures = flag.Bool("fixtures", false, "regenerate the standard noisy fixtures under testdata/datasets")
		verbose  = flag.Bool("v", false, "Verbose output")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate synthetic correspondence datasets for homest.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s -o pairs.yaml                     # Noiseless perspective dataset\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -noise 0.5 -seed 7 -o noisy.csv   # Noisy dataset as CSV\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -fixtures                         # Regenerate test fixtures\n", os.Args[0])
	}

	flag.Parse()

	h, err := parseMatrix(*hSpec)
	if err != nil {
		slog.Error("Invalid homography", "error", err)
		os.Exit(1)
	}

	if *fixtures {
		if err := generateFixtures(h); err != nil {
			slog.Error("Failed to generate fixtures", "error", err)
			os.Exit(1)
		}
		return
	}

	path := *output
	if path == "" {
		root, err := testutil.GetProjectRoot()
		if err != nil {
			slog.Error("Failed to find project root", "error", err)
			os.Exit(1)
		}
		path = filepath.Join(root, "testdata", "datasets", "synthetic.yaml")
	}

	opts := correspondence.SyntheticOptions{
		Name:       *name,
		Count:      *count,
		Train:      *train,
		Extent:     *extent,
		NoiseSigma: *noise,
		Seed:       *seed,
	}
	if opts.Name == "" {
		opts.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if *verbose {
		slog.Info("Options", "h", h.Slice(), "count", opts.Count, "train", opts.Train,
			"extent", opts.Extent, "noise", opts.NoiseSigma, "seed", opts.Seed)
	}

	if err := write(path, h, opts); err != nil {
		slog.Error("Failed to generate dataset", "error", err)
		os.Exit(1)
	}
}

// generateFixtures writes the noisy datasets used by the integration tests.
func generateFixtures(h homography.Matrix) error {
	root, err := testutil.GetProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}
	dir := filepath.Join(root, "testdata", "datasets", "synthetic")
	if err := testutil.EnsureDir(dir); err != nil {
		return err
	}

	for i, sigma := range []float64{0, 0.1, 0.5, 2} {
		opts := correspondence.DefaultSyntheticOptions()
		opts.Name = fmt.Sprintf("noise_%g", sigma)
		opts.Count = 20
		opts.Train = 12
		opts.NoiseSigma = sigma
		opts.Seed = uint64(i + 1)
		if err := write(filepath.Join(dir, opts.Name+".yaml"), h, opts); err != nil {
			return err
		}
	}
	return nil
}

func write(path string, h homography.Matrix, opts correspondence.SyntheticOptions) error {
	ds, err := correspondence.Synthesize(h, opts)
	if err != nil {
		return err
	}
	if err := correspondence.Save(path, ds); err != nil {
		return err
	}
	slog.Info("Generated dataset", "file", path, "pairs", ds.Len(), "train", ds.TrainCount(), "noise", opts.NoiseSigma)
	return nil
}

func parseMatrix(spec string) (homography.Matrix, error) {
	fields := strings.Split(spec, ",")
	values := make([]float64, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return homography.Matrix{}, fmt.Errorf("invalid value %q: %w", field, err)
		}
		values = append(values, v)
	}
	return homography.FromSlice(values)
}
