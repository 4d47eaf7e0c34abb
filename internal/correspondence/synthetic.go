package correspondence

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/MeKo-Tech/homest/internal/homography"
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/stat/distuv"
)

// SyntheticOptions controls Synthesize.
type SyntheticOptions struct {
	Name       string
	Count      int     // number of pairs
	Train      int     // training pairs, 0 for all
	Extent     float64 // source coordinates are drawn from [-Extent, Extent]
	NoiseSigma float64 // standard deviation of Gaussian noise added to destinations
	Seed       uint64
}

// DefaultSyntheticOptions returns a 12 pair noiseless set with 8 training pairs.
func DefaultSyntheticOptions() SyntheticOptions {
	return SyntheticOptions{
		Name:   "synthetic",
		Count:  12,
		Train:  8,
		Extent: 100,
		Seed:   1,
	}
}

// Synthesize draws random source points, maps them through h and optionally
// perturbs the destinations. The same seed always yields the same dataset.
func Synthesize(h homography.Matrix, opts SyntheticOptions) (*Dataset, error) {
	if opts.Count < homography.MinCorrespondences {
		return nil, fmt.Errorf("%w: need at least %d pairs, got %d",
			ErrInvalidDataset, homography.MinCorrespondences, opts.Count)
	}
	if opts.Extent <= 0 {
		return nil, errors.New("extent must be positive")
	}
	if opts.NoiseSigma < 0 {
		return nil, errors.New("noise sigma must not be negative")
	}

	src := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	uniform := distuv.Uniform{Min: -opts.Extent, Max: opts.Extent, Src: src}
	noise := distuv.Normal{Mu: 0, Sigma: opts.NoiseSigma, Src: src}

	ds := &Dataset{
		Name:        opts.Name,
		Train:       opts.Train,
		Source:      make([]r2.Point, opts.Count),
		Destination: make([]r2.Point, opts.Count),
	}
	for i := range ds.Source {
		ds.Source[i] = r2.Point{X: uniform.Rand(), Y: uniform.Rand()}
	}
	dst, err := homography.Apply(h, ds.Source, 1e-9)
	if err != nil {
		return nil, fmt.Errorf("ground truth maps a source point to infinity: %w", err)
	}
	for i, p := range dst {
		if opts.NoiseSigma > 0 {
			p = p.Add(r2.Point{X: noise.Rand(), Y: noise.Rand()})
		}
		ds.Destination[i] = p
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}
