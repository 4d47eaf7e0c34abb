package testutil

import (
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/homest/internal/correspondence"
	"github.com/MeKo-Tech/homest/internal/homography"
	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/require"
)

// PerspectiveH is a mild perspective transform used as ground truth.
var PerspectiveH = homography.Matrix{
	{1.2, 0.1, 5},
	{-0.05, 0.9, -3},
	{1e-4, 2e-4, 1},
}

// WriteDataset saves ds under dir and returns the file path. The encoding is
// picked from the filename extension.
func WriteDataset(t *testing.T, dir, filename string, ds *correspondence.Dataset) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	require.NoError(t, correspondence.Save(path, ds), "Failed to write dataset %s", path)
	return path
}

// SyntheticDataset maps count random points through h with Gaussian noise
// of the given sigma. The first train pairs are marked for estimation.
func SyntheticDataset(t *testing.T, h homography.Matrix, count, train int, sigma float64, seed uint64) *correspondence.Dataset {
	t.Helper()

	opts := correspondence.DefaultSyntheticOptions()
	opts.Count = count
	opts.Train = train
	opts.NoiseSigma = sigma
	opts.Seed = seed
	ds, err := correspondence.Synthesize(h, opts)
	require.NoError(t, err, "Failed to synthesize dataset")
	return ds
}

// CollinearDataset returns pairs whose source points all lie on one line.
func CollinearDataset() *correspondence.Dataset {
	ds := &correspondence.Dataset{Name: "collinear"}
	for i := range 5 {
		x := float64(i)
		ds.Source = append(ds.Source, r2.Point{X: x, Y: 2*x + 1})
		ds.Destination = append(ds.Destination, r2.Point{X: 3 * x, Y: x - 2})
	}
	return ds
}
