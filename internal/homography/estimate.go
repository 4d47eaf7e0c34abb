package homography

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/homest/internal/geometry"
	"github.com/MeKo-Tech/homest/internal/mempool"
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// MinCorrespondences is the smallest number of point pairs that determines H.
const MinCorrespondences = 4

// Config holds the numerical policy for estimation and evaluation.
type Config struct {
	ScaleConvention       ScaleConvention // how the free scale of H is fixed (h22 or frobenius)
	RankTolerance         float64         // sigma8/sigma1 below this marks A as rank deficient
	CollinearityTolerance float64         // point-set width relative to spread below which points are collinear
	InfinityTolerance     float64         // |w| relative to its terms below which a point maps to infinity
	AllowRankDeficient    bool            // return H with a recorded warning instead of failing
}

// DefaultConfig returns the settings used by the CLI and server unless overridden.
func DefaultConfig() Config {
	return Config{
		ScaleConvention:       ScaleH22,
		RankTolerance:         1e-10,
		CollinearityTolerance: 1e-9,
		InfinityTolerance:     1e-12,
		AllowRankDeficient:    false,
	}
}

// Conditioning summarizes the singular spectrum of the measurement matrix.
type Conditioning struct {
	SingularValues []float64 `json:"singular_values" yaml:"singular_values"` // nine values, descending; sigma9 is 0 for four points
	RankMargin     float64   `json:"rank_margin" yaml:"rank_margin"`         // sigma8/sigma1
	SmallestRatio  float64   `json:"smallest_ratio" yaml:"smallest_ratio"`   // sigma9/sigma8
	Rank           int       `json:"rank" yaml:"rank"`
}

// Result is the outcome of a successful estimation.
type Result struct {
	H                    Matrix                 // scale-fixed homography mapping source onto destination
	Normalized           Matrix                 // null vector of A in normalized coordinates
	SourceTransform      Matrix                 // T_src
	DestinationTransform Matrix                 // T_dst
	Conditioning         Conditioning
	Warning              *RankDeficiencyWarning // set only when Config.AllowRankDeficient let a deficient A through
	Correspondences      int
}

// Estimate computes H with dst ≈ H·src using the normalized DLT.
func Estimate(src, dst []r2.Point, cfg Config) (*Result, error) {
	if err := validateCorrespondences(src, dst); err != nil {
		return nil, err
	}

	srcN, tSrc, err := Normalize(src)
	if err != nil {
		return nil, forSet(err, "source")
	}
	dstN, tDst, err := Normalize(dst)
	if err != nil {
		return nil, forSet(err, "destination")
	}
	if geometry.IsCollinear(srcN, cfg.CollinearityTolerance) {
		return nil, degenerate(ErrCollinear, "source", "")
	}
	if geometry.IsCollinear(dstN, cfg.CollinearityTolerance) {
		return nil, degenerate(ErrCollinear, "destination", "")
	}

	buf := mempool.GetFloat64(18 * len(srcN))
	a := measurementMatrix(srcN, dstN, buf)

	// SVDFull: with four points A is 8x9 and a thin factorization would not
	// contain the ninth right singular vector.
	var svd mat.SVD
	ok := svd.Factorize(a, mat.SVDFull)
	// Factorize works on a copy of A.
	mempool.PutFloat64(buf)
	if !ok {
		return nil, errors.New("homography: SVD of measurement matrix did not converge")
	}
	cond := conditioning(svd.Values(nil), cfg.RankTolerance)

	var v mat.Dense
	svd.VTo(&v)
	hn := FromDense(mat.NewDense(3, 3, mat.Col(nil, 8, &v)))

	var warning *RankDeficiencyWarning
	if cond.RankMargin < cfg.RankTolerance {
		warning = &RankDeficiencyWarning{Conditioning: cond}
		if !cfg.AllowRankDeficient {
			return nil, warning
		}
	}

	if warning == nil {
		if err := checkMinimalConfiguration(srcN, dstN, hn, cfg.CollinearityTolerance); err != nil {
			return nil, err
		}
	}

	tDstInv, err := tDst.Inverse()
	if err != nil {
		return nil, fmt.Errorf("invert destination normalization: %w", err)
	}
	h, err := tDstInv.Mul(hn).Mul(tSrc).Normalize(cfg.ScaleConvention)
	if err != nil {
		return nil, err
	}

	return &Result{
		H:                    h,
		Normalized:           hn,
		SourceTransform:      tSrc,
		DestinationTransform: tDst,
		Conditioning:         cond,
		Warning:              warning,
		Correspondences:      len(src),
	}, nil
}

// checkMinimalConfiguration rejects input that gives a full-rank A but a
// singular H, such as four pairs with three collinear points in one set.
func checkMinimalConfiguration(srcN, dstN []r2.Point, hn Matrix, tol float64) error {
	if len(srcN) == MinCorrespondences {
		if geometry.HasCollinearTriple(srcN, tol) {
			return degenerate(ErrCollinear, "source", "three of four points lie on one line")
		}
		if geometry.HasCollinearTriple(dstN, tol) {
			return degenerate(ErrCollinear, "destination", "three of four points lie on one line")
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(hn.Dense(), mat.SVDNone); !ok {
		return errors.New("homography: SVD of normalized homography did not converge")
	}
	sv := svd.Values(nil)
	ratio := 0.0
	if sv[0] > 0 {
		ratio = sv[2] / sv[0]
	}
	if ratio < tol {
		return degenerate(ErrCollinear, "", "estimated homography is singular (sigma3/sigma1=%.3g)", ratio)
	}
	return nil
}

func validateCorrespondences(src, dst []r2.Point) error {
	if len(src) != len(dst) {
		return degenerate(ErrLengthMismatch, "", "%d source vs %d destination points", len(src), len(dst))
	}
	if len(src) < MinCorrespondences {
		return degenerate(ErrTooFewPoints, "", "got %d", len(src))
	}
	if i, ok := geometry.AllFinite(src); !ok {
		return degenerate(ErrNonFinite, "source", "point %d", i)
	}
	if i, ok := geometry.AllFinite(dst); !ok {
		return degenerate(ErrNonFinite, "destination", "point %d", i)
	}
	return nil
}

// measurementMatrix stacks the two DLT rows of every correspondence into
// buf, which must hold 18 values per correspondence.
func measurementMatrix(src, dst []r2.Point, buf []float64) *mat.Dense {
	a := mat.NewDense(2*len(src), 9, buf)
	for i := range src {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y, -u})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y, -v})
	}
	return a
}

func conditioning(values []float64, tol float64) Conditioning {
	sv := make([]float64, 9)
	copy(sv, values)

	c := Conditioning{SingularValues: sv}
	if sv[0] > 0 {
		c.RankMargin = sv[7] / sv[0]
	}
	if sv[7] > 0 {
		c.SmallestRatio = sv[8] / sv[7]
	} else {
		// sigma8 = sigma9 = 0
		c.SmallestRatio = 1
	}
	for _, s := range sv {
		if s > tol*sv[0] {
			c.Rank++
		}
	}
	return c
}

func forSet(err error, set string) error {
	var d *DegenerateInputError
	if errors.As(err, &d) && d.Set == "" {
		d.Set = set
	}
	return err
}
