package homography

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r2"
)

// Reasons attached to a DegenerateInputError. Match them with errors.Is.
var (
	ErrTooFewPoints   = errors.New("homography: at least 4 correspondences required")
	ErrLengthMismatch = errors.New("homography: source and destination lengths differ")
	ErrNonFinite      = errors.New("homography: non-finite coordinate")
	ErrZeroSpread     = errors.New("homography: point set has zero spread")
	ErrCollinear      = errors.New("homography: points are collinear")
	ErrUnnormalizable = errors.New("homography: H[2,2] is zero, cannot fix scale")
	ErrSingular       = errors.New("homography: matrix is singular")
)

// DegenerateInputError reports input that cannot produce a homography.
type DegenerateInputError struct {
	Reason error  // one of the Err* sentinels above
	Set    string // "source", "destination" or "" when not specific to one set
	Detail string
}

func (e *DegenerateInputError) Error() string {
	msg := e.Reason.Error()
	if e.Set != "" {
		msg = fmt.Sprintf("%s (%s points)", msg, e.Set)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *DegenerateInputError) Unwrap() error { return e.Reason }

// RankDeficiencyWarning reports a measurement matrix whose null space is not
// one-dimensional. The estimate is not unique.
type RankDeficiencyWarning struct {
	Conditioning Conditioning
}

func (w *RankDeficiencyWarning) Error() string {
	return fmt.Sprintf("homography: measurement matrix is rank deficient (sigma8/sigma1=%.3g, sigma9/sigma8=%.3g)",
		w.Conditioning.RankMargin, w.Conditioning.SmallestRatio)
}

// ProjectionAtInfinityError reports a point whose homogeneous denominator
// vanishes under H.
type ProjectionAtInfinityError struct {
	Index int      // index of the offending point
	Point r2.Point // the input point
	W     float64  // homogeneous denominator
}

func (e *ProjectionAtInfinityError) Error() string {
	return fmt.Sprintf("homography: point %d (%g, %g) maps to infinity (w=%g)", e.Index, e.Point.X, e.Point.Y, e.W)
}

func degenerate(reason error, set, format string, args ...any) error {
	detail := ""
	if format != "" {
		detail = fmt.Sprintf(format, args...)
	}
	return &DegenerateInputError{Reason: reason, Set: set, Detail: detail}
}
