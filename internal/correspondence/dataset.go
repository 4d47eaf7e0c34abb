package correspondence

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r2"
)

// ErrInvalidDataset is wrapped by every structural validation failure.
var ErrInvalidDataset = errors.New("invalid correspondence dataset")

// Dataset is an ordered list of source/destination pairs. The first Train
// pairs are used for estimation, the remainder for validation.
type Dataset struct {
	Name        string
	Path        string
	Source      []r2.Point
	Destination []r2.Point
	Train       int // 0 means all pairs are used for estimation
}

// Len returns the number of pairs.
func (d *Dataset) Len() int { return len(d.Source) }

// TrainCount resolves the effective number of training pairs.
func (d *Dataset) TrainCount() int {
	if d.Train <= 0 || d.Train > d.Len() {
		return d.Len()
	}
	return d.Train
}

// Split returns the training and validation halves. The returned slices
// share storage with the dataset.
func (d *Dataset) Split() (trainSrc, trainDst, valSrc, valDst []r2.Point) {
	n := d.TrainCount()
	return d.Source[:n], d.Destination[:n], d.Source[n:], d.Destination[n:]
}

// Validate checks the structural constraints that do not need any numerics.
func (d *Dataset) Validate() error {
	if len(d.Source) != len(d.Destination) {
		return fmt.Errorf("%w: %d source points but %d destination points",
			ErrInvalidDataset, len(d.Source), len(d.Destination))
	}
	if d.Train < 0 {
		return fmt.Errorf("%w: train count must be non-negative, got %d", ErrInvalidDataset, d.Train)
	}
	if d.Train > d.Len() {
		return fmt.Errorf("%w: train count %d exceeds %d pairs", ErrInvalidDataset, d.Train, d.Len())
	}
	return nil
}

// Sample returns the demonstration correspondences: four training pairs
// followed by two validation pairs.
func Sample() *Dataset {
	return &Dataset{
		Name: "sample",
		Source: []r2.Point{
			{X: -2, Y: 3}, {X: 4, Y: -5}, {X: 8, Y: 7}, {X: -6, Y: 6},
			{X: 10, Y: -8}, {X: -4, Y: 2},
		},
		Destination: []r2.Point{
			{X: -12, Y: 6}, {X: 16, Y: -10}, {X: 30, Y: 20}, {X: -24, Y: 12},
			{X: 40, Y: -24}, {X: -20, Y: 8},
		},
		Train: 4,
	}
}
