// Package calibration fits a homography on the training part of a
// correspondence dataset and measures it on both parts.
package calibration

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/homest/internal/correspondence"
	"github.com/MeKo-Tech/homest/internal/homography"
)

// Report is the outcome of one dataset evaluation.
type Report struct {
	Dataset         string                  `json:"dataset" yaml:"dataset"`
	Path            string                  `json:"path,omitempty" yaml:"path,omitempty"`
	Correspondences int                     `json:"correspondences" yaml:"correspondences"`
	TrainCount      int                     `json:"train_count" yaml:"train_count"`
	ValidationCount int                     `json:"validation_count" yaml:"validation_count"`
	ScaleConvention string                  `json:"scale_convention" yaml:"scale_convention"`
	H               homography.Matrix       `json:"h" yaml:"h"`
	Conditioning    homography.Conditioning `json:"conditioning" yaml:"conditioning"`
	Warning         string                  `json:"warning,omitempty" yaml:"warning,omitempty"`
	Train           *homography.Residuals   `json:"train" yaml:"train"`
	Validation      *homography.Residuals   `json:"validation,omitempty" yaml:"validation,omitempty"`
	Duration        time.Duration           `json:"duration_ns" yaml:"duration"`
	Data            *correspondence.Dataset `json:"-" yaml:"-"`
}

// Run estimates H from the training pairs of ds and reprojects both the
// training and the validation pairs.
func Run(ds *correspondence.Dataset, cfg homography.Config) (*Report, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	trainSrc, trainDst, valSrc, valDst := ds.Split()

	res, err := homography.Estimate(trainSrc, trainDst, cfg)
	if err != nil {
		return nil, fmt.Errorf("estimate %s: %w", ds.Name, err)
	}

	report := &Report{
		Dataset:         ds.Name,
		Path:            ds.Path,
		Correspondences: ds.Len(),
		TrainCount:      len(trainSrc),
		ValidationCount: len(valSrc),
		ScaleConvention: string(scaleConvention(cfg)),
		H:               res.H,
		Conditioning:    res.Conditioning,
		Data:            ds,
	}
	if res.Warning != nil {
		report.Warning = res.Warning.Error()
		slog.Warn("Rank deficient measurement matrix", "dataset", ds.Name, "rank_margin", res.Conditioning.RankMargin)
	}

	report.Train, err = homography.Reproject(res.H, trainSrc, trainDst, cfg.InfinityTolerance)
	if err != nil {
		return nil, fmt.Errorf("reproject training pairs of %s: %w", ds.Name, err)
	}
	if len(valSrc) > 0 {
		report.Validation, err = homography.Reproject(res.H, valSrc, valDst, cfg.InfinityTolerance)
		if err != nil {
			return nil, fmt.Errorf("reproject validation pairs of %s: %w", ds.Name, err)
		}
	}
	report.Duration = time.Since(start)

	slog.Debug("Dataset evaluated",
		"dataset", ds.Name,
		"train", report.TrainCount,
		"validation", report.ValidationCount,
		"train_rms", report.Train.RMS,
		"duration", report.Duration)
	return report, nil
}

// ValidationRMS returns the validation RMS, or the training RMS when the
// dataset had no validation pairs.
func (r *Report) ValidationRMS() float64 {
	if r.Validation == nil {
		return r.Train.RMS
	}
	return r.Validation.RMS
}

func scaleConvention(cfg homography.Config) homography.ScaleConvention {
	if cfg.ScaleConvention == "" {
		return homography.ScaleH22
	}
	return cfg.ScaleConvention
}
