package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/homest/internal/calibration"
	"github.com/MeKo-Tech/homest/internal/config"
	"github.com/MeKo-Tech/homest/internal/correspondence"
	"github.com/MeKo-Tech/homest/internal/homography"
	"github.com/MeKo-Tech/homest/internal/report"
	"github.com/spf13/cobra"
)

// estimateCmd represents the estimate command.
var estimateCmd = &cobra.Command{
	Use:   "estimate [dataset]",
	Short: "Estimate a homography from a correspondence file",
	Long: `Estimate the homography that maps the source points of a dataset onto its
destination points. The first "train" pairs are used for estimation, the
remaining pairs are reprojected to measure the validation error.

Supported dataset formats: YAML, JSON, CSV (x,y,u,v)

Examples:
  homest estimate pairs.yaml
  homest estimate pairs.csv --train 6 --format json
  homest estimate --sample --residuals
  homest estimate pairs.json --plot residuals.png`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runEstimateCommand,
}

func runEstimateCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	sample, _ := cmd.Flags().GetBool("sample")
	if sample == (len(args) == 1) {
		return errors.New("provide exactly one dataset file or --sample")
	}

	var (
		ds  *correspondence.Dataset
		err error
	)
	if sample {
		ds = correspondence.Sample()
	} else {
		ds, err = correspondence.Load(args[0])
		if err != nil {
			return fmt.Errorf("failed to load dataset: %w", err)
		}
	}

	// An explicit --train always wins, 0 meaning every pair. The config
	// value only overrides the dataset when it is set.
	if cmd.Flags().Changed("train") {
		train, _ := cmd.Flags().GetInt("train")
		if train < 0 {
			return fmt.Errorf("--train must not be negative, got %d", train)
		}
		ds.Train = train
	} else if cfg.Estimation.TrainCount > 0 {
		ds.Train = cfg.Estimation.TrainCount
	}

	estimation, err := estimationConfig(cfg, cmd)
	if err != nil {
		return err
	}

	slog.Debug("Estimating homography", "dataset", ds.Name, "pairs", ds.Len(), "train", ds.TrainCount())
	result, err := calibration.Run(ds, estimation)
	if err != nil {
		return err
	}

	format, precision := outputSettings(cfg, cmd)
	out, err := report.Format([]*calibration.Report{result}, format, precision)
	if err != nil {
		return err
	}
	if residuals, _ := cmd.Flags().GetBool("residuals"); residuals && (format == report.FormatText || format == "") {
		out += report.Residuals(result, precision)
	}

	outputFile := cfg.Output.File
	if cmd.Flags().Changed("output") {
		outputFile, _ = cmd.Flags().GetString("output")
	}
	if err := writeOutput(cmd.OutOrStdout(), out, outputFile); err != nil {
		return err
	}

	plotFile := cfg.Output.PlotFile
	if cmd.Flags().Changed("plot") {
		plotFile, _ = cmd.Flags().GetString("plot")
	}
	if plotFile != "" {
		if err := report.SavePlot(result, plotFile); err != nil {
			return fmt.Errorf("failed to save plot: %w", err)
		}
		slog.Info("Residual plot written", "file", plotFile)
	}
	return nil
}

// estimationConfig applies estimation flag overrides on top of cfg.
func estimationConfig(cfg *config.Config, cmd *cobra.Command) (homography.Config, error) {
	est := cfg.Estimation
	if cmd.Flags().Changed("scale-convention") {
		est.ScaleConvention, _ = cmd.Flags().GetString("scale-convention")
	}
	if cmd.Flags().Changed("allow-rank-deficient") {
		est.AllowRankDeficient, _ = cmd.Flags().GetBool("allow-rank-deficient")
	}
	if err := est.Validate(); err != nil {
		return homography.Config{}, err
	}
	merged := *cfg
	merged.Estimation = est
	return merged.ToHomographyConfig(), nil
}

// outputSettings returns the output format and precision after flag overrides.
func outputSettings(cfg *config.Config, cmd *cobra.Command) (string, int) {
	format := cfg.Output.Format
	if cmd.Flags().Changed("format") {
		format, _ = cmd.Flags().GetString("format")
	}
	precision := cfg.Output.Precision
	if cmd.Flags().Changed("precision") {
		precision, _ = cmd.Flags().GetInt("precision")
	}
	return format, precision
}

// writeOutput writes out to outputFile, or to w when no file is given.
func writeOutput(w io.Writer, out, outputFile string) error {
	if outputFile == "" {
		_, err := io.WriteString(w, out)
		return err
	}
	if err := os.WriteFile(outputFile, []byte(out), 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Results written to %s\n", outputFile)
	return nil
}

// addEstimationFlags registers the flags shared by estimate, batch and demo.
func addEstimationFlags(cmd *cobra.Command) {
	cmd.Flags().String("scale-convention", string(homography.ScaleH22),
		"scale convention for H (h22, frobenius)")
	cmd.Flags().Bool("allow-rank-deficient", false,
		"return H even when the measurement matrix is nearly rank deficient")
}

// addOutputFlags registers the output flags shared by estimate, batch and demo.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", report.FormatText, "output format (text, json, csv, yaml)")
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	cmd.Flags().Int("precision", report.DefaultPrecision, "decimals in text and CSV output")
}

func init() {
	rootCmd.AddCommand(estimateCmd)
	addEstimationFlags(estimateCmd)
	addOutputFlags(estimateCmd)
	estimateCmd.Flags().Bool("sample", false, "use the built-in six pair sample instead of a file")
	estimateCmd.Flags().IntP("train", "t", 0, "number of leading pairs used for estimation (0: all pairs; default: dataset value)")
	estimateCmd.Flags().Bool("residuals", false, "print per-pair residuals (text format)")
	estimateCmd.Flags().String("plot", "", "write a residual plot (.png, .svg, .pdf)")
}
