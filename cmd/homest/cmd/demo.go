package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/homest/internal/calibration"
	"github.com/MeKo-Tech/homest/internal/correspondence"
	"github.com/MeKo-Tech/homest/internal/report"
	"github.com/spf13/cobra"
)

// demoCmd represents the demo command.
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the built-in six pair example",
	Long: `Estimate H from the first four pairs of the built-in example and report the
reprojection error on the training pairs and on the two held-out pairs.

Replace the sample with measured coordinates via "homest estimate <file>".`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		estimation, err := estimationConfig(cfg, cmd)
		if err != nil {
			return err
		}

		result, err := calibration.Run(correspondence.Sample(), estimation)
		if err != nil {
			return fmt.Errorf("demo failed: %w", err)
		}

		format, precision := outputSettings(cfg, cmd)
		return report.Write(cmd.OutOrStdout(), []*calibration.Report{result}, format, precision)
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
	addEstimationFlags(demoCmd)
	demoCmd.Flags().StringP("format", "f", report.FormatText, "output format (text, json, csv, yaml)")
	demoCmd.Flags().Int("precision", report.DefaultPrecision, "decimals in text and CSV output")
}
