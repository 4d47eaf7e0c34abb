package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/homest/internal/batch"
	"github.com/MeKo-Tech/homest/internal/config"
	"github.com/spf13/cobra"
)

// batchCmd represents the batch command.
var batchCmd = &cobra.Command{
	Use:   "batch [files or directories...]",
	Short: "Estimate homographies for many correspondence files",
	Long: `Evaluate every correspondence dataset found in the given files and
directories. Each dataset is estimated on its training pairs and measured on
its validation pairs; the reports are aggregated into one document.

Supported formats: YAML, JSON, CSV

Examples:
  homest batch datasets/
  homest batch datasets/ --recursive --exclude "*_raw.csv"
  homest batch a.yaml b.json --format json --output results.json
  homest batch datasets/ --continue-on-error --stats`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runBatchCommand,
}

// configToBatchConfig maps centralized configuration to batch.Config.
// Flags that were set explicitly take precedence over config file values.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) (*batch.Config, error) {
	batchConfig := batch.DefaultConfig()

	estimation, err := estimationConfig(cfg, cmd)
	if err != nil {
		return nil, err
	}
	batchConfig.Estimation = estimation

	batchConfig.TrainCount = cfg.Estimation.TrainCount
	if cmd.Flags().Changed("train") {
		batchConfig.TrainCount, _ = cmd.Flags().GetInt("train")
	}

	batchConfig.Recursive = cfg.Batch.Recursive
	if cmd.Flags().Changed("recursive") {
		batchConfig.Recursive, _ = cmd.Flags().GetBool("recursive")
	}

	if len(cfg.Batch.IncludePatterns) > 0 {
		batchConfig.IncludePatterns = cfg.Batch.IncludePatterns
	}
	if cmd.Flags().Changed("include") {
		batchConfig.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
	}

	batchConfig.ExcludePatterns = cfg.Batch.ExcludePatterns
	if cmd.Flags().Changed("exclude") {
		batchConfig.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")
	}

	batchConfig.ContinueOnError = cfg.Batch.ContinueOnError
	if cmd.Flags().Changed("continue-on-error") {
		batchConfig.ContinueOnError, _ = cmd.Flags().GetBool("continue-on-error")
	}

	batchConfig.Format, batchConfig.Precision = outputSettings(cfg, cmd)

	batchConfig.OutputFile = cfg.Output.File
	if cmd.Flags().Changed("output") {
		batchConfig.OutputFile, _ = cmd.Flags().GetString("output")
	}

	batchConfig.Quiet, _ = cmd.Flags().GetBool("quiet")
	batchConfig.ShowStats, _ = cmd.Flags().GetBool("stats")

	return batchConfig, nil
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	config, err := configToBatchConfig(cfg, cmd)
	if err != nil {
		return err
	}

	if !config.Quiet {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Processing %d path(s)...\n", len(args))
	}

	result, err := batch.ProcessBatch(args, config)
	if err != nil {
		return err
	}

	if err := result.SaveResults(cmd.OutOrStdout(), config.Format, config.OutputFile, config.Precision, config.Quiet); err != nil {
		return err
	}

	if config.ShowStats {
		result.PrintStats(cmd.OutOrStdout(), config.Quiet)
	}

	if len(result.Failures) > 0 && len(result.Reports) == 0 {
		return fmt.Errorf("all %d datasets failed", len(result.Failures))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(batchCmd)
	addEstimationFlags(batchCmd)
	addOutputFlags(batchCmd)
	batchCmd.Flags().IntP("train", "t", 0, "override the number of training pairs of every dataset (0: dataset value)")
	batchCmd.Flags().BoolP("recursive", "r", false, "process directories recursively")
	batchCmd.Flags().StringSlice("include", []string{"*.yaml", "*.yml", "*.json", "*.csv"}, "include file patterns")
	batchCmd.Flags().StringSlice("exclude", []string{}, "exclude file patterns")
	batchCmd.Flags().Bool("continue-on-error", false, "skip datasets that fail instead of aborting")
	batchCmd.Flags().BoolP("quiet", "q", false, "suppress progress and summary output")
	batchCmd.Flags().Bool("stats", false, "print processing statistics")
}
