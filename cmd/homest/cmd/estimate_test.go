package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/homest/internal/correspondence"
	"github.com/MeKo-Tech/homest/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type estimateOutput struct {
	Dataset    string       `json:"dataset"`
	TrainCount int          `json:"train_count"`
	H          [3][3]float64 `json:"h"`
	Train      struct {
		RMS float64 `json:"rms"`
	} `json:"train"`
	Validation *struct {
		RMS float64 `json:"rms"`
	} `json:"validation"`
}

func TestEstimateCommand_Sample(t *testing.T) {
	stdout, _, err := executeCommandSplitOutput(t, []string{"estimate", "--sample"})
	require.NoError(t, err)

	assert.Contains(t, stdout, "H =")
	assert.Contains(t, stdout, "Train RMS err: 0.000000 (4 pairs)")
	assert.Contains(t, stdout, "Val   RMS err: 7.299731 (2 pairs)")
}

func TestEstimateCommand_JSON(t *testing.T) {
	stdout, _, err := executeCommandSplitOutput(t, []string{"estimate", "--sample", "--format", "json"})
	require.NoError(t, err)

	var out estimateOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "sample", out.Dataset)
	assert.Equal(t, 4, out.TrainCount)
	assert.InDelta(t, 1.0, out.H[2][2], 1e-12)
	assert.InDelta(t, 0.0, out.Train.RMS, 1e-9)
	require.NotNil(t, out.Validation)
	assert.InDelta(t, 7.299730789436325, out.Validation.RMS, 1e-6)
}

func TestEstimateCommand_ScaledFile(t *testing.T) {
	path := testutil.GetDatasetPath(t, "scaled.csv")
	stdout, _, err := executeCommandSplitOutput(t, []string{"estimate", path, "--format", "json"})
	require.NoError(t, err)

	var out estimateOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "scaled", out.Dataset)
	assert.Nil(t, out.Validation)
	want := [3][3]float64{{5, 0, 0}, {0, 5, 0}, {0, 0, 1}}
	for i := range 3 {
		for j := range 3 {
			assert.InDelta(t, want[i][j], out.H[i][j], 1e-9, "h%d%d", i, j)
		}
	}
}

func TestEstimateCommand_TrainOverride(t *testing.T) {
	path := testutil.GetDatasetPath(t, "perspective.json")
	stdout, _, err := executeCommandSplitOutput(t, []string{"estimate", path, "--train", "4", "--format", "json"})
	require.NoError(t, err)

	var out estimateOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, 4, out.TrainCount)
	require.NotNil(t, out.Validation)
	assert.Less(t, out.Validation.RMS, 1e-6)
}

func TestEstimateCommand_TrainPrecedence(t *testing.T) {
	configFile := writeConfigFile(t, "estimation:\n  train_count: 5\n")

	run := func(args ...string) estimateOutput {
		t.Helper()
		stdout, _, err := executeCommandSplitOutput(t, append([]string{"estimate", "--sample", "--format", "json", "--config", configFile}, args...))
		require.NoError(t, err)
		var out estimateOutput
		require.NoError(t, json.Unmarshal([]byte(stdout), &out))
		return out
	}

	// config overrides the dataset
	assert.Equal(t, 5, run().TrainCount)
	// an explicit flag overrides the config
	assert.Equal(t, 4, run("--train", "4").TrainCount)
	// --train 0 trains on every pair, even with a config value
	all := run("--train", "0")
	assert.Equal(t, 6, all.TrainCount)
	assert.Nil(t, all.Validation)

	_, _, err := executeCommandSplitOutput(t, []string{"estimate", "--sample", "--train", "-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be negative")
}

func TestEstimateCommand_OutputFileAndPlot(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "report.yaml")
	plotFile := filepath.Join(dir, "residuals.png")

	stdout, _, err := executeCommandSplitOutput(t, []string{
		"estimate", "--sample", "--format", "yaml", "--output", outFile, "--plot", plotFile,
	})
	require.NoError(t, err)
	assert.Contains(t, stdout, "Results written to "+outFile)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "dataset: sample")
	assert.True(t, testutil.FileExists(plotFile))
}

func TestEstimateCommand_Residuals(t *testing.T) {
	stdout, _, err := executeCommandSplitOutput(t, []string{"estimate", "--sample", "--residuals", "--precision", "2"})
	require.NoError(t, err)
	assert.Contains(t, stdout, "Training Pairs:")
	assert.Contains(t, stdout, "Validation Pairs:")
}

func TestEstimateCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	collinear := testutil.WriteDataset(t, dir, "collinear.yaml", testutil.CollinearDataset())

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no input", []string{"estimate"}, "exactly one dataset file or --sample"},
		{"file and sample", []string{"estimate", collinear, "--sample"}, "exactly one dataset file or --sample"},
		{"missing file", []string{"estimate", filepath.Join(dir, "missing.yaml")}, "failed to load dataset"},
		{"mismatched lengths", []string{"estimate", testutil.GetDatasetPath(t, "mismatch.json")}, "invalid correspondence dataset"},
		{"collinear", []string{"estimate", collinear}, "collinear"},
		{"bad scale convention", []string{"estimate", "--sample", "--scale-convention", "l1"}, "invalid scale convention"},
		{"bad format", []string{"estimate", "--sample", "--format", "xml"}, "unsupported output format"},
		{"train exceeds pairs", []string{"estimate", "--sample", "--train", "9"}, "exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCommandSplitOutput(t, tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDemoCommand(t *testing.T) {
	stdout, _, err := executeCommandSplitOutput(t, []string{"demo"})
	require.NoError(t, err)
	assert.Contains(t, stdout, "H =")
	assert.Contains(t, stdout, "Train RMS err:")
	assert.Contains(t, stdout, "Val   RMS err: 7.299731")
}

func TestDemoCommand_Frobenius(t *testing.T) {
	stdout, _, err := executeCommandSplitOutput(t, []string{"demo", "--scale-convention", "frobenius", "--format", "json"})
	require.NoError(t, err)

	var out estimateOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	norm := 0.0
	for _, row := range out.H {
		for _, v := range row {
			norm += v * v
		}
	}
	assert.InDelta(t, 1.0, norm, 1e-9)
	require.NotNil(t, out.Validation)
	assert.InDelta(t, 7.299730789436325, out.Validation.RMS, 1e-6)
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	sample := correspondence.Sample()
	testutil.WriteDataset(t, dir, "sample.yaml", sample)
	testutil.WriteDataset(t, dir, "synthetic.json", testutil.SyntheticDataset(t, testutil.PerspectiveH, 10, 6, 0, 3))

	stdout, stderr, err := executeCommandSplitOutput(t, []string{"batch", dir, "--format", "csv", "--stats"})
	require.NoError(t, err)
	assert.Contains(t, stderr, "Processing 1 path(s)...")
	assert.Contains(t, stdout, "dataset,train_count")
	assert.Contains(t, stdout, "sample,4,2")
	assert.Contains(t, stdout, "synthetic,6,4")
	assert.Contains(t, stdout, "Processing Statistics:")
	assert.Contains(t, stdout, "Processed: 2")
}

func TestBatchCommand_ContinueOnError(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteDataset(t, dir, "a_sample.yaml", correspondence.Sample())
	testutil.WriteDataset(t, dir, "b_collinear.yaml", testutil.CollinearDataset())

	_, _, err := executeCommandSplitOutput(t, []string{"batch", dir, "--quiet"})
	require.Error(t, err)

	stdout, _, err := executeCommandSplitOutput(t, []string{"batch", dir, "--continue-on-error", "--format", "json", "--quiet"})
	require.NoError(t, err)

	var doc struct {
		Datasets []estimateOutput `json:"datasets"`
		Failures []struct {
			Path  string `json:"path"`
			Error string `json:"error"`
		} `json:"failures"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	require.Len(t, doc.Datasets, 1)
	assert.Equal(t, "sample", doc.Datasets[0].Dataset)
	require.Len(t, doc.Failures, 1)
	assert.Contains(t, doc.Failures[0].Error, "collinear")
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homest.yaml")

	stdout, _, err := executeCommandSplitOutput(t, []string{"config", "init", path})
	require.NoError(t, err)
	assert.Contains(t, stdout, "Configuration written to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "scale_convention: h22")

	_, _, err = executeCommandSplitOutput(t, []string{"config", "init", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = executeCommandSplitOutput(t, []string{"config", "init", path, "--force"})
	require.NoError(t, err)
}
