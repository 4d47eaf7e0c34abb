package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyCommand_Arguments(t *testing.T) {
	stdout, _, err := executeCommandSplitOutput(t, []string{
		"apply", "--h", "5,0,0,0,5,0,0,0,1", "--precision", "1", "1,2", "3,4",
	})
	require.NoError(t, err)
	assert.Contains(t, stdout, "(1.0, 2.0) -> (5.0, 10.0)")
	assert.Contains(t, stdout, "(3.0, 4.0) -> (15.0, 20.0)")
}

func TestApplyCommand_NegativeCoordinates(t *testing.T) {
	stdout, _, err := executeCommandSplitOutput(t, []string{
		"apply", "--h", "1,0,2,0,1,3,0,0,1", "--format", "csv", "--precision", "0", "--", "-2,3",
	})
	require.NoError(t, err)
	assert.Contains(t, stdout, "x,y,u,v")
	assert.Contains(t, stdout, "-2,3,0,6")
}

func TestApplyCommand_FilesAndJSON(t *testing.T) {
	dir := t.TempDir()

	// The JSON output of estimate carries the matrix under "h".
	reportFile := filepath.Join(dir, "report.json")
	_, _, err := executeCommandSplitOutput(t, []string{"estimate", "--sample", "--format", "json", "--output", reportFile})
	require.NoError(t, err)

	pointsFile := filepath.Join(dir, "points.csv")
	require.NoError(t, os.WriteFile(pointsFile, []byte("x,y\n# training pairs\n-2,3\n4,-5\n"), 0o600))

	stdout, _, err := executeCommandSplitOutput(t, []string{
		"apply", "--h", reportFile, "--points", pointsFile, "--format", "json",
	})
	require.NoError(t, err)

	var out []struct {
		Source    [2]float64 `json:"source"`
		Projected [2]float64 `json:"projected"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out, 2)
	// Training pairs of the sample are reproduced exactly.
	assert.InDelta(t, -12.0, out[0].Projected[0], 1e-6)
	assert.InDelta(t, 6.0, out[0].Projected[1], 1e-6)
	assert.InDelta(t, 16.0, out[1].Projected[0], 1e-6)
	assert.InDelta(t, -10.0, out[1].Projected[1], 1e-6)
}

func TestApplyCommand_ConfigOutputFile(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "projected.csv")
	configFile := writeConfigFile(t, "output:\n  file: "+outFile+"\n")

	stdout, _, err := executeCommandSplitOutput(t, []string{
		"apply", "--config", configFile, "--h", "5,0,0,0,5,0,0,0,1", "--format", "csv", "--precision", "0", "1,2",
	})
	require.NoError(t, err)
	assert.Contains(t, stdout, "Results written to "+outFile)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1,2,5,10")

	// --output still wins over the config
	override := filepath.Join(dir, "override.csv")
	_, _, err = executeCommandSplitOutput(t, []string{
		"apply", "--config", configFile, "--h", "5,0,0,0,5,0,0,0,1", "--format", "csv", "--output", override, "1,2",
	})
	require.NoError(t, err)
	assert.FileExists(t, override)
}

func TestApplyCommand_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing h", []string{"apply", "1,2"}, "--h is required"},
		{"too few values", []string{"apply", "--h", "1,0,0,0,1,0", "1,2"}, "expected 9 values"},
		{"bad value", []string{"apply", "--h", "1,0,0,0,x,0,0,0,1", "1,2"}, "invalid homography value"},
		{"bad point", []string{"apply", "--h", "1,0,0,0,1,0,0,0,1", "1;2"}, "invalid point"},
		{"no points", []string{"apply", "--h", "1,0,0,0,1,0,0,0,1"}, "no points given"},
		{"missing file", []string{"apply", "--h", "/nonexistent/h.json", "1,2"}, "failed to read homography file"},
		{"at infinity", []string{"apply", "--h", "1,0,0,0,1,0,1,0,0", "0,5"}, "maps to infinity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCommandSplitOutput(t, tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseHomography_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.yaml")
	require.NoError(t, os.WriteFile(path, []byte("h:\n  - [2, 0, 1]\n  - [0, 2, 1]\n  - [0, 0, 1]\n"), 0o600))

	h, err := parseHomography(path)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, h[0][0], 1e-12)
	assert.InDelta(t, 1.0, h[1][2], 1e-12)

	require.NoError(t, os.WriteFile(path, []byte("h: [[1, 0], [0, 1]]\n"), 0o600))
	_, err = parseHomography(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3x3")
}
