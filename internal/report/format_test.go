package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/MeKo-Tech/homest/internal/calibration"
	"github.com/MeKo-Tech/homest/internal/correspondence"
	"github.com/MeKo-Tech/homest/internal/homography"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleReport(t *testing.T) *calibration.Report {
	t.Helper()
	r, err := calibration.Run(correspondence.Sample(), homography.DefaultConfig())
	require.NoError(t, err)
	return r
}

func TestFormat_Text(t *testing.T) {
	out, err := Format([]*calibration.Report{sampleReport(t)}, FormatText, 6)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "H =\n"))
	assert.Contains(t, out, "Train RMS err: 0.000000 (4 pairs)")
	assert.Contains(t, out, "Val   RMS err: 7.299731 (2 pairs)")
	assert.Contains(t, out, "2.394594")
	assert.Contains(t, out, "1.000000]")
	assert.Contains(t, out, "rank=8")
	assert.NotContains(t, out, "# sample")
}

func TestFormat_TextMultiple(t *testing.T) {
	a := sampleReport(t)
	b := sampleReport(t)
	b.Dataset = "second"
	b.Validation = nil

	out, err := Format([]*calibration.Report{a, b}, "", 3)
	require.NoError(t, err)
	assert.Contains(t, out, "# sample\n")
	assert.Contains(t, out, "# second\n")
	assert.Equal(t, 1, strings.Count(out, "Val   RMS err"))
	assert.Equal(t, 2, strings.Count(out, "Train RMS err: 0.000"))
}

func TestFormat_JSON(t *testing.T) {
	out, err := Format([]*calibration.Report{sampleReport(t)}, FormatJSON, 6)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "sample", decoded["dataset"])
	assert.EqualValues(t, 4, decoded["train_count"])
	h, ok := decoded["h"].([]any)
	require.True(t, ok)
	require.Len(t, h, 3)
	val := decoded["validation"].(map[string]any)
	assert.InDelta(t, 7.2997, val["rms"].(float64), 1e-4)
	assert.NotContains(t, out, "Predicted")

	// Several reports render as an array.
	out, err = Format([]*calibration.Report{sampleReport(t), sampleReport(t)}, FormatJSON, 6)
	require.NoError(t, err)
	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Len(t, list, 2)
}

func TestFormat_YAML(t *testing.T) {
	out, err := Format([]*calibration.Report{sampleReport(t)}, FormatYAML, 6)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "sample", decoded["dataset"])
	assert.Equal(t, "h22", decoded["scale_convention"])
}

func TestFormat_CSV(t *testing.T) {
	out, err := Format([]*calibration.Report{sampleReport(t)}, FormatCSV, 4)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, "sample", rows[1][0])
	assert.Equal(t, "4", rows[1][1])
	assert.Equal(t, "2", rows[1][2])
	assert.Equal(t, "0.0000", rows[1][3])
	assert.Equal(t, "7.2997", rows[1][4])
	assert.Equal(t, "1", rows[1][14])
}

func TestFormat_Unknown(t *testing.T) {
	_, err := Format(nil, "xml", 2)
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []*calibration.Report{sampleReport(t)}, FormatText, -1))
	assert.Contains(t, buf.String(), "Train RMS err: 0.000000")
}

func TestResiduals(t *testing.T) {
	out := Residuals(sampleReport(t), 2)
	assert.Contains(t, out, "Training Pairs:\n")
	assert.Contains(t, out, "Validation Pairs:\n")
	assert.Contains(t, out, "expected (40.00, -24.00)")
	assert.Contains(t, out, "(46.97, -24.99)")
	assert.Equal(t, 6, strings.Count(out, "err "))

	r := sampleReport(t)
	r.Data = nil
	assert.Empty(t, Residuals(r, 2))
}
