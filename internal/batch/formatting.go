package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/homest/internal/calibration"
	"github.com/MeKo-Tech/homest/internal/report"
	"gopkg.in/yaml.v3"
)

// failureRecord is the serialized form of a Failure.
type failureRecord struct {
	Path  string `json:"path" yaml:"path"`
	Error string `json:"error" yaml:"error"`
}

// batchDocument is the JSON and YAML layout of a batch run.
type batchDocument struct {
	Datasets []*calibration.Report `json:"datasets" yaml:"datasets"`
	Failures []failureRecord       `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// formatBatchResults formats the batch processing results in the specified format.
func formatBatchResults(r *Result, format string, precision int) (string, error) {
	switch format {
	case report.FormatJSON:
		bts, err := json.MarshalIndent(r.document(), "", "  ")
		if err != nil {
			return "", err
		}
		return string(bts) + "\n", nil
	case report.FormatYAML:
		bts, err := yaml.Marshal(r.document())
		return string(bts), err
	case report.FormatCSV:
		return formatCSV(r, precision)
	case report.FormatText, "":
		return formatText(r, precision)
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

func (r *Result) document() batchDocument {
	doc := batchDocument{Datasets: r.Reports}
	if doc.Datasets == nil {
		doc.Datasets = []*calibration.Report{}
	}
	for _, f := range r.Failures {
		doc.Failures = append(doc.Failures, failureRecord{Path: f.Path, Error: f.Err.Error()})
	}
	return doc
}

// formatCSV appends one row per failure, with the error in the warning column.
func formatCSV(r *Result, precision int) (string, error) {
	out, err := report.Format(r.Reports, report.FormatCSV, precision)
	if err != nil {
		return "", err
	}
	if len(r.Failures) == 0 {
		return out, nil
	}

	var output strings.Builder
	output.WriteString(out)
	writer := csv.NewWriter(&output)
	for _, f := range r.Failures {
		row := make([]string, len(report.CSVHeader))
		row[0] = f.Path
		row[len(row)-1] = f.Err.Error()
		if err := writer.Write(row); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

func formatText(r *Result, precision int) (string, error) {
	var output strings.Builder
	if len(r.Reports) > 0 {
		out, err := report.Format(r.Reports, report.FormatText, precision)
		if err != nil {
			return "", err
		}
		output.WriteString(out)
	}
	for i, f := range r.Failures {
		if i > 0 || len(r.Reports) > 0 {
			output.WriteString("\n")
		}
		output.WriteString(fmt.Sprintf("# %s\n", f.Path))
		output.WriteString(fmt.Sprintf("FAILED: %v\n", f.Err))
	}
	return output.String(), nil
}
