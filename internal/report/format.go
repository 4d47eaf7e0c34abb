// Package report renders calibration reports as text, JSON, CSV or YAML,
// and plots residuals.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/homest/internal/calibration"
	"github.com/MeKo-Tech/homest/internal/homography"
	"github.com/golang/geo/r2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

// Formats lists every accepted format name.
var Formats = []string{FormatText, FormatJSON, FormatCSV, FormatYAML}

// DefaultPrecision is the number of decimals used by the text and CSV formats.
const DefaultPrecision = 6

// Format renders reports in the given format. precision applies to the text
// and CSV formats; JSON and YAML always carry full precision.
func Format(reports []*calibration.Report, format string, precision int) (string, error) {
	if precision < 0 {
		precision = DefaultPrecision
	}
	switch format {
	case FormatJSON:
		return formatJSON(reports)
	case FormatCSV:
		return formatCSV(reports, precision)
	case FormatYAML:
		return formatYAML(reports)
	case FormatText, "":
		return formatText(reports, precision), nil
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

// Write renders reports to w.
func Write(w io.Writer, reports []*calibration.Report, format string, precision int) error {
	out, err := Format(reports, format, precision)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func formatJSON(reports []*calibration.Report) (string, error) {
	var v any = reports
	if len(reports) == 1 {
		v = reports[0]
	}
	bts, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bts) + "\n", nil
}

func formatYAML(reports []*calibration.Report) (string, error) {
	var v any = reports
	if len(reports) == 1 {
		v = reports[0]
	}
	bts, err := yaml.Marshal(v)
	return string(bts), err
}

// CSVHeader is the column layout of the CSV format.
var CSVHeader = []string{
	"dataset", "train_count", "validation_count", "train_rms", "validation_rms", "max_error",
	"h00", "h01", "h02", "h10", "h11", "h12", "h20", "h21", "h22",
	"rank_margin", "smallest_ratio", "warning",
}

func formatCSV(reports []*calibration.Report, precision int) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	if err := writer.Write(CSVHeader); err != nil {
		return "", err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', precision, 64) }
	for _, r := range reports {
		valRMS, maxErr := "", f(r.Train.Max)
		if r.Validation != nil {
			valRMS = f(r.Validation.RMS)
			maxErr = f(max(r.Train.Max, r.Validation.Max))
		}
		row := []string{
			r.Dataset,
			strconv.Itoa(r.TrainCount),
			strconv.Itoa(r.ValidationCount),
			f(r.Train.RMS),
			valRMS,
			maxErr,
		}
		for _, v := range r.H.Slice() {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		row = append(row,
			strconv.FormatFloat(r.Conditioning.RankMargin, 'g', 6, 64),
			strconv.FormatFloat(r.Conditioning.SmallestRatio, 'g', 6, 64),
			r.Warning,
		)
		if err := writer.Write(row); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

func formatText(reports []*calibration.Report, precision int) string {
	printer := message.NewPrinter(language.English)
	var output strings.Builder
	for i, r := range reports {
		if i > 0 {
			output.WriteString("\n")
		}
		if len(reports) > 1 || r.Path != "" {
			output.WriteString(fmt.Sprintf("# %s\n", r.Dataset))
		}
		writeMatrix(&output, r, precision)
		output.WriteString(printer.Sprintf("Train RMS err: %.*f (%d pairs)\n", precision, r.Train.RMS, r.TrainCount))
		if r.Validation != nil {
			output.WriteString(printer.Sprintf("Val   RMS err: %.*f (%d pairs)\n", precision, r.Validation.RMS, r.ValidationCount))
		}
		output.WriteString(fmt.Sprintf("Conditioning: sigma8/sigma1=%.3g sigma9/sigma8=%.3g rank=%d\n",
			r.Conditioning.RankMargin, r.Conditioning.SmallestRatio, r.Conditioning.Rank))
		if r.Warning != "" {
			output.WriteString("Warning: " + r.Warning + "\n")
		}
	}
	return output.String()
}

func writeMatrix(b *strings.Builder, r *calibration.Report, precision int) {
	b.WriteString("H =\n")
	width := precision + 6
	for _, row := range r.H {
		b.WriteString(" [")
		for j, v := range row {
			if j > 0 {
				b.WriteString(" ")
			}
			b.WriteString(fmt.Sprintf("%*.*f", width, precision, v))
		}
		b.WriteString("]\n")
	}
}

// Residuals renders the per-point errors of one report as a text table.
func Residuals(r *calibration.Report, precision int) string {
	if r.Data == nil {
		return ""
	}
	var b strings.Builder
	trainSrc, trainDst, valSrc, valDst := r.Data.Split()
	writeResiduals(&b, "training pairs", trainSrc, trainDst, r.Train, precision)
	if r.Validation != nil {
		writeResiduals(&b, "validation pairs", valSrc, valDst, r.Validation, precision)
	}
	return b.String()
}

func writeResiduals(b *strings.Builder, name string, src, dst []r2.Point, res *homography.Residuals, precision int) {
	if len(src) == 0 {
		return
	}
	printer := message.NewPrinter(language.English)
	b.WriteString(cases.Title(language.English).String(name) + ":\n")
	for i := range src {
		b.WriteString(printer.Sprintf("  %3d  (%.*f, %.*f) -> (%.*f, %.*f)  expected (%.*f, %.*f)  err %.*f\n",
			i,
			precision, src[i].X, precision, src[i].Y,
			precision, res.Predicted[i].X, precision, res.Predicted[i].Y,
			precision, dst[i].X, precision, dst[i].Y,
			precision, res.PerPoint[i]))
	}
}
