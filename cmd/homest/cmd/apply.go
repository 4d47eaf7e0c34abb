package cmd

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/homest/internal/homography"
	"github.com/MeKo-Tech/homest/internal/report"
	"github.com/golang/geo/r2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// applyCmd represents the apply command.
var applyCmd = &cobra.Command{
	Use:   "apply [x,y ...]",
	Short: "Map points through a homography",
	Long: `Map 2D points through a known homography with perspective division.

The homography is given either as 9 comma separated row-major values or as the
path of a YAML/JSON file with an "h" key, such as the JSON output of
"homest estimate". Points are given as x,y arguments or as a file with one
x,y pair per line. Put "--" before the points when a coordinate is negative.

Examples:
  homest apply --h "5,0,0,0,5,0,0,0,1" 1,2 3,4
  homest apply --h result.json --points points.csv --format json
  homest apply --h "1,0,0,0,1,0,0,0,1" -- -2,3`,
	SilenceUsage: true,
	RunE:         runApplyCommand,
}

func runApplyCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	hSpec, _ := cmd.Flags().GetString("h")
	if hSpec == "" {
		return errors.New("--h is required")
	}
	h, err := parseHomography(hSpec)
	if err != nil {
		return err
	}

	points, err := parsePoints(args)
	if err != nil {
		return err
	}
	if pointsFile, _ := cmd.Flags().GetString("points"); pointsFile != "" {
		filePoints, err := loadPoints(pointsFile)
		if err != nil {
			return err
		}
		points = append(points, filePoints...)
	}
	if len(points) == 0 {
		return errors.New("no points given")
	}

	projected, err := homography.Apply(h, points, cfg.Estimation.InfinityTolerance)
	if err != nil {
		return err
	}

	format, precision := outputSettings(cfg, cmd)
	out, err := formatProjection(points, projected, format, precision)
	if err != nil {
		return err
	}

	outputFile := cfg.Output.File
	if cmd.Flags().Changed("output") {
		outputFile, _ = cmd.Flags().GetString("output")
	}
	return writeOutput(cmd.OutOrStdout(), out, outputFile)
}

// parseHomography reads 9 comma separated values, or a file holding an "h" matrix.
func parseHomography(spec string) (homography.Matrix, error) {
	if strings.Contains(spec, ",") {
		fields := strings.Split(spec, ",")
		values := make([]float64, 0, len(fields))
		for _, field := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return homography.Matrix{}, fmt.Errorf("invalid homography value %q: %w", field, err)
			}
			values = append(values, v)
		}
		return homography.FromSlice(values)
	}

	data, err := os.ReadFile(spec) //nolint:gosec // G304: Reading user-provided homography file is expected
	if err != nil {
		return homography.Matrix{}, fmt.Errorf("failed to read homography file: %w", err)
	}
	// YAML is a superset of JSON, so one decoder covers both.
	var doc struct {
		H [][]float64 `yaml:"h"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return homography.Matrix{}, fmt.Errorf("failed to parse homography file: %w", err)
	}
	var values []float64
	for _, row := range doc.H {
		values = append(values, row...)
	}
	if len(doc.H) != 3 || len(values) != 9 {
		return homography.Matrix{}, fmt.Errorf("%s: expected a 3x3 matrix under \"h\"", spec)
	}
	return homography.FromSlice(values)
}

// parsePoints parses x,y arguments.
func parsePoints(args []string) ([]r2.Point, error) {
	points := make([]r2.Point, 0, len(args))
	for _, arg := range args {
		p, err := parsePoint(strings.Split(arg, ","))
		if err != nil {
			return nil, fmt.Errorf("invalid point %q: %w", arg, err)
		}
		points = append(points, p)
	}
	return points, nil
}

func parsePoint(fields []string) (r2.Point, error) {
	if len(fields) != 2 {
		return r2.Point{}, fmt.Errorf("expected x,y, got %d values", len(fields))
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return r2.Point{}, err
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return r2.Point{}, err
	}
	return r2.Point{X: x, Y: y}, nil
}

// loadPoints reads x,y rows. A first row that does not parse is a header.
func loadPoints(path string) ([]r2.Point, error) {
	f, err := os.Open(path) //nolint:gosec // G304: Opening user-provided points file is expected
	if err != nil {
		return nil, fmt.Errorf("failed to open points file: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var points []r2.Point
	for n := 1; ; n++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		p, err := parsePoint(record)
		if err != nil {
			if n == 1 {
				continue
			}
			return nil, fmt.Errorf("%s: record %d: %w", path, n, err)
		}
		points = append(points, p)
	}
	return points, nil
}

type projectedPoint struct {
	Source    [2]float64 `json:"source" yaml:"source,flow"`
	Projected [2]float64 `json:"projected" yaml:"projected,flow"`
}

func formatProjection(src, dst []r2.Point, format string, precision int) (string, error) {
	records := make([]projectedPoint, len(src))
	for i := range src {
		records[i] = projectedPoint{
			Source:    [2]float64{src[i].X, src[i].Y},
			Projected: [2]float64{dst[i].X, dst[i].Y},
		}
	}

	switch format {
	case report.FormatJSON:
		bts, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return "", err
		}
		return string(bts) + "\n", nil
	case report.FormatYAML:
		bts, err := yaml.Marshal(records)
		return string(bts), err
	case report.FormatCSV:
		var output strings.Builder
		writer := csv.NewWriter(&output)
		_ = writer.Write([]string{"x", "y", "u", "v"})
		f := func(v float64) string { return strconv.FormatFloat(v, 'f', precision, 64) }
		for i := range src {
			_ = writer.Write([]string{f(src[i].X), f(src[i].Y), f(dst[i].X), f(dst[i].Y)})
		}
		writer.Flush()
		return output.String(), writer.Error()
	case report.FormatText, "":
		var output strings.Builder
		for i := range src {
			output.WriteString(fmt.Sprintf("(%.*f, %.*f) -> (%.*f, %.*f)\n",
				precision, src[i].X, precision, src[i].Y,
				precision, dst[i].X, precision, dst[i].Y))
		}
		return output.String(), nil
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().String("h", "", "homography as 9 comma separated values or a YAML/JSON file with an \"h\" key")
	applyCmd.Flags().String("points", "", "file with one x,y pair per line")
	addOutputFlags(applyCmd)
}
