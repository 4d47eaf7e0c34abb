package correspondence

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/geo/r2"
	"gopkg.in/yaml.v3"
)

// Format identifies an on-disk dataset encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// SupportedExtensions lists the file extensions Load understands.
var SupportedExtensions = []string{".yaml", ".yml", ".json", ".csv"}

// document is the YAML/JSON layout of a dataset file.
type document struct {
	Name        string      `yaml:"name,omitempty" json:"name,omitempty"`
	Train       int         `yaml:"train,omitempty" json:"train,omitempty"`
	Source      [][]float64 `yaml:"source,flow" json:"source"`
	Destination [][]float64 `yaml:"destination,flow" json:"destination"`
}

// FormatFromPath picks a format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported dataset extension %q", filepath.Ext(path))
	}
}

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatYAML, FormatJSON, FormatCSV:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported dataset format %q", s)
	}
}

// Load reads a dataset file, choosing the decoder by extension. Datasets
// without a name are named after the file.
func Load(path string) (*Dataset, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // G304: Opening user-provided dataset file is expected
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	ds, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ds.Path = path
	if ds.Name == "" {
		ds.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return ds, nil
}

// Decode parses a dataset in the given format.
func Decode(r io.Reader, format Format) (*Dataset, error) {
	var (
		ds  *Dataset
		err error
	)
	switch format {
	case FormatYAML:
		var doc document
		if err = yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		ds, err = doc.dataset()
	case FormatJSON:
		var doc document
		if err = json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
		ds, err = doc.dataset()
	case FormatCSV:
		ds, err = decodeCSV(r)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Encode writes ds in the given format. CSV output carries no name or
// train count.
func Encode(w io.Writer, ds *Dataset, format Format) error {
	doc := document{
		Name:        ds.Name,
		Train:       ds.Train,
		Source:      toPairs(ds.Source),
		Destination: toPairs(ds.Destination),
	}
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatCSV:
		return encodeCSV(w, ds)
	default:
		return fmt.Errorf("unsupported dataset format %q", format)
	}
}

// Save writes ds to path using the format implied by its extension.
func Save(path string, ds *Dataset) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path) //nolint:gosec // G304: Writing user-provided dataset file is expected
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	if err := Encode(f, ds, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (doc *document) dataset() (*Dataset, error) {
	src, err := fromPairs(doc.Source, "source")
	if err != nil {
		return nil, err
	}
	dst, err := fromPairs(doc.Destination, "destination")
	if err != nil {
		return nil, err
	}
	return &Dataset{Name: doc.Name, Train: doc.Train, Source: src, Destination: dst}, nil
}

func fromPairs(pairs [][]float64, field string) ([]r2.Point, error) {
	pts := make([]r2.Point, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("%w: %s[%d] has %d coordinates, want 2", ErrInvalidDataset, field, i, len(p))
		}
		pts[i] = r2.Point{X: p[0], Y: p[1]}
	}
	return pts, nil
}

func toPairs(pts []r2.Point) [][]float64 {
	out := make([][]float64, len(pts))
	for i, p := range pts {
		out[i] = []float64{p.X, p.Y}
	}
	return out
}

// decodeCSV reads x,y,u,v rows. A first row that does not parse as numbers
// is treated as a header.
func decodeCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 4
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	ds := &Dataset{}
	for n := 1; ; n++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		vals, err := parseRecord(record)
		if err != nil {
			if n == 1 {
				continue
			}
			return nil, fmt.Errorf("%w: record %d: %w", ErrInvalidDataset, n, err)
		}
		ds.Source = append(ds.Source, r2.Point{X: vals[0], Y: vals[1]})
		ds.Destination = append(ds.Destination, r2.Point{X: vals[2], Y: vals[3]})
	}
	return ds, nil
}

func parseRecord(record []string) ([4]float64, error) {
	var vals [4]float64
	for i, field := range record {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return vals, err
		}
		vals[i] = v
	}
	return vals, nil
}

func encodeCSV(w io.Writer, ds *Dataset) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"x", "y", "u", "v"}); err != nil {
		return err
	}
	for i := range ds.Source {
		s, d := ds.Source[i], ds.Destination[i]
		row := []string{
			strconv.FormatFloat(s.X, 'g', -1, 64),
			strconv.FormatFloat(s.Y, 'g', -1, 64),
			strconv.FormatFloat(d.X, 'g', -1, 64),
			strconv.FormatFloat(d.Y, 'g', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
