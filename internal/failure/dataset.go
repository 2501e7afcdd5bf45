package failure

// #region imports
import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// #endregion

// #region kind

// Kind is the dataset family, determined by its columns.
type Kind string

const (
	KindUnknown Kind = "unknown"
	KindScores  Kind = "scores"
	KindHealth  Kind = "health"
)

// Column names the classifier understands.
const (
	ColScore       = "score"
	ColHeartRate   = "heart_rate"
	ColOxygenLevel = "oxygen_level"
)

// ErrEmptyDataset is returned for a file with no header row.
var ErrEmptyDataset = errors.New("dataset is empty")

// #endregion

// #region dataset

// Dataset is a monitored CSV table held in memory.
type Dataset struct {
	Path   string
	Header []string
	Rows   [][]string
	index  map[string]int
}

// NewDataset builds a dataset from an already parsed header and rows.
func NewDataset(header []string, rows [][]string) *Dataset {
	d := &Dataset{Header: header, Rows: rows, index: make(map[string]int, len(header))}
	for i, h := range header {
		d.index[strings.TrimSpace(h)] = i
	}
	return d
}

// LoadDataset reads a CSV file with a header row.
func LoadDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyDataset)
	}
	if err != nil {
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rows %s: %w", path, err)
	}

	d := NewDataset(header, rows)
	d.Path = path
	return d, nil
}

// Len returns the number of data rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// HasColumn reports whether the header contains name.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Kind sniffs the dataset family from its schema.
func (d *Dataset) Kind() Kind {
	switch {
	case d.HasColumn(ColScore):
		return KindScores
	case d.HasColumn(ColHeartRate), d.HasColumn(ColOxygenLevel):
		return KindHealth
	}
	return KindUnknown
}

// Floats returns every parsable value of a column, skipping blanks and junk.
func (d *Dataset) Floats(col string) []float64 {
	i, ok := d.index[col]
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(d.Rows))
	for _, row := range d.Rows {
		if v, ok := cell(row, i); ok {
			out = append(out, v)
		}
	}
	return out
}

// LastFloat returns the column value of the most recent row.
func (d *Dataset) LastFloat(col string) (float64, bool) {
	i, ok := d.index[col]
	if !ok || len(d.Rows) == 0 {
		return 0, false
	}
	return cell(d.Rows[len(d.Rows)-1], i)
}

// #endregion

// #region helpers

func cell(row []string, i int) (float64, bool) {
	if i >= len(row) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// #endregion
