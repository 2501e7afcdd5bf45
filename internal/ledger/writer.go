package ledger

// #region imports
import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// #endregion

// #region writer

// Writer appends rows to a CSV file whose header is written exactly once.
type Writer struct {
	path   string
	header []string
	now    func() time.Time
	mu     sync.Mutex
}

// NewWriter creates a writer for path. Nothing touches disk until the first append.
func NewWriter(path string, header []string) *Writer {
	return &Writer{path: path, header: header, now: time.Now}
}

// Path returns the ledger file path.
func (w *Writer) Path() string { return w.path }

// Header returns the column names.
func (w *Writer) Header() []string { return w.header }

// #endregion

// #region append

// Append writes one row, creating the file and its header on first use.
func (w *Writer) Append(fields ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("ledger dir %s: %w", w.path, err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger %s: %w", w.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger %s: %w", w.path, err)
	}
	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(w.header); err != nil {
			return fmt.Errorf("write header %s: %w", w.path, err)
		}
	}
	if err := cw.Write(fields); err != nil {
		return fmt.Errorf("append %s: %w", w.path, err)
	}
	cw.Flush()
	return cw.Error()
}

// AppendStamped prefixes fields with the current timestamp.
func (w *Writer) AppendStamped(fields ...string) error {
	row := make([]string, 0, len(fields)+1)
	row = append(row, w.now().Format(time.RFC3339Nano))
	row = append(row, fields...)
	return w.Append(row...)
}

// Reset truncates the file back to its header only.
func (w *Writer) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rewrite(nil)
}

// Replace rewrites the file as header plus rows.
func (w *Writer) Replace(rows ...[]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rewrite(rows)
}

func (w *Writer) rewrite(rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("ledger dir %s: %w", w.path, err)
	}
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("rewrite ledger %s: %w", w.path, err)
	}
	cw := csv.NewWriter(f)
	cw.Write(w.header)
	cw.WriteAll(rows)
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("rewrite ledger %s: %w", w.path, err)
	}
	return f.Close()
}

// #endregion

// #region read

// Rows returns the data rows, excluding the header. A missing file has no rows.
func (w *Writer) Rows() ([][]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", w.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header %s: %w", w.path, err)
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", w.path, err)
	}
	return rows, nil
}

// LastRow returns the most recent data row, or nil when there is none.
func (w *Writer) LastRow() ([]string, error) {
	rows, err := w.Rows()
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[len(rows)-1], nil
}

// #endregion

// #region helpers

// FormatMs renders a duration in milliseconds rounded to two decimals.
func FormatMs(ms float64) string {
	return strconv.FormatFloat(math.Round(ms*100)/100, 'f', -1, 64)
}

// FormatFloat renders v with the shortest exact representation.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// #endregion
