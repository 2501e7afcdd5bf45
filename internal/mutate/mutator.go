package mutate

// #region imports
import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/failure"
)

// #endregion

// #region vocabulary

var (
	names    = []string{"Alice", "Bob", "Charlie", "David"}
	subjects = []string{"Math", "Science", "History", "English"}
)

const forcedScoreRows = 5

// #endregion

// #region mutator

// Mutator simulates a data change: it snapshots the dataset, then appends synthetic rows.
type Mutator struct {
	rng    *rand.Rand
	now    func() time.Time
	logger *slog.Logger
}

// New creates a mutator drawing values from rng.
func New(rng *rand.Rand, logger *slog.Logger) *Mutator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mutator{rng: rng, now: time.Now, logger: logger}
}

// BackupPath returns where Apply snapshots path.
func BackupPath(path string) string {
	return path + ".bak"
}

// Apply backs path up to BackupPath(path) and appends rows for its schema.
// forceAnomaly appends rows that trip the default thresholds.
func (m *Mutator) Apply(path string, forceAnomaly bool) (int, error) {
	ds, err := failure.LoadDataset(path)
	if err != nil {
		return 0, fmt.Errorf("mutate: %w", err)
	}
	if err := copyFile(path, BackupPath(path)); err != nil {
		return 0, fmt.Errorf("mutate backup: %w", err)
	}

	var rows []map[string]string
	switch ds.Kind() {
	case failure.KindScores:
		rows = m.scoreRows(forceAnomaly)
	case failure.KindHealth:
		rows = m.healthRows(forceAnomaly)
	default:
		return 0, fmt.Errorf("mutate %s: dataset schema not recognised", path)
	}

	if err := appendRows(path, ds.Header, rows); err != nil {
		return 0, err
	}
	m.logger.Info("dataset mutated",
		"dataset", path,
		"kind", string(ds.Kind()),
		"rows", len(rows),
		"forced", forceAnomaly,
	)
	return len(rows), nil
}

func (m *Mutator) scoreRows(force bool) []map[string]string {
	n, lo, hi := 1, 50, 100
	if force {
		n, lo, hi = forcedScoreRows, 10, 20
	}
	day := m.now().Format(time.DateOnly)
	rows := make([]map[string]string, n)
	for i := range rows {
		rows[i] = map[string]string{
			"timestamp":      day,
			"name":           names[m.rng.IntN(len(names))],
			"subject":        subjects[m.rng.IntN(len(subjects))],
			failure.ColScore: strconv.Itoa(m.between(lo, hi)),
		}
	}
	return rows
}

func (m *Mutator) healthRows(force bool) []map[string]string {
	hr, o2 := m.between(60, 100), m.between(96, 100)
	if force {
		hr, o2 = 150, 90
	}
	return []map[string]string{{
		"timestamp":            m.now().Format(time.DateTime),
		failure.ColHeartRate:   strconv.Itoa(hr),
		"blood_pressure":       fmt.Sprintf("%d/%d", m.between(110, 140), m.between(70, 90)),
		failure.ColOxygenLevel: strconv.Itoa(o2),
	}}
}

// between returns an integer in [lo, hi].
func (m *Mutator) between(lo, hi int) int {
	return lo + m.rng.IntN(hi-lo+1)
}

// #endregion

// #region helpers

func appendRows(path string, header []string, rows []map[string]string) error {
	if err := ensureTrailingNewline(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, r := range rows {
		rec := make([]string, len(header))
		for i, col := range header {
			rec[i] = r[col]
		}
		w.Write(rec)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("append dataset %s: %w", path, err)
	}
	return nil
}

// ensureTrailingNewline keeps appended rows off the last line of hand-edited files.
func ensureTrailingNewline(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return err
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("read dataset %s: %w", path, err)
	}
	if last[0] != '\n' {
		if _, err := f.WriteAt([]byte("\n"), info.Size()); err != nil {
			return fmt.Errorf("terminate dataset %s: %w", path, err)
		}
	}
	return nil
}

// Restore copies backup over path, undoing the data change of an earlier Apply.
func Restore(backup, path string) error {
	return copyFile(backup, path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	return out.Close()
}

// #endregion
