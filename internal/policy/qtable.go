package policy

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
	"strings"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/remediation"
)

// #endregion

// #region table

// QTable maps (state, action) to a learned value. Every declared pair has an entry.
type QTable struct {
	actions []remediation.Action
	states  []string
	values  map[string][]float64
}

// NewQTable creates an all-zero table over the declared universes.
func NewQTable(states []string, actions []remediation.Action) *QTable {
	q := &QTable{
		actions: append([]remediation.Action(nil), actions...),
		values:  make(map[string][]float64, len(states)),
	}
	for _, s := range states {
		q.Ensure(s)
	}
	return q
}

// Actions returns the action columns in declared order.
func (q *QTable) Actions() []remediation.Action {
	return append([]remediation.Action(nil), q.actions...)
}

// States returns the rows in insertion order.
func (q *QTable) States() []string {
	return append([]string(nil), q.states...)
}

// Ensure adds an all-zero row for state if it is missing.
func (q *QTable) Ensure(state string) {
	if _, ok := q.values[state]; ok {
		return
	}
	q.states = append(q.states, state)
	q.values[state] = make([]float64, len(q.actions))
}

// Has reports whether state has a row.
func (q *QTable) Has(state string) bool {
	_, ok := q.values[state]
	return ok
}

func (q *QTable) col(a remediation.Action) int {
	for i, known := range q.actions {
		if known == a {
			return i
		}
	}
	return -1
}

// Get returns Q(state, action). Unknown pairs read as 0.
func (q *QTable) Get(state string, a remediation.Action) float64 {
	row, ok := q.values[state]
	i := q.col(a)
	if !ok || i < 0 {
		return 0
	}
	return row[i]
}

// Set writes Q(state, action), adding the row if needed. Unknown actions are rejected.
func (q *QTable) Set(state string, a remediation.Action, v float64) error {
	i := q.col(a)
	if i < 0 {
		return fmt.Errorf("action %q is not a table column", a)
	}
	q.Ensure(state)
	q.values[state][i] = v
	return nil
}

// Row returns the values of state in action order.
func (q *QTable) Row(state string) []float64 {
	return append([]float64(nil), q.values[state]...)
}

// Max returns the largest value in state's row, or 0 for an unknown state.
func (q *QTable) Max(state string) float64 {
	row, ok := q.values[state]
	if !ok || len(row) == 0 {
		return 0
	}
	best := row[0]
	for _, v := range row[1:] {
		if v > best {
			best = v
		}
	}
	return best
}

// Best returns the highest-valued action; ties go to the first declared action.
func (q *QTable) Best(state string) remediation.Action {
	row := q.values[state]
	best := 0
	for i := range row {
		if row[i] > row[best] {
			best = i
		}
	}
	return q.actions[best]
}

// Clone returns a deep copy.
func (q *QTable) Clone() *QTable {
	c := &QTable{
		actions: q.Actions(),
		states:  q.States(),
		values:  make(map[string][]float64, len(q.values)),
	}
	for s, row := range q.values {
		c.values[s] = append([]float64(nil), row...)
	}
	return c
}

// #endregion

// #region load

// LoadQTable reads a table saved by Save and overlays it on the declared universes.
// The returned table is always usable: a missing file yields all zeros with no error,
// while unreadable files, unparsable cells and non-finite cells keep their defaults and are reported in err.
func LoadQTable(path string, states []string, actions []remediation.Action) (*QTable, error) {
	q := NewQTable(states, actions)

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return q, nil
	}
	if err != nil {
		return q, fmt.Errorf("open q-table %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return q, nil
	}
	if err != nil {
		return q, fmt.Errorf("read q-table header %s: %w", path, err)
	}

	// map file columns onto table columns; unknown columns are skipped
	cols := make([]int, len(header))
	for i, h := range header {
		cols[i] = -1
		if i > 0 {
			cols[i] = q.col(remediation.Action(strings.TrimSpace(h)))
		}
	}

	var errs []error
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("q-table %s line %d: %w", path, line, err))
			break
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		state := strings.TrimSpace(row[0])
		q.Ensure(state)
		for i := 1; i < len(row) && i < len(cols); i++ {
			if cols[i] < 0 || strings.TrimSpace(row[i]) == "" {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("q-table %s line %d column %s: %w", path, line, header[i], err))
				continue
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				errs = append(errs, fmt.Errorf("q-table %s line %d column %s: non-finite value %v", path, line, header[i], v))
				continue
			}
			q.values[state][cols[i]] = v
		}
	}
	return q, errors.Join(errs...)
}

// #endregion

// #region save

// Save writes the table as CSV (state,<actions...>) via a temp file and rename.
func (q *QTable) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("q-table dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".qtable-*.csv")
	if err != nil {
		return fmt.Errorf("q-table temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	header := make([]string, 0, len(q.actions)+1)
	header = append(header, "state")
	for _, a := range q.actions {
		header = append(header, string(a))
	}
	w.Write(header)
	for _, s := range q.states {
		row := make([]string, 0, len(q.actions)+1)
		row = append(row, s)
		for _, v := range q.values[s] {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		w.Write(row)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("write q-table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close q-table: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save q-table %s: %w", path, err)
	}
	return nil
}

// #endregion
