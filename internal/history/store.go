package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// #region store-struct
// Store is the SQLite audit trail of cycles and incidents.
// It is never the source of truth for the policy; the Q-table file is.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}
// #endregion store-struct

// #region constructor
// NewStore opens (or creates) the database at dbPath and applies pending migrations.
// Use ":memory:" for an ephemeral store.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if err := migrate(ctx, db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion constructor

// #region cycles
// BeginCycle records the start of a cycle and returns it with a fresh ID.
func (s *Store) BeginCycle(ctx context.Context, dataset, planner string) (Cycle, error) {
	c := Cycle{
		ID:        uuid.New().String(),
		StartedAt: s.now().UTC(),
		Dataset:   dataset,
		Planner:   planner,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycles (id, started_at, dataset, planner) VALUES (?, ?, ?, ?)`,
		c.ID, c.StartedAt.Format(time.RFC3339Nano), c.Dataset, c.Planner,
	)
	if err != nil {
		return Cycle{}, fmt.Errorf("begin cycle: %w", err)
	}
	return c, nil
}

// FinishCycle stamps the cycle end and its final uptime status.
func (s *Store) FinishCycle(ctx context.Context, id, finalStatus string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cycles SET finished_at = ?, final_status = ? WHERE id = ?`,
		s.now().UTC().Format(time.RFC3339Nano), finalStatus, id,
	)
	if err != nil {
		return fmt.Errorf("finish cycle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish cycle: unknown cycle %s", id)
	}
	return nil
}

// RecentCycles returns up to n cycles, newest first.
func (s *Store) RecentCycles(ctx context.Context, n int) ([]Cycle, error) {
	var rows []cycleRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, started_at, finished_at, dataset, planner, final_status
		 FROM cycles ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("recent cycles: %w", err)
	}
	out := make([]Cycle, len(rows))
	for i, r := range rows {
		out[i] = Cycle{
			ID:          r.ID,
			StartedAt:   parseTime(r.StartedAt),
			Dataset:     r.Dataset,
			Planner:     r.Planner,
			FinalStatus: r.FinalStatus,
		}
		if r.FinishedAt.Valid {
			out[i].FinishedAt = parseTime(r.FinishedAt.String)
		}
	}
	return out, nil
}
// #endregion cycles

// #region incidents
// RecordIncident appends an incident and returns its row ID.
func (s *Store) RecordIncident(ctx context.Context, in Incident) (int64, error) {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = s.now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents
		(cycle_id, phase, state, reason, action, selection, outcome, response_time_ms,
		 reward, q_before, q_after, feedback_source, feedback_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.CycleID,
		in.Phase,
		in.State,
		in.Reason,
		in.Action,
		in.Selection,
		in.Outcome,
		in.ResponseTimeMs,
		nullFloat(in.Reward),
		nullFloat(in.QBefore),
		nullFloat(in.QAfter),
		in.FeedbackSource,
		in.FeedbackValue,
		in.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("record incident: %w", err)
	}
	return res.LastInsertId()
}

const incidentColumns = `id, cycle_id, phase, state, reason, action, selection, outcome,
	response_time_ms, reward, q_before, q_after, feedback_source, feedback_value, created_at`

// RecentIncidents returns up to n incidents, newest first.
func (s *Store) RecentIncidents(ctx context.Context, n int) ([]Incident, error) {
	var rows []incidentRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+incidentColumns+` FROM incidents ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("recent incidents: %w", err)
	}
	return toIncidents(rows), nil
}

// IncidentsForCycle returns a cycle's incidents in the order they happened.
func (s *Store) IncidentsForCycle(ctx context.Context, cycleID string) ([]Incident, error) {
	var rows []incidentRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+incidentColumns+` FROM incidents WHERE cycle_id = ? ORDER BY id`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("cycle incidents: %w", err)
	}
	return toIncidents(rows), nil
}

// ActionStats aggregates outcome and reward per (state, action).
func (s *Store) ActionStats(ctx context.Context) ([]ActionStat, error) {
	var stats []ActionStat
	err := s.db.SelectContext(ctx, &stats, `
		SELECT state, action,
		       COUNT(*) AS n,
		       AVG(CASE WHEN outcome = 'success' THEN 1.0 ELSE 0.0 END) AS success_rate,
		       COALESCE(AVG(reward), 0.0) AS mean_reward
		FROM incidents
		GROUP BY state, action
		ORDER BY state, action`)
	if err != nil {
		return nil, fmt.Errorf("action stats: %w", err)
	}
	return stats, nil
}
// #endregion incidents

// #region helpers
func toIncidents(rows []incidentRow) []Incident {
	out := make([]Incident, len(rows))
	for i, r := range rows {
		out[i] = Incident{
			ID:             r.ID,
			CycleID:        r.CycleID,
			Phase:          r.Phase,
			State:          r.State,
			Reason:         r.Reason,
			Action:         r.Action,
			Selection:      r.Selection,
			Outcome:        r.Outcome,
			ResponseTimeMs: r.ResponseTimeMs,
			Reward:         fromNull(r.Reward),
			QBefore:        fromNull(r.QBefore),
			QAfter:         fromNull(r.QAfter),
			FeedbackSource: r.FeedbackSource,
			FeedbackValue:  r.FeedbackValue,
			CreatedAt:      parseTime(r.CreatedAt),
		}
	}
	return out
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
// #endregion helpers
