package history

import (
	"database/sql"
	"time"
)

// #region cycle
// Cycle is one orchestration pass.
type Cycle struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
	Dataset     string
	Planner     string
	FinalStatus string // uptime after the cycle: "UP" | "DOWN"
}
// #endregion cycle

// #region incident
// Incident is one detected failure and the remediation applied to it.
// Reward and Q values are nil when the planner does not learn or the rating was deferred.
type Incident struct {
	ID             int64
	CycleID        string
	Phase          string
	State          string // compound state key
	Reason         string
	Action         string
	Selection      string
	Outcome        string
	ResponseTimeMs float64
	Reward         *float64
	QBefore        *float64
	QAfter         *float64
	FeedbackSource string
	FeedbackValue  string
	CreatedAt      time.Time
}

// ActionStat aggregates incidents per (state, action).
type ActionStat struct {
	State       string  `db:"state" json:"state"`
	Action      string  `db:"action" json:"action"`
	Count       int     `db:"n" json:"count"`
	SuccessRate float64 `db:"success_rate" json:"success_rate"`
	MeanReward  float64 `db:"mean_reward" json:"mean_reward"`
}
// #endregion incident

// #region rows
type cycleRow struct {
	ID          string         `db:"id"`
	StartedAt   string         `db:"started_at"`
	FinishedAt  sql.NullString `db:"finished_at"`
	Dataset     string         `db:"dataset"`
	Planner     string         `db:"planner"`
	FinalStatus string         `db:"final_status"`
}

type incidentRow struct {
	ID             int64           `db:"id"`
	CycleID        string          `db:"cycle_id"`
	Phase          string          `db:"phase"`
	State          string          `db:"state"`
	Reason         string          `db:"reason"`
	Action         string          `db:"action"`
	Selection      string          `db:"selection"`
	Outcome        string          `db:"outcome"`
	ResponseTimeMs float64         `db:"response_time_ms"`
	Reward         sql.NullFloat64 `db:"reward"`
	QBefore        sql.NullFloat64 `db:"q_before"`
	QAfter         sql.NullFloat64 `db:"q_after"`
	FeedbackSource string          `db:"feedback_source"`
	FeedbackValue  string          `db:"feedback_value"`
	CreatedAt      string          `db:"created_at"`
}
// #endregion rows
