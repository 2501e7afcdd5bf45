package ledger

// #region imports
import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/deploy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/failure"
)

// #endregion

// #region headers

// Column layouts of the append-only ledgers.
var (
	DeploymentHeader   = []string{"timestamp", "dataset_changed", "status", "response_time_ms", "action_type"}
	HealingHeader      = []string{"timestamp", "strategy", "status", "response_time_ms"}
	IssueHeader        = []string{"timestamp", "failure_state", "reason"}
	UptimeHeader       = []string{"timestamp", "status", "event"}
	UserFeedbackHeader = []string{"timestamp", "state", "action", "system_outcome", "feedback_source", "user_feedback"}
	PerformanceHeader  = []string{"timestamp", "state", "action", "reward"}
)

// File names used inside the log directory.
const (
	FileDeployments  = "deployment_log.csv"
	FileHealing      = "healing_log.csv"
	FileIssues       = "issue_log.csv"
	FileUptime       = "uptime_log.csv"
	FileUserFeedback = "user_feedback_log.csv"
	FilePerformance  = "rl_performance_log.csv"
)

// ActionDeploy marks a regular deployment row; heal rows carry their heal type.
const ActionDeploy = "deploy"

// #endregion

// #region set

// Set bundles every ledger kept under one log directory.
type Set struct {
	Deployments  *Deployments
	Healing      *Healing
	Issues       *Issues
	Uptime       *Writer
	UserFeedback *UserFeedback
	Performance  *Performance
}

// Open wires the standard ledgers under dir.
func Open(dir string) *Set {
	return &Set{
		Deployments:  &Deployments{w: NewWriter(filepath.Join(dir, FileDeployments), DeploymentHeader)},
		Healing:      &Healing{w: NewWriter(filepath.Join(dir, FileHealing), HealingHeader)},
		Issues:       &Issues{w: NewWriter(filepath.Join(dir, FileIssues), IssueHeader)},
		Uptime:       NewWriter(filepath.Join(dir, FileUptime), UptimeHeader),
		UserFeedback: &UserFeedback{w: NewWriter(filepath.Join(dir, FileUserFeedback), UserFeedbackHeader)},
		Performance:  &Performance{w: NewWriter(filepath.Join(dir, FilePerformance), PerformanceHeader)},
	}
}

// #endregion

// #region deployments

// Deployments records deployments and heal redeploys.
type Deployments struct{ w *Writer }

// NewDeployments opens a deployment ledger at path.
func NewDeployments(path string) *Deployments {
	return &Deployments{w: NewWriter(path, DeploymentHeader)}
}

// Log appends one deployment row. actionType is ActionDeploy or a heal type.
func (d *Deployments) Log(dataset string, rec deploy.Record, actionType string) error {
	return d.w.AppendStamped(dataset, string(rec.Status), FormatMs(rec.ResponseTimeMs), actionType)
}

// Last returns the most recent row as a record, or nil for an empty ledger.
func (d *Deployments) Last() (*deploy.Record, error) {
	row, err := d.w.LastRow()
	if err != nil || row == nil {
		return nil, err
	}
	if len(row) < 4 {
		return nil, fmt.Errorf("deployment ledger %s: short row %v", d.w.Path(), row)
	}
	status, err := deploy.ParseStatus(row[2])
	if err != nil {
		return nil, fmt.Errorf("deployment ledger %s: %w", d.w.Path(), err)
	}
	ms, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return nil, fmt.Errorf("deployment ledger %s: bad response time %q: %w", d.w.Path(), row[3], err)
	}
	return &deploy.Record{Status: status, ResponseTimeMs: ms}, nil
}

// Path returns the ledger file.
func (d *Deployments) Path() string { return d.w.Path() }

// Rows returns every logged deployment.
func (d *Deployments) Rows() ([][]string, error) { return d.w.Rows() }

// #endregion

// #region healing

// Healing records every remediation attempt.
type Healing struct{ w *Writer }

// LogHealing appends one remediation attempt.
func (h *Healing) LogHealing(strategy string, status deploy.Status, responseTimeMs float64) error {
	return h.w.AppendStamped(strategy, string(status), FormatMs(responseTimeMs))
}

// Rows returns every logged attempt.
func (h *Healing) Rows() ([][]string, error) { return h.w.Rows() }

// #endregion

// #region issues

// Issues records detected incidents.
type Issues struct{ w *Writer }

// Log appends one detected incident.
func (i *Issues) Log(state failure.State, reason string) error {
	return i.w.AppendStamped(string(state), reason)
}

// Rows returns every logged incident.
func (i *Issues) Rows() ([][]string, error) { return i.w.Rows() }

// #endregion

// #region user-feedback

// UserFeedback is the permanent history of ratings.
type UserFeedback struct{ w *Writer }

// Log appends one rating.
func (u *UserFeedback) Log(state, action string, outcome deploy.Status, source, value string) error {
	return u.w.AppendStamped(state, action, string(outcome), source, value)
}

// Rows returns every logged rating.
func (u *UserFeedback) Rows() ([][]string, error) { return u.w.Rows() }

// #endregion

// #region performance

// Performance records the shaped reward of every policy update.
type Performance struct{ w *Writer }

// Log appends one reward row.
func (p *Performance) Log(state, action string, reward float64) error {
	return p.w.AppendStamped(state, action, FormatFloat(reward))
}

// Rows returns every logged reward.
func (p *Performance) Rows() ([][]string, error) { return p.w.Rows() }

// #endregion
