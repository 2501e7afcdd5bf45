package remediation

// #region imports
import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/deploy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/mutate"
)

// #endregion

// #region action

// Action is one remediation the catalog knows how to run.
type Action string

const (
	ActionRetry   Action = "retry_deployment"
	ActionRestore Action = "restore_previous_version"
	ActionAdjust  Action = "adjust_thresholds"
)

// Actions is the declared action set. Its order is the exploitation tie-break.
var Actions = []Action{ActionRetry, ActionRestore, ActionAdjust}

// ParseAction rejects names outside the catalog.
func ParseAction(s string) (Action, error) {
	a := Action(strings.TrimSpace(s))
	for _, known := range Actions {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown remediation action %q", s)
}

// HealType labels how an action healed, as logged to the deployment ledger.
type HealType string

const (
	HealRetry   HealType = "heal_retry"
	HealRestore HealType = "heal_restore"
	HealAdjust  HealType = "heal_adjust"
	HealUnknown HealType = "unknown_strategy"
)

var healTypes = map[Action]HealType{
	ActionRetry:   HealRetry,
	ActionRestore: HealRestore,
	ActionAdjust:  HealAdjust,
}

// adjustResponseMs is the nominal cost of re-tuning thresholds.
const adjustResponseMs = 200

// #endregion

// #region context-result

// Context carries what an action needs to know about the monitored target.
type Context struct {
	DatasetPath string
	BackupPath  string // defaults to DatasetPath + ".bak"
}

func (c Context) backup() string {
	if c.BackupPath != "" {
		return c.BackupPath
	}
	return mutate.BackupPath(c.DatasetPath)
}

// Result is the observable outcome of one remediation.
type Result struct {
	Action         Action
	Outcome        deploy.Status
	ResponseTimeMs float64
	HealType       HealType
}

// Succeeded reports whether the remediation restored service.
func (r Result) Succeeded() bool {
	return r.Outcome == deploy.StatusSuccess
}

// HealingLog receives one row per remediation attempt.
type HealingLog interface {
	LogHealing(strategy string, status deploy.Status, responseTimeMs float64) error
}

// #endregion

// #region catalog

// Catalog executes remediation actions against a deployment trigger.
type Catalog struct {
	trigger deploy.Trigger
	log     HealingLog // nil = no healing ledger
	logger  *slog.Logger
}

// NewCatalog creates a catalog redeploying through trigger.
func NewCatalog(trigger deploy.Trigger, log HealingLog, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{trigger: trigger, log: log, logger: logger}
}

// #endregion

// #region execute

// Execute runs action and appends the attempt to the healing ledger.
// Failures are reported through Result.Outcome, never as errors.
func (c *Catalog) Execute(ctx context.Context, action Action, rc Context) Result {
	res := Result{Action: action, Outcome: deploy.StatusFailure, HealType: HealUnknown}

	switch action {
	case ActionRetry:
		rec := c.trigger.Deploy(ctx, deploy.Request{})
		res.Outcome, res.ResponseTimeMs = rec.Status, rec.ResponseTimeMs
	case ActionRestore:
		res.Outcome, res.ResponseTimeMs = c.restore(ctx, rc)
	case ActionAdjust:
		res.Outcome, res.ResponseTimeMs = deploy.StatusSuccess, adjustResponseMs
	default:
		c.logger.Warn("unknown remediation action", "action", string(action))
	}
	if ht, ok := healTypes[action]; ok {
		res.HealType = ht
	}

	c.logger.Info("remediation executed",
		"action", string(action),
		"outcome", string(res.Outcome),
		"response_ms", res.ResponseTimeMs,
	)
	if c.log != nil {
		if err := c.log.LogHealing(string(action), res.Outcome, res.ResponseTimeMs); err != nil {
			c.logger.Error("healing ledger append failed", "err", err)
		}
	}
	return res
}

// restore copies the backup over the live dataset, then redeploys.
func (c *Catalog) restore(ctx context.Context, rc Context) (deploy.Status, float64) {
	backup := rc.backup()
	if _, err := os.Stat(backup); err != nil {
		c.logger.Warn("no backup found, cannot restore", "backup", backup)
		return deploy.StatusFailure, 0
	}
	if err := mutate.Restore(backup, rc.DatasetPath); err != nil {
		c.logger.Error("restore from backup failed", "backup", backup, "err", err)
		return deploy.StatusFailure, 0
	}
	c.logger.Info("dataset restored from backup", "dataset", rc.DatasetPath)

	rec := c.trigger.Deploy(ctx, deploy.Request{})
	return rec.Status, rec.ResponseTimeMs
}

// #endregion
