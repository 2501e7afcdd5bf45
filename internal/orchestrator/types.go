package orchestrator

// #region imports
import (
	"time"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/deploy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/failure"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/feedback"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/policy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/remediation"
)

// #endregion

// #region scenario

// Scenario describes what one cycle injects.
type Scenario struct {
	Dataset      string
	FailType     deploy.FailureMode // empty = healthy deployment
	ForceAnomaly bool
}

// request builds the deployment request. A forced anomaly alone also marks the deployment as failing.
func (s Scenario) request() deploy.Request {
	return deploy.Request{
		ShouldFail: s.FailType != deploy.FailureNone || s.ForceAnomaly,
		Failure:    s.FailType,
	}
}

// #endregion

// #region incident-report

// IncidentReport is one detected failure and how it was handled.
type IncidentReport struct {
	Phase     failure.Phase
	State     failure.State
	Key       string // compound state key, built from the uptime before the incident
	Reason    string
	Action    remediation.Action
	Selection policy.Selection
	Result    remediation.Result
	Feedback  *feedback.Record // nil when the planner does not learn or rating was deferred
	Step      *policy.Step     // nil when no update was applied
}

// #endregion

// #region cycle-report

// CycleReport summarises one orchestration pass.
type CycleReport struct {
	CycleID     string
	Scenario    Scenario
	Pending     *feedback.Record // late feedback applied at cycle start
	PendingStep *policy.Step
	RowsAdded   int
	Deployment  deploy.Record
	Incidents   []IncidentReport
	FinalStatus failure.Uptime
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Healed reports whether every incident of the cycle was remediated.
func (r CycleReport) Healed() bool {
	for _, in := range r.Incidents {
		if !in.Result.Succeeded() {
			return false
		}
	}
	return true
}

// #endregion
