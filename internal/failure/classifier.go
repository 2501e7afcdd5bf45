package failure

// #region imports
import (
	"fmt"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/deploy"
)

// #endregion

// #region reasons

const (
	reasonNoIssues         = "No issues detected."
	reasonDeploymentFailed = "Last deployment attempt failed."
)

// #endregion

// #region classifier

// Classifier maps monitored data and the last deployment to a failure state.
// It never returns an error: unusable input classifies as StateNone with a diagnostic reason.
type Classifier struct {
	th Thresholds
}

// NewClassifier creates a classifier with the given thresholds.
func NewClassifier(th Thresholds) *Classifier {
	return &Classifier{th: th}
}

// Thresholds returns the active thresholds.
func (c *Classifier) Thresholds() Thresholds {
	return c.th
}

// SetThresholds replaces the thresholds used by subsequent passes.
func (c *Classifier) SetThresholds(th Thresholds) {
	c.th = th
}

// #endregion

// #region classify

// Classify runs the data-quality phase, then the deployment phase. First match wins.
func (c *Classifier) Classify(ds *Dataset, last *deploy.Record) Result {
	if r := c.DataQuality(ds); r.State.IsIncident() {
		return r
	}
	if r := c.Deployment(last); r.State.IsIncident() {
		return r
	}
	return Result{State: StateNone, Reason: reasonNoIssues}
}

// ClassifyFiles loads the dataset at path and classifies it together with last.
func (c *Classifier) ClassifyFiles(datasetPath string, last *deploy.Record) Result {
	if r := c.DataQualityFile(datasetPath); r.State.IsIncident() {
		return r
	}
	if r := c.Deployment(last); r.State.IsIncident() {
		return r
	}
	return Result{State: StateNone, Reason: reasonNoIssues}
}

// #endregion

// #region data-quality

// DataQualityFile loads and checks a dataset, degrading load errors to StateNone.
func (c *Classifier) DataQualityFile(path string) Result {
	ds, err := LoadDataset(path)
	if err != nil {
		return none(PhaseData, fmt.Sprintf("dataset unavailable: %v", err))
	}
	return c.DataQuality(ds)
}

// DataQuality checks the dataset against the anomaly thresholds for its kind.
func (c *Classifier) DataQuality(ds *Dataset) Result {
	if ds == nil {
		return none(PhaseData, "no dataset supplied")
	}
	if ds.Len() == 0 {
		return none(PhaseData, "dataset has no rows")
	}

	switch ds.Kind() {
	case KindScores:
		return c.checkScores(ds)
	case KindHealth:
		return c.checkHealth(ds)
	}
	return none(PhaseData, "dataset schema not recognised")
}

func (c *Classifier) checkScores(ds *Dataset) Result {
	scores := ds.Floats(ColScore)
	if len(scores) == 0 {
		return none(PhaseData, "score column has no numeric values")
	}
	avg := mean(scores)
	if avg < c.th.LowScoreAvg {
		return Result{
			State:    StateAnomalyScore,
			Reason:   fmt.Sprintf("Low student performance (avg=%.2f)", avg),
			Phase:    PhaseData,
			Observed: avg,
		}
	}
	return Result{State: StateNone, Reason: reasonNoIssues, Phase: PhaseData, Observed: avg}
}

func (c *Classifier) checkHealth(ds *Dataset) Result {
	hr, ok := ds.LastFloat(ColHeartRate)
	if !ok {
		hr = 0
	}
	if hr > c.th.HighHeartRate {
		return Result{
			State:    StateAnomalyHealth,
			Reason:   fmt.Sprintf("High heart rate detected (%g).", hr),
			Phase:    PhaseData,
			Observed: hr,
		}
	}

	o2, ok := ds.LastFloat(ColOxygenLevel)
	if !ok {
		o2 = 100
	}
	if o2 < c.th.LowOxygenLevel {
		return Result{
			State:    StateAnomalyHealth,
			Reason:   fmt.Sprintf("Low oxygen detected (%g).", o2),
			Phase:    PhaseData,
			Observed: o2,
		}
	}
	return Result{State: StateNone, Reason: reasonNoIssues, Phase: PhaseData}
}

// #endregion

// #region deployment

// Deployment checks the most recent deployment record.
func (c *Classifier) Deployment(last *deploy.Record) Result {
	if last == nil {
		return none(PhaseDeployment, "no deployment record")
	}
	if last.Status == deploy.StatusFailure {
		return Result{
			State:    StateDeploymentFailure,
			Reason:   reasonDeploymentFailed,
			Phase:    PhaseDeployment,
			Observed: last.ResponseTimeMs,
		}
	}
	if last.ResponseTimeMs > c.th.LatencyMs {
		return Result{
			State:    StateLatencyIssue,
			Reason:   fmt.Sprintf("High latency detected: %.2f ms.", last.ResponseTimeMs),
			Phase:    PhaseDeployment,
			Observed: last.ResponseTimeMs,
		}
	}
	return Result{State: StateNone, Reason: reasonNoIssues, Phase: PhaseDeployment, Observed: last.ResponseTimeMs}
}

// #endregion

// #region helpers

func none(phase Phase, reason string) Result {
	return Result{State: StateNone, Reason: reason, Phase: phase}
}

// #endregion
