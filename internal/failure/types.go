package failure

// #region imports
import (
	"fmt"
	"strings"
)

// #endregion

// #region state

// State is the classified failure category of one pass.
type State string

const (
	StateNone              State = "no_failure"
	StateDeploymentFailure State = "deployment_failure"
	StateLatencyIssue      State = "latency_issue"
	StateAnomalyScore      State = "anomaly_score"
	StateAnomalyHealth     State = "anomaly_health"
)

// Incidents lists the categories that can reach the policy, in declaration order.
var Incidents = []State{
	StateDeploymentFailure,
	StateLatencyIssue,
	StateAnomalyScore,
	StateAnomalyHealth,
}

// ParseState rejects anything outside the declared categories.
func ParseState(s string) (State, error) {
	st := State(strings.TrimSpace(s))
	if st == StateNone {
		return st, nil
	}
	for _, known := range Incidents {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown failure state %q", s)
}

// IsIncident reports whether the state requires remediation.
func (s State) IsIncident() bool {
	return s != StateNone && s != ""
}

// #endregion

// #region uptime

// Uptime is the service status tracked across incidents.
type Uptime string

const (
	UptimeUp   Uptime = "UP"
	UptimeDown Uptime = "DOWN"
)

// ParseUptime accepts "UP" or "DOWN", case-insensitively.
func ParseUptime(s string) (Uptime, error) {
	switch Uptime(strings.ToUpper(strings.TrimSpace(s))) {
	case UptimeUp:
		return UptimeUp, nil
	case UptimeDown:
		return UptimeDown, nil
	}
	return "", fmt.Errorf("unknown uptime status %q", s)
}

// #endregion

// #region state-key

// Key composes the policy state key "<state>_<uptime>".
// uptime must be the status observed before the incident is applied.
func Key(s State, uptime Uptime) string {
	return string(s) + "_" + string(uptime)
}

// SplitKey is the inverse of Key. Only incident categories form valid keys.
func SplitKey(key string) (State, Uptime, error) {
	i := strings.LastIndex(key, "_")
	if i <= 0 {
		return "", "", fmt.Errorf("state key %q has no uptime suffix", key)
	}
	st, err := ParseState(key[:i])
	if err != nil {
		return "", "", err
	}
	if !st.IsIncident() {
		return "", "", fmt.Errorf("state key %q names no incident", key)
	}
	up, err := ParseUptime(key[i+1:])
	if err != nil {
		return "", "", err
	}
	return st, up, nil
}

// Keys returns the declared state universe: every incident category under each uptime.
func Keys() []string {
	keys := make([]string, 0, len(Incidents)*2)
	for _, s := range Incidents {
		keys = append(keys, Key(s, UptimeUp), Key(s, UptimeDown))
	}
	return keys
}

// #endregion

// #region phase-result

// Phase identifies which classification pass produced a result.
type Phase string

const (
	PhaseData       Phase = "data_quality"
	PhaseDeployment Phase = "deployment"
)

// Result is the outcome of a classification pass.
type Result struct {
	State    State
	Reason   string
	Phase    Phase
	Observed float64 // the value that tripped (or was checked against) a threshold
}

// #endregion
