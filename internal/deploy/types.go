package deploy

// #region imports
import (
	"context"
	"fmt"
	"strings"
)

// #endregion

// #region status

// Status is the outcome of a deployment or remediation attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// ParseStatus accepts "success" or "failure", case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusSuccess:
		return StatusSuccess, nil
	case StatusFailure:
		return StatusFailure, nil
	}
	return "", fmt.Errorf("unknown deployment status %q", s)
}

// #endregion

// #region failure-mode

// FailureMode selects which synthetic failure a deployment should exhibit.
type FailureMode string

const (
	FailureNone    FailureMode = ""
	FailureCrash   FailureMode = "crash"
	FailureLatency FailureMode = "latency"
)

// ParseFailureMode accepts "", "crash" or "latency".
func ParseFailureMode(s string) (FailureMode, error) {
	switch FailureMode(strings.ToLower(strings.TrimSpace(s))) {
	case FailureNone:
		return FailureNone, nil
	case FailureCrash:
		return FailureCrash, nil
	case FailureLatency:
		return FailureLatency, nil
	}
	return "", fmt.Errorf("unknown failure type %q (want crash|latency)", s)
}

// #endregion

// #region request-record

// Request describes one deployment attempt.
// Failure is only injected when ShouldFail is set and Failure is non-empty.
type Request struct {
	ShouldFail bool
	Failure    FailureMode
}

func (r Request) injected() FailureMode {
	if !r.ShouldFail {
		return FailureNone
	}
	return r.Failure
}

// Record is the observable result of a deployment.
type Record struct {
	Status         Status
	ResponseTimeMs float64
}

// #endregion

// #region trigger

// Trigger starts a deployment and blocks until it completes or is considered crashed.
type Trigger interface {
	Deploy(ctx context.Context, req Request) Record
}

// #endregion
