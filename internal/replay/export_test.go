package replay

import (
	"testing"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/history"
)

func TestFromHistory_OldestFirstAndSelfConsistent(t *testing.T) {
	newestFirst := []history.Incident{
		{State: "latency_issue_UP", Action: "adjust_thresholds", Outcome: "success", FeedbackValue: "accepted"},
		{State: "latency_issue_UP", Action: "retry_deployment", Outcome: "failure", FeedbackValue: "rejected"},
		{State: "deployment_failure_DOWN", Action: "restore_previous_version", Outcome: "failure"},
	}

	f, err := FromHistory("test", newestFirst, FixtureConfig{Mode: "single"})
	if err != nil {
		t.Fatalf("FromHistory: %v", err)
	}
	if len(f.Incidents) != 3 {
		t.Fatalf("expected 3 incidents, got %d", len(f.Incidents))
	}
	if f.Incidents[0].State != "deployment_failure_DOWN" {
		t.Errorf("first replayed incident = %s, want the oldest", f.Incidents[0].State)
	}
	if len(f.Expected) != 2 {
		t.Fatalf("expected 2 expectations, got %d", len(f.Expected))
	}
	if f.Expected[1].State != "latency_issue_UP" || f.Expected[1].Action != "adjust_thresholds" {
		t.Errorf("unexpected expectation %+v", f.Expected[1])
	}

	res, err := f.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if msgs := f.Check(res); len(msgs) > 0 {
		t.Errorf("exported fixture disagrees with itself: %v", msgs)
	}
}

func TestFromHistory_Empty(t *testing.T) {
	if _, err := FromHistory("empty", nil, FixtureConfig{}); err == nil {
		t.Error("expected an error for an empty history")
	}
}
