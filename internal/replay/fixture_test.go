package replay

import (
	"path/filepath"
	"strings"
	"testing"
)

// #region fixture-tests

// TestFixture_RecoveryTraining runs the scripted training fixture and checks
// the greedy action per state. Catches drift in reward shaping or selection.
func TestFixture_RecoveryTraining(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "recovery_training.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	res, err := f.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, msg := range f.Check(res) {
		t.Error(msg)
	}
	if res.Selections["forced"] == 0 {
		t.Error("training fixture should force untried actions")
	}
}

// TestFixture_RecordedIncidents replays exported incidents without exploration.
func TestFixture_RecordedIncidents(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "recorded_incidents.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	res, err := f.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, msg := range f.Check(res) {
		t.Error(msg)
	}
	if len(res.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(res.Steps))
	}
	if got := res.Table.Get("anomaly_health_DOWN", "restore_previous_version"); abs(got-0.35) > 1e-12 {
		t.Errorf("restore Q = %v, want 0.35", got)
	}
}

func TestFixture_RejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name string
		f    Fixture
		want string
	}{
		{"bad mode", Fixture{Config: FixtureConfig{Mode: "double"}}, "policy mode"},
		{"bad state", Fixture{Incidents: []FixtureIncident{{State: "meltdown", Action: "retry_deployment", Outcome: "success"}}}, "incident 0"},
		{"bad action", Fixture{Incidents: []FixtureIncident{{State: "latency_issue_UP", Action: "reboot", Outcome: "success"}}}, "reboot"},
		{"bad feedback", Fixture{Scripts: []FixtureScript{{
			State:    "latency_issue_UP",
			Outcomes: map[string]string{"retry_deployment": "success"},
			Feedback: map[string]string{"retry_deployment": "meh"},
		}}}, "meh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.f.Run()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Run() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestFixture_SaveLoadKeepsExpectations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "fixture.json")
	f := &Fixture{
		Description: "export",
		Config:      FixtureConfig{Mode: "single"},
		Incidents:   []FixtureIncident{{State: "latency_issue_UP", Action: "adjust_thresholds", Outcome: "success"}},
		Expected:    []FixtureExpected{{State: "latency_issue_UP", Action: "adjust_thresholds"}},
	}
	if err := f.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	res, err := got.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if msgs := got.Check(res); len(msgs) > 0 {
		t.Errorf("unexpected mismatches: %v", msgs)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// #endregion fixture-tests
