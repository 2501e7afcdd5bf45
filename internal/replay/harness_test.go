package replay

import (
	"testing"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/deploy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/failure"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/feedback"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/policy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/remediation"
)

// helper: empty table over the full state universe.
func emptyTable() *policy.QTable {
	return policy.NewQTable(failure.Keys(), remediation.Actions)
}

// 1. Recorded incidents are applied in order as terminal updates.
func TestReplay_IncidentsAreDirectUpdates(t *testing.T) {
	incidents := []Incident{
		{State: "latency_issue_UP", Action: remediation.ActionAdjust, Outcome: deploy.StatusSuccess, Feedback: feedback.ValueAccepted},
		{State: "latency_issue_UP", Action: remediation.ActionAdjust, Outcome: deploy.StatusSuccess, Feedback: feedback.ValueAccepted},
	}
	cfg := DefaultReplayConfig()
	cfg.Episodes = 0

	res := Replay(emptyTable(), incidents, nil, cfg)

	if len(res.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(res.Steps))
	}
	want := 0.3 + 0.1*(3-0.3)
	if got := res.Table.Get("latency_issue_UP", remediation.ActionAdjust); abs(got-want) > 1e-12 {
		t.Errorf("Q = %v, want %v", got, want)
	}
	if res.Best["latency_issue_UP"] != remediation.ActionAdjust {
		t.Errorf("best = %s", res.Best["latency_issue_UP"])
	}
}

// 2. The start table is never mutated.
func TestReplay_StartTableUntouched(t *testing.T) {
	start := emptyTable()
	incidents := []Incident{{State: "anomaly_score_UP", Action: remediation.ActionRetry, Outcome: deploy.StatusFailure}}
	Replay(start, incidents, nil, DefaultReplayConfig())
	if got := start.Get("anomaly_score_UP", remediation.ActionRetry); got != 0 {
		t.Errorf("start table changed: %v", got)
	}
}

// 3. Same seed, same run.
func TestReplay_Deterministic(t *testing.T) {
	scripts := []Script{{
		State:    "deployment_failure_UP",
		Outcomes: map[remediation.Action]deploy.Status{remediation.ActionRetry: deploy.StatusSuccess},
	}}
	cfg := DefaultReplayConfig()
	cfg.Episodes = 40
	cfg.Policy.Epsilon = 0.3

	a := Replay(emptyTable(), nil, scripts, cfg)
	b := Replay(emptyTable(), nil, scripts, cfg)
	if len(a.Steps) != len(b.Steps) {
		t.Fatalf("step counts differ: %d vs %d", len(a.Steps), len(b.Steps))
	}
	for i := range a.Steps {
		if a.Steps[i] != b.Steps[i] {
			t.Fatalf("step %d differs: %+v vs %+v", i, a.Steps[i], b.Steps[i])
		}
	}
}

// 4. Chained mode links each script to the next one in the episode.
func TestReplay_ChainedSuccessors(t *testing.T) {
	scripts := []Script{
		{State: "anomaly_score_UP", Outcomes: map[remediation.Action]deploy.Status{remediation.ActionRetry: deploy.StatusSuccess}},
		{State: "deployment_failure_UP", Outcomes: map[remediation.Action]deploy.Status{remediation.ActionRetry: deploy.StatusSuccess}},
	}
	cfg := DefaultReplayConfig()
	cfg.Episodes = 1
	cfg.Policy.Epsilon = 0
	cfg.Policy.Mode = policy.ModeChained

	res := Replay(emptyTable(), nil, scripts, cfg)

	if len(res.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(res.Steps))
	}
	if res.Steps[0].Next != "deployment_failure_UP" {
		t.Errorf("first successor = %q", res.Steps[0].Next)
	}
	if res.Steps[1].Next != "" {
		t.Errorf("last step should be terminal, got %q", res.Steps[1].Next)
	}
}

// 5. Unscripted actions fail and are rejected.
func TestScript_DefaultAnswer(t *testing.T) {
	s := Script{State: "latency_issue_UP", Outcomes: map[remediation.Action]deploy.Status{remediation.ActionAdjust: deploy.StatusSuccess}}
	out, v := s.answer(remediation.ActionRestore)
	if out != deploy.StatusFailure || v != feedback.ValueRejected {
		t.Errorf("answer(restore) = %s/%s", out, v)
	}
	out, v = s.answer(remediation.ActionAdjust)
	if out != deploy.StatusSuccess || v != feedback.ValueAccepted {
		t.Errorf("answer(adjust) = %s/%s", out, v)
	}
}

// 6. Summary counts rewards by sign.
func TestSummarize(t *testing.T) {
	res := &Result{Steps: []policy.Step{
		{State: "a_UP", Reward: 3},
		{State: "a_UP", Reward: -1},
		{State: "b_DOWN", Reward: 0},
	}}
	s := Summarize(res)
	if s.Updates != 3 || s.Positive != 1 || s.Negative != 1 || s.StatesTried != 2 {
		t.Errorf("unexpected summary %+v", s)
	}
	if abs(s.MeanReward-2.0/3) > 1e-12 {
		t.Errorf("mean = %v", s.MeanReward)
	}
}
