package policy

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/deploy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/failure"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/feedback"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/remediation"
)

// #region helpers
type perfRow struct {
	state, action string
	reward        float64
}

type memPerf struct{ rows []perfRow }

func (m *memPerf) Log(state, action string, reward float64) error {
	m.rows = append(m.rows, perfRow{state, action, reward})
	return nil
}

type stubPending struct {
	rec *feedback.Record
}

func (s *stubPending) Take() (*feedback.Record, error) {
	r := s.rec
	s.rec = nil
	return r, nil
}

func newEngine(cfg Config) (*Engine, *memPerf) {
	perf := &memPerf{}
	q := NewQTable(failure.Keys(), remediation.Actions)
	return NewEngine(q, cfg, rand.New(rand.NewPCG(7, 11)), perf, nil), perf
}

// #endregion helpers

func TestShapeReward(t *testing.T) {
	tests := []struct {
		outcome deploy.Status
		value   feedback.Value
		want    float64
	}{
		{deploy.StatusSuccess, "", 1},
		{deploy.StatusFailure, "", -1},
		{deploy.StatusSuccess, feedback.ValueAccepted, 3},
		{deploy.StatusFailure, feedback.ValueAccepted, -1},
		{deploy.StatusSuccess, feedback.ValueRejected, -1},
		{deploy.StatusFailure, feedback.ValueRejected, -1},
		{deploy.StatusSuccess, feedback.ValuePositive, 3},
		{deploy.StatusFailure, feedback.ValuePositive, 1},
		{deploy.StatusSuccess, feedback.ValueNeutral, 1},
		{deploy.StatusSuccess, feedback.ValueNegative, 0},
		{deploy.StatusFailure, feedback.ValueNegative, -2},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome)+"/"+string(tt.value), func(t *testing.T) {
			assert.Equal(t, tt.want, ShapeReward(tt.outcome, tt.value))
		})
	}
}

func TestUpdate_ConvergesWithoutOvershoot(t *testing.T) {
	e, _ := newEngine(DefaultConfig())
	const state = "deployment_failure_UP"
	prev := 0.0
	for i := 0; i < 200; i++ {
		step := e.Update(state, remediation.ActionRetry, 3)
		require.Greater(t, step.After, prev, "iteration %d", i)
		require.LessOrEqual(t, step.After, 3.0, "iteration %d", i)
		prev = step.After
	}
	assert.InDelta(t, 3.0, prev, 1e-6)
}

func TestUpdate_FirstStepIsAlphaTimesReward(t *testing.T) {
	e, perf := newEngine(DefaultConfig())
	step := e.Update("latency_issue_UP", remediation.ActionAdjust, 3)
	assert.InDelta(t, 0.3, step.After, 1e-12)
	assert.Equal(t, 0.0, step.Before)
	require.Len(t, perf.rows, 1)
	assert.Equal(t, perfRow{"latency_issue_UP", "adjust_thresholds", 3}, perf.rows[0])
}

func TestUpdate_AddsUnknownState(t *testing.T) {
	e, _ := newEngine(DefaultConfig())
	e.Update("brand_new_UP", remediation.ActionRetry, 1)
	assert.True(t, e.Table().Has("brand_new_UP"))
}

func TestUpdateChained(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeChained
	e, _ := newEngine(cfg)
	require.NoError(t, e.Table().Set("latency_issue_DOWN", remediation.ActionRestore, 2))

	step := e.UpdateChained("deployment_failure_UP", remediation.ActionRetry, 1, "latency_issue_DOWN")
	assert.InDelta(t, 0.28, step.After, 1e-12)
	assert.Equal(t, "latency_issue_DOWN", step.Next)

	terminal := e.Apply("anomaly_score_UP", remediation.ActionAdjust, 1, "")
	assert.InDelta(t, 0.1, terminal.After, 1e-12)
}

func TestApply_SingleModeIgnoresNext(t *testing.T) {
	e, _ := newEngine(DefaultConfig())
	require.NoError(t, e.Table().Set("latency_issue_DOWN", remediation.ActionRestore, 2))
	step := e.Apply("deployment_failure_UP", remediation.ActionRetry, 1, "latency_issue_DOWN")
	assert.InDelta(t, 0.1, step.After, 1e-12)
	assert.Empty(t, step.Next)
}

func TestLearn_AcceptedSuccess(t *testing.T) {
	e, perf := newEngine(DefaultConfig())
	step := e.Learn("anomaly_health_UP", remediation.ActionRestore, deploy.StatusSuccess, feedback.ValueAccepted)
	assert.Equal(t, 3.0, step.Reward)
	assert.InDelta(t, 0.3, step.After, 1e-12)
	assert.Equal(t, 3.0, perf.rows[0].reward)
}

func TestLearn_RejectedForcesMinusOne(t *testing.T) {
	e, _ := newEngine(DefaultConfig())
	step := e.Learn("anomaly_health_UP", remediation.ActionAdjust, deploy.StatusSuccess, feedback.ValueRejected)
	assert.Equal(t, -1.0, step.Reward)
	assert.InDelta(t, -0.1, step.After, 1e-12)
}

func TestChoose_TrainingRestrictsToUntried(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrainMode = true
	cfg.Epsilon = 1 // would explore everything if training did not intervene
	e, _ := newEngine(cfg)
	const state = "latency_issue_UP"
	require.NoError(t, e.Table().Set(state, remediation.ActionRetry, 0.5))
	require.NoError(t, e.Table().Set(state, remediation.ActionRestore, -0.3))

	for i := 0; i < 100; i++ {
		a, sel := e.Choose(state)
		require.Equal(t, remediation.ActionAdjust, a)
		require.Equal(t, SelectionForced, sel)
	}
}

func TestChoose_TrainingSamplesAllUntried(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrainMode = true
	e, _ := newEngine(cfg)
	seen := map[remediation.Action]bool{}
	for i := 0; i < 200; i++ {
		a, _ := e.Choose("anomaly_score_UP")
		seen[a] = true
	}
	assert.Len(t, seen, 3, "uniform choice among untried actions")
}

func TestChoose_TrainingFallsBackWhenAllTried(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrainMode = true
	cfg.Epsilon = 0
	e, _ := newEngine(cfg)
	const state = "anomaly_score_DOWN"
	require.NoError(t, e.Table().Set(state, remediation.ActionRetry, -0.1))
	require.NoError(t, e.Table().Set(state, remediation.ActionRestore, 0.2))
	require.NoError(t, e.Table().Set(state, remediation.ActionAdjust, 0.1))

	a, sel := e.Choose(state)
	assert.Equal(t, remediation.ActionRestore, a)
	assert.Equal(t, SelectionExploit, sel)
}

func TestChoose_ExploitTieBreak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Epsilon = 0
	e, _ := newEngine(cfg)
	a, sel := e.Choose("deployment_failure_DOWN")
	assert.Equal(t, remediation.ActionRetry, a)
	assert.Equal(t, SelectionExploit, sel)
}

func TestChoose_AlwaysExplore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Epsilon = 1
	e, _ := newEngine(cfg)
	for i := 0; i < 20; i++ {
		_, sel := e.Choose("deployment_failure_DOWN")
		require.Equal(t, SelectionExplore, sel)
	}
}

func TestChoose_LazilyAddsState(t *testing.T) {
	e, _ := newEngine(DefaultConfig())
	e.Choose("never_seen_UP")
	assert.True(t, e.Table().Has("never_seen_UP"))
}

func TestApplyPending(t *testing.T) {
	e, perf := newEngine(DefaultConfig())

	rec, _, err := e.ApplyPending(&stubPending{})
	require.NoError(t, err)
	assert.Nil(t, rec, "empty channel is a no-op")
	assert.Empty(t, perf.rows)

	src := &stubPending{rec: &feedback.Record{
		State:   "latency_issue_UP",
		Action:  remediation.ActionRetry,
		Outcome: deploy.StatusSuccess,
		Source:  feedback.SourceUser,
		Value:   feedback.ValueAccepted,
	}}
	rec, step, err := e.ApplyPending(src)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.InDelta(t, 0.3, step.After, 1e-12)

	rec, _, err = e.ApplyPending(src)
	require.NoError(t, err)
	assert.Nil(t, rec, "feedback applies exactly once")
	assert.Len(t, perf.rows, 1)

	rec, _, err = e.ApplyPending(nil)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestApplyPending_BareStateLabelNeverReachesTable(t *testing.T) {
	e, perf := newEngine(DefaultConfig())
	path := filepath.Join(t.TempDir(), "feedback.csv")
	content := "timestamp,state,action,outcome,feedback_source,feedback_value\n" +
		"2026-01-01T00:00:00Z,latency_issue,retry_deployment,success,user,accepted\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rec, _, err := e.ApplyPending(feedback.NewChannel(path))
	assert.Error(t, err)
	assert.Nil(t, rec)
	assert.False(t, e.Table().Has("latency_issue"))
	assert.Empty(t, perf.rows)
	assert.Equal(t, failure.Keys(), e.Table().States())
}

func TestRandomPlanner(t *testing.T) {
	p := NewRandomPlanner(rand.New(rand.NewPCG(1, 2)))
	assert.False(t, p.Learns())
	seen := map[remediation.Action]bool{}
	for i := 0; i < 100; i++ {
		a, sel := p.Choose("x")
		assert.Equal(t, SelectionRandom, sel)
		seen[a] = true
	}
	assert.Len(t, seen, 3)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeSingle, m)
	m, err = ParseMode("chained")
	require.NoError(t, err)
	assert.Equal(t, ModeChained, m)
	_, err = ParseMode("double")
	assert.Error(t, err)
}
