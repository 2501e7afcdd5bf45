package replay

import (
	"log/slog"
	"math/rand/v2"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/deploy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/feedback"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/policy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/remediation"
)

// #region types
// Incident is one recorded remediation applied as a direct update.
type Incident struct {
	State    string
	Action   remediation.Action
	Outcome  deploy.Status
	Feedback feedback.Value // empty = base reward only
}

// Script answers the engine's choices for one state.
type Script struct {
	State    string
	Outcomes map[remediation.Action]deploy.Status
	Feedback map[remediation.Action]feedback.Value
}

func (s Script) answer(a remediation.Action) (deploy.Status, feedback.Value) {
	out, ok := s.Outcomes[a]
	if !ok {
		out = deploy.StatusFailure
	}
	v, ok := s.Feedback[a]
	if !ok {
		v = feedback.ValueRejected
		if out == deploy.StatusSuccess {
			v = feedback.ValueAccepted
		}
	}
	return out, v
}

// ReplayConfig bundles the engine config with the run shape.
type ReplayConfig struct {
	Policy   policy.Config
	Seed     uint64
	Episodes int
}

// DefaultReplayConfig returns the engine defaults with 100 seeded episodes.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{Policy: policy.DefaultConfig(), Seed: 1, Episodes: 100}
}

// Result captures the outcome of a replay run.
type Result struct {
	Table      *policy.QTable
	Best       map[string]remediation.Action
	Steps      []policy.Step
	Selections map[policy.Selection]int
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Updates     int
	MeanReward  float64
	Positive    int
	Negative    int
	Selections  map[policy.Selection]int
	StatesTried int
}

// #endregion types

// #region replay
// Replay applies the recorded incidents in order, then runs the scripted episodes
// through a fresh engine over a copy of start. Operates entirely in-memory.
// In chained mode each script's successor is the next script of the episode.
func Replay(start *policy.QTable, incidents []Incident, scripts []Script, cfg ReplayConfig) *Result {
	table := start.Clone()
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	engine := policy.NewEngine(table, cfg.Policy, rng, nil, slog.New(slog.DiscardHandler))

	res := &Result{Table: table, Best: map[string]remediation.Action{}, Selections: map[policy.Selection]int{}}

	for _, in := range incidents {
		res.Steps = append(res.Steps, engine.Learn(in.State, in.Action, in.Outcome, in.Feedback))
	}

	for ep := 0; ep < cfg.Episodes; ep++ {
		for i, s := range scripts {
			a, sel := engine.Choose(s.State)
			res.Selections[sel]++
			out, v := s.answer(a)
			next := ""
			if i+1 < len(scripts) {
				next = scripts[i+1].State
			}
			res.Steps = append(res.Steps, engine.Apply(s.State, a, policy.ShapeReward(out, v), next))
		}
	}

	for _, s := range table.States() {
		res.Best[s] = table.Best(s)
	}
	return res
}

// Summarize computes aggregate stats from a replay result.
func Summarize(res *Result) Summary {
	s := Summary{Updates: len(res.Steps), Selections: res.Selections}
	tried := map[string]bool{}
	var total float64
	for _, st := range res.Steps {
		total += st.Reward
		tried[st.State] = true
		switch {
		case st.Reward > 0:
			s.Positive++
		case st.Reward < 0:
			s.Negative++
		}
	}
	if s.Updates > 0 {
		s.MeanReward = total / float64(s.Updates)
	}
	s.StatesTried = len(tried)
	return s
}

// #endregion replay
