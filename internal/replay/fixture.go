package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/deploy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/failure"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/feedback"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/policy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/remediation"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string                        `json:"description"`
	Config      FixtureConfig                 `json:"config"`
	StartTable  map[string]map[string]float64 `json:"start_table,omitempty"`
	Incidents   []FixtureIncident             `json:"incidents,omitempty"`
	Scripts     []FixtureScript               `json:"scripts,omitempty"`
	Expected    []FixtureExpected             `json:"expected"`
}

// FixtureConfig mirrors policy.Config plus the run shape.
type FixtureConfig struct {
	Alpha    float64 `json:"alpha"`
	Epsilon  float64 `json:"epsilon"`
	Gamma    float64 `json:"gamma"`
	Mode     string  `json:"mode"`
	Train    bool    `json:"train"`
	Seed     uint64  `json:"seed"`
	Episodes int     `json:"episodes"`
}

// FixtureIncident is one recorded remediation, replayed as a direct update.
type FixtureIncident struct {
	State    string `json:"state"`
	Action   string `json:"action"`
	Outcome  string `json:"outcome"`
	Feedback string `json:"feedback,omitempty"`
}

// FixtureScript answers the engine's choices for one state during episodes.
// Actions missing from Outcomes fail; actions missing from Feedback are rated like the simulated rater.
type FixtureScript struct {
	State    string            `json:"state"`
	Outcomes map[string]string `json:"outcomes"`
	Feedback map[string]string `json:"feedback,omitempty"`
}

// FixtureExpected is the greedy action a state must converge to.
type FixtureExpected struct {
	State  string `json:"state"`
	Action string `json:"action"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// Save writes the fixture as indented JSON.
func (f *Fixture) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create fixture dir: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ToReplayConfig converts the fixture config, defaulting unset hyperparameters.
func (fc FixtureConfig) ToReplayConfig() (ReplayConfig, error) {
	mode, err := policy.ParseMode(fc.Mode)
	if err != nil {
		return ReplayConfig{}, err
	}
	cfg := DefaultReplayConfig()
	if fc.Alpha > 0 {
		cfg.Policy.Alpha = fc.Alpha
	}
	if fc.Gamma > 0 {
		cfg.Policy.Gamma = fc.Gamma
	}
	cfg.Policy.Epsilon = fc.Epsilon
	cfg.Policy.Mode = mode
	cfg.Policy.TrainMode = fc.Train
	cfg.Seed = fc.Seed
	cfg.Episodes = fc.Episodes
	return cfg, nil
}

// ToIncident validates a recorded incident at the boundary.
func (fi FixtureIncident) ToIncident() (Incident, error) {
	if _, _, err := failure.SplitKey(fi.State); err != nil {
		return Incident{}, err
	}
	a, err := remediation.ParseAction(fi.Action)
	if err != nil {
		return Incident{}, err
	}
	out, err := deploy.ParseStatus(fi.Outcome)
	if err != nil {
		return Incident{}, err
	}
	var v feedback.Value
	if fi.Feedback != "" {
		if v, err = feedback.ParseValue(fi.Feedback); err != nil {
			return Incident{}, err
		}
	}
	return Incident{State: fi.State, Action: a, Outcome: out, Feedback: v}, nil
}

// ToScript validates a script at the boundary.
func (fs FixtureScript) ToScript() (Script, error) {
	if _, _, err := failure.SplitKey(fs.State); err != nil {
		return Script{}, err
	}
	s := Script{
		State:    fs.State,
		Outcomes: make(map[remediation.Action]deploy.Status, len(fs.Outcomes)),
		Feedback: make(map[remediation.Action]feedback.Value, len(fs.Feedback)),
	}
	for name, o := range fs.Outcomes {
		a, err := remediation.ParseAction(name)
		if err != nil {
			return Script{}, fmt.Errorf("script %s: %w", fs.State, err)
		}
		st, err := deploy.ParseStatus(o)
		if err != nil {
			return Script{}, fmt.Errorf("script %s: %w", fs.State, err)
		}
		s.Outcomes[a] = st
	}
	for name, v := range fs.Feedback {
		a, err := remediation.ParseAction(name)
		if err != nil {
			return Script{}, fmt.Errorf("script %s: %w", fs.State, err)
		}
		val, err := feedback.ParseValue(v)
		if err != nil {
			return Script{}, fmt.Errorf("script %s: %w", fs.State, err)
		}
		s.Feedback[a] = val
	}
	return s, nil
}

// Run converts the whole fixture and replays it.
func (f *Fixture) Run() (*Result, error) {
	cfg, err := f.Config.ToReplayConfig()
	if err != nil {
		return nil, err
	}
	var errs []error
	incidents := make([]Incident, 0, len(f.Incidents))
	for i, fi := range f.Incidents {
		in, err := fi.ToIncident()
		if err != nil {
			errs = append(errs, fmt.Errorf("incident %d: %w", i, err))
			continue
		}
		incidents = append(incidents, in)
	}
	scripts := make([]Script, 0, len(f.Scripts))
	for _, fs := range f.Scripts {
		s, err := fs.ToScript()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		scripts = append(scripts, s)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	start := policy.NewQTable(failure.Keys(), remediation.Actions)
	for state, row := range f.StartTable {
		for name, v := range row {
			a, err := remediation.ParseAction(name)
			if err != nil {
				return nil, fmt.Errorf("start table %s: %w", state, err)
			}
			if err := start.Set(state, a, v); err != nil {
				return nil, fmt.Errorf("start table %s: %w", state, err)
			}
		}
	}
	return Replay(start, incidents, scripts, cfg), nil
}

// Check compares the greedy actions against the expectations and returns one message per mismatch.
func (f *Fixture) Check(res *Result) []string {
	var out []string
	for _, exp := range f.Expected {
		got := res.Best[exp.State]
		if string(got) != exp.Action {
			out = append(out, fmt.Sprintf("%s: expected %s, got %s (row %v)",
				exp.State, exp.Action, got, res.Table.Row(exp.State)))
		}
	}
	return out
}

// #endregion fixture-loader
