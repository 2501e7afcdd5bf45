package policy

// #region imports
import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/deploy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/feedback"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/remediation"
)

// #endregion

// #region config

// Mode selects the update rule.
type Mode string

const (
	// ModeSingle treats every incident as terminal: Q += α(r − Q).
	ModeSingle Mode = "single"
	// ModeChained bootstraps from the next incident of the cycle: Q += α(r + γ·max Q(next) − Q).
	ModeChained Mode = "chained"
)

// ParseMode accepts single or chained; empty means single.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSingle:
		return ModeSingle, nil
	case ModeChained:
		return ModeChained, nil
	}
	return "", fmt.Errorf("unknown policy mode %q (want single|chained)", s)
}

// Config holds the learning hyperparameters.
type Config struct {
	Alpha     float64
	Epsilon   float64
	Gamma     float64
	Mode      Mode
	TrainMode bool
}

// DefaultConfig returns α=0.1, ε=0.1, γ=0.9 in single mode.
func DefaultConfig() Config {
	return Config{Alpha: 0.1, Epsilon: 0.1, Gamma: 0.9, Mode: ModeSingle}
}

// Selection records how an action was picked.
type Selection string

const (
	SelectionForced  Selection = "forced"
	SelectionExplore Selection = "explore"
	SelectionExploit Selection = "exploit"
	SelectionRandom  Selection = "random"
)

// #endregion

// #region planner

// Planner picks a remediation for a state key.
type Planner interface {
	Choose(state string) (remediation.Action, Selection)
	Learns() bool
}

// RandomPlanner chooses uniformly and never learns.
type RandomPlanner struct {
	rng     *rand.Rand
	actions []remediation.Action
}

// NewRandomPlanner creates a uniform planner over the declared actions.
func NewRandomPlanner(rng *rand.Rand) *RandomPlanner {
	return &RandomPlanner{rng: rng, actions: remediation.Actions}
}

// Choose implements Planner.
func (p *RandomPlanner) Choose(string) (remediation.Action, Selection) {
	return p.actions[p.rng.IntN(len(p.actions))], SelectionRandom
}

// Learns implements Planner.
func (p *RandomPlanner) Learns() bool { return false }

// #endregion

// #region engine

// PerformanceLog receives the shaped reward of every update.
type PerformanceLog interface {
	Log(state, action string, reward float64) error
}

// Step describes one applied update.
type Step struct {
	State  string
	Action remediation.Action
	Reward float64
	Next   string // successor state key; empty = terminal
	Before float64
	After  float64
}

// Engine is the only writer of its QTable.
type Engine struct {
	cfg    Config
	table  *QTable
	rng    *rand.Rand
	perf   PerformanceLog // nil = no performance ledger
	logger *slog.Logger
}

// NewEngine creates an engine over table.
func NewEngine(table *QTable, cfg Config, rng *rand.Rand, perf PerformanceLog, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSingle
	}
	return &Engine{cfg: cfg, table: table, rng: rng, perf: perf, logger: logger}
}

// Table returns the engine's table. Callers must treat it as read-only.
func (e *Engine) Table() *QTable { return e.table }

// Config returns the active hyperparameters.
func (e *Engine) Config() Config { return e.cfg }

// Learns implements Planner.
func (e *Engine) Learns() bool { return true }

// #endregion

// #region choose

// Choose picks an action for state. Training mode forces untried (zero-valued)
// actions first; otherwise ε-greedy with ties going to the first declared action.
func (e *Engine) Choose(state string) (remediation.Action, Selection) {
	e.table.Ensure(state)
	actions := e.table.Actions()

	if e.cfg.TrainMode {
		var untried []remediation.Action
		for _, a := range actions {
			if e.table.Get(state, a) == 0 {
				untried = append(untried, a)
			}
		}
		if len(untried) > 0 {
			a := untried[e.rng.IntN(len(untried))]
			e.logger.Debug("training: forcing untried action", "state", state, "action", string(a))
			return a, SelectionForced
		}
	}

	if e.rng.Float64() < e.cfg.Epsilon {
		a := actions[e.rng.IntN(len(actions))]
		e.logger.Debug("exploring", "state", state, "action", string(a))
		return a, SelectionExplore
	}
	a := e.table.Best(state)
	e.logger.Debug("exploiting", "state", state, "action", string(a))
	return a, SelectionExploit
}

// #endregion

// #region update

// Update applies Q ← Q + α(r − Q).
func (e *Engine) Update(state string, a remediation.Action, reward float64) Step {
	return e.apply(state, a, reward, "", false)
}

// UpdateChained applies Q ← Q + α(r + γ·max Q(next) − Q). An empty next is terminal.
func (e *Engine) UpdateChained(state string, a remediation.Action, reward float64, next string) Step {
	return e.apply(state, a, reward, next, true)
}

// Apply updates in the configured mode.
func (e *Engine) Apply(state string, a remediation.Action, reward float64, next string) Step {
	if e.cfg.Mode == ModeChained {
		return e.UpdateChained(state, a, reward, next)
	}
	return e.Update(state, a, reward)
}

func (e *Engine) apply(state string, a remediation.Action, reward float64, next string, chained bool) Step {
	e.table.Ensure(state)
	before := e.table.Get(state, a)

	target := reward
	if chained && next != "" {
		target += e.cfg.Gamma * e.table.Max(next)
	}
	after := before + e.cfg.Alpha*(target-before)
	if err := e.table.Set(state, a, after); err != nil {
		e.logger.Error("q-table update rejected", "state", state, "action", string(a), "err", err)
		after = before
	}

	if e.perf != nil {
		if err := e.perf.Log(state, string(a), reward); err != nil {
			e.logger.Error("performance ledger append failed", "err", err)
		}
	}
	e.logger.Info("policy updated",
		"state", state,
		"action", string(a),
		"reward", reward,
		"before", before,
		"after", after,
	)
	if !chained {
		next = ""
	}
	return Step{State: state, Action: a, Reward: reward, Next: next, Before: before, After: after}
}

// #endregion

// #region learn

// Learn shapes the reward of one remediation and applies a terminal update.
func (e *Engine) Learn(state string, a remediation.Action, outcome deploy.Status, v feedback.Value) Step {
	return e.Update(state, a, ShapeReward(outcome, v))
}

// PendingSource yields feedback that arrived after its cycle.
type PendingSource interface {
	Take() (*feedback.Record, error)
}

// ApplyPending consumes the pending rating, if any, and applies exactly one update.
// Returns a nil record when nothing was pending.
func (e *Engine) ApplyPending(src PendingSource) (*feedback.Record, Step, error) {
	if src == nil {
		return nil, Step{}, nil
	}
	rec, err := src.Take()
	if err != nil {
		return nil, Step{}, fmt.Errorf("take pending feedback: %w", err)
	}
	if rec == nil {
		return nil, Step{}, nil
	}
	step := e.Learn(rec.State, rec.Action, rec.Outcome, rec.Value)
	return rec, step, nil
}

// #endregion
