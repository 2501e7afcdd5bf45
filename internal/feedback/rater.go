package feedback

// #region imports
import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/deploy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/remediation"
)

// #endregion

// #region rater

// Rater judges a remediation right after it ran.
// ok is false when no rating is available yet and the update must wait for the channel.
type Rater interface {
	Rate(ctx context.Context, state string, action remediation.Action, outcome deploy.Status) (rec Record, ok bool, err error)
}

// Kind selects a rater implementation by name.
type Kind string

const (
	KindSimulated Kind = "simulated"
	KindTerminal  Kind = "terminal"
	KindDeferred  Kind = "deferred"
)

// ParseKind accepts simulated, terminal or deferred.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindSimulated, KindTerminal, KindDeferred:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown rater %q (want simulated|terminal|deferred)", s)
}

// New builds the rater for kind.
func New(kind Kind) Rater {
	switch kind {
	case KindTerminal:
		return NewTerminal()
	case KindDeferred:
		return Deferred{}
	}
	return Simulated{}
}

// #endregion

// #region simulated

// Simulated accepts successes and rejects failures.
type Simulated struct{}

// Rate implements Rater.
func (Simulated) Rate(_ context.Context, state string, action remediation.Action, outcome deploy.Status) (Record, bool, error) {
	v := ValueRejected
	if outcome == deploy.StatusSuccess {
		v = ValueAccepted
	}
	return Record{
		Timestamp: time.Now(),
		State:     state,
		Action:    action,
		Outcome:   outcome,
		Source:    SourceSimulated,
		Value:     v,
	}, true, nil
}

// #endregion

// #region deferred

// Deferred never rates inline; a single late rating can arrive through a Channel.
type Deferred struct{}

// Rate implements Rater.
func (Deferred) Rate(context.Context, string, remediation.Action, deploy.Status) (Record, bool, error) {
	return Record{}, false, nil
}

// #endregion

// #region terminal

// ConfirmFunc asks a yes/no question.
type ConfirmFunc func(ctx context.Context, title, description string) (bool, error)

// Terminal asks the operator to accept or reject each remediation.
type Terminal struct {
	confirm ConfirmFunc
}

// NewTerminal creates a rater prompting on the controlling terminal.
func NewTerminal() *Terminal {
	return &Terminal{confirm: huhConfirm}
}

// NewTerminalWith creates a rater with a custom prompt.
func NewTerminalWith(confirm ConfirmFunc) *Terminal {
	return &Terminal{confirm: confirm}
}

// Rate implements Rater.
func (t *Terminal) Rate(ctx context.Context, state string, action remediation.Action, outcome deploy.Status) (Record, bool, error) {
	desc := fmt.Sprintf("Problem detected: %s\nChosen action: %s\nSystem outcome: %s", state, action, outcome)
	accepted, err := t.confirm(ctx, "Accept this action as a good solution for this problem?", desc)
	if err != nil {
		return Record{}, false, fmt.Errorf("terminal feedback: %w", err)
	}
	v := ValueRejected
	if accepted {
		v = ValueAccepted
	}
	return Record{
		Timestamp: time.Now(),
		State:     state,
		Action:    action,
		Outcome:   outcome,
		Source:    SourceUser,
		Value:     v,
	}, true, nil
}

func huhConfirm(ctx context.Context, title, description string) (bool, error) {
	var accepted bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Description(description).
			Affirmative("Accept").
			Negative("Reject").
			Value(&accepted),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return false, err
	}
	return accepted, nil
}

// #endregion
