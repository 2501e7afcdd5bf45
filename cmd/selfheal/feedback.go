package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/deploy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/failure"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/feedback"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/remediation"
)

// #region feedback-cmd
var (
	feedbackCmd = &cobra.Command{
		Use:   "feedback",
		Short: "Rate a remediation; the next learned cycle applies it",
		Long: `Writes one pending rating to the feedback channel. Any earlier unconsumed rating
is replaced. The next "selfheal run --policy learned" applies it before doing anything else.`,
		Args: cobra.NoArgs,
		RunE: runFeedback,
	}
	fbState   string
	fbAction  string
	fbOutcome string
	fbValue   string
	fbSource  string
)

func init() {
	f := feedbackCmd.Flags()
	f.StringVar(&fbState, "state", "", "compound state key, e.g. latency_issue_DOWN")
	f.StringVar(&fbAction, "action", "", "retry_deployment|restore_previous_version|adjust_thresholds")
	f.StringVar(&fbOutcome, "outcome", "", "success|failure")
	f.StringVar(&fbValue, "value", "", "accepted|rejected|positive|neutral|negative")
	f.StringVar(&fbSource, "source", string(feedback.SourceUser), "user|simulated")
	for _, name := range []string{"state", "action", "outcome", "value"} {
		_ = feedbackCmd.MarkFlagRequired(name)
	}
}

func runFeedback(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	rec, err := parseFeedback(fbState, fbAction, fbOutcome, fbValue, fbSource)
	if err != nil {
		return err
	}
	ch := feedback.NewChannel(cfg.Paths.Feedback)
	if err := ch.Submit(rec); err != nil {
		return err
	}
	logger.Info("feedback queued", "path", ch.Path(), "state", rec.State, "action", string(rec.Action), "value", string(rec.Value))
	fmt.Fprintf(cmd.OutOrStdout(), "queued %s for %s/%s\n", rec.Value, rec.State, rec.Action)
	return nil
}

// parseFeedback validates every field at the boundary.
func parseFeedback(state, action, outcome, value, source string) (feedback.Record, error) {
	if _, _, err := failure.SplitKey(state); err != nil {
		return feedback.Record{}, err
	}
	a, err := remediation.ParseAction(action)
	if err != nil {
		return feedback.Record{}, err
	}
	o, err := deploy.ParseStatus(outcome)
	if err != nil {
		return feedback.Record{}, err
	}
	v, err := feedback.ParseValue(value)
	if err != nil {
		return feedback.Record{}, err
	}
	src, err := feedback.ParseSource(source)
	if err != nil {
		return feedback.Record{}, err
	}
	return feedback.Record{Timestamp: time.Now(), State: state, Action: a, Outcome: o, Source: src, Value: v}, nil
}
// #endregion feedback-cmd
