package feedback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/deploy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/remediation"
)

func sample() Record {
	return Record{
		Timestamp: time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC),
		State:     "latency_issue_UP",
		Action:    remediation.ActionRetry,
		Outcome:   deploy.StatusSuccess,
		Source:    SourceUser,
		Value:     ValuePositive,
	}
}

func TestChannel_SubmitTake(t *testing.T) {
	ch := NewChannel(filepath.Join(t.TempDir(), "feedback.csv"))

	got, err := ch.Take()
	require.NoError(t, err)
	assert.Nil(t, got, "absent channel is empty")

	require.NoError(t, ch.Submit(sample()))
	pending, err := ch.Pending()
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, sample(), *pending)

	got, err = ch.Take()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ValuePositive, got.Value)

	again, err := ch.Take()
	require.NoError(t, err)
	assert.Nil(t, again, "feedback is consumed at most once")

	b, err := os.ReadFile(ch.Path())
	require.NoError(t, err)
	assert.Equal(t, "timestamp,state,action,outcome,feedback_source,feedback_value\n", string(b))
}

func TestChannel_SubmitOverwrites(t *testing.T) {
	ch := NewChannel(filepath.Join(t.TempDir(), "feedback.csv"))
	first := sample()
	second := sample()
	second.Value = ValueNegative

	require.NoError(t, ch.Submit(first))
	require.NoError(t, ch.Submit(second))

	got, err := ch.Take()
	require.NoError(t, err)
	assert.Equal(t, ValueNegative, got.Value)
}

func TestChannel_MalformedRowIsDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.csv")
	content := "timestamp,state,action,outcome,feedback_source,feedback_value\n" +
		"2026-01-01T00:00:00Z,latency_issue_UP,retry_deployment,success,robot,accepted\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ch := NewChannel(path)
	got, err := ch.Take()
	assert.Error(t, err)
	assert.Nil(t, got)

	got, err = ch.Take()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestChannel_BareStateLabelIsDiscarded(t *testing.T) {
	for _, state := range []string{"latency_issue", "no_failure_UP", ""} {
		path := filepath.Join(t.TempDir(), "feedback.csv")
		content := "timestamp,state,action,outcome,feedback_source,feedback_value\n" +
			"2026-01-01T00:00:00Z," + state + ",retry_deployment,success,user,accepted\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		ch := NewChannel(path)
		got, err := ch.Take()
		assert.Error(t, err, state)
		assert.Nil(t, got, state)

		got, err = ch.Take()
		require.NoError(t, err)
		assert.Nil(t, got, "discarded row must not come back")
	}
}

func TestParseValue(t *testing.T) {
	for _, in := range []string{"accepted", "REJECTED", " positive", "neutral", "negative"} {
		_, err := ParseValue(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseValue("meh")
	assert.Error(t, err)

	_, err = ParseSource("simulated")
	assert.NoError(t, err)
	_, err = ParseSource("oracle")
	assert.Error(t, err)
}

func TestSimulatedRater(t *testing.T) {
	r := Simulated{}
	rec, ok, err := r.Rate(context.Background(), "deployment_failure_UP", remediation.ActionRetry, deploy.StatusSuccess)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ValueAccepted, rec.Value)
	assert.Equal(t, SourceSimulated, rec.Source)

	rec, _, _ = r.Rate(context.Background(), "deployment_failure_UP", remediation.ActionRestore, deploy.StatusFailure)
	assert.Equal(t, ValueRejected, rec.Value)
}

func TestDeferredRater(t *testing.T) {
	_, ok, err := Deferred{}.Rate(context.Background(), "x_UP", remediation.ActionAdjust, deploy.StatusSuccess)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTerminalRater(t *testing.T) {
	var asked string
	r := NewTerminalWith(func(_ context.Context, title, desc string) (bool, error) {
		asked = desc
		return false, nil
	})
	rec, ok, err := r.Rate(context.Background(), "anomaly_score_DOWN", remediation.ActionAdjust, deploy.StatusSuccess)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ValueRejected, rec.Value)
	assert.Equal(t, SourceUser, rec.Source)
	assert.Contains(t, asked, "anomaly_score_DOWN")

	failing := NewTerminalWith(func(context.Context, string, string) (bool, error) {
		return false, errors.New("no tty")
	})
	_, ok, err = failing.Rate(context.Background(), "s", remediation.ActionAdjust, deploy.StatusSuccess)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestNewByKind(t *testing.T) {
	assert.IsType(t, Simulated{}, New(KindSimulated))
	assert.IsType(t, Deferred{}, New(KindDeferred))
	assert.IsType(t, &Terminal{}, New(KindTerminal))
	_, err := ParseKind("oracle")
	assert.Error(t, err)
}
