package feedback

// #region imports
import (
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/deploy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/failure"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/remediation"
)

// #endregion

// #region source

// Source identifies who produced a rating.
type Source string

const (
	SourceUser      Source = "user"
	SourceSimulated Source = "simulated"
)

// ParseSource accepts "user" or "simulated".
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceUser:
		return SourceUser, nil
	case SourceSimulated:
		return SourceSimulated, nil
	}
	return "", fmt.Errorf("unknown feedback source %q", s)
}

// #endregion

// #region value

// Value is a rating of a remediation.
type Value string

const (
	ValueAccepted Value = "accepted"
	ValueRejected Value = "rejected"
	ValuePositive Value = "positive"
	ValueNeutral  Value = "neutral"
	ValueNegative Value = "negative"
)

var values = []Value{ValueAccepted, ValueRejected, ValuePositive, ValueNeutral, ValueNegative}

// ParseValue rejects anything outside the rating vocabulary.
func ParseValue(s string) (Value, error) {
	v := Value(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range values {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown feedback value %q", s)
}

// #endregion

// #region record

// Record is one rating of a (state, action, outcome) triple.
type Record struct {
	Timestamp time.Time
	State     string
	Action    remediation.Action
	Outcome   deploy.Status
	Source    Source
	Value     Value
}

// fields renders the record in channel column order.
func (r Record) fields() []string {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return []string{
		ts.Format(time.RFC3339Nano),
		r.State,
		string(r.Action),
		string(r.Outcome),
		string(r.Source),
		string(r.Value),
	}
}

// parseRecord validates a channel row at the boundary.
func parseRecord(row []string) (Record, error) {
	if len(row) < 6 {
		return Record{}, fmt.Errorf("feedback row has %d fields, want 6", len(row))
	}
	var rec Record
	if ts, err := time.Parse(time.RFC3339Nano, row[0]); err == nil {
		rec.Timestamp = ts
	}
	rec.State = strings.TrimSpace(row[1])
	if _, _, err := failure.SplitKey(rec.State); err != nil {
		return Record{}, err
	}
	action, err := remediation.ParseAction(row[2])
	if err != nil {
		return Record{}, err
	}
	outcome, err := deploy.ParseStatus(row[3])
	if err != nil {
		return Record{}, err
	}
	source, err := ParseSource(row[4])
	if err != nil {
		return Record{}, err
	}
	value, err := ParseValue(row[5])
	if err != nil {
		return Record{}, err
	}
	rec.Action, rec.Outcome, rec.Source, rec.Value = action, outcome, source, value
	return rec, nil
}

// #endregion
