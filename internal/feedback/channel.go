package feedback

// #region imports
import (
	"fmt"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/ledger"
)

// #endregion

// #region channel

// Header is the column layout of the pending-feedback file.
var Header = []string{"timestamp", "state", "action", "outcome", "feedback_source", "feedback_value"}

// Channel is a single-slot mailbox for feedback that arrives after a cycle.
// It holds at most one unconsumed row; taking it clears the file to its header.
type Channel struct {
	w *ledger.Writer
}

// NewChannel opens the channel file at path.
func NewChannel(path string) *Channel {
	return &Channel{w: ledger.NewWriter(path, Header)}
}

// Path returns the channel file.
func (c *Channel) Path() string { return c.w.Path() }

// #endregion

// #region submit

// Submit replaces any pending row with rec.
func (c *Channel) Submit(rec Record) error {
	if err := c.w.Replace(rec.fields()); err != nil {
		return fmt.Errorf("submit feedback: %w", err)
	}
	return nil
}

// #endregion

// #region take

// Pending returns the unconsumed record without consuming it.
func (c *Channel) Pending() (*Record, error) {
	row, err := c.w.LastRow()
	if err != nil || row == nil {
		return nil, err
	}
	rec, err := parseRecord(row)
	if err != nil {
		return nil, fmt.Errorf("pending feedback: %w", err)
	}
	return &rec, nil
}

// Take consumes the pending record. A malformed row is discarded and reported.
// Returns (nil, nil) when nothing is pending.
func (c *Channel) Take() (*Record, error) {
	row, err := c.w.LastRow()
	if err != nil || row == nil {
		return nil, err
	}
	if err := c.w.Reset(); err != nil {
		return nil, fmt.Errorf("clear feedback channel: %w", err)
	}
	rec, err := parseRecord(row)
	if err != nil {
		return nil, fmt.Errorf("discarded malformed feedback: %w", err)
	}
	return &rec, nil
}

// #endregion
