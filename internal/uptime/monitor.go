package uptime

// #region imports
import (
	"fmt"
	"log/slog"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/failure"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/ledger"
)

// #endregion

// #region monitor

// InitialEvent is recorded when a timeline is created.
const InitialEvent = "Initial status check"

// Monitor keeps the UP/DOWN timeline. Only transitions are appended.
type Monitor struct {
	w      *ledger.Writer
	last   failure.Uptime
	logger *slog.Logger
}

// Open restores the last status from the timeline at w, seeding it with UP when empty.
func Open(w *ledger.Writer, logger *slog.Logger) (*Monitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{w: w, logger: logger}

	row, err := w.LastRow()
	if err != nil {
		return nil, fmt.Errorf("read uptime timeline: %w", err)
	}
	if row != nil && len(row) > 1 {
		if st, err := failure.ParseUptime(row[1]); err == nil {
			m.last = st
			return m, nil
		}
		logger.Warn("uptime timeline has an unreadable last row, reseeding", "row", row)
	}
	if _, err := m.Set(failure.UptimeUp, InitialEvent); err != nil {
		return nil, err
	}
	return m, nil
}

// Status returns the current status.
func (m *Monitor) Status() failure.Uptime {
	return m.last
}

// Set records status if it differs from the current one.
// Returns whether a transition was appended.
func (m *Monitor) Set(status failure.Uptime, event string) (bool, error) {
	if status == m.last {
		m.logger.Debug("uptime unchanged", "status", string(status))
		return false, nil
	}
	if err := m.w.AppendStamped(string(status), event); err != nil {
		return false, fmt.Errorf("append uptime transition: %w", err)
	}
	m.logger.Info("uptime changed", "status", string(status), "event", event)
	m.last = status
	return true, nil
}

// #endregion
