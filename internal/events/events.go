package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Agents that emit events.
const (
	AgentIssueDetector = "IssueDetector"
	AgentHealer        = "AutoHealAgent"
	AgentDeployer      = "DeployAgent"
	AgentUptime        = "UptimeMonitor"
	AgentPolicy        = "PolicyEngine"
)

// Event statuses.
const (
	StatusDetected   = "Detected"
	StatusResolved   = "Resolved"
	StatusUnresolved = "Unresolved"
	StatusDeployed   = "Deployed"
	StatusUpdated    = "Updated"
)

// Event is a message on the control plane.
type Event struct {
	Agent     string         `json:"agent"`
	Status    string         `json:"status"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher delivers events. Implementations must tolerate being called after Close.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

func stamp(ev Event) Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	return ev
}

// #region nop
// Nop discards events.
type Nop struct{}

// Publish drops ev.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close is a no-op.
func (Nop) Close() error { return nil }
// #endregion nop

// #region memory
// Memory keeps published events in order.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// Publish stamps ev and keeps it.
func (m *Memory) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, stamp(ev))
	return nil
}

// Close is a no-op; recorded events stay readable.
func (m *Memory) Close() error { return nil }

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
// #endregion memory

// #region file
// separator follows every message in the event log.
var separator = strings.Repeat("-", 40)

// FilePublisher appends indented JSON messages to a log file.
type FilePublisher struct {
	path string
	mu   sync.Mutex
}

// NewFile creates a publisher appending to path.
func NewFile(path string) *FilePublisher {
	return &FilePublisher{path: path}
}

// Publish appends ev as indented JSON followed by the separator line.
func (f *FilePublisher) Publish(_ context.Context, ev Event) error {
	b, err := json.MarshalIndent(stamp(ev), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("event log dir: %w", err)
	}
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer fh.Close()
	if _, err := fmt.Fprintf(fh, "%s\n%s\n", b, separator); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Close is a no-op; the file is opened per event.
func (f *FilePublisher) Close() error { return nil }
// #endregion file
