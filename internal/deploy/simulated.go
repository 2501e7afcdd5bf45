package deploy

// #region imports
import (
	"context"
	"time"
)

// #endregion

// #region config

// SimulatedConfig controls the timings reported (and optionally waited) by Simulated.
type SimulatedConfig struct {
	Timeout        time.Duration // health-check window of a normal deployment
	CrashDelay     time.Duration // time before an injected crash is reported
	LatencyPenalty time.Duration // extra time added on top of Timeout for injected latency
	SimulateDelays bool          // false reports nominal timings without waiting
}

// DefaultSimulatedConfig mirrors a 15s health check with a 10s latency penalty.
func DefaultSimulatedConfig() SimulatedConfig {
	return SimulatedConfig{
		Timeout:        15 * time.Second,
		CrashDelay:     1500 * time.Millisecond,
		LatencyPenalty: 10 * time.Second,
		SimulateDelays: true,
	}
}

// crashResponseMs is the response time reported for an injected crash.
const crashResponseMs = 2000

// #endregion

// #region simulated

// Simulated is a synchronous stand-in for a real deployment.
type Simulated struct {
	cfg   SimulatedConfig
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewSimulated creates a simulated trigger.
func NewSimulated(cfg SimulatedConfig) *Simulated {
	return &Simulated{cfg: cfg, sleep: sleepCtx, now: time.Now}
}

// Deploy reports an injected crash, an injected slow success, or a healthy deployment.
// A context that ends while waiting is treated as a crash.
func (s *Simulated) Deploy(ctx context.Context, req Request) Record {
	switch req.injected() {
	case FailureCrash:
		_ = s.wait(ctx, s.cfg.CrashDelay)
		return Record{Status: StatusFailure, ResponseTimeMs: crashResponseMs}
	case FailureLatency:
		slow := s.cfg.Timeout + s.cfg.LatencyPenalty
		if err := s.wait(ctx, slow); err != nil {
			return Record{Status: StatusFailure, ResponseTimeMs: millis(slow)}
		}
		return Record{Status: StatusSuccess, ResponseTimeMs: millis(slow)}
	}

	start := s.now()
	err := s.wait(ctx, s.cfg.Timeout)
	elapsed := s.now().Sub(start)
	if !s.cfg.SimulateDelays {
		elapsed = s.cfg.Timeout
	}
	if err != nil {
		return Record{Status: StatusFailure, ResponseTimeMs: millis(elapsed)}
	}
	return Record{Status: StatusSuccess, ResponseTimeMs: millis(elapsed)}
}

func (s *Simulated) wait(ctx context.Context, d time.Duration) error {
	if !s.cfg.SimulateDelays {
		return ctx.Err()
	}
	return s.sleep(ctx, d)
}

// #endregion

// #region helpers

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// #endregion
