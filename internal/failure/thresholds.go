package failure

// #region imports
import (
	"log/slog"
	"sort"
)

// #endregion

// #region keys

// Threshold keys as they appear in configuration.
const (
	KeyLatencyMs      = "latency_ms"
	KeyLowScoreAvg    = "low_score_avg"
	KeyHighHeartRate  = "high_heart_rate"
	KeyLowOxygenLevel = "low_oxygen_level"
)

// #endregion

// #region thresholds

// Thresholds drive both classification phases.
type Thresholds struct {
	LatencyMs      float64
	LowScoreAvg    float64
	HighHeartRate  float64
	LowOxygenLevel float64
}

// DefaultThresholds returns the documented fallback values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LatencyMs:      24000,
		LowScoreAvg:    40,
		HighHeartRate:  120,
		LowOxygenLevel: 95,
	}
}

// ThresholdsFromMap reads thresholds from configuration, warning once per missing key.
// Unknown keys are ignored with a warning as well.
func ThresholdsFromMap(m map[string]float64, logger *slog.Logger) Thresholds {
	if logger == nil {
		logger = slog.Default()
	}
	th := DefaultThresholds()
	fields := map[string]*float64{
		KeyLatencyMs:      &th.LatencyMs,
		KeyLowScoreAvg:    &th.LowScoreAvg,
		KeyHighHeartRate:  &th.HighHeartRate,
		KeyLowOxygenLevel: &th.LowOxygenLevel,
	}

	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		v, ok := m[k]
		if !ok {
			logger.Warn("threshold not configured, using default", "key", k, "default", *fields[k])
			continue
		}
		*fields[k] = v
	}
	for k := range m {
		if _, ok := fields[k]; !ok {
			logger.Warn("ignoring unknown threshold", "key", k)
		}
	}
	return th
}

// Map renders thresholds back into configuration form.
func (t Thresholds) Map() map[string]float64 {
	return map[string]float64{
		KeyLatencyMs:      t.LatencyMs,
		KeyLowScoreAvg:    t.LowScoreAvg,
		KeyHighHeartRate:  t.HighHeartRate,
		KeyLowOxygenLevel: t.LowOxygenLevel,
	}
}

// #endregion
