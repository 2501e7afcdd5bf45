package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "selfheal"

// #region recorder
// Recorder owns a private registry so repeated runs and tests never collide.
type Recorder struct {
	reg *prometheus.Registry

	cycles       prometheus.Counter
	incidents    *prometheus.CounterVec
	remediations *prometheus.CounterVec
	latency      prometheus.Histogram
	reward       prometheus.Histogram
	qValue       *prometheus.GaugeVec
}

// New registers the pipeline metrics on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Orchestration cycles completed.",
		}),
		incidents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_total",
			Help:      "Incidents detected, by failure state.",
		}, []string{"state"}),
		remediations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remediations_total",
			Help:      "Remediations executed, by action and outcome.",
		}, []string{"action", "outcome"}),
		latency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remediation_latency_ms",
			Help:      "Reported response time of remediations in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000, 15000, 20000, 30000},
		}),
		reward: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reward",
			Help:      "Shaped rewards applied to the policy.",
			Buckets:   []float64{-2, -1, 0, 1, 2, 3},
		}),
		qValue: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "q_value",
			Help:      "Current Q-table values.",
		}, []string{"state", "action"}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }
// #endregion recorder

// #region observe
// CycleDone counts one finished cycle.
func (r *Recorder) CycleDone() { r.cycles.Inc() }

// Incident counts one detected incident.
func (r *Recorder) Incident(state string) { r.incidents.WithLabelValues(state).Inc() }

// Remediation records one executed action.
func (r *Recorder) Remediation(action, outcome string, responseMs float64) {
	r.remediations.WithLabelValues(action, outcome).Inc()
	r.latency.Observe(responseMs)
}

// Reward records one applied reward.
func (r *Recorder) Reward(v float64) { r.reward.Observe(v) }

// QValue publishes the current value of one table cell.
func (r *Recorder) QValue(state, action string, v float64) {
	r.qValue.WithLabelValues(state, action).Set(v)
}
// #endregion observe

// #region export
// WriteTextfile writes the registry in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
// #endregion export
