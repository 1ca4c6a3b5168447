// Package metrics collects per-run counters and writes them in Prometheus
// text exposition format for the node-exporter textfile collector, the
// usual way short-lived batch jobs surface metrics.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Run holds the counters for one reconciliation run.
type Run struct {
	registry *prometheus.Registry

	usersScanned prometheus.Counter
	opsEmitted   *prometheus.CounterVec
	notices      prometheus.Counter
	lastRun      prometheus.Gauge
}

// NewRun creates a fresh registry with the run counters registered.
func NewRun() *Run {
	reg := prometheus.NewRegistry()
	return &Run{
		registry: reg,
		usersScanned: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sacctsync_users_scanned_total",
			Help: "Users considered during the run",
		}),
		opsEmitted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sacctsync_operations_emitted_total",
			Help: "Mutation operations emitted, by verb",
		}, []string{"verb"}),
		notices: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sacctsync_notices_total",
			Help: "Advisory notices produced during the run",
		}),
		lastRun: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sacctsync_last_run_timestamp_seconds",
			Help: "Unix time the run completed",
		}),
	}
}

// ObserveUsers adds to the scanned-user count.
func (r *Run) ObserveUsers(n int) {
	r.usersScanned.Add(float64(n))
}

// ObserveOp counts one emitted operation by verb.
func (r *Run) ObserveOp(verb string) {
	r.opsEmitted.WithLabelValues(verb).Inc()
}

// ObserveNotices adds to the advisory notice count.
func (r *Run) ObserveNotices(n int) {
	r.notices.Add(float64(n))
}

// SetLastRun records the run completion time as unix seconds.
func (r *Run) SetLastRun(unixSeconds int64) {
	r.lastRun.Set(float64(unixSeconds))
}

// WriteTextfile gathers the registry and writes it atomically (temp file
// plus rename) so the textfile collector never sees a partial scrape.
func (r *Run) WriteTextfile(path string) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create metrics temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := expfmt.NewEncoder(tmp, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to encode metrics: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close metrics temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move metrics textfile into place: %w", err)
	}
	return nil
}
