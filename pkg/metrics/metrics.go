// Package metrics records conversion run metrics in a private Prometheus registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Sudo-Ivan/permalink-converter/pkg/state"
)

// Namespace prefixes every metric name.
const Namespace = "permalink"

// Status label values.
const (
	StatusConverted = "converted"
	StatusPartial   = "partial"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Recorder holds the run metrics. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	Conversions    *prometheus.CounterVec
	Fragments      prometheus.Counter
	Duration       prometheus.Histogram
	CatalogEntries prometheus.Gauge
}

// New creates a recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		Conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "conversions_total",
				Help:      "Converted records by outcome",
			},
			[]string{"status"},
		),
		Fragments: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "unconvertible_fragments_total",
				Help:      "Parts of source URLs that could not be converted",
			},
		),
		Duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "conversion_duration_seconds",
				Help:      "Time spent converting one record",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),
		CatalogEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "catalog_entries",
				Help:      "Entries in the loaded catalog",
			},
		),
	}
	r.registry.MustRegister(r.Conversions, r.Fragments, r.Duration, r.CatalogEntries)
	return r
}

// Registry returns the registry holding the run metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Status returns the status label of an outcome.
func Status(o state.Outcome) string {
	switch {
	case o.Partial():
		return StatusPartial
	case o.Success:
		return StatusConverted
	case o.Skipped():
		return StatusSkipped
	default:
		return StatusFailed
	}
}

// Observe records one outcome and how long it took.
func (r *Recorder) Observe(o state.Outcome, took time.Duration) {
	if r == nil {
		return
	}
	r.Conversions.WithLabelValues(Status(o)).Inc()
	r.Fragments.Add(float64(len(o.UnconvertibleFragments)))
	r.Duration.Observe(took.Seconds())
}

// SetCatalogSize records the number of loaded catalog entries.
func (r *Recorder) SetCatalogSize(n int) {
	if r == nil {
		return
	}
	r.CatalogEntries.Set(float64(n))
}

// WriteTextfile writes the metrics in the text exposition format, for collection by
// the node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
