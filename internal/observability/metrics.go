// Package observability holds the Prometheus metrics of update checks.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of an update check, used as the "outcome" label.
const (
	OutcomeUpdate         = "update"
	OutcomeNoUpdate       = "no_update"
	OutcomeNotModified    = "not_modified"
	OutcomeInvalid        = "invalid_version"
	OutcomeUnknownProduct = "unknown_product"
	OutcomeUnavailable    = "unavailable"
)

var (
	// UpdateChecks counts answered update checks.
	UpdateChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goupdate_update_checks_total",
			Help: "Update checks answered, by product, check kind and outcome",
		},
		[]string{"product", "kind", "outcome"},
	)

	// UpdateCheckDuration measures how long answering an update check took.
	UpdateCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goupdate_update_check_duration_seconds",
			Help:    "Time to answer an update check, including any cache refresh the check waited for",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10},
		},
		[]string{"product", "kind"},
	)
)

// RecordCheck records one answered check. kind is "platform" or "simple".
func RecordCheck(product, kind, outcome string, elapsed time.Duration) {
	UpdateChecks.WithLabelValues(product, kind, outcome).Inc()
	UpdateCheckDuration.WithLabelValues(product, kind).Observe(elapsed.Seconds())
}
