package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels completed analyses, degraded ones included.
	OutcomeSuccess = "success"
	// OutcomeError labels analyses that failed before persistence.
	OutcomeError = "error"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zabbix_rca",
			Name:      "analyses_total",
			Help:      "Total number of event analyses handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "zabbix_rca",
			Name:      "analysis_seconds",
			Help:      "End-to-end analysis latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	eventsIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zabbix_rca",
			Name:      "events_ingested_total",
			Help:      "Total number of webhook events accepted for analysis.",
		},
	)
)

// Register attaches zabbix-rca collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		eventsIngestedTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records an analysis duration and outcome label.
func ObserveAnalysis(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	analysesTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveIngestion counts one accepted webhook event.
func ObserveIngestion() {
	eventsIngestedTotal.Inc()
}
