// Package metrics exposes Prometheus collectors for the loop, the data source, synthesis and sector analyses.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "macrooracle"

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cycles_total", Help: "Loop cycles by outcome"},
		[]string{"outcome"},
	)
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one fetch and synthesis cycle",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)
	ConsecutiveFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "consecutive_failures", Help: "Failed cycles since the last success"},
	)
	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "subscribers", Help: "Live push subscribers"},
	)
	SubscribersDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "subscribers_dropped_total", Help: "Subscribers dropped for a full queue"},
	)
	SeriesFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "series_fetch_total", Help: "Upstream series fetches by result"},
		[]string{"result"},
	)
	SynthesesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "syntheses_total", Help: "Syntheses by engine and outcome"},
		[]string{"engine", "outcome"},
	)
	PromptPromotions = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "prompt_promotions_total", Help: "Draft prompts promoted to evolving"},
	)
	VerticalAnalyses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "vertical_analyses_total", Help: "Sector analyses by vertical and outcome"},
		[]string{"vertical", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		CyclesTotal,
		CycleDuration,
		ConsecutiveFailures,
		Subscribers,
		SubscribersDropped,
		SeriesFetched,
		SynthesesTotal,
		PromptPromotions,
		VerticalAnalyses,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
