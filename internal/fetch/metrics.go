package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "touchline_fetch_requests_total",
			Help: "Page fetches by host, fetch mode and outcome",
		},
		[]string{"host", "mode", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "touchline_fetch_duration_seconds",
			Help:    "Time spent fetching or rendering a page",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"host", "mode"},
	)

	limiterWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "touchline_fetch_rate_limit_wait_seconds",
			Help:    "Time spent waiting for the per-origin rate limit",
			Buckets: []float64{0, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"host"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "touchline_page_cache_lookups_total",
			Help: "Page cache lookups by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, limiterWait, cacheLookups)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
