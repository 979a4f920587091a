package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "public_api_rate_limit_checks_total",
			Help: "Total number of rate limit checks",
		},
		[]string{"tier"},
	)

	AllowedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "public_api_requests_allowed_total",
			Help: "Total number of admitted metered requests",
		},
		[]string{"tier"},
	)

	BlockedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "public_api_requests_blocked_total",
			Help: "Total number of requests rejected over quota",
		},
		[]string{"tier"},
	)

	BusyTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "public_api_requests_busy_total",
			Help: "Total number of requests rejected by the concurrency gate",
		},
	)

	AuthFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "public_api_auth_failures_total",
			Help: "Total number of missing, invalid or inactive API keys",
		},
	)

	ErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "public_api_rate_limit_errors_total",
			Help: "Total number of internal rate limiter errors",
		},
	)

	CheckLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "public_api_rate_limit_latency_seconds",
			Help:    "Latency of ledger admission checks",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func Register() {
	prometheus.MustRegister(
		ChecksTotal,
		AllowedTotal,
		BlockedTotal,
		BusyTotal,
		AuthFailuresTotal,
		ErrorsTotal,
		CheckLatency,
	)
}
