package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTP label names. route is the registered pattern, like
// "/v1/elements/{value}", so element values never become label values.
const (
	LabelMethod = "method"
	LabelRoute  = "route"
	LabelCode   = "code"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lww_http_requests_total",
			Help: "HTTP requests served, by route pattern and status code",
		},
		[]string{LabelMethod, LabelRoute, LabelCode},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lww_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{LabelMethod, LabelRoute},
	)

	httpInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lww_http_requests_in_flight",
			Help: "HTTP requests currently being served, by route pattern",
		},
		[]string{LabelRoute},
	)
)

func init() {
	MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		httpInFlight,
	)
}

// TrackHTTPRequest marks a request on route as in flight. The returned
// function records its outcome and must be called exactly once.
func TrackHTTPRequest(method, route string) func(code int) {
	start := time.Now()
	gauge := httpInFlight.WithLabelValues(route)
	gauge.Inc()
	return func(code int) {
		gauge.Dec()
		httpRequestDurationSeconds.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	}
}
