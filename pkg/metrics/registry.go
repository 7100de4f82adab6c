package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registry holds every lww collector plus the Go runtime and process
// collectors.
var registry = prometheus.NewRegistry()

func init() {
	MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: "lww"}),
	)
}

// Registry returns the metrics registry.
func Registry() *prometheus.Registry {
	return registry
}

// MustRegister registers cs with the registry.
func MustRegister(cs ...prometheus.Collector) {
	registry.MustRegister(cs...)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
