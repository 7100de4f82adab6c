package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Service metrics labels (use constants to avoid typos and keep low cardinality)
const (
	// Operations
	ServiceOpAdd        = "add"
	ServiceOpRemove     = "remove"
	ServiceOpExists     = "exists"
	ServiceOpValues     = "values"
	ServiceOpState      = "state"
	ServiceOpMergeState = "merge_state"

	// Results
	ServiceResultSuccess     = "success"
	ServiceResultHistorical  = "historical"
	ServiceResultReplicated  = "replicated"
	ServiceResultLocalOnly   = "local_only"
	ServiceResultInvalid     = "invalid"
	ServiceResultError       = "error"
	ServiceResultRetryFailed = "retry_failed"
)

var (
	serviceOpsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lww_service_operations_total",
			Help: "Total number of replica service operations by result",
		},
		[]string{"operation", "result"},
	)

	serviceOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lww_service_operation_duration_seconds",
			Help:    "Duration of replica service operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	serviceConsensusRedirects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lww_service_consensus_redirects_total",
			Help: "Total number of consensus redirects observed in service layer",
		},
	)
)

func init() {
	MustRegister(
		serviceOpsCounter,
		serviceOpDurationSeconds,
		serviceConsensusRedirects,
	)
}

// RecordServiceOperation records the outcome of a service operation.
func RecordServiceOperation(operation string, result string) {
	serviceOpsCounter.WithLabelValues(operation, result).Inc()
}

// ObserveServiceOperationDuration records the duration of a service operation.
func ObserveServiceOperationDuration(operation string, seconds float64) {
	serviceOpDurationSeconds.WithLabelValues(operation).Observe(seconds)
}

// IncrementServiceConsensusRedirects increments the consensus redirect counter.
func IncrementServiceConsensusRedirects() {
	serviceConsensusRedirects.Inc()
}
