package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Replica set metrics label constants
const (
	// Operations
	SetOpAdd        = "add"
	SetOpRemove     = "remove"
	SetOpApplyState = "apply_state"

	// Logs
	SetLogAdds    = "adds"
	SetLogRemoves = "removes"

	// Results
	SetResultSuccess = "success"
	SetResultInvalid = "invalid"
	SetResultError   = "error"
)

var (
	setOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lww_set_operations_total",
			Help: "Total number of replica set operations by type and result",
		},
		[]string{"operation", "result"},
	)

	setLogEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lww_set_log_entries",
			Help: "Current number of entries in the add and remove logs",
		},
		[]string{"log"},
	)

	setMembers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lww_set_members",
			Help: "Number of values present in the set at the last snapshot",
		},
	)

	setOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lww_set_operation_duration_seconds",
			Help:    "Duration of replica set operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

func init() {
	MustRegister(
		setOpsTotal,
		setLogEntries,
		setMembers,
		setOpDurationSeconds,
	)
}

// RecordSetOperation records a set operation with its result
func RecordSetOperation(op string, result string) {
	setOpsTotal.WithLabelValues(op, result).Inc()
}

// SetLogEntries sets the entry count of one log
func SetLogEntries(log string, entries float64) {
	setLogEntries.WithLabelValues(log).Set(entries)
}

// SetMembers sets the number of present values
func SetMembers(count float64) {
	setMembers.Set(count)
}

// ObserveSetOperationDuration records the duration of a set operation
func ObserveSetOperationDuration(op string, duration float64) {
	setOpDurationSeconds.WithLabelValues(op).Observe(duration)
}
