package types

import (
	"time"

	"github.com/iotaledger/hive.go/lo"
)

// ElementRecord is one log entry as it travels between replicas.
// Note: timestamps are unix nanos instead of time.Time so that the wire
// format does not depend on a time zone or a monotonic reading.
type ElementRecord struct {
	Value      string  `json:"value"`
	Timestamps []int64 `json:"timestamps"`
}

// StateSnapshot is the full content of a replica's add and remove logs.
type StateSnapshot struct {
	NodeID  string          `json:"nodeId,omitempty"`
	Adds    []ElementRecord `json:"adds"`
	Removes []ElementRecord `json:"removes"`
}

// Event type identifiers for registration and routing.
const (
	EventTypeAdd    = "AddEvent"
	EventTypeRemove = "RemoveEvent"
	EventTypeMember = "MemberEvent"
)

// AddEvent records an add of Value at the proposer's timestamps.
type AddEvent struct {
	Value      string  `json:"value"`
	Timestamps []int64 `json:"timestamps"`
}

// RemoveEvent records a remove of Value at the proposer's timestamps.
type RemoveEvent struct {
	Value      string  `json:"value"`
	Timestamps []int64 `json:"timestamps"`
}

// MemberEvent announces the HTTP API address of a raft server, so that
// followers can redirect writes to the leader's API.
type MemberEvent struct {
	ID       string `json:"id"`
	HTTPAddr string `json:"httpAddr"`
}

// NowUnixNano returns current time in unix nano for convenience.
func NowUnixNano() int64 { return time.Now().UnixNano() }

// ToTimes converts unix nanos to UTC instants.
func ToTimes(nanos []int64) []time.Time {
	return lo.Map(nanos, func(n int64) time.Time { return time.Unix(0, n).UTC() })
}

// FromTimes converts instants to unix nanos.
func FromTimes(ts []time.Time) []int64 {
	return lo.Map(ts, func(t time.Time) int64 { return t.UnixNano() })
}
