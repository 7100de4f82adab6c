package consensus

import "time"

// RaftOptions carries Raft configuration knobs used by bootstrap.
type RaftOptions struct {
	SnapshotInterval  time.Duration
	SnapshotThreshold uint64
	Bootstrap         bool
	AdvertiseAddr     string
	// RetainSnapshots is the number of file snapshots kept on disk.
	RetainSnapshots int
	// ApplyTimeout bounds how long a proposal may wait to be enqueued.
	ApplyTimeout time.Duration
}

func (o RaftOptions) retainSnapshots() int {
	if o.RetainSnapshots > 0 {
		return o.RetainSnapshots
	}
	return 3
}

func (o RaftOptions) applyTimeout() time.Duration {
	if o.ApplyTimeout > 0 {
		return o.ApplyTimeout
	}
	return 5 * time.Second
}
