package service

import "time"

// Options configures a ReplicaService.
type Options struct {
	// NodeID tags exported state.
	NodeID string
	// MaxAttempts bounds retries of a replicated write redirected by a
	// consensus leader change.
	MaxAttempts int
	// InitialBackoff is the first retry delay; it doubles up to one second.
	InitialBackoff time.Duration
	// DisableStateMerge rejects pushed state. Set it when the replica is
	// owned by a raft log.
	DisableStateMerge bool
}

func (o Options) maxAttempts() int {
	if o.MaxAttempts > 0 {
		return o.MaxAttempts
	}
	return 5
}

func (o Options) initialBackoff() time.Duration {
	if o.InitialBackoff > 0 {
		return o.InitialBackoff
	}
	return 50 * time.Millisecond
}
