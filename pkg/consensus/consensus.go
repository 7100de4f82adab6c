// Package consensus replicates an LWW element set through a raft log.
//
// Every mutation is proposed as an event carrying the proposer's timestamp.
// The FSM applies committed events with lww.WithHistory, so all raft members
// end up with identical histories regardless of their local clocks.
package consensus

import (
	"context"
)

// ConsensusClient abstracts a Raft-like strongly consistent log.
// Implementations should block in ProposeEvent until commit or error.
type ConsensusClient interface {
	ProposeEvent(ctx context.Context, event any) error
	RegisterEventHandler(eventType string, handler func(event any)) error
}
