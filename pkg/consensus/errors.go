package consensus

import (
	"fmt"

	"github.com/iotaledger/hive.go/ierrors"
)

var (
	// ErrNoRaft is returned when the adapter has no raft instance.
	ErrNoRaft = ierrors.New("raft instance not set")

	// ErrUnknownEvent is returned for events without a registered type.
	ErrUnknownEvent = ierrors.New("unknown event type")

	// ErrInvalidMember is returned for member announcements without an id or
	// HTTP address.
	ErrInvalidMember = ierrors.New("member id and http address are required")
)

// NotLeaderError indicates the node is not the leader and, if known, where the leader is.
type NotLeaderError struct {
	// LeaderAddr is the leader's raft transport address.
	LeaderAddr string
	// LeaderHTTPAddr is the leader's HTTP API address, empty until the
	// leader has been announced through a MemberEvent.
	LeaderHTTPAddr string
}

func (e *NotLeaderError) Error() string {
	switch {
	case e.LeaderHTTPAddr != "":
		return fmt.Sprintf("node is not the leader; leader=%s http=%s", e.LeaderAddr, e.LeaderHTTPAddr)
	case e.LeaderAddr != "":
		return fmt.Sprintf("node is not the leader; leader=%s", e.LeaderAddr)
	default:
		return "node is not the leader"
	}
}

// IsNotLeader returns the *NotLeaderError in err's chain and a bool indicating match.
func IsNotLeader(err error) (*NotLeaderError, bool) {
	var ne *NotLeaderError
	if ierrors.As(err, &ne) {
		return ne, true
	}
	return nil, false
}
