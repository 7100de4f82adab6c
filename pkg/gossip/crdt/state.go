package crdt

import (
	"github.com/iotaledger/hive.go/ierrors"

	"github.com/raj/lww/pkg/codec"
	"github.com/raj/lww/pkg/lww"
	"github.com/raj/lww/pkg/metrics"
	"github.com/raj/lww/pkg/types"
)

// ErrUnexpectedMessage is returned when a state exchange carries no state.
var ErrUnexpectedMessage = ierrors.New("unexpected gossip message")

// encodeState serialises the full replica for a push/pull exchange.
func encodeState(nodeID string, set *lww.Set[string], maxSize int) ([]byte, error) {
	snap := codec.FromSet(nodeID, set)
	return codec.Encode(&wireMsg{Type: msgState, NodeID: nodeID, State: &snap}, maxSize)
}

// mergeState folds a remote snapshot into set only. The peer receives our
// state through its own push/pull.
func mergeState(set *lww.Set[string], snap *types.StateSnapshot) error {
	if snap == nil {
		return ErrUnexpectedMessage
	}
	if err := set.Apply(codec.ToState(*snap)); err != nil {
		metrics.RecordSetOperation(metrics.SetOpApplyState, metrics.SetResultInvalid)
		return err
	}
	metrics.RecordSetOperation(metrics.SetOpApplyState, metrics.SetResultSuccess)

	adds, removes := set.Len()
	metrics.SetLogEntries(metrics.SetLogAdds, float64(adds))
	metrics.SetLogEntries(metrics.SetLogRemoves, float64(removes))

	return nil
}
