// Package codec converts replica state between the engine and the wire.
package codec

import (
	"slices"
	"strings"
	"time"

	"github.com/raj/lww/pkg/lww"
	"github.com/raj/lww/pkg/types"
)

// FromSet exports both logs of s as a snapshot tagged with nodeID.
func FromSet(nodeID string, s *lww.Set[string]) types.StateSnapshot {
	return FromState(nodeID, s.State())
}

// FromState converts an exported state. Records are ordered by value so
// that equal states encode to equal bytes.
func FromState(nodeID string, st lww.State[string]) types.StateSnapshot {
	return types.StateSnapshot{
		NodeID:  nodeID,
		Adds:    toRecords(st.Adds),
		Removes: toRecords(st.Removes),
	}
}

// ToState converts a snapshot back into engine form. Repeated records for the
// same value are unioned. Records without timestamps are passed through so
// that lww.Set.Apply can reject them.
func ToState(snap types.StateSnapshot) lww.State[string] {
	return lww.State[string]{
		Adds:    fromRecords(snap.Adds),
		Removes: fromRecords(snap.Removes),
	}
}

func toRecords(log map[string][]time.Time) []types.ElementRecord {
	records := make([]types.ElementRecord, 0, len(log))
	for value, timestamps := range log {
		records = append(records, types.ElementRecord{
			Value:      value,
			Timestamps: types.FromTimes(timestamps),
		})
	}
	slices.SortFunc(records, func(a, b types.ElementRecord) int {
		return strings.Compare(a.Value, b.Value)
	})

	return records
}

func fromRecords(records []types.ElementRecord) map[string][]time.Time {
	log := make(map[string][]time.Time, len(records))
	for _, record := range records {
		log[record.Value] = append(log[record.Value], types.ToTimes(record.Timestamps)...)
	}

	return log
}
