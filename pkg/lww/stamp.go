package lww

import (
	"fmt"
	"time"

	"github.com/iotaledger/hive.go/lo"

	"github.com/raj/lww/pkg/clock"
)

type stampKind uint8

const (
	stampNow stampKind = iota
	stampAt
	stampHistory
)

// Stamp says which timestamps a mutation records. The zero value is Now().
type Stamp struct {
	kind       stampKind
	timestamps []time.Time
}

// Now records the set's current clock reading.
func Now() Stamp { return Stamp{} }

// At records the given timestamp.
func At(t time.Time) Stamp {
	return Stamp{kind: stampAt, timestamps: []time.Time{t}}
}

// WithHistory unions an existing timestamp collection into the log. It is
// the form used to propagate entries between replicas.
func WithHistory(timestamps ...time.Time) Stamp {
	return Stamp{kind: stampHistory, timestamps: lo.CopySlice(timestamps)}
}

func (s Stamp) resolve(c clock.Clock) ([]time.Time, error) {
	switch s.kind {
	case stampAt:
		return s.timestamps, nil
	case stampHistory:
		if len(s.timestamps) == 0 {
			return nil, ErrEmptyHistory
		}
		return lo.CopySlice(s.timestamps), nil
	default:
		return []time.Time{c.Now()}, nil
	}
}

func (s Stamp) String() string {
	switch s.kind {
	case stampAt:
		return fmt.Sprintf("At(%s)", s.timestamps[0].Format(time.RFC3339Nano))
	case stampHistory:
		return fmt.Sprintf("WithHistory(%d)", len(s.timestamps))
	default:
		return "Now"
	}
}
