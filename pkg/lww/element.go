package lww

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/iotaledger/hive.go/ierrors"
	"github.com/iotaledger/hive.go/lo"
)

// Element is one set member together with every timestamp at which an add
// (or, in the remove log, a remove) of that member was observed.
//
// Timestamps are kept sorted ascending and free of duplicates. An Element is
// not safe for concurrent use on its own; the owning Set serializes access.
type Element[T comparable] struct {
	value      T
	timestamps []time.Time
}

// NewElement creates an element seeded with the given timestamps.
func NewElement[T comparable](value T, timestamps ...time.Time) (*Element[T], error) {
	if len(timestamps) == 0 {
		return nil, ierrors.Wrapf(ErrEmptyHistory, "element %v", value)
	}

	return &Element[T]{
		value:      value,
		timestamps: normalize(lo.CopySlice(timestamps)),
	}, nil
}

// Value returns the set member.
func (e *Element[T]) Value() T { return e.value }

// Timestamps returns a copy of the recorded timestamps, oldest first.
func (e *Element[T]) Timestamps() []time.Time { return lo.CopySlice(e.timestamps) }

// UpdateTimestamp records one more observation at now.
func (e *Element[T]) UpdateTimestamp(now time.Time) {
	e.AddTimestamps(now)
}

// AddTimestamps replaces the timestamps with their union with ts.
func (e *Element[T]) AddTimestamps(ts ...time.Time) {
	if len(ts) == 0 {
		return
	}

	union := make([]time.Time, 0, len(e.timestamps)+len(ts))
	union = append(union, e.timestamps...)
	union = append(union, ts...)
	e.timestamps = normalize(union)
}

// MergeTimestamps unions the timestamps of e and other and stores the result
// in both, so that afterwards the two elements are timestamp-identical.
func (e *Element[T]) MergeTimestamps(other *Element[T]) error {
	if other == nil || other == e {
		return nil
	}
	if other.value != e.value {
		return ierrors.Wrapf(ErrValueMismatch, "%v != %v", e.value, other.value)
	}

	e.AddTimestamps(other.timestamps...)
	other.timestamps = lo.CopySlice(e.timestamps)

	return nil
}

// LastTimestamp is the most recent observation.
func (e *Element[T]) LastTimestamp() time.Time {
	return e.timestamps[len(e.timestamps)-1]
}

// FirstTimestamp is the oldest observation.
func (e *Element[T]) FirstTimestamp() time.Time {
	return e.timestamps[0]
}

// LastTimestampBefore returns the greatest timestamp that is not after t.
// The boolean is false when every timestamp is after t.
func (e *Element[T]) LastTimestampBefore(t time.Time) (time.Time, bool) {
	idx := sort.Search(len(e.timestamps), func(i int) bool {
		return e.timestamps[i].After(t)
	})
	if idx == 0 {
		return time.Time{}, false
	}

	return e.timestamps[idx-1], true
}

// Clone returns a deep copy that shares no memory with e.
func (e *Element[T]) Clone() *Element[T] {
	return &Element[T]{
		value:      e.value,
		timestamps: lo.CopySlice(e.timestamps),
	}
}

func (e *Element[T]) String() string {
	formatted := lo.Map(e.timestamps, func(t time.Time) string {
		return t.UTC().Format(time.RFC3339Nano)
	})

	return fmt.Sprintf("(value: %v, timestamps: [%s])", e.value, strings.Join(formatted, " "))
}

// normalize sorts ts in place and drops instants that are Equal.
func normalize(ts []time.Time) []time.Time {
	slices.SortFunc(ts, time.Time.Compare)

	return slices.CompactFunc(ts, time.Time.Equal)
}
