package lww

import (
	"github.com/iotaledger/hive.go/lo"
)

// Values is the result of a membership query.
type Values[T comparable] map[T]struct{}

// NewValues builds a Values from the given members.
func NewValues[T comparable](members ...T) Values[T] {
	v := make(Values[T], len(members))
	for _, member := range members {
		v[member] = struct{}{}
	}

	return v
}

// Has reports whether member is contained.
func (v Values[T]) Has(member T) bool {
	_, ok := v[member]
	return ok
}

// Len returns the number of members.
func (v Values[T]) Len() int { return len(v) }

// Equal reports whether v and other contain the same members.
func (v Values[T]) Equal(other Values[T]) bool {
	if len(v) != len(other) {
		return false
	}
	for member := range v {
		if !other.Has(member) {
			return false
		}
	}

	return true
}

// Slice returns the members in unspecified order.
func (v Values[T]) Slice() []T {
	return lo.Keys(map[T]struct{}(v))
}
