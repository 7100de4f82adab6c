package lww

import (
	"time"

	"github.com/iotaledger/hive.go/ierrors"

	"github.com/raj/lww/pkg/clock"
)

// State is a detached copy of both logs of a Set. It is what replicas
// exchange and what gets persisted.
type State[T comparable] struct {
	Adds    map[T][]time.Time
	Removes map[T][]time.Time
}

// State exports a deep copy of both logs.
func (s *Set[T]) State() State[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return State[T]{
		Adds:    exportLog(s.adds),
		Removes: exportLog(s.removes),
	}
}

// FromState builds a set from an exported state.
func FromState[T comparable](st State[T], clk clock.Clock) (*Set[T], error) {
	s := New[T](clk)
	if err := s.Apply(st); err != nil {
		return nil, err
	}

	return s, nil
}

// Apply unions st into s. Unlike Merge it only modifies s. Apply validates
// the whole state before touching s, so a failed call leaves s unchanged.
func (s *Set[T]) Apply(st State[T]) error {
	if err := s.validate(st.Adds); err != nil {
		return ierrors.Wrap(err, "invalid add log")
	}
	if err := s.validate(st.Removes); err != nil {
		return ierrors.Wrap(err, "invalid remove log")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	importLog(s.adds, st.Adds)
	importLog(s.removes, st.Removes)

	return nil
}

func (s *Set[T]) validate(log map[T][]time.Time) error {
	for value, timestamps := range log {
		if len(timestamps) == 0 {
			return ierrors.Wrapf(ErrEmptyHistory, "element %v", value)
		}
	}

	return nil
}

func exportLog[T comparable](log map[T]*Element[T]) map[T][]time.Time {
	exported := make(map[T][]time.Time, len(log))
	for value, element := range log {
		exported[value] = element.Timestamps()
	}

	return exported
}

func importLog[T comparable](dst map[T]*Element[T], src map[T][]time.Time) {
	for value, timestamps := range src {
		if existing, ok := dst[value]; ok {
			existing.AddTimestamps(timestamps...)
			continue
		}

		dst[value] = &Element[T]{value: value, timestamps: normalize(append([]time.Time(nil), timestamps...))}
	}
}
