package lww

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iotaledger/hive.go/ierrors"
	"github.com/iotaledger/hive.go/lo"

	"github.com/raj/lww/pkg/clock"
)

// defaultClock is shared by all sets created without an explicit clock, so
// that their readings are strictly ordered within the process.
var defaultClock = clock.NewMonotonic(clock.System())

// setSeq hands out the ids that fix the lock order in Merge and Union.
var setSeq atomic.Uint64

// Set is a Last-Write-Wins Element Set. Create it with New.
type Set[T comparable] struct {
	id        uint64
	clock     clock.Clock
	checkKeys bool

	mu      sync.RWMutex
	adds    map[T]*Element[T]
	removes map[T]*Element[T]
}

// New returns an empty set that reads "now" from clk. A nil clk means the
// process-wide monotonic system clock.
func New[T comparable](clk clock.Clock) *Set[T] {
	if clk == nil {
		clk = defaultClock
	}

	return &Set[T]{
		id:        setSeq.Add(1),
		clock:     clk,
		checkKeys: needsHashCheck(reflect.TypeOf((*T)(nil)).Elem()),
		adds:      make(map[T]*Element[T]),
		removes:   make(map[T]*Element[T]),
	}
}

// Add records an add event for value and returns the set for chaining.
func (s *Set[T]) Add(value T, stamp Stamp) (*Set[T], error) {
	if err := s.record(s.adds, value, stamp); err != nil {
		return s, ierrors.Wrap(err, "add")
	}

	return s, nil
}

// Remove records a remove event for value and returns the set for chaining.
// The event is recorded even when value is not currently present, so that it
// can suppress an older add that arrives later through a merge.
func (s *Set[T]) Remove(value T, stamp Stamp) (*Set[T], error) {
	if err := s.record(s.removes, value, stamp); err != nil {
		return s, ierrors.Wrap(err, "remove")
	}

	return s, nil
}

func (s *Set[T]) record(log map[T]*Element[T], value T, stamp Stamp) error {
	if !s.keyable(value) {
		return ierrors.Wrapf(ErrUnhashable, "%T", value)
	}

	timestamps, err := stamp.resolve(s.clock)
	if err != nil {
		return ierrors.Wrapf(err, "element %v", value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := log[value]
	switch {
	case !ok:
		log[value] = &Element[T]{value: value, timestamps: normalize(timestamps)}
	case stamp.kind == stampHistory:
		existing.AddTimestamps(timestamps...)
	default:
		existing.UpdateTimestamp(timestamps[0])
	}

	return nil
}

// Exists reports whether value is in the set according to the latest events.
func (s *Set[T]) Exists(value T) bool {
	if !s.keyable(value) {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.exists(value, nil)
}

// ExistsAt reports whether value was in the set at asOf, considering only
// events with a timestamp at or before asOf.
func (s *Set[T]) ExistsAt(value T, asOf time.Time) bool {
	if !s.keyable(value) {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.exists(value, &asOf)
}

func (s *Set[T]) exists(value T, asOf *time.Time) bool {
	added, ok := latest(s.adds, value, asOf)
	if !ok {
		return false
	}

	removed, ok := latest(s.removes, value, asOf)
	if !ok {
		return true
	}

	// remove wins on a tie
	return removed.Before(added)
}

// latest returns the newest timestamp of value in log, restricted to
// timestamps not after asOf when asOf is set.
func latest[T comparable](log map[T]*Element[T], value T, asOf *time.Time) (time.Time, bool) {
	element, ok := log[value]
	if !ok {
		return time.Time{}, false
	}
	if asOf == nil {
		return element.LastTimestamp(), true
	}

	return element.LastTimestampBefore(*asOf)
}

// Get returns every value currently in the set.
func (s *Set[T]) Get() Values[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.values(nil)
}

// GetAt returns every value that was in the set at asOf.
func (s *Set[T]) GetAt(asOf time.Time) Values[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.values(&asOf)
}

func (s *Set[T]) values(asOf *time.Time) Values[T] {
	result := make(Values[T])
	for value := range s.adds {
		if s.exists(value, asOf) {
			result[value] = struct{}{}
		}
	}

	return result
}

// AddHistory returns a copy of the add timestamps recorded for value.
func (s *Set[T]) AddHistory(value T) ([]time.Time, bool) {
	return s.history(s.adds, value)
}

// RemoveHistory returns a copy of the remove timestamps recorded for value.
func (s *Set[T]) RemoveHistory(value T) ([]time.Time, bool) {
	return s.history(s.removes, value)
}

func (s *Set[T]) history(log map[T]*Element[T], value T) ([]time.Time, bool) {
	if !s.keyable(value) {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	element, ok := log[value]
	if !ok {
		return nil, false
	}

	return element.Timestamps(), true
}

// Len returns the number of entries in the add and remove logs.
func (s *Set[T]) Len() (adds int, removes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.adds), len(s.removes)
}

// Clone returns an independent copy of the set that reads the same clock.
func (s *Set[T]) Clone() *Set[T] {
	clone := New[T](s.clock)

	s.mu.RLock()
	defer s.mu.RUnlock()

	copyLog(clone.adds, s.adds)
	copyLog(clone.removes, s.removes)

	return clone
}

func (s *Set[T]) keyable(value T) bool {
	return !s.checkKeys || hashable(value)
}

func (s *Set[T]) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return fmt.Sprintf("LWW Set{adds: %s, removes: %s}", renderLog(s.adds), renderLog(s.removes))
}

func renderLog[T comparable](log map[T]*Element[T]) string {
	elements := lo.Values(log)
	slices.SortFunc(elements, func(a, b *Element[T]) int {
		if c := a.FirstTimestamp().Compare(b.FirstTimestamp()); c != 0 {
			return c
		}
		return strings.Compare(fmt.Sprint(a.value), fmt.Sprint(b.value))
	})

	return "[" + strings.Join(lo.Map(elements, (*Element[T]).String), ", ") + "]"
}

func copyLog[T comparable](dst, src map[T]*Element[T]) {
	for value, element := range src {
		dst[value] = element.Clone()
	}
}
