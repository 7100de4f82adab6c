package lww

import (
	"github.com/iotaledger/hive.go/ierrors"
)

// Merge folds other into s and s into other. On return both sets hold the
// union of the two add logs and the union of the two remove logs, with every
// shared element carrying the union of its timestamps. Merge returns s.
func (s *Set[T]) Merge(other *Set[T]) (*Set[T], error) {
	if other == nil || other == s {
		return s, nil
	}

	first, second := lockOrder(s, other)
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if err := mergeLogs(s.adds, other.adds); err != nil {
		return s, ierrors.Wrap(err, "merge add log")
	}
	if err := mergeLogs(s.removes, other.removes); err != nil {
		return s, ierrors.Wrap(err, "merge remove log")
	}

	return s, nil
}

// mergeLogs makes a and b equal. Shared entries are reconciled through
// MergeTimestamps, one-sided entries are copied across.
func mergeLogs[T comparable](a, b map[T]*Element[T]) error {
	for value, element := range a {
		counterpart, ok := b[value]
		if !ok {
			b[value] = element.Clone()
			continue
		}

		if err := element.MergeTimestamps(counterpart); err != nil {
			return err
		}
	}

	for value, element := range b {
		if _, ok := a[value]; !ok {
			a[value] = element.Clone()
		}
	}

	return nil
}

// Union returns a new set containing the merge of a and b. Neither input is
// modified. The result reads the clock of a.
func Union[T comparable](a, b *Set[T]) *Set[T] {
	result := New[T](a.clock)

	if a == b {
		a.mu.RLock()
		defer a.mu.RUnlock()
	} else {
		first, second := lockOrder(a, b)
		first.mu.RLock()
		defer first.mu.RUnlock()
		second.mu.RLock()
		defer second.mu.RUnlock()
	}

	unionInto(result.adds, a.adds, b.adds)
	unionInto(result.removes, a.removes, b.removes)

	return result
}

func unionInto[T comparable](dst map[T]*Element[T], logs ...map[T]*Element[T]) {
	for _, log := range logs {
		for value, element := range log {
			if existing, ok := dst[value]; ok {
				existing.AddTimestamps(element.timestamps...)
				continue
			}
			dst[value] = element.Clone()
		}
	}
}

func lockOrder[T comparable](a, b *Set[T]) (*Set[T], *Set[T]) {
	if a.id < b.id {
		return a, b
	}

	return b, a
}
