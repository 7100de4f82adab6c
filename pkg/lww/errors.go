package lww

import (
	"reflect"

	"github.com/iotaledger/hive.go/ierrors"
)

var (
	// ErrUnhashable is returned by Add and Remove when the value cannot be
	// used as a map key (an interface value holding a slice, map or func).
	ErrUnhashable = ierrors.New("value is not hashable")

	// ErrValueMismatch is returned when timestamps of two elements with
	// different values are merged.
	ErrValueMismatch = ierrors.New("element values do not match")

	// ErrEmptyHistory is returned when an element would be created or
	// extended from an empty timestamp collection.
	ErrEmptyHistory = ierrors.New("timestamp history is empty")
)

// hashable reports whether value can be used as a map key without panicking.
func hashable(value any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	m := make(map[any]struct{}, 1)
	m[value] = struct{}{}

	return len(m) == 1
}

// needsHashCheck reports whether hashing a value of type t can panic at
// runtime. Only interface types, or composites containing them, can.
func needsHashCheck(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface:
		return true
	case reflect.Array:
		return needsHashCheck(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if needsHashCheck(t.Field(i).Type) {
				return true
			}
		}
	}

	return false
}
