// Package enums holds the string enums persisted in order, refund, ledger and
// outbox rows. Values are stored verbatim, so renaming one needs a migration.
package enums

import (
	"fmt"
	"slices"
)

func member[T ~string](value T, set []T) bool {
	return slices.Contains(set, value)
}

func parse[T ~string](kind, raw string, set []T) (T, error) {
	if value := T(raw); member(value, set) {
		return value, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
