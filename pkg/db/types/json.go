// Package dbtypes holds column types stored as JSON documents. Postgres keeps
// them as jsonb, sqlite as text.
package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

func scanJSON[T any](dst *T, src any) error {
	var zero T
	var raw []byte
	switch v := src.(type) {
	case nil:
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("dbtypes: cannot scan %T into %T", src, dst)
	}
	if len(raw) == 0 {
		*dst = zero
		return nil
	}
	next := zero
	if err := json.Unmarshal(raw, &next); err != nil {
		return fmt.Errorf("dbtypes: decode %T: %w", dst, err)
	}
	*dst = next
	return nil
}

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
