package dbtypes

import (
	"database/sql/driver"
	"strings"
)

// Address is the delivery address of an order.
type Address struct {
	Line1      string   `json:"line1"`
	Line2      string   `json:"line2,omitempty"`
	City       string   `json:"city"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postal_code,omitempty"`
	Country    string   `json:"country,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
}

func (a *Address) Scan(src any) error { return scanJSON(a, src) }

func (a Address) Value() (driver.Value, error) { return jsonValue(a) }

// Summary is the single line shown to riders and in notifications.
func (a Address) Summary() string {
	parts := make([]string, 0, 4)
	for _, part := range []string{a.Line1, a.Line2, a.City, a.State} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}
