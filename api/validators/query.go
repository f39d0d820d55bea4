package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
)

// QueryLimit reads the "limit" query parameter used by operator listings.
// A missing value yields def; anything outside 1..max is rejected.
func QueryLimit(r *http.Request, def, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "limit must be an integer").
			WithDetails(map[string]any{"field": "limit"})
	}
	if limit < 1 || limit > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "limit out of range").
			WithDetails(map[string]any{"field": "limit", "min": 1, "max": max})
	}
	return limit, nil
}
