package middleware

import (
	"net/http"
	"slices"

	"github.com/grundyhq/grundy-backend/api/responses"
	"github.com/grundyhq/grundy-backend/pkg/auth"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
	"github.com/grundyhq/grundy-backend/pkg/logger"
)

// RequireRole admits requests whose authenticated role is one of allowed.
// A request that reached it without any identity gets 401 rather than 403.
func RequireRole(logg *logger.Logger, allowed ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			if !slices.Contains(allowed, id.Role) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted").
					WithDetails(map[string]any{"role": id.Role}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
