package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/grundyhq/grundy-backend/api/responses"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
	"github.com/grundyhq/grundy-backend/pkg/logger"
)

// Recoverer converts a handler panic into an INTERNAL envelope.
// http.ErrAbortHandler is re-raised so net/http still aborts the connection.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err, ok := rec.(error)
				if !ok {
					err = errors.New(fmt.Sprint(rec))
				}
				err = fmt.Errorf("panic serving %s %s: %w", r.Method, r.URL.Path, err)
				if logg != nil {
					logg.Error(r.Context(), "panic recovered", err)
				}
				responses.WriteError(r.Context(), nil, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "internal error"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
