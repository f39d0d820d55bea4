package middleware

import (
	"context"

	"github.com/grundyhq/grundy-backend/pkg/auth"
)

// Identity is the caller resolved from a bearer token.
type Identity struct {
	Subject string
	Role    auth.Role
}

type identityKey struct{}

// WithIdentity stores id on ctx. Auth calls it; tests use it to skip tokens.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext reports false for anonymous requests.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.Subject != ""
}

// SubjectFromContext returns the customer or operator id, or "".
func SubjectFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.Subject
}

func RoleFromContext(ctx context.Context) auth.Role {
	id, _ := IdentityFromContext(ctx)
	return id.Role
}
