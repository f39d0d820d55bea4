package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/grundyhq/grundy-backend/pkg/config"
)

// Leeway tolerates clock skew between the token issuer and the API.
const Leeway = 30 * time.Second

var (
	ErrSecretRequired = errors.New("jwt secret is required")
	ErrIssuerRequired = errors.New("jwt issuer is required")
	ErrInvalidTTL     = errors.New("jwt expiration minutes must be positive")
	ErrMissingSubject = errors.New("token subject is required")
	ErrInvalidRole    = errors.New("invalid role")
)

var signingMethod = jwt.SigningMethodHS256

// MintAccessToken signs an HS256 access token valid for cfg.ExpirationMinutes
// from now.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	key, err := signingKey(cfg)
	if err != nil {
		return "", err
	}
	if cfg.Issuer == "" {
		return "", ErrIssuerRequired
	}
	if cfg.ExpirationMinutes <= 0 {
		return "", ErrInvalidTTL
	}
	subject := strings.TrimSpace(payload.Subject)
	if subject == "" {
		return "", ErrMissingSubject
	}
	if !payload.Role.IsValid() {
		return "", fmt.Errorf("%w %q", ErrInvalidRole, payload.Role)
	}

	id := strings.TrimSpace(payload.JTI)
	if id == "" {
		id = uuid.NewString()
	}
	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute
	token := jwt.NewWithClaims(signingMethod, AccessTokenClaims{
		Role: payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry and returns the
// claims. Tokens without an expiry or subject are rejected.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	key, err := signingKey(cfg)
	if err != nil {
		return nil, err
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	var claims AccessTokenClaims
	if _, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return key, nil }, opts...); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrMissingSubject
	}
	if !claims.Role.IsValid() {
		return nil, fmt.Errorf("%w %q", ErrInvalidRole, claims.Role)
	}
	return &claims, nil
}

func signingKey(cfg config.JWTConfig) ([]byte, error) {
	if cfg.Secret == "" {
		return nil, ErrSecretRequired
	}
	return []byte(cfg.Secret), nil
}
