package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Role is the caller class carried in access tokens.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleMerchant Role = "merchant"
	RoleOperator Role = "operator"
)

// IsValid reports whether the role is one the API understands.
func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RoleMerchant, RoleOperator:
		return true
	default:
		return false
	}
}

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	Subject string
	Role    Role
	JTI     string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}
