package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/stock-ledger/internal/identity"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims are the JWT claims the identity provider issues. The ledger only
// consumes tokens; issuance beyond the test helper lives elsewhere.
type Claims struct {
	Role     string `json:"role"`
	Approved bool   `json:"approved"`
	jwt.RegisteredClaims
}

// Principal maps the claims onto a caller principal. Unknown roles demote to
// read-only rather than erroring, so a new role upstream cannot break reads.
func (c *Claims) Principal() identity.Principal {
	role := identity.Role(c.Role)
	switch role {
	case identity.RoleAdmin, identity.RoleVendor:
	default:
		role = identity.RoleOther
	}
	return identity.Principal{
		ID:       c.Subject,
		Role:     role,
		Approved: c.Approved,
	}
}

// TokenValidator validates bearer tokens issued with a shared HS256 secret.
type TokenValidator struct {
	secretKey []byte
}

func NewTokenValidator(secretKey string) *TokenValidator {
	return &TokenValidator{secretKey: []byte(secretKey)}
}

// Validate parses and verifies a token and returns its claims.
func (v *TokenValidator) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Issue signs a token for the given principal. Used by tests and local
// tooling; production tokens come from the identity provider.
func (v *TokenValidator) Issue(p identity.Principal, expiry time.Duration) (string, error) {
	claims := Claims{
		Role:     string(p.Role),
		Approved: p.Approved,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   p.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secretKey)
}
