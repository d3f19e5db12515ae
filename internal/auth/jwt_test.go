package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/stock-ledger/internal/identity"
)

const testSecret = "test-secret-key-for-jwt-signing"

func TestTokenValidator_RoundTrip(t *testing.T) {
	v := NewTokenValidator(testSecret)

	p := identity.Principal{ID: "vendor-1", Role: identity.RoleVendor, Approved: true}
	token, err := v.Issue(p, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "vendor-1", claims.Subject)
	assert.Equal(t, p, claims.Principal())
}

func TestTokenValidator_ExpiredToken(t *testing.T) {
	v := NewTokenValidator(testSecret)

	token, err := v.Issue(identity.Principal{ID: "u1", Role: identity.RoleOther}, -time.Minute)
	require.NoError(t, err)

	_, err = v.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenValidator_WrongSecret(t *testing.T) {
	v := NewTokenValidator(testSecret)
	other := NewTokenValidator("a-completely-different-secret")

	token, err := other.Issue(identity.Principal{ID: "u1", Role: identity.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	_, err = v.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenValidator_Garbage(t *testing.T) {
	v := NewTokenValidator(testSecret)

	_, err := v.Validate("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClaims_PrincipalRoleMapping(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		approved bool
		want     identity.Role
	}{
		{"admin", "admin", false, identity.RoleAdmin},
		{"approved vendor", "vendor", true, identity.RoleVendor},
		{"customer", "customer", false, identity.RoleOther},
		{"unknown role demotes", "superuser", true, identity.RoleOther},
		{"empty role", "", false, identity.RoleOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Claims{Role: tt.role, Approved: tt.approved}
			p := c.Principal()
			assert.Equal(t, tt.want, p.Role)
			assert.Equal(t, tt.approved, p.Approved)
		})
	}
}
