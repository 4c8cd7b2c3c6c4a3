package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/carbon-credits/internal/model"
)

func sign(t *testing.T, method jwt.SigningMethod, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(role string) Claims {
	return Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestParse(t *testing.T) {
	p := NewParser("secret")

	principal, err := p.Parse(sign(t, jwt.SigningMethodHS256, "secret", validClaims("operator")))
	require.NoError(t, err)
	assert.Equal(t, model.Principal{UserID: "user-1", Role: model.RoleOperator}, principal)
	assert.True(t, principal.CanTransact())
}

func TestParse_Rejects(t *testing.T) {
	p := NewParser("secret")

	expired := validClaims("ADMIN")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := validClaims("ADMIN")
	noExpiry.ExpiresAt = nil

	noSubject := validClaims("ADMIN")
	noSubject.Subject = ""

	cases := map[string]string{
		"wrong secret": sign(t, jwt.SigningMethodHS256, "other", validClaims("ADMIN")),
		"wrong method": sign(t, jwt.SigningMethodHS512, "secret", validClaims("ADMIN")),
		"expired":      sign(t, jwt.SigningMethodHS256, "secret", expired),
		"no expiry":    sign(t, jwt.SigningMethodHS256, "secret", noExpiry),
		"no subject":   sign(t, jwt.SigningMethodHS256, "secret", noSubject),
		"unknown role": sign(t, jwt.SigningMethodHS256, "secret", validClaims("ROOT")),
		"not a jwt":    "garbage",
		"empty":        "",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Parse(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
