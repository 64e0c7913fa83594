package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_SignAndVerify(t *testing.T) {
	v, err := NewVerifier("secret", "authenticated")
	require.NoError(t, err)

	token, err := v.Sign("user-1", time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "authenticated", claims.Role)
}

func TestVerifier_Rejects(t *testing.T) {
	v, err := NewVerifier("secret", "authenticated")
	require.NoError(t, err)

	expired, err := v.Sign("user-1", -time.Minute)
	require.NoError(t, err)

	other, err := NewVerifier("other-secret", "authenticated")
	require.NoError(t, err)
	foreign, err := other.Sign("user-1", time.Hour)
	require.NoError(t, err)

	wrongAud, err := NewVerifier("secret", "anon")
	require.NoError(t, err)
	anon, err := wrongAud.Sign("user-1", time.Hour)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := map[string]string{
		"expired":        expired,
		"wrong secret":   foreign,
		"wrong audience": anon,
		"no subject":     noSubject,
		"garbage":        "not-a-jwt",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	_, err := NewVerifier(" ", "")
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer abc", want: "abc", ok: true},
		{header: "bearer abc", want: "abc", ok: true},
		{header: "Basic abc", ok: false},
		{header: "Bearer ", ok: false},
		{header: "", ok: false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}
