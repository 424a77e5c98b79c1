package auth

import (
	"Hearth/internal/entity"
	"Hearth/pkg/log"
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mockAccSecret = "MockAccessSecret"

var ctx = context.Background()

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestIssueAndParseAccessToken(t *testing.T) {
	svc := NewService(mockAccSecret, log.Nop())
	want := entity.Identity{UserID: 77, Role: entity.RoleAdmin}

	token, err := svc.IssueAccessToken(ctx, want, time.Minute)
	require.NoError(t, err)
	got, err := svc.ParseAccessToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseAccessTokenRejects(t *testing.T) {
	svc := NewService(mockAccSecret, log.Nop())
	exp := time.Now().Add(time.Minute).Unix()
	key := []byte(mockAccSecret)

	cases := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not.a.jwt"},
		{name: "wrong secret", token: sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"user_id": 1, "role": "USER", "exp": exp})},
		{name: "expired", token: sign(t, jwt.SigningMethodHS256, key, jwt.MapClaims{"user_id": 1, "role": "USER", "exp": time.Now().Add(-time.Minute).Unix()})},
		{name: "no exp", token: sign(t, jwt.SigningMethodHS256, key, jwt.MapClaims{"user_id": 1, "role": "USER"})},
		{name: "unsigned", token: sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"user_id": 1, "role": "USER", "exp": exp})},
		{name: "user id as string", token: sign(t, jwt.SigningMethodHS256, key, jwt.MapClaims{"user_id": "1", "role": "USER", "exp": exp})},
		{name: "fractional user id", token: sign(t, jwt.SigningMethodHS256, key, jwt.MapClaims{"user_id": 1.5, "role": "USER", "exp": exp})},
		{name: "user id past int64", token: sign(t, jwt.SigningMethodHS256, key, jwt.MapClaims{"user_id": float64(1 << 63), "role": "USER", "exp": exp})},
		{name: "negative user id", token: sign(t, jwt.SigningMethodHS256, key, jwt.MapClaims{"user_id": -3, "role": "USER", "exp": exp})},
		{name: "unknown role", token: sign(t, jwt.SigningMethodHS256, key, jwt.MapClaims{"user_id": 1, "role": "ROOT", "exp": exp})},
		{name: "missing role", token: sign(t, jwt.SigningMethodHS256, key, jwt.MapClaims{"user_id": 1, "exp": exp})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ParseAccessToken(ctx, tc.token)
			assert.Error(t, err)
		})
	}
}

func TestParseAccessTokenLargestExactUserID(t *testing.T) {
	svc := NewService(mockAccSecret, log.Nop())
	token := sign(t, jwt.SigningMethodHS256, []byte(mockAccSecret), jwt.MapClaims{
		"user_id": float64(1 << 53),
		"role":    "ADMIN",
		"exp":     time.Now().Add(time.Minute).Unix(),
	})

	got, err := svc.ParseAccessToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, entity.Identity{UserID: 1 << 53, Role: entity.RoleAdmin}, got)
}

func TestParseAccessTokenErrorKinds(t *testing.T) {
	svc := NewService(mockAccSecret, log.Nop())

	_, err := svc.ParseAccessToken(ctx, "")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = svc.ParseAccessToken(ctx, "not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
