package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestAccessToken_Claims(t *testing.T) {
	signed, err := AccessToken(context.Background(), "devkey", "devsecret", "meeting1", "Alice", `{"fvttUserId":"u1"}`)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	var claims tokenClaims
	token, err := jwt.ParseWithClaims(signed, &claims, func(tk *jwt.Token) (any, error) {
		return []byte("devsecret"), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	require.Equal(t, "devkey", claims.Issuer)
	require.Equal(t, "Alice", claims.Subject)
	require.Equal(t, "Alice", claims.ID)
	require.True(t, claims.Video.RoomJoin)
	require.Equal(t, "meeting1", claims.Video.Room)
	require.Equal(t, `{"fvttUserId":"u1"}`, claims.Metadata)

	// Validity window: nbf sits in the past to tolerate skewed clocks.
	now := time.Now()
	require.True(t, claims.NotBefore.Before(now))
	require.InDelta(t, tokenClockBuffer.Seconds(), now.Sub(claims.NotBefore.Time).Seconds(), 5)
	require.InDelta(t, tokenTTL.Seconds(), claims.ExpiresAt.Sub(now).Seconds(), 5)
}

func TestAccessToken_WrongSecretRejected(t *testing.T) {
	signed, err := AccessToken(context.Background(), "devkey", "devsecret", "meeting1", "Alice", "")
	require.NoError(t, err)

	_, err = jwt.ParseWithClaims(signed, &tokenClaims{}, func(tk *jwt.Token) (any, error) {
		return []byte("othersecret"), nil
	})
	require.Error(t, err)
}

func TestAccessToken_MissingCredentials(t *testing.T) {
	for _, tc := range []struct{ key, secret string }{
		{"", "secret"},
		{"key", ""},
		{"", ""},
	} {
		_, err := AccessToken(context.Background(), tc.key, tc.secret, "room", "user", "")
		require.True(t, errors.Is(err, ErrMissingAPICredentials))
	}
}
