// Package auth obtains signed join credentials: either self-signed from a
// locally-configured API secret, or delegated to a remote auth service.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

var ErrMissingAPICredentials = errors.New("api key or secret is not set")

// TokenFunc produces a signed join credential for the given room. An empty
// token always pairs with a non-nil error.
type TokenFunc func(ctx context.Context, apiKey, apiSecret, room, userName, metadata string) (string, error)

// Expiry policy: tokens live long enough to cover a full session, with a
// generous not-before buffer in case the user's clock is set incorrectly.
const (
	tokenTTL         = 10 * time.Hour
	tokenClockBuffer = 15 * time.Minute
)

type videoGrant struct {
	RoomJoin bool   `json:"roomJoin"`
	Room     string `json:"room"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Video    videoGrant `json:"video"`
	Metadata string     `json:"metadata"`
}

// AccessToken signs an HS256 join token locally. The user name doubles as
// JWT subject and id; metadata carries the host identity blob.
func AccessToken(_ context.Context, apiKey, apiSecret, room, userName, metadata string) (string, error) {
	if apiKey == "" || apiSecret == "" {
		return "", ErrMissingAPICredentials
	}

	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    apiKey,
			Subject:   userName,
			ID:        userName,
			NotBefore: jwt.NewNumericDate(now.Add(-tokenClockBuffer)),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
		Video:    videoGrant{RoomJoin: true, Room: room},
		Metadata: metadata,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(apiSecret))
	if err != nil {
		return "", err
	}
	log.Debug().Str("module", "auth").Str("room", room).Str("user", userName).Msg("signed access token")
	return signed, nil
}
