package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrMissingAccountToken = errors.New("account token is not set")

// ValidatedUser is the auth service's account record.
type ValidatedUser struct {
	ID               string   `json:"id"`
	AppID            string   `json:"app_id"`
	FullName         string   `json:"full_name"`
	ThumbURL         string   `json:"thumb_url"`
	Vanity           string   `json:"vanity"`
	ActiveMembership bool     `json:"active_membership"`
	ActiveTier       string   `json:"active_tier"`
	ClientRoles      []string `json:"client_roles"`
	LastUpdated      string   `json:"last_updated"`
}

// APIError is the auth service's structured error body.
type APIError struct {
	ErrorID    string `json:"error_id"`
	StatusCode int    `json:"status_code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth service error %d (%s): %s", e.StatusCode, e.ErrorID, e.Message)
}

// AuthService issues join credentials and validates accounts against a
// remote authentication server for the managed server type.
type AuthService struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewAuthService(baseURL, accountToken string) *AuthService {
	return &AuthService{
		baseURL: baseURL,
		token:   accountToken,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// TokenFunc adapts the service to the credential-provider contract. API key
// and secret are unused: the account token authenticates the request.
func (s *AuthService) TokenFunc(ctx context.Context, _, _, room, userName, metadata string) (string, error) {
	if s.token == "" {
		return "", ErrMissingAccountToken
	}

	body, err := json.Marshal(map[string]string{
		"id":       s.token,
		"room":     room,
		"userName": userName,
		"metadata": metadata,
	})
	if err != nil {
		return "", fmt.Errorf("encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/livekit/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request access token: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Error().Str("module", "auth").Int("status", resp.StatusCode).Msg("token request rejected")
		return "", fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	// The credential arrives as the plain-text response body.
	return string(raw), nil
}

// Validate checks the configured account token. A structured service error
// is returned as *APIError.
func (s *AuthService) Validate(ctx context.Context) (*ValidatedUser, error) {
	body, err := json.Marshal(map[string]string{"id": s.token})
	if err != nil {
		return nil, fmt.Errorf("encode validate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/validate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("validate account: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read validate response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil {
			apiErr.Message = string(raw)
		}
		return nil, apiErr
	}

	var user ValidatedUser
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("decode validate response: %w", err)
	}
	return &user, nil
}
