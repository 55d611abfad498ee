package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNoUserID = errors.New("metadata has no user id")

// ParticipantMetadata is the blob attached to every room participant at
// connection time. It is the only channel carrying the host user identity,
// so it must round-trip exactly.
type ParticipantMetadata struct {
	UserID        UserID `json:"fvttUserId"`
	UseExternalAV bool   `json:"useExternalAV"`
}

func (m ParticipantMetadata) Encode() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode participant metadata: %w", err)
	}
	return string(raw), nil
}

// DecodeParticipantMetadata parses a participant's metadata blob. A blob
// without a user id resolves to ErrNoUserID; the caller must treat that
// participant as non-host-addressable.
func DecodeParticipantMetadata(raw string) (ParticipantMetadata, error) {
	var m ParticipantMetadata
	if raw == "" {
		return m, ErrNoUserID
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return ParticipantMetadata{}, fmt.Errorf("decode participant metadata: %w", err)
	}
	if m.UserID == "" {
		return ParticipantMetadata{}, ErrNoUserID
	}
	return m, nil
}
