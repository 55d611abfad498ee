package domain

import (
	"strings"

	"github.com/google/uuid"
)

type RoomName string

// NewRoomName generates a random 32-character meeting room identifier,
// used when no room has been configured yet.
func NewRoomName() RoomName {
	id := uuid.NewString() + uuid.NewString()
	return RoomName(strings.ReplaceAll(id, "-", "")[:32])
}
