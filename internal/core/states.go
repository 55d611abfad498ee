// Package core defines the contracts between the room lifecycle manager,
// the host session, and the underlying RTC implementation. Interfaces live
// here; implementations live in the adapters.
package core

import "fmt"

// ConnectionState is owned exclusively by the room lifecycle manager. It
// transitions only on connect/disconnect outcomes or room-reported events.
type ConnectionState int

const (
	ConnectionDisconnected ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	default:
		return fmt.Sprintf("%d", int(s))
	}
}

type ConnectionQuality int

const (
	QualityUnknown ConnectionQuality = iota
	QualityPoor
	QualityGood
	QualityExcellent
	QualityLost
)

func (q ConnectionQuality) String() string {
	switch q {
	case QualityPoor:
		return "poor"
	case QualityGood:
		return "good"
	case QualityExcellent:
		return "excellent"
	case QualityLost:
		return "lost"
	default:
		return "unknown"
	}
}

// DisconnectReason is the machine-readable reason attached to a terminal
// room disconnect, when the server provided one.
type DisconnectReason int

const (
	DisconnectUnknown DisconnectReason = iota
	DisconnectClientInitiated
	DisconnectDuplicateIdentity
	DisconnectServerShutdown
	DisconnectParticipantRemoved
	DisconnectRoomDeleted
	DisconnectStateMismatch
	DisconnectJoinFailure
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectClientInitiated:
		return "CLIENT_INITIATED"
	case DisconnectDuplicateIdentity:
		return "DUPLICATE_IDENTITY"
	case DisconnectServerShutdown:
		return "SERVER_SHUTDOWN"
	case DisconnectParticipantRemoved:
		return "PARTICIPANT_REMOVED"
	case DisconnectRoomDeleted:
		return "ROOM_DELETED"
	case DisconnectStateMismatch:
		return "STATE_MISMATCH"
	case DisconnectJoinFailure:
		return "JOIN_FAILURE"
	default:
		return "UNKNOWN"
	}
}
