package core

import "github.com/silentmark/fvtt-module-avclient-livekit/internal/domain"

type NotifyLevel int

const (
	NotifyInfo NotifyLevel = iota
	NotifyWarn
	NotifyError
)

// SessionContext is the injected capability through which the lifecycle
// manager reaches host state: users, permissions, per-user AV settings,
// presence, and notifications. It replaces ambient host globals so the
// core is testable without a host runtime.
type SessionContext interface {
	CurrentUserID() domain.UserID
	CurrentUserName() string
	User(id domain.UserID) (*domain.User, bool)
	// IsPrivileged reports whether the given user holds the GM-equivalent
	// role that may issue breakout and connection commands.
	IsPrivileged(id domain.UserID) bool
	// ActivateUser force-marks a host user active; joining a conference
	// implies presence.
	ActivateUser(id domain.UserID)

	CanUserBroadcastAudio(id domain.UserID) bool
	CanUserBroadcastVideo(id domain.UserID) bool
	CanUserShareAudio(id domain.UserID) bool
	CanUserShareVideo(id domain.UserID) bool
	// VoiceModeAlways reports whether the client voice mode is "always"
	// as opposed to push-to-talk.
	VoiceModeAlways() bool

	AudioSourceID() string
	VideoSourceID() string
	AudioSinkID() string
	UserVolume(id domain.UserID) float64
	MuteAll() bool

	// Durable connection settings, host-persisted. Writes are best effort;
	// failures are logged by the caller, never retried.
	ConnectionSettings() domain.ConnectionSettings
	SaveConnectionSettings(s domain.ConnectionSettings) error

	// Durable breakout registry, host-persisted, shared between clients.
	BreakoutRoom(id domain.UserID) string
	SetBreakoutRoom(id domain.UserID, room string) error
	// BreakoutUsers lists every user with an active breakout assignment,
	// present in the caller's room or not.
	BreakoutUsers() []domain.UserID

	Notify(level NotifyLevel, message string)
	// BroadcastActivity publishes the local muted/hidden state to the
	// host presence system. Nil fields are left unchanged.
	BroadcastActivity(muted, hidden *bool)
	// HandleUserActivity applies a remote user's muted/hidden state to the
	// host presence system, used for participants delegating to an
	// external AV client.
	HandleUserActivity(id domain.UserID, muted, hidden *bool)

	// PromptExternalJoin offers the user a deep link into the external
	// web client instead of a local session.
	PromptExternalJoin(url string)
}

// ViewBridge is the data-driving side of the host's camera views: locating
// media elements and flipping indicator state. Purely cosmetic wiring stays
// on the host side of this boundary.
type ViewBridge interface {
	// VideoElement returns the per-user video element, or nil when the
	// view has not been rendered yet.
	VideoElement(id domain.UserID) VideoElement
	// AudioElement returns (lazily creating, when the user's video element
	// exists) the per-user audio element for the given source.
	AudioElement(id domain.UserID, source TrackSource) AudioElement

	SetMuteIndicator(id domain.UserID, kind TrackKind, muted bool)
	SetQualityIndicator(id domain.UserID, q ConnectionQuality)
	SetConnectionButtons(connected bool)

	// Render requests a full camera-view re-render; RefreshView a single
	// user's view. Callers debounce.
	Render()
	RefreshView(id domain.UserID)
}

// SocketRelay is the host-provided pub/sub channel used for GM commands
// and breakout propagation.
type SocketRelay interface {
	// Emit sends to the listed recipients, or to everyone when none are
	// given. The sender does not receive its own messages.
	Emit(msg domain.SocketMessage, recipients ...domain.UserID) error
	// OnMessage registers the handler for inbound messages. The sender id
	// is attached by the relay, not the payload.
	OnMessage(fn func(msg domain.SocketMessage, from domain.UserID))
}
