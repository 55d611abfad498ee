package core

import "context"

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// TrackSource distinguishes what a track captures, not how it is encoded.
type TrackSource string

const (
	TrackSourceMicrophone  TrackSource = "microphone"
	TrackSourceCamera      TrackSource = "camera"
	TrackSourceScreenShare TrackSource = "screen_share"
	TrackSourceScreenAudio TrackSource = "screen_share_audio"
)

// Track is a single published media stream, local or remote. Attachment
// state is tracked on the handle so callers can keep the single-attachment
// invariant without extra bookkeeping.
type Track interface {
	SID() string
	Kind() TrackKind
	Source() TrackSource
	IsMuted() bool

	Attach(el MediaElement)
	Detach()
	IsAttachedTo(el MediaElement) bool

	// Bitrate reports the current receive/send rate in bits per second,
	// zero when unknown.
	Bitrate() int
}

// LocalTrack is a track captured on this client and owned by the room
// lifecycle manager. Stop releases the capture hardware.
type LocalTrack interface {
	Track
	Mute(ctx context.Context) error
	Unmute(ctx context.Context) error
	Stop()
}

// LocalAudioTrack restarts capture in place with updated parameters rather
// than republishing, avoiding renegotiation churn.
type LocalAudioTrack interface {
	LocalTrack
	Restart(ctx context.Context, opts AudioCaptureOptions) error
}

type LocalVideoTrack interface {
	LocalTrack
	Restart(ctx context.Context, opts VideoCaptureOptions) error
}

// RemoteTrack is a subscribed track published by another participant.
type RemoteTrack interface {
	Track
}

// TrackPublication is the publish-side record of a track as seen through
// room events. Track may be nil before subscription settles.
type TrackPublication interface {
	SID() string
	Kind() TrackKind
	Source() TrackSource
	IsMuted() bool
	Track() Track
}

type Participant interface {
	// Identity is the RTC-domain identity, distinct from the host user id
	// carried in Metadata.
	Identity() string
	Metadata() string
	ConnectionQuality() ConnectionQuality
	Publications() []TrackPublication
	IsLocal() bool
}

type RemoteParticipant interface {
	Participant
}

// LocalParticipant publishes and unpublishes this client's tracks.
type LocalParticipant interface {
	Participant
	PublishTrack(ctx context.Context, track LocalTrack, opts TrackPublishOptions) error
	UnpublishTrack(ctx context.Context, track LocalTrack) error
	IsPublished(track LocalTrack) bool
}

// RoomCallbacks wires room events into the lifecycle manager. Unset
// callbacks are skipped. Events fire in delivery order and are handled
// synchronously by the receiver.
type RoomCallbacks struct {
	OnParticipantConnected     func(p RemoteParticipant)
	OnParticipantDisconnected  func(p RemoteParticipant)
	OnTrackSubscribed          func(track RemoteTrack, pub TrackPublication, p RemoteParticipant)
	OnTrackUnsubscribed        func(track RemoteTrack, pub TrackPublication, p RemoteParticipant)
	OnTrackMuteChanged         func(pub TrackPublication, p Participant)
	OnConnectionQualityChanged func(q ConnectionQuality, p Participant)
	OnDisconnected             func(reason DisconnectReason)
	OnReconnecting             func()
	OnReconnected              func()
}

type ConnectOptions struct {
	AutoSubscribe bool
}

// Room is the live RTC session handle. At most one instance is alive per
// client; it is created once and re-entered on reconnect.
type Room interface {
	Connect(ctx context.Context, url, token string, opts ConnectOptions) error
	// Disconnect leaves the room. Local track hardware is never stopped
	// here; the caller decides whether tracks stay warm.
	Disconnect()
	State() ConnectionState
	LocalParticipant() LocalParticipant
	RemoteParticipants() []RemoteParticipant
	SetCallbacks(cb RoomCallbacks)
}

type RoomOptions struct {
	AdaptiveStream  bool
	Dynacast        bool
	ForceRelay      bool
	PublishDefaults TrackPublishOptions
}

// RoomFactory creates room handles. Implemented by the RTC adapter.
type RoomFactory interface {
	NewRoom(opts RoomOptions) Room
}
