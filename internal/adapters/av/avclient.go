// Package av is the host-facing AV client surface: the operations the
// tabletop's AV subsystem invokes, translated onto the room lifecycle
// manager. It owns no RTC state of its own.
package av

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/client"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/core"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/domain"
)

// VoiceMode mirrors the host's voice activation setting.
type VoiceMode string

const (
	VoiceModeAlways   VoiceMode = "always"
	VoiceModeActivity VoiceMode = "activity"
	VoiceModePTT      VoiceMode = "ptt"
)

// Setting keys the host reports through OnSettingsChanged.
const (
	SettingAudioSource = "client.audioSrc"
	SettingVideoSource = "client.videoSrc"
	SettingAudioSink   = "client.audioSink"
	SettingVoiceMode   = "client.voiceMode"
	SettingServer      = "world.server"
)

// Client adapts the lifecycle manager to the host AV-client contract.
type Client struct {
	lk      *client.Client
	session core.SessionContext
	devices core.MediaDevices
}

func NewClient(lk *client.Client, session core.SessionContext, devices core.MediaDevices) *Client {
	return &Client{lk: lk, session: session, devices: devices}
}

// Initialize performs one-time setup: room creation, local capture and
// the initial presence broadcast. With external AV delegation, all local
// media handling is skipped.
func (c *Client) Initialize(ctx context.Context, voiceMode VoiceMode) error {
	if c.lk.InitState() != client.Uninitialized {
		return errors.New("already initialized")
	}
	c.lk.SetInitState(client.Initializing)

	// Voice activity detection is not supported; fall back to push to
	// talk rather than an open mic.
	if voiceMode == VoiceModeActivity {
		log.Warn().Str("module", "av").Msg("voice activity mode unsupported, falling back to push-to-talk")
		voiceMode = VoiceModePTT
	}
	if s, ok := c.session.(interface{ SetVoiceModeAlways(bool) }); ok {
		s.SetVoiceModeAlways(voiceMode == VoiceModeAlways)
	}

	if c.lk.UseExternalAV() {
		log.Debug().Str("module", "av").Msg("external AV client in use, skipping local media setup")
		c.lk.SetInitState(client.Initialized)
		return nil
	}

	c.lk.InitializeRoom()
	c.lk.InitializeLocalTracks(ctx)

	muted := voiceMode != VoiceModeAlways
	hidden := false
	c.session.BroadcastActivity(&muted, &hidden)

	c.lk.SetInitState(client.Initialized)
	return nil
}

func (c *Client) Connect(ctx context.Context) (bool, error) {
	ok, err := c.lk.Connect(ctx)
	if errors.Is(err, client.ErrConnectInFlight) {
		log.Warn().Str("module", "av").Msg("connect already in progress")
		return false, nil
	}
	return ok, err
}

func (c *Client) Disconnect() (bool, error) {
	ok, err := c.lk.Disconnect()
	if errors.Is(err, client.ErrDisconnectInFlight) {
		log.Warn().Str("module", "av").Msg("disconnect already in progress")
		return false, nil
	}
	return ok, err
}

// deviceMap flattens an enumeration into the id-to-label map the host
// settings UI consumes.
func (c *Client) deviceMap(ctx context.Context, kind core.DeviceKind) (map[string]string, error) {
	infos, err := c.devices.ListDevices(ctx, kind)
	if err != nil {
		log.Error().Err(err).Str("module", "av").Str("kind", string(kind)).Msg("device enumeration failed")
		return nil, err
	}
	out := make(map[string]string, len(infos))
	for _, d := range infos {
		out[d.DeviceID] = d.Label
	}
	return out, nil
}

func (c *Client) AudioSinks(ctx context.Context) (map[string]string, error) {
	return c.deviceMap(ctx, core.DeviceAudioOutput)
}

func (c *Client) AudioSources(ctx context.Context) (map[string]string, error) {
	return c.deviceMap(ctx, core.DeviceAudioInput)
}

func (c *Client) VideoSources(ctx context.Context) (map[string]string, error) {
	return c.deviceMap(ctx, core.DeviceVideoInput)
}

func (c *Client) IsAudioEnabled() bool {
	return c.session.CanUserBroadcastAudio(c.session.CurrentUserID())
}

func (c *Client) IsVideoEnabled() bool {
	return c.session.CanUserBroadcastVideo(c.session.CurrentUserID())
}

// ToggleAudio is the user-initiated microphone switch.
func (c *Client) ToggleAudio(ctx context.Context, enable bool) {
	c.lk.SetAudioEnabledState(ctx, enable)
}

// ToggleBroadcast is driven by the host's activation logic (push-to-talk
// key state). With voice mode always it mirrors ToggleAudio.
func (c *Client) ToggleBroadcast(ctx context.Context, broadcast bool) {
	c.lk.SetAudioEnabledState(ctx, broadcast)
}

func (c *Client) ConnectedUsers() []domain.UserID {
	return c.lk.ConnectedUsers()
}

// MediaStreamForUser returns the user's current audio and video tracks.
// Either may be nil when the user publishes nothing of that kind.
func (c *Client) MediaStreamForUser(id domain.UserID) (audio, video core.Track) {
	return c.lk.UserAudioTrack(id), c.lk.UserVideoTrack(id)
}

// LevelsStreamForUser is unsupported: remote audio arrives as encoded RTP
// and no level meter is derived from it.
func (c *Client) LevelsStreamForUser(id domain.UserID) core.Track {
	log.Debug().Str("module", "av").Str("user", string(id)).Msg("levels stream not supported")
	return nil
}

// ToggleVideo pauses or resumes the camera publication and reports the
// hidden state to presence.
func (c *Client) ToggleVideo(ctx context.Context, enable bool) {
	if enable {
		c.lk.ChangeVideoSource(ctx)
	}
	track := c.lk.UserVideoTrack(c.session.CurrentUserID())
	lt, ok := track.(core.LocalTrack)
	if !ok || lt == nil {
		log.Debug().Str("module", "av").Msg("no local video track to toggle")
		return
	}
	var err error
	if enable {
		err = lt.Unmute(ctx)
	} else {
		err = lt.Mute(ctx)
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "av").Bool("enable", enable).Msg("video toggle failed")
		return
	}
	hidden := !enable
	c.session.BroadcastActivity(nil, &hidden)
}

// SetUserVideo re-binds a user's current tracks after their view was
// re-rendered.
func (c *Client) SetUserVideo(id domain.UserID) {
	if t := c.lk.UserVideoTrack(id); t != nil {
		if rt, ok := t.(core.RemoteTrack); ok {
			c.lk.AttachVideoTrack(id, rt)
		}
	}
	if t := c.lk.UserAudioTrack(id); t != nil {
		if rt, ok := t.(core.RemoteTrack); ok {
			c.lk.AttachAudioTrack(id, rt, t.Source())
		}
	}
}

// UpdateLocalStream re-acquires both local sources against the current
// settings, the host's coarse "something changed" hook.
func (c *Client) UpdateLocalStream(ctx context.Context) {
	c.lk.ChangeAudioSource(ctx, false)
	c.lk.ChangeVideoSource(ctx)
}

// OnSettingsChanged fans a batch of changed setting keys out to the
// matching reactions. Server-level changes force a reconnect.
func (c *Client) OnSettingsChanged(ctx context.Context, changed map[string]any) {
	for key := range changed {
		switch key {
		case SettingAudioSource:
			c.lk.ChangeAudioSource(ctx, false)
		case SettingVideoSource:
			c.lk.ChangeVideoSource(ctx)
		case SettingAudioSink, SettingVoiceMode:
			// Sink and activation changes only need the views rebound.
			for _, id := range c.lk.ConnectedUsers() {
				c.SetUserVideo(id)
			}
		case SettingServer:
			log.Info().Str("module", "av").Msg("server settings changed, reconnecting")
			if _, err := c.Disconnect(); err != nil {
				log.Warn().Err(err).Str("module", "av").Msg("disconnect for reconnect failed")
				continue
			}
			if _, err := c.Connect(ctx); err != nil {
				log.Warn().Err(err).Str("module", "av").Msg("reconnect failed")
			}
		default:
			log.Debug().Str("module", "av").Str("key", key).Msg("ignoring unrelated setting change")
		}
	}
}
