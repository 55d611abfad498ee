package client

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/core"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/domain"
)

// publishOptions derives the encoder policy from settings. Music mode
// trades the speech preset for a high-quality stereo encode with all
// voice processing left to the capture options.
func (c *Client) publishOptions() core.TrackPublishOptions {
	preset := core.AudioPresetSpeech
	if c.cfg.AudioMusicMode {
		preset = core.AudioPresetMusicHighQuality
	}
	return core.TrackPublishOptions{
		AudioPreset:     preset,
		Simulcast:       true,
		VideoCodec:      "vp8",
		SimulcastLayers: []core.VideoPreset{core.VideoPreset43H180, core.VideoPreset43H360},
	}
}

// audioCaptureOptions returns nil when the user has no microphone source
// selected or lacks the broadcast permission.
func (c *Client) audioCaptureOptions() *core.AudioCaptureOptions {
	source := c.session.AudioSourceID()
	me := c.session.CurrentUserID()
	if source == "" || source == core.DeviceSourceDisabled || !c.session.CanUserBroadcastAudio(me) {
		return nil
	}
	opts := &core.AudioCaptureOptions{
		DeviceID:         source,
		ChannelCount:     1,
		AutoGainControl:  true,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
	if c.cfg.AudioMusicMode {
		opts.ChannelCount = 2
		opts.AutoGainControl = false
		opts.EchoCancellation = false
		opts.NoiseSuppression = false
	}
	return opts
}

func (c *Client) videoCaptureOptions() *core.VideoCaptureOptions {
	source := c.session.VideoSourceID()
	me := c.session.CurrentUserID()
	if source == "" || source == core.DeviceSourceDisabled || !c.session.CanUserBroadcastVideo(me) {
		return nil
	}
	return &core.VideoCaptureOptions{
		DeviceID:   source,
		Resolution: core.VideoPreset43H720.Resolution(),
	}
}

// InitializeLocalTracks acquires the microphone and camera per current
// settings. Publication happens later, once connected.
func (c *Client) InitializeLocalTracks(ctx context.Context) {
	c.initAudioTrack(ctx)
	c.initVideoTrack(ctx)
}

func (c *Client) initAudioTrack(ctx context.Context) {
	opts := c.audioCaptureOptions()
	if opts == nil {
		return
	}
	track, err := c.devices.CreateAudioTrack(ctx, *opts)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Msg("unable to acquire local audio")
		c.session.Notify(core.NotifyError, "Unable to acquire local audio: "+err.Error())
		return
	}

	// Push-to-talk and activity modes start muted; only "always" goes
	// live immediately.
	if !c.session.VoiceModeAlways() {
		if err := track.Mute(ctx); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("could not mute audio track at init")
		}
	}

	c.mu.Lock()
	c.audioTrack = track
	c.audioBroadcastEnabled = c.session.VoiceModeAlways()
	c.mu.Unlock()
}

func (c *Client) initVideoTrack(ctx context.Context) {
	opts := c.videoCaptureOptions()
	if opts == nil {
		return
	}
	track, err := c.devices.CreateVideoTrack(ctx, *opts)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Msg("unable to acquire local video")
		c.session.Notify(core.NotifyError, "Unable to acquire local video: "+err.Error())
		return
	}
	c.mu.Lock()
	c.videoTrack = track
	c.mu.Unlock()
	c.attachLocalVideo(track)
}

func (c *Client) publishLocalTrack(ctx context.Context, track core.LocalTrack) {
	room := c.roomHandle()
	if room == nil || room.State() != core.ConnectionConnected {
		return
	}
	local := room.LocalParticipant()
	if local == nil || local.IsPublished(track) {
		return
	}
	if err := local.PublishTrack(ctx, track, c.publishOptions()); err != nil {
		log.Error().Err(err).Str("module", "client").Str("kind", string(track.Kind())).Msg("failed to publish local track")
		c.session.Notify(core.NotifyError, "Failed to publish local "+string(track.Kind())+" track")
	}
}

func (c *Client) unpublishLocalTrack(ctx context.Context, track core.LocalTrack) {
	room := c.roomHandle()
	if room == nil {
		return
	}
	local := room.LocalParticipant()
	if local == nil || !local.IsPublished(track) {
		return
	}
	if err := local.UnpublishTrack(ctx, track); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("kind", string(track.Kind())).Msg("failed to unpublish local track")
	}
}

// attachLocalVideo previews the local camera in the user's own view.
func (c *Client) attachLocalVideo(track core.LocalTrack) {
	me := c.session.CurrentUserID()
	el := c.views.VideoElement(me)
	if el == nil {
		c.requestRefresh(me)
		return
	}
	if track.IsAttachedTo(el) {
		return
	}
	track.Detach()
	track.Attach(el)
}

// ChangeAudioSource reacts to a microphone device change. The track is
// restarted in place when possible so the publication survives; switching
// to the disabled source tears the track down and reports a muted state.
func (c *Client) ChangeAudioSource(ctx context.Context, forceStop bool) {
	c.mu.RLock()
	track := c.audioTrack
	c.mu.RUnlock()

	opts := c.audioCaptureOptions()

	switch {
	case track != nil && opts != nil && !forceStop:
		if err := track.Restart(ctx, *opts); err != nil {
			log.Error().Err(err).Str("module", "client").Msg("failed to restart audio track")
			c.session.Notify(core.NotifyError, "Failed to switch audio source: "+err.Error())
		}
	case track != nil:
		c.unpublishLocalTrack(ctx, track)
		track.Stop()
		c.mu.Lock()
		c.audioTrack = nil
		c.mu.Unlock()
		muted := true
		c.session.BroadcastActivity(&muted, nil)
	case opts != nil:
		c.initAudioTrack(ctx)
		c.mu.RLock()
		created := c.audioTrack
		c.mu.RUnlock()
		if created == nil {
			return
		}
		c.publishLocalTrack(ctx, created)
		muted := created.IsMuted()
		c.session.BroadcastActivity(&muted, nil)
		c.requestRender()
	}
}

// ChangeVideoSource is the camera analog of ChangeAudioSource; hidden
// state is broadcast instead of muted.
func (c *Client) ChangeVideoSource(ctx context.Context) {
	c.mu.RLock()
	track := c.videoTrack
	c.mu.RUnlock()

	opts := c.videoCaptureOptions()

	switch {
	case track != nil && opts != nil:
		if err := track.Restart(ctx, *opts); err != nil {
			log.Error().Err(err).Str("module", "client").Msg("failed to restart video track")
			c.session.Notify(core.NotifyError, "Failed to switch video source: "+err.Error())
		}
	case track != nil:
		c.unpublishLocalTrack(ctx, track)
		track.Detach()
		track.Stop()
		c.mu.Lock()
		c.videoTrack = nil
		c.mu.Unlock()
		hidden := true
		c.session.BroadcastActivity(nil, &hidden)
		c.requestRefresh(c.session.CurrentUserID())
	case opts != nil:
		c.initVideoTrack(ctx)
		c.mu.RLock()
		created := c.videoTrack
		c.mu.RUnlock()
		if created == nil {
			return
		}
		c.publishLocalTrack(ctx, created)
		hidden := false
		c.session.BroadcastActivity(nil, &hidden)
		c.requestRender()
	}
}

// AttachAudioTrack routes a remote audio track into the user's audio
// element, honoring sink, volume and global mute settings. Attaching an
// already-attached track is a no-op.
func (c *Client) AttachAudioTrack(id domain.UserID, track core.RemoteTrack, source core.TrackSource) {
	el := c.views.AudioElement(id, source)
	if el == nil {
		c.requestRefresh(id)
		return
	}
	if track.IsAttachedTo(el) {
		return
	}

	if sink := c.session.AudioSinkID(); sink != "" && sink != core.DeviceSourceDisabled {
		if err := el.SetSinkID(sink); err != nil {
			if err == core.ErrSinkUnsupported {
				log.Debug().Str("module", "client").Msg("output sink selection not supported")
			} else {
				log.Warn().Err(err).Str("module", "client").Str("sink", sink).Msg("could not set audio output device")
			}
		}
	}

	track.Detach()
	track.Attach(el)
	el.SetVolume(c.session.UserVolume(id))
	el.SetMuted(c.session.MuteAll())
}

// AttachVideoTrack routes a remote (or screen) video track into the
// user's video element.
func (c *Client) AttachVideoTrack(id domain.UserID, track core.RemoteTrack) {
	el := c.views.VideoElement(id)
	if el == nil {
		c.requestRefresh(id)
		return
	}
	if track.IsAttachedTo(el) {
		return
	}
	track.Detach()
	track.Attach(el)
}

// SetAudioEnabledState mutes or unmutes the published microphone without
// tearing it down, the push-to-talk / voice-activation hot path.
func (c *Client) SetAudioEnabledState(ctx context.Context, enabled bool) {
	c.mu.Lock()
	track := c.audioTrack
	if track == nil {
		c.mu.Unlock()
		log.Debug().Str("module", "client").Msg("no audio track to set enabled state on")
		return
	}
	if c.audioBroadcastEnabled == enabled {
		c.mu.Unlock()
		return
	}
	c.audioBroadcastEnabled = enabled
	c.mu.Unlock()

	var err error
	if enabled {
		err = track.Unmute(ctx)
	} else {
		err = track.Mute(ctx)
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Bool("enabled", enabled).Msg("failed to set audio enabled state")
		return
	}
	muted := !enabled
	c.session.BroadcastActivity(&muted, nil)
}

// ShareScreen swaps the camera publication for screen capture and back.
// The camera track object is kept while sharing so restoring is a
// republish, not a reacquisition.
func (c *Client) ShareScreen(ctx context.Context, enable bool) error {
	if enable {
		return c.startScreenShare(ctx)
	}
	return c.stopScreenShare(ctx)
}

func (c *Client) startScreenShare(ctx context.Context) error {
	me := c.session.CurrentUserID()
	opts := core.ScreenCaptureOptions{
		WithAudio: c.session.CanUserShareAudio(me),
		// Screen audio is program output; voice processing would mangle it.
		Audio: core.AudioCaptureOptions{
			ChannelCount:     2,
			AutoGainControl:  false,
			EchoCancellation: false,
			NoiseSuppression: false,
		},
	}
	tracks, err := c.devices.CreateScreenTracks(ctx, opts)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Msg("unable to capture screen")
		c.session.Notify(core.NotifyError, "Unable to capture screen: "+err.Error())
		return err
	}

	c.mu.Lock()
	camera := c.videoTrack
	c.screenTracks = tracks
	c.mu.Unlock()

	if camera != nil {
		c.unpublishLocalTrack(ctx, camera)
		camera.Detach()
	}

	shareOpts := c.publishOptions()
	shareOpts.AudioPreset = core.AudioPresetMusicHighQuality
	room := c.roomHandle()
	for _, t := range tracks {
		if t.Kind() == core.TrackKindVideo {
			c.AttachVideoTrack(me, t)
		}
		if room != nil && room.State() == core.ConnectionConnected {
			if local := room.LocalParticipant(); local != nil {
				if err := local.PublishTrack(ctx, t, shareOpts); err != nil {
					log.Error().Err(err).Str("module", "client").Str("kind", string(t.Kind())).Msg("failed to publish screen track")
				}
			}
		}
	}
	return nil
}

func (c *Client) stopScreenShare(ctx context.Context) error {
	c.mu.Lock()
	tracks := c.screenTracks
	c.screenTracks = nil
	camera := c.videoTrack
	c.mu.Unlock()

	for _, t := range tracks {
		c.unpublishLocalTrack(ctx, t)
		t.Detach()
		t.Stop()
	}

	if camera != nil {
		c.publishLocalTrack(ctx, camera)
		c.attachLocalVideo(camera)
		// Resume sending only when the camera was live before the share.
		if !camera.IsMuted() {
			if err := camera.Unmute(ctx); err != nil {
				log.Warn().Err(err).Str("module", "client").Msg("could not unmute camera after screen share")
			}
		}
	}
	c.requestRefresh(c.session.CurrentUserID())
	return nil
}

func (c *Client) IsSharingScreen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.screenTracks) > 0
}

// UserAudioTrack finds a user's primary microphone track, nil when the
// user has no subscribed audio.
func (c *Client) UserAudioTrack(id domain.UserID) core.Track {
	return c.userTrack(id, core.TrackKindAudio, core.TrackSourceMicrophone)
}

// UserVideoTrack prefers an active screen share over the camera.
func (c *Client) UserVideoTrack(id domain.UserID) core.Track {
	if t := c.userTrack(id, core.TrackKindVideo, core.TrackSourceScreenShare); t != nil {
		return t
	}
	return c.userTrack(id, core.TrackKindVideo, core.TrackSourceCamera)
}

func (c *Client) userTrack(id domain.UserID, kind core.TrackKind, source core.TrackSource) core.Track {
	p, ok := c.participant(id)
	if !ok {
		return nil
	}
	for _, pub := range p.Publications() {
		if pub.Kind() == kind && pub.Source() == source && pub.Track() != nil {
			return pub.Track()
		}
	}
	return nil
}

// UserStatistics summarizes a user's current send/receive rates per kind.
type UserStatistics struct {
	AudioBitrate int
	VideoBitrate int
}

func (c *Client) Statistics(id domain.UserID) UserStatistics {
	var s UserStatistics
	if t := c.UserAudioTrack(id); t != nil {
		s.AudioBitrate = t.Bitrate()
	}
	if t := c.UserVideoTrack(id); t != nil {
		s.VideoBitrate = t.Bitrate()
	}
	return s
}

// AllStatistics reports stats for every mapped participant.
func (c *Client) AllStatistics() map[domain.UserID]UserStatistics {
	c.mu.RLock()
	ids := make([]domain.UserID, 0, len(c.participants))
	for id := range c.participants {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	out := make(map[domain.UserID]UserStatistics, len(ids))
	for _, id := range ids {
		out[id] = c.Statistics(id)
	}
	return out
}
