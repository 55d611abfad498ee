package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/core"
)

func TestInitializeLocalTracks_MutedUnlessVoiceAlways(t *testing.T) {
	env := newTestEnv(t, true)
	env.session.voiceAlways = false

	env.client.InitializeLocalTracks(context.Background())

	env.client.mu.RLock()
	defer env.client.mu.RUnlock()
	require.NotNil(t, env.client.audioTrack)
	require.True(t, env.client.audioTrack.IsMuted())
	require.False(t, env.client.audioBroadcastEnabled)
}

func TestInitializeLocalTracks_DisabledSourcesSkipped(t *testing.T) {
	env := newTestEnv(t, true)
	env.session.audioSrc = core.DeviceSourceDisabled
	env.session.videoSrc = core.DeviceSourceDisabled

	env.client.InitializeLocalTracks(context.Background())

	env.client.mu.RLock()
	defer env.client.mu.RUnlock()
	require.Nil(t, env.client.audioTrack)
	require.Nil(t, env.client.videoTrack)
	require.Zero(t, env.devices.audioCreated)
	require.Zero(t, env.devices.videoCreated)
}

func TestChangeAudioSource_RestartsInPlace(t *testing.T) {
	env := newTestEnv(t, true)
	env.client.InitializeLocalTracks(context.Background())
	track := env.client.audioTrack.(*fakeAudioTrack)

	env.client.ChangeAudioSource(context.Background(), false)

	require.Equal(t, 1, track.restarts)
	require.False(t, track.stopped)
	require.Equal(t, 1, env.devices.audioCreated, "restart must not reacquire")
}

func TestChangeAudioSource_DisabledTearsDownAndReportsMuted(t *testing.T) {
	env := newTestEnv(t, true)
	env.client.InitializeLocalTracks(context.Background())
	_, err := env.client.Connect(context.Background())
	require.NoError(t, err)
	track := env.client.audioTrack.(*fakeAudioTrack)

	env.session.audioSrc = core.DeviceSourceDisabled
	env.client.ChangeAudioSource(context.Background(), false)

	require.True(t, track.stopped)
	require.False(t, env.room().local.IsPublished(track))
	env.client.mu.RLock()
	require.Nil(t, env.client.audioTrack)
	env.client.mu.RUnlock()
	require.Contains(t, env.session.activity, "muted")
}

func TestChangeAudioSource_DisabledWithoutTrackIsIdempotent(t *testing.T) {
	env := newTestEnv(t, true)
	env.session.audioSrc = core.DeviceSourceDisabled

	env.client.ChangeAudioSource(context.Background(), false)
	env.client.ChangeAudioSource(context.Background(), false)

	require.Zero(t, env.devices.audioCreated)
	require.Empty(t, env.session.activity)
}

func TestChangeAudioSource_AcquiresWhenEnabled(t *testing.T) {
	env := newTestEnv(t, true)
	_, err := env.client.Connect(context.Background())
	require.NoError(t, err)

	env.client.ChangeAudioSource(context.Background(), false)

	env.client.mu.RLock()
	track := env.client.audioTrack
	env.client.mu.RUnlock()
	require.NotNil(t, track)
	require.True(t, env.room().local.IsPublished(track))
	require.NotEmpty(t, env.session.activity)
}

func TestAttachAudioTrack_DoubleAttachIsNoOp(t *testing.T) {
	env := newTestEnv(t, true)
	env.views.addVideoElement("u2")
	track := &fakeLocalTrack{sid: "ra", kind: core.TrackKindAudio, source: core.TrackSourceMicrophone}

	env.client.AttachAudioTrack("u2", track, core.TrackSourceMicrophone)
	env.client.AttachAudioTrack("u2", track, core.TrackSourceMicrophone)

	require.Equal(t, 1, track.attaches)
}

func TestAttachAudioTrack_SinkUnsupportedTolerated(t *testing.T) {
	env := newTestEnv(t, true)
	env.session.audioSink = "speakers-2"
	env.views.addVideoElement("u2")
	env.views.AudioElement("u2", core.TrackSourceMicrophone)
	env.views.audioEls["u2"].sinkErr = core.ErrSinkUnsupported
	track := &fakeLocalTrack{sid: "ra", kind: core.TrackKindAudio, source: core.TrackSourceMicrophone}

	env.client.AttachAudioTrack("u2", track, core.TrackSourceMicrophone)

	require.NotNil(t, track.attached, "sink failure must not block attachment")
}

func TestAttachAudioTrack_MissingElementSchedulesRefresh(t *testing.T) {
	env := newTestEnv(t, true)
	track := &fakeLocalTrack{sid: "ra", kind: core.TrackKindAudio, source: core.TrackSourceMicrophone}

	env.client.AttachAudioTrack("u2", track, core.TrackSourceMicrophone)

	require.Nil(t, track.attached)
	env.client.debounce.mu.Lock()
	_, pending := env.client.debounce.timers["refresh:u2"]
	env.client.debounce.mu.Unlock()
	require.True(t, pending, "expected a pending view refresh")
}

func TestSetAudioEnabledState(t *testing.T) {
	env := newTestEnv(t, true)
	env.session.voiceAlways = false
	env.client.InitializeLocalTracks(context.Background())
	track := env.client.audioTrack.(*fakeAudioTrack)

	env.client.SetAudioEnabledState(context.Background(), true)
	require.False(t, track.IsMuted())
	require.Contains(t, env.session.activity, "unmuted")

	env.client.SetAudioEnabledState(context.Background(), false)
	require.True(t, track.IsMuted())
	require.Contains(t, env.session.activity, "muted")
}

func TestSetAudioEnabledState_NoTrack(t *testing.T) {
	env := newTestEnv(t, true)

	env.client.SetAudioEnabledState(context.Background(), true)

	require.Empty(t, env.session.activity)
}

func TestShareScreen_SwapsCameraAndRestores(t *testing.T) {
	env := newTestEnv(t, true)
	env.views.addVideoElement("gm1")
	env.client.InitializeLocalTracks(context.Background())
	_, err := env.client.Connect(context.Background())
	require.NoError(t, err)
	camera := env.client.videoTrack.(*fakeVideoTrack)

	require.NoError(t, env.client.ShareScreen(context.Background(), true))

	require.True(t, env.client.IsSharingScreen())
	require.False(t, env.room().local.IsPublished(camera), "camera must be unpublished while sharing")
	require.False(t, camera.stopped, "camera capture stays warm while sharing")

	env.client.mu.RLock()
	screens := env.client.screenTracks
	env.client.mu.RUnlock()
	require.Len(t, screens, 2)
	for _, s := range screens {
		require.True(t, env.room().local.IsPublished(s))
	}

	require.NoError(t, env.client.ShareScreen(context.Background(), false))

	require.False(t, env.client.IsSharingScreen())
	require.True(t, env.room().local.IsPublished(camera), "camera must be restored")
	for _, s := range screens {
		require.True(t, s.(*fakeLocalTrack).stopped)
		require.False(t, env.room().local.IsPublished(s))
	}
}

func TestShareScreen_KeepsMutedCameraMuted(t *testing.T) {
	env := newTestEnv(t, true)
	env.views.addVideoElement("gm1")
	env.client.InitializeLocalTracks(context.Background())
	_, err := env.client.Connect(context.Background())
	require.NoError(t, err)
	camera := env.client.videoTrack.(*fakeVideoTrack)
	require.NoError(t, camera.Mute(context.Background()))

	require.NoError(t, env.client.ShareScreen(context.Background(), true))
	require.NoError(t, env.client.ShareScreen(context.Background(), false))

	require.True(t, env.room().local.IsPublished(camera), "camera must be restored")
	require.True(t, camera.IsMuted(), "camera muted before sharing stays muted")
}

func TestUserVideoTrack_PrefersScreenShare(t *testing.T) {
	env := newTestEnv(t, true)
	env.session.addUser("u2", "Player Two", true)
	camera := &fakeLocalTrack{sid: "cam", kind: core.TrackKindVideo, source: core.TrackSourceCamera}
	screen := &fakeLocalTrack{sid: "scr", kind: core.TrackKindVideo, source: core.TrackSourceScreenShare}
	p := remoteWithUser("u2")
	p.pubs = []core.TrackPublication{
		&fakePublication{sid: "cam", kind: core.TrackKindVideo, source: core.TrackSourceCamera, track: camera},
		&fakePublication{sid: "scr", kind: core.TrackKindVideo, source: core.TrackSourceScreenShare, track: screen},
	}
	env.client.onParticipantConnected(p)

	got := env.client.UserVideoTrack("u2")
	require.Equal(t, "scr", got.SID())
}

func TestPublishOptions_MusicMode(t *testing.T) {
	env := newTestEnv(t, true)

	opts := env.client.publishOptions()
	require.Equal(t, core.AudioPresetSpeech, opts.AudioPreset)
	require.True(t, opts.Simulcast)

	env.cfg.AudioMusicMode = true
	opts = env.client.publishOptions()
	require.Equal(t, core.AudioPresetMusicHighQuality, opts.AudioPreset)
}

func TestAudioCaptureOptions_MusicModeDisablesProcessing(t *testing.T) {
	env := newTestEnv(t, true)

	opts := env.client.audioCaptureOptions()
	require.NotNil(t, opts)
	require.Equal(t, 1, opts.ChannelCount)
	require.True(t, opts.EchoCancellation)

	env.cfg.AudioMusicMode = true
	opts = env.client.audioCaptureOptions()
	require.NotNil(t, opts)
	require.Equal(t, 2, opts.ChannelCount)
	require.False(t, opts.AutoGainControl)
	require.False(t, opts.EchoCancellation)
	require.False(t, opts.NoiseSuppression)
}
