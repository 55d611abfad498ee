package rtc

import (
	"testing"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/core"
)

func TestTeardown_ClearsLocalPublications(t *testing.T) {
	r := NewFactory().NewRoom(core.RoomOptions{}).(*room)

	track, err := newLocalAudioTrack(blockingSource{}, core.AudioCaptureOptions{ChannelCount: 1}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer track.Stop()

	lt := track.localTrack
	r.local.pubs[lt.sid] = &localPublication{
		publication: &publication{sid: lt.sid, kind: lt.kind, source: lt.source, track: track},
		local:       lt,
	}
	fn := func(bool) {}
	lt.onMuteChanged.Store(&fn)

	r.teardown(core.DisconnectClientInitiated, false)

	if r.local.IsPublished(track) {
		t.Fatal("publication record must not survive teardown")
	}
	if lt.onMuteChanged.Load() != nil {
		t.Error("mute hook must be cleared on teardown")
	}

	// A second teardown with nothing to release is a no-op.
	r.teardown(core.DisconnectClientInitiated, false)
}
