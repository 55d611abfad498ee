package rtc

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/core"
)

// RTPSink is implemented by media elements that can consume RTP packets.
// Attachment of a remote track to an element that does not implement it
// keeps the bookkeeping but discards the media.
type RTPSink interface {
	WriteRTP(p *rtp.Packet) error
}

// bitrateCounter derives a bits-per-second rate from a monotonically
// growing byte count, sampled on read.
type bitrateCounter struct {
	bytes atomic.Int64

	mu       sync.Mutex
	lastAt   time.Time
	lastBits int64
	rate     int
}

func (b *bitrateCounter) add(n int) {
	b.bytes.Add(int64(n))
}

func (b *bitrateCounter) bitrate() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	bits := b.bytes.Load() * 8
	if b.lastAt.IsZero() {
		b.lastAt, b.lastBits = now, bits
		return 0
	}
	elapsed := now.Sub(b.lastAt)
	if elapsed >= time.Second {
		b.rate = int(float64(bits-b.lastBits) / elapsed.Seconds())
		b.lastAt, b.lastBits = now, bits
	}
	return b.rate
}

// attachment is the shared single-element bookkeeping for both track kinds.
type attachment struct {
	mu sync.Mutex
	el core.MediaElement
}

func (a *attachment) set(el core.MediaElement) {
	a.mu.Lock()
	a.el = el
	a.mu.Unlock()
}

func (a *attachment) get() core.MediaElement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.el
}

func (a *attachment) isAttachedTo(el core.MediaElement) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.el != nil && a.el == el
}

// localTrack pumps samples from a capture source into a
// TrackLocalStaticSample. Mute keeps the pump running but drops samples,
// so the publication stays alive and unmute is instant.
type localTrack struct {
	sid    string
	kind   core.TrackKind
	source core.TrackSource
	local  *webrtc.TrackLocalStaticSample

	mu     sync.Mutex
	src    SampleSource
	cancel context.CancelFunc

	muted  atomic.Bool
	attach attachment
	rate   bitrateCounter

	// onMuteChanged is set by the room when the track is published, so
	// mute state reaches the signaling channel.
	onMuteChanged atomic.Pointer[func(muted bool)]
}

func newLocalTrack(src SampleSource, codec webrtc.RTPCodecCapability, kind core.TrackKind, source core.TrackSource) (*localTrack, error) {
	sid := "TR_" + uuid.NewString()
	sample, err := webrtc.NewTrackLocalStaticSample(codec, sid, "local")
	if err != nil {
		return nil, err
	}
	t := &localTrack{
		sid:    sid,
		kind:   kind,
		source: source,
		local:  sample,
		src:    src,
	}
	t.startPump()
	return t, nil
}

func newLocalAudioTrack(src SampleSource, opts core.AudioCaptureOptions, provider SourceProvider) (*localAudioTrack, error) {
	channels := uint16(opts.ChannelCount)
	if channels == 0 {
		channels = 1
	}
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: channels}
	t, err := newLocalTrack(src, codec, core.TrackKindAudio, core.TrackSourceMicrophone)
	if err != nil {
		return nil, err
	}
	return &localAudioTrack{localTrack: t, provider: provider}, nil
}

func newScreenAudioTrack(src SampleSource, opts core.AudioCaptureOptions) (core.LocalTrack, error) {
	channels := uint16(opts.ChannelCount)
	if channels == 0 {
		channels = 2
	}
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: channels}
	return newLocalTrack(src, codec, core.TrackKindAudio, core.TrackSourceScreenAudio)
}

func newLocalVideoTrack(src SampleSource, opts core.VideoCaptureOptions, source core.TrackSource, provider SourceProvider) (*localVideoTrack, error) {
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	t, err := newLocalTrack(src, codec, core.TrackKindVideo, source)
	if err != nil {
		return nil, err
	}
	return &localVideoTrack{localTrack: t, provider: provider}, nil
}

func (t *localTrack) startPump() {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	src := t.src
	t.mu.Unlock()

	go func() {
		for {
			sample, err := src.NextSample(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
					log.Warn().Err(err).Str("module", "rtc").Str("sid", t.sid).Msg("capture source failed")
				}
				return
			}
			if t.muted.Load() {
				continue
			}
			if err := t.local.WriteSample(sample); err != nil {
				log.Warn().Err(err).Str("module", "rtc").Str("sid", t.sid).Msg("sample write failed")
				return
			}
			t.rate.add(len(sample.Data))
		}
	}()
}

func (t *localTrack) SID() string              { return t.sid }
func (t *localTrack) Kind() core.TrackKind     { return t.kind }
func (t *localTrack) Source() core.TrackSource { return t.source }
func (t *localTrack) IsMuted() bool            { return t.muted.Load() }
func (t *localTrack) Bitrate() int             { return t.rate.bitrate() }

func (t *localTrack) Attach(el core.MediaElement)            { t.attach.set(el) }
func (t *localTrack) Detach()                                { t.attach.set(nil) }
func (t *localTrack) IsAttachedTo(el core.MediaElement) bool { return t.attach.isAttachedTo(el) }

func (t *localTrack) Mute(ctx context.Context) error   { return t.setMuted(true) }
func (t *localTrack) Unmute(ctx context.Context) error { return t.setMuted(false) }

func (t *localTrack) setMuted(muted bool) error {
	if t.muted.Swap(muted) == muted {
		return nil
	}
	if fn := t.onMuteChanged.Load(); fn != nil {
		(*fn)(muted)
	}
	return nil
}

func (t *localTrack) Stop() {
	t.mu.Lock()
	cancel, src := t.cancel, t.src
	t.cancel, t.src = nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if src != nil {
		if err := src.Close(); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("sid", t.sid).Msg("source close failed")
		}
	}
}

// restart swaps the capture source in place. The webrtc-level track and
// any publication survive.
func (t *localTrack) restart(src SampleSource) {
	t.mu.Lock()
	oldCancel, oldSrc := t.cancel, t.src
	t.src = src
	t.mu.Unlock()

	if oldCancel != nil {
		oldCancel()
	}
	if oldSrc != nil {
		oldSrc.Close()
	}
	t.startPump()
}

type localAudioTrack struct {
	*localTrack
	provider SourceProvider
}

func (t *localAudioTrack) Restart(ctx context.Context, opts core.AudioCaptureOptions) error {
	if t.provider == nil {
		return errors.New("audio track has no source provider")
	}
	src, err := t.provider.OpenAudio(opts)
	if err != nil {
		return err
	}
	t.restart(src)
	return nil
}

type localVideoTrack struct {
	*localTrack
	provider SourceProvider
}

func (t *localVideoTrack) Restart(ctx context.Context, opts core.VideoCaptureOptions) error {
	if t.provider == nil {
		return errors.New("video track has no source provider")
	}
	src, err := t.provider.OpenVideo(opts)
	if err != nil {
		return err
	}
	t.restart(src)
	return nil
}

// remoteTrack pumps RTP from a subscribed pion track into the attached
// element's sink. The pump runs for the lifetime of the subscription; an
// unattached track still drains packets to keep the rate counter honest.
type remoteTrack struct {
	sid    string
	kind   core.TrackKind
	source core.TrackSource
	muted  atomic.Bool

	attach attachment
	rate   bitrateCounter
	cancel context.CancelFunc
}

func newRemoteTrack(sid string, kind core.TrackKind, source core.TrackSource, pionTrack *webrtc.TrackRemote) *remoteTrack {
	ctx, cancel := context.WithCancel(context.Background())
	t := &remoteTrack{sid: sid, kind: kind, source: source, cancel: cancel}
	go t.pump(ctx, pionTrack)
	return t
}

func (t *remoteTrack) pump(ctx context.Context, pionTrack *webrtc.TrackRemote) {
	for {
		if ctx.Err() != nil {
			return
		}
		pkt, _, err := pionTrack.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Debug().Err(err).Str("module", "rtc").Str("sid", t.sid).Msg("remote track read ended")
			}
			return
		}
		t.rate.add(len(pkt.Payload))
		if el := t.attach.get(); el != nil {
			if sink, ok := el.(RTPSink); ok {
				if err := sink.WriteRTP(pkt); err != nil {
					log.Debug().Err(err).Str("module", "rtc").Str("sid", t.sid).Msg("sink write failed")
				}
			}
		}
	}
}

func (t *remoteTrack) stop() {
	t.cancel()
}

func (t *remoteTrack) SID() string              { return t.sid }
func (t *remoteTrack) Kind() core.TrackKind     { return t.kind }
func (t *remoteTrack) Source() core.TrackSource { return t.source }
func (t *remoteTrack) IsMuted() bool            { return t.muted.Load() }
func (t *remoteTrack) Bitrate() int             { return t.rate.bitrate() }

func (t *remoteTrack) Attach(el core.MediaElement)            { t.attach.set(el) }
func (t *remoteTrack) Detach()                                { t.attach.set(nil) }
func (t *remoteTrack) IsAttachedTo(el core.MediaElement) bool { return t.attach.isAttachedTo(el) }
