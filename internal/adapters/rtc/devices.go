// Package rtc implements the room and media contracts on pion/webrtc with
// a gorilla/websocket signaling channel. It is the only package that talks
// wire protocols; everything above it sees the core interfaces.
package rtc

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/core"
)

// SampleSource delivers encoded media samples from a capture device.
// NextSample blocks until a sample is ready or the context ends.
type SampleSource interface {
	NextSample(ctx context.Context) (media.Sample, error)
	Close() error
}

// SourceProvider opens capture sources and enumerates devices. The
// platform capture backend plugs in here.
type SourceProvider interface {
	OpenAudio(opts core.AudioCaptureOptions) (SampleSource, error)
	OpenVideo(opts core.VideoCaptureOptions) (SampleSource, error)
	// OpenScreen returns the screen video source and, when opts.WithAudio
	// is set and the platform can loop back program audio, a screen audio
	// source. The audio source may be nil.
	OpenScreen(opts core.ScreenCaptureOptions) (video, audio SampleSource, err error)
	Devices(kind core.DeviceKind) ([]core.DeviceInfo, error)
}

// Devices implements core.MediaDevices over a SourceProvider.
type Devices struct {
	provider SourceProvider
}

func NewDevices(provider SourceProvider) *Devices {
	return &Devices{provider: provider}
}

func (d *Devices) CreateAudioTrack(ctx context.Context, opts core.AudioCaptureOptions) (core.LocalAudioTrack, error) {
	src, err := d.provider.OpenAudio(opts)
	if err != nil {
		return nil, fmt.Errorf("open audio source: %w", err)
	}
	track, err := newLocalAudioTrack(src, opts, d.provider)
	if err != nil {
		src.Close()
		return nil, err
	}
	log.Debug().Str("module", "rtc").Str("device", opts.DeviceID).Msg("audio track created")
	return track, nil
}

func (d *Devices) CreateVideoTrack(ctx context.Context, opts core.VideoCaptureOptions) (core.LocalVideoTrack, error) {
	src, err := d.provider.OpenVideo(opts)
	if err != nil {
		return nil, fmt.Errorf("open video source: %w", err)
	}
	track, err := newLocalVideoTrack(src, opts, core.TrackSourceCamera, d.provider)
	if err != nil {
		src.Close()
		return nil, err
	}
	log.Debug().Str("module", "rtc").Str("device", opts.DeviceID).Msg("video track created")
	return track, nil
}

func (d *Devices) CreateScreenTracks(ctx context.Context, opts core.ScreenCaptureOptions) ([]core.LocalTrack, error) {
	videoSrc, audioSrc, err := d.provider.OpenScreen(opts)
	if err != nil {
		return nil, fmt.Errorf("open screen source: %w", err)
	}

	videoTrack, err := newLocalVideoTrack(videoSrc, core.VideoCaptureOptions{}, core.TrackSourceScreenShare, d.provider)
	if err != nil {
		videoSrc.Close()
		if audioSrc != nil {
			audioSrc.Close()
		}
		return nil, err
	}
	tracks := []core.LocalTrack{videoTrack}

	if audioSrc != nil {
		audioTrack, err := newScreenAudioTrack(audioSrc, opts.Audio)
		if err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("screen audio track failed, sharing video only")
		} else {
			tracks = append(tracks, audioTrack)
		}
	}
	log.Debug().Str("module", "rtc").Int("tracks", len(tracks)).Msg("screen tracks created")
	return tracks, nil
}

func (d *Devices) ListDevices(ctx context.Context, kind core.DeviceKind) ([]core.DeviceInfo, error) {
	return d.provider.Devices(kind)
}
