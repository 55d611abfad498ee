package core

import (
	"context"
	"errors"
)

// ErrSinkUnsupported is returned by SetSinkID on platforms without output
// device selection. Callers log and continue.
var ErrSinkUnsupported = errors.New("output sink selection not supported")

// MediaElement is a playback sink a track can be attached to, the
// stand-in for a DOM media element.
type MediaElement interface {
	ElementKind() TrackKind
}

type AudioElement interface {
	MediaElement
	SetSinkID(deviceID string) error
	SetVolume(v float64)
	SetMuted(muted bool)
}

type VideoElement interface {
	MediaElement
}

type DeviceKind string

const (
	DeviceAudioInput  DeviceKind = "audioinput"
	DeviceAudioOutput DeviceKind = "audiooutput"
	DeviceVideoInput  DeviceKind = "videoinput"
)

// DeviceSourceDisabled is the sentinel device id meaning the user turned
// the capture source off entirely.
const DeviceSourceDisabled = "disabled"

type DeviceInfo struct {
	DeviceID string
	Label    string
}

type AudioCaptureOptions struct {
	DeviceID         string
	ChannelCount     int
	AutoGainControl  bool
	EchoCancellation bool
	NoiseSuppression bool
}

type VideoResolution struct {
	Width     int
	Height    int
	FrameRate int
}

type VideoCaptureOptions struct {
	DeviceID   string
	Resolution VideoResolution
}

type ScreenCaptureOptions struct {
	Audio AudioCaptureOptions
	// WithAudio includes a screen audio track alongside the video track.
	WithAudio bool
}

// MediaDevices acquires local capture tracks and enumerates devices.
// Implemented by the RTC adapter.
type MediaDevices interface {
	CreateAudioTrack(ctx context.Context, opts AudioCaptureOptions) (LocalAudioTrack, error)
	CreateVideoTrack(ctx context.Context, opts VideoCaptureOptions) (LocalVideoTrack, error)
	CreateScreenTracks(ctx context.Context, opts ScreenCaptureOptions) ([]LocalTrack, error)
	ListDevices(ctx context.Context, kind DeviceKind) ([]DeviceInfo, error)
}

// AudioPreset caps the encoder bitrate for audio publications.
type AudioPreset struct {
	MaxBitrate int
}

var (
	AudioPresetSpeech           = AudioPreset{MaxBitrate: 24_000}
	AudioPresetMusicHighQuality = AudioPreset{MaxBitrate: 96_000}
)

// VideoPreset is one rung of the simulcast ladder.
type VideoPreset struct {
	Width      int
	Height     int
	MaxBitrate int
	FrameRate  int
}

// 4:3 presets matching the capture aspect the host renders.
var (
	VideoPreset43H180 = VideoPreset{Width: 240, Height: 180, MaxBitrate: 125_000, FrameRate: 15}
	VideoPreset43H360 = VideoPreset{Width: 480, Height: 360, MaxBitrate: 450_000, FrameRate: 20}
	VideoPreset43H720 = VideoPreset{Width: 960, Height: 720, MaxBitrate: 1_500_000, FrameRate: 30}
)

func (p VideoPreset) Resolution() VideoResolution {
	return VideoResolution{Width: p.Width, Height: p.Height, FrameRate: p.FrameRate}
}

type TrackPublishOptions struct {
	AudioPreset     AudioPreset
	Simulcast       bool
	VideoCodec      string
	SimulcastLayers []VideoPreset
}
