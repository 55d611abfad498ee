package host

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/adapters/rtc"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/core"
)

const (
	audioFrameDuration = 20 * time.Millisecond
	videoFrameRate     = 15
)

// syntheticSource emits fixed-size samples on a ticker, standing in for a
// platform capture backend. Real capture plugs into rtc.SourceProvider
// the same way.
type syntheticSource struct {
	ticker   *time.Ticker
	duration time.Duration
	payload  []byte
}

func newSyntheticSource(interval time.Duration, payloadSize int) *syntheticSource {
	return &syntheticSource{
		ticker:   time.NewTicker(interval),
		duration: interval,
		payload:  make([]byte, payloadSize),
	}
}

func (s *syntheticSource) NextSample(ctx context.Context) (media.Sample, error) {
	select {
	case <-ctx.Done():
		return media.Sample{}, ctx.Err()
	case <-s.ticker.C:
		return media.Sample{Data: s.payload, Duration: s.duration}, nil
	}
}

func (s *syntheticSource) Close() error {
	s.ticker.Stop()
	return nil
}

// SyntheticProvider implements rtc.SourceProvider with silence and test
// frames, enough to drive the full publish path without hardware.
type SyntheticProvider struct{}

func NewSyntheticProvider() *SyntheticProvider { return &SyntheticProvider{} }

func (p *SyntheticProvider) OpenAudio(opts core.AudioCaptureOptions) (rtc.SampleSource, error) {
	if opts.DeviceID == core.DeviceSourceDisabled {
		return nil, fmt.Errorf("audio source is disabled")
	}
	return newSyntheticSource(audioFrameDuration, 160), nil
}

func (p *SyntheticProvider) OpenVideo(opts core.VideoCaptureOptions) (rtc.SampleSource, error) {
	if opts.DeviceID == core.DeviceSourceDisabled {
		return nil, fmt.Errorf("video source is disabled")
	}
	rate := opts.Resolution.FrameRate
	if rate <= 0 {
		rate = videoFrameRate
	}
	return newSyntheticSource(time.Second/time.Duration(rate), 1200), nil
}

func (p *SyntheticProvider) OpenScreen(opts core.ScreenCaptureOptions) (video, audio rtc.SampleSource, err error) {
	video = newSyntheticSource(time.Second/videoFrameRate, 1200)
	if opts.WithAudio {
		audio = newSyntheticSource(audioFrameDuration, 320)
	}
	return video, audio, nil
}

func (p *SyntheticProvider) Devices(kind core.DeviceKind) ([]core.DeviceInfo, error) {
	switch kind {
	case core.DeviceAudioInput:
		return []core.DeviceInfo{{DeviceID: "default", Label: "Default microphone"}}, nil
	case core.DeviceAudioOutput:
		return []core.DeviceInfo{{DeviceID: "default", Label: "Default speakers"}}, nil
	case core.DeviceVideoInput:
		return []core.DeviceInfo{{DeviceID: "default", Label: "Default camera"}}, nil
	}
	return nil, fmt.Errorf("unknown device kind %q", kind)
}
