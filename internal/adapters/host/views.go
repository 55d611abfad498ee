package host

import (
	"sync"

	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/core"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/domain"
)

// mediaElement is a virtual playback sink. It consumes RTP from attached
// tracks and tracks the element-level playback knobs a DOM element would
// carry.
type mediaElement struct {
	kind core.TrackKind

	mu      sync.Mutex
	sinkID  string
	volume  float64
	muted   bool
	packets int
}

func (e *mediaElement) ElementKind() core.TrackKind { return e.kind }

func (e *mediaElement) WriteRTP(p *rtp.Packet) error {
	e.mu.Lock()
	e.packets++
	e.mu.Unlock()
	return nil
}

// Packets reports how many RTP packets reached this element.
func (e *mediaElement) Packets() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.packets
}

type audioElement struct {
	mediaElement
}

func (e *audioElement) SetSinkID(deviceID string) error {
	e.mu.Lock()
	e.sinkID = deviceID
	e.mu.Unlock()
	return nil
}

func (e *audioElement) SetVolume(v float64) {
	e.mu.Lock()
	e.volume = v
	e.mu.Unlock()
}

func (e *audioElement) SetMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	e.mu.Unlock()
}

type videoElement struct {
	mediaElement
}

type userView struct {
	video *videoElement
	audio map[core.TrackSource]*audioElement
}

// Views implements core.ViewBridge over virtual elements. A user's video
// element exists only after a render pass, mirroring a DOM-backed host
// where elements appear when the camera grid re-renders.
type Views struct {
	mu       sync.Mutex
	rendered bool
	views    map[domain.UserID]*userView
	users    func() []domain.UserID
	buttons  bool
}

// NewViews creates the bridge. users enumerates the ids to materialize on
// each render pass.
func NewViews(users func() []domain.UserID) *Views {
	return &Views{views: make(map[domain.UserID]*userView), users: users}
}

func (v *Views) VideoElement(id domain.UserID) core.VideoElement {
	v.mu.Lock()
	defer v.mu.Unlock()
	view, ok := v.views[id]
	if !ok || view.video == nil {
		return nil
	}
	return view.video
}

func (v *Views) AudioElement(id domain.UserID, source core.TrackSource) core.AudioElement {
	v.mu.Lock()
	defer v.mu.Unlock()
	view, ok := v.views[id]
	if !ok || view.video == nil {
		return nil
	}
	el, ok := view.audio[source]
	if !ok {
		el = &audioElement{mediaElement{kind: core.TrackKindAudio, volume: 1.0}}
		view.audio[source] = el
	}
	return el
}

func (v *Views) SetMuteIndicator(id domain.UserID, kind core.TrackKind, muted bool) {
	log.Debug().Str("module", "views").
		Str("user", string(id)).
		Str("kind", string(kind)).
		Bool("muted", muted).
		Msg("mute indicator")
}

func (v *Views) SetQualityIndicator(id domain.UserID, q core.ConnectionQuality) {
	log.Debug().Str("module", "views").
		Str("user", string(id)).
		Str("quality", q.String()).
		Msg("quality indicator")
}

func (v *Views) SetConnectionButtons(connected bool) {
	v.mu.Lock()
	v.buttons = connected
	v.mu.Unlock()
}

func (v *Views) ConnectionButtons() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buttons
}

// Render materializes a video element for every known user.
func (v *Views) Render() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rendered = true
	for _, id := range v.users() {
		v.renderLocked(id)
	}
}

func (v *Views) RefreshView(id domain.UserID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.rendered {
		return
	}
	v.renderLocked(id)
}

func (v *Views) renderLocked(id domain.UserID) {
	if _, ok := v.views[id]; !ok {
		v.views[id] = &userView{
			video: &videoElement{mediaElement{kind: core.TrackKindVideo}},
			audio: make(map[core.TrackSource]*audioElement),
		}
	}
}
