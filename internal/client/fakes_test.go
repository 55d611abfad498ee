package client

import (
	"context"
	"sync"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/core"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/domain"
)

// In-memory implementations of the core contracts, enough to drive the
// lifecycle manager without a host or an RTC stack.

type fakeSession struct {
	mu sync.Mutex

	localID     domain.UserID
	localName   string
	users       map[domain.UserID]*domain.User
	privileged  map[domain.UserID]bool
	settings    domain.ConnectionSettings
	breakouts   map[domain.UserID]string
	voiceAlways bool
	audioSrc    string
	videoSrc    string
	audioSink   string
	muteAll     bool

	notifications []string
	activity      []string
	handled       map[domain.UserID][]string
	externalURL   string
	activated     []domain.UserID
}

func newFakeSession(id domain.UserID, name string, gm bool) *fakeSession {
	s := &fakeSession{
		localID:     id,
		localName:   name,
		users:       make(map[domain.UserID]*domain.User),
		privileged:  make(map[domain.UserID]bool),
		breakouts:   make(map[domain.UserID]string),
		handled:     make(map[domain.UserID][]string),
		voiceAlways: true,
		audioSrc:    "default",
		videoSrc:    "default",
	}
	s.users[id] = &domain.User{ID: id, Name: name, IsGM: gm, Active: true}
	s.privileged[id] = gm
	return s
}

func (s *fakeSession) addUser(id domain.UserID, name string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = &domain.User{ID: id, Name: name, Active: active}
}

func (s *fakeSession) CurrentUserID() domain.UserID { return s.localID }
func (s *fakeSession) CurrentUserName() string      { return s.localName }

func (s *fakeSession) User(id domain.UserID) (*domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *fakeSession) IsPrivileged(id domain.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.privileged[id]
}

func (s *fakeSession) ActivateUser(id domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activated = append(s.activated, id)
	if u, ok := s.users[id]; ok {
		u.Active = true
	}
}

func (s *fakeSession) CanUserBroadcastAudio(domain.UserID) bool { return true }
func (s *fakeSession) CanUserBroadcastVideo(domain.UserID) bool { return true }
func (s *fakeSession) CanUserShareAudio(domain.UserID) bool     { return true }
func (s *fakeSession) CanUserShareVideo(domain.UserID) bool     { return true }
func (s *fakeSession) VoiceModeAlways() bool                    { return s.voiceAlways }
func (s *fakeSession) AudioSourceID() string                    { return s.audioSrc }
func (s *fakeSession) VideoSourceID() string                    { return s.videoSrc }
func (s *fakeSession) AudioSinkID() string                      { return s.audioSink }
func (s *fakeSession) UserVolume(domain.UserID) float64         { return 0.8 }
func (s *fakeSession) MuteAll() bool                            { return s.muteAll }

func (s *fakeSession) ConnectionSettings() domain.ConnectionSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *fakeSession) SaveConnectionSettings(settings domain.ConnectionSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

func (s *fakeSession) BreakoutRoom(id domain.UserID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.breakouts[id]
}

func (s *fakeSession) SetBreakoutRoom(id domain.UserID, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakouts[id] = room
	return nil
}

func (s *fakeSession) BreakoutUsers() []domain.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]domain.UserID, 0)
	for id, room := range s.breakouts {
		if room != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *fakeSession) Notify(level core.NotifyLevel, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, message)
}

func (s *fakeSession) BroadcastActivity(muted, hidden *bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if muted != nil {
		if *muted {
			s.activity = append(s.activity, "muted")
		} else {
			s.activity = append(s.activity, "unmuted")
		}
	}
	if hidden != nil {
		if *hidden {
			s.activity = append(s.activity, "hidden")
		} else {
			s.activity = append(s.activity, "shown")
		}
	}
}

func (s *fakeSession) HandleUserActivity(id domain.UserID, muted, hidden *bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if muted != nil && *muted {
		s.handled[id] = append(s.handled[id], "muted")
	}
	if muted != nil && !*muted {
		s.handled[id] = append(s.handled[id], "unmuted")
	}
	if hidden != nil && *hidden {
		s.handled[id] = append(s.handled[id], "hidden")
	}
	if hidden != nil && !*hidden {
		s.handled[id] = append(s.handled[id], "shown")
	}
}

func (s *fakeSession) PromptExternalJoin(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.externalURL = url
}

type fakeAudioElement struct {
	sink    string
	sinkErr error
	volume  float64
	muted   bool
}

func (e *fakeAudioElement) ElementKind() core.TrackKind { return core.TrackKindAudio }
func (e *fakeAudioElement) SetVolume(v float64)         { e.volume = v }
func (e *fakeAudioElement) SetMuted(m bool)             { e.muted = m }
func (e *fakeAudioElement) SetSinkID(id string) error {
	if e.sinkErr != nil {
		return e.sinkErr
	}
	e.sink = id
	return nil
}

type fakeVideoElement struct{}

func (e *fakeVideoElement) ElementKind() core.TrackKind { return core.TrackKindVideo }

type fakeViews struct {
	mu sync.Mutex

	videoEls map[domain.UserID]*fakeVideoElement
	audioEls map[domain.UserID]*fakeAudioElement

	muteIndicators map[string]bool
	buttons        bool
	refreshes      []domain.UserID
}

func newFakeViews() *fakeViews {
	return &fakeViews{
		videoEls:       make(map[domain.UserID]*fakeVideoElement),
		audioEls:       make(map[domain.UserID]*fakeAudioElement),
		muteIndicators: make(map[string]bool),
	}
}

func (v *fakeViews) addVideoElement(id domain.UserID) *fakeVideoElement {
	v.mu.Lock()
	defer v.mu.Unlock()
	el := &fakeVideoElement{}
	v.videoEls[id] = el
	return el
}

func (v *fakeViews) VideoElement(id domain.UserID) core.VideoElement {
	v.mu.Lock()
	defer v.mu.Unlock()
	el, ok := v.videoEls[id]
	if !ok {
		return nil
	}
	return el
}

func (v *fakeViews) AudioElement(id domain.UserID, source core.TrackSource) core.AudioElement {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.videoEls[id]; !ok {
		return nil
	}
	el, ok := v.audioEls[id]
	if !ok {
		el = &fakeAudioElement{volume: 1.0}
		v.audioEls[id] = el
	}
	return el
}

func (v *fakeViews) SetMuteIndicator(id domain.UserID, kind core.TrackKind, muted bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.muteIndicators[string(id)+"/"+string(kind)] = muted
}

func (v *fakeViews) SetQualityIndicator(domain.UserID, core.ConnectionQuality) {}

func (v *fakeViews) SetConnectionButtons(connected bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.buttons = connected
}

func (v *fakeViews) Render() {}

func (v *fakeViews) RefreshView(id domain.UserID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refreshes = append(v.refreshes, id)
}

type fakeLocalTrack struct {
	mu       sync.Mutex
	sid      string
	kind     core.TrackKind
	source   core.TrackSource
	muted    bool
	stopped  bool
	attached core.MediaElement
	attaches int
	restarts int
}

func (t *fakeLocalTrack) SID() string              { return t.sid }
func (t *fakeLocalTrack) Kind() core.TrackKind     { return t.kind }
func (t *fakeLocalTrack) Source() core.TrackSource { return t.source }
func (t *fakeLocalTrack) Bitrate() int             { return 0 }

func (t *fakeLocalTrack) IsMuted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

func (t *fakeLocalTrack) Attach(el core.MediaElement) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attached = el
	t.attaches++
}

func (t *fakeLocalTrack) Detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attached = nil
}

func (t *fakeLocalTrack) IsAttachedTo(el core.MediaElement) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attached != nil && t.attached == el
}

func (t *fakeLocalTrack) Mute(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.muted = true
	return nil
}

func (t *fakeLocalTrack) Unmute(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.muted = false
	return nil
}

func (t *fakeLocalTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

type fakeAudioTrack struct{ fakeLocalTrack }

func (t *fakeAudioTrack) Restart(context.Context, core.AudioCaptureOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restarts++
	return nil
}

type fakeVideoTrack struct{ fakeLocalTrack }

func (t *fakeVideoTrack) Restart(context.Context, core.VideoCaptureOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restarts++
	return nil
}

type fakeDevices struct {
	mu           sync.Mutex
	audioCreated int
	videoCreated int
	screenSets   int
}

func (d *fakeDevices) CreateAudioTrack(ctx context.Context, opts core.AudioCaptureOptions) (core.LocalAudioTrack, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.audioCreated++
	return &fakeAudioTrack{fakeLocalTrack{sid: "audio", kind: core.TrackKindAudio, source: core.TrackSourceMicrophone}}, nil
}

func (d *fakeDevices) CreateVideoTrack(ctx context.Context, opts core.VideoCaptureOptions) (core.LocalVideoTrack, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.videoCreated++
	return &fakeVideoTrack{fakeLocalTrack{sid: "video", kind: core.TrackKindVideo, source: core.TrackSourceCamera}}, nil
}

func (d *fakeDevices) CreateScreenTracks(ctx context.Context, opts core.ScreenCaptureOptions) ([]core.LocalTrack, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screenSets++
	tracks := []core.LocalTrack{
		&fakeLocalTrack{sid: "screen-video", kind: core.TrackKindVideo, source: core.TrackSourceScreenShare},
	}
	if opts.WithAudio {
		tracks = append(tracks, &fakeLocalTrack{sid: "screen-audio", kind: core.TrackKindAudio, source: core.TrackSourceScreenAudio})
	}
	return tracks, nil
}

func (d *fakeDevices) ListDevices(ctx context.Context, kind core.DeviceKind) ([]core.DeviceInfo, error) {
	return []core.DeviceInfo{{DeviceID: "default", Label: "Default"}}, nil
}

type emittedMessage struct {
	msg        domain.SocketMessage
	recipients []domain.UserID
}

type fakeRelay struct {
	mu      sync.Mutex
	emitted []emittedMessage
	handler func(msg domain.SocketMessage, from domain.UserID)
}

func (r *fakeRelay) Emit(msg domain.SocketMessage, recipients ...domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitted = append(r.emitted, emittedMessage{msg: msg, recipients: recipients})
	return nil
}

func (r *fakeRelay) OnMessage(fn func(msg domain.SocketMessage, from domain.UserID)) {
	r.handler = fn
}

type fakePublication struct {
	sid    string
	kind   core.TrackKind
	source core.TrackSource
	muted  bool
	track  core.Track
}

func (p *fakePublication) SID() string              { return p.sid }
func (p *fakePublication) Kind() core.TrackKind     { return p.kind }
func (p *fakePublication) Source() core.TrackSource { return p.source }
func (p *fakePublication) IsMuted() bool            { return p.muted }
func (p *fakePublication) Track() core.Track        { return p.track }

type fakeRemoteParticipant struct {
	identity string
	metadata string
	pubs     []core.TrackPublication
}

func (p *fakeRemoteParticipant) Identity() string                          { return p.identity }
func (p *fakeRemoteParticipant) Metadata() string                          { return p.metadata }
func (p *fakeRemoteParticipant) ConnectionQuality() core.ConnectionQuality { return core.QualityGood }
func (p *fakeRemoteParticipant) Publications() []core.TrackPublication     { return p.pubs }
func (p *fakeRemoteParticipant) IsLocal() bool                             { return false }

func remoteWithUser(id domain.UserID) *fakeRemoteParticipant {
	meta, _ := domain.ParticipantMetadata{UserID: id}.Encode()
	return &fakeRemoteParticipant{identity: "identity-" + string(id), metadata: meta}
}

type fakeLocalParticipant struct {
	mu        sync.Mutex
	identity  string
	metadata  string
	published map[string]core.LocalTrack
}

func newFakeLocalParticipant() *fakeLocalParticipant {
	return &fakeLocalParticipant{published: make(map[string]core.LocalTrack)}
}

func (p *fakeLocalParticipant) Identity() string                          { return p.identity }
func (p *fakeLocalParticipant) Metadata() string                          { return p.metadata }
func (p *fakeLocalParticipant) ConnectionQuality() core.ConnectionQuality { return core.QualityGood }
func (p *fakeLocalParticipant) IsLocal() bool                             { return true }

func (p *fakeLocalParticipant) Publications() []core.TrackPublication {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.TrackPublication, 0, len(p.published))
	for sid, t := range p.published {
		out = append(out, &fakePublication{sid: sid, kind: t.Kind(), source: t.Source(), track: t})
	}
	return out
}

func (p *fakeLocalParticipant) PublishTrack(ctx context.Context, track core.LocalTrack, opts core.TrackPublishOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[track.SID()] = track
	return nil
}

func (p *fakeLocalParticipant) UnpublishTrack(ctx context.Context, track core.LocalTrack) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.published, track.SID())
	return nil
}

func (p *fakeLocalParticipant) IsPublished(track core.LocalTrack) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.published[track.SID()]
	return ok
}

type fakeRoom struct {
	mu          sync.Mutex
	state       core.ConnectionState
	connectErr  error
	connectURL  string
	connects    int
	disconnects int
	cb          core.RoomCallbacks
	local       *fakeLocalParticipant
	remotes     []core.RemoteParticipant
}

func newFakeRoom() *fakeRoom {
	return &fakeRoom{local: newFakeLocalParticipant()}
}

func (r *fakeRoom) Connect(ctx context.Context, url, token string, opts core.ConnectOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects++
	r.connectURL = url
	if r.connectErr != nil {
		return r.connectErr
	}
	r.state = core.ConnectionConnected
	return nil
}

func (r *fakeRoom) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects++
	r.state = core.ConnectionDisconnected
}

func (r *fakeRoom) State() core.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *fakeRoom) LocalParticipant() core.LocalParticipant { return r.local }

func (r *fakeRoom) RemoteParticipants() []core.RemoteParticipant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remotes
}

func (r *fakeRoom) SetCallbacks(cb core.RoomCallbacks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cb = cb
}

type fakeRoomFactory struct {
	room *fakeRoom
}

func (f *fakeRoomFactory) NewRoom(opts core.RoomOptions) core.Room {
	if f.room == nil {
		f.room = newFakeRoom()
	}
	return f.room
}
