package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/core"
)

// publication records a track announced over signaling. track stays nil
// until the media actually arrives (remote) or is published (local).
type publication struct {
	sid    string
	kind   core.TrackKind
	source core.TrackSource

	mu    sync.Mutex
	muted bool
	track core.Track
}

func newPublication(dto trackDTO) *publication {
	return &publication{
		sid:    dto.SID,
		kind:   core.TrackKind(dto.Kind),
		source: core.TrackSource(dto.Source),
		muted:  dto.Muted,
	}
}

func (p *publication) SID() string              { return p.sid }
func (p *publication) Kind() core.TrackKind     { return p.kind }
func (p *publication) Source() core.TrackSource { return p.source }

func (p *publication) IsMuted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

func (p *publication) Track() core.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.track
}

func (p *publication) setMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	if rt, ok := p.track.(*remoteTrack); ok && rt != nil {
		rt.muted.Store(muted)
	}
	p.mu.Unlock()
}

func (p *publication) setTrack(t core.Track) {
	p.mu.Lock()
	p.track = t
	p.mu.Unlock()
}

type remoteParticipant struct {
	identity string

	mu       sync.RWMutex
	metadata string
	quality  core.ConnectionQuality
	pubs     map[string]*publication
}

func newRemoteParticipant(dto participantDTO) *remoteParticipant {
	p := &remoteParticipant{
		identity: dto.Identity,
		metadata: dto.Metadata,
		pubs:     make(map[string]*publication),
	}
	for _, t := range dto.Tracks {
		p.pubs[t.SID] = newPublication(t)
	}
	return p
}

func (p *remoteParticipant) Identity() string { return p.identity }
func (p *remoteParticipant) IsLocal() bool    { return false }

func (p *remoteParticipant) Metadata() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metadata
}

func (p *remoteParticipant) ConnectionQuality() core.ConnectionQuality {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.quality
}

func (p *remoteParticipant) Publications() []core.TrackPublication {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]core.TrackPublication, 0, len(p.pubs))
	for _, pub := range p.pubs {
		out = append(out, pub)
	}
	return out
}

func (p *remoteParticipant) publication(sid string) (*publication, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pub, ok := p.pubs[sid]
	return pub, ok
}

func (p *remoteParticipant) addPublication(dto trackDTO) *publication {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pub, ok := p.pubs[dto.SID]; ok {
		return pub
	}
	pub := newPublication(dto)
	p.pubs[dto.SID] = pub
	return pub
}

func (p *remoteParticipant) removePublication(sid string) *publication {
	p.mu.Lock()
	defer p.mu.Unlock()
	pub := p.pubs[sid]
	delete(p.pubs, sid)
	return pub
}

func (p *remoteParticipant) setQuality(q core.ConnectionQuality) {
	p.mu.Lock()
	p.quality = q
	p.mu.Unlock()
}

func (p *remoteParticipant) stopTracks() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pub := range p.pubs {
		if rt, ok := pub.track.(*remoteTrack); ok && rt != nil {
			rt.stop()
		}
	}
}

// localPublication pairs a published local track with its RTP sender so
// unpublishing can remove it from the peer connection.
type localPublication struct {
	*publication
	local  *localTrack
	sender *webrtc.RTPSender
}

type localParticipant struct {
	room *room

	mu       sync.RWMutex
	identity string
	metadata string
	quality  core.ConnectionQuality
	pubs     map[string]*localPublication
}

func newLocalParticipant(r *room) *localParticipant {
	return &localParticipant{room: r, pubs: make(map[string]*localPublication)}
}

func (p *localParticipant) Identity() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identity
}

func (p *localParticipant) Metadata() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metadata
}

func (p *localParticipant) ConnectionQuality() core.ConnectionQuality {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.quality
}

func (p *localParticipant) IsLocal() bool { return true }

func (p *localParticipant) Publications() []core.TrackPublication {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]core.TrackPublication, 0, len(p.pubs))
	for _, pub := range p.pubs {
		out = append(out, pub.publication)
	}
	return out
}

func (p *localParticipant) setIdentity(identity, metadata string) {
	p.mu.Lock()
	p.identity, p.metadata = identity, metadata
	p.mu.Unlock()
}

// reset drops all publication records once their peer connection is gone.
// The tracks themselves keep capturing so the next connection can publish
// them again.
func (p *localParticipant) reset() {
	p.mu.Lock()
	pubs := p.pubs
	p.pubs = make(map[string]*localPublication)
	p.mu.Unlock()
	for _, pub := range pubs {
		pub.local.onMuteChanged.Store(nil)
	}
}

func (p *localParticipant) IsPublished(track core.LocalTrack) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.pubs[track.SID()]
	return ok
}

// PublishTrack adds the track to the peer connection, announces it on the
// signaling channel and kicks off renegotiation.
func (p *localParticipant) PublishTrack(ctx context.Context, track core.LocalTrack, opts core.TrackPublishOptions) error {
	lt, ok := underlyingLocalTrack(track)
	if !ok {
		return fmt.Errorf("track %s was not created by this adapter", track.SID())
	}
	if p.IsPublished(track) {
		return nil
	}

	sender, err := p.room.addTrack(lt.local)
	if err != nil {
		return fmt.Errorf("add track to peer connection: %w", err)
	}

	pub := &localPublication{
		publication: &publication{sid: lt.sid, kind: lt.kind, source: lt.source, muted: lt.IsMuted(), track: track},
		local:       lt,
		sender:      sender,
	}
	p.mu.Lock()
	p.pubs[lt.sid] = pub
	p.mu.Unlock()

	sid := lt.sid
	fn := func(muted bool) { p.room.sendMute(sid, muted) }
	lt.onMuteChanged.Store(&fn)

	if err := p.room.announcePublish(lt, opts); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Str("sid", lt.sid).Msg("publish announcement failed")
	}
	return p.room.negotiate(ctx)
}

func (p *localParticipant) UnpublishTrack(ctx context.Context, track core.LocalTrack) error {
	p.mu.Lock()
	pub, ok := p.pubs[track.SID()]
	delete(p.pubs, track.SID())
	p.mu.Unlock()
	if !ok {
		return nil
	}

	pub.local.onMuteChanged.Store(nil)
	if err := p.room.removeTrack(pub.sender); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Str("sid", pub.sid).Msg("remove track from peer connection failed")
	}
	p.room.announceUnpublish(pub.sid)
	return p.room.negotiate(ctx)
}

func underlyingLocalTrack(track core.LocalTrack) (*localTrack, bool) {
	switch t := track.(type) {
	case *localTrack:
		return t, true
	case *localAudioTrack:
		return t.localTrack, true
	case *localVideoTrack:
		return t.localTrack, true
	}
	return nil, false
}
