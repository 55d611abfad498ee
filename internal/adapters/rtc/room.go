package rtc

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/core"
)

const joinTimeout = 15 * time.Second

// Factory creates room handles over this adapter.
type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) NewRoom(opts core.RoomOptions) core.Room {
	r := &room{opts: opts, remotes: make(map[string]*remoteParticipant)}
	r.local = newLocalParticipant(r)
	return r
}

// room is the client side of one conference session: a signaling
// websocket plus a single peer connection carrying every track.
type room struct {
	opts core.RoomOptions

	mu      sync.RWMutex
	state   core.ConnectionState
	signal  *signalClient
	pc      *webrtc.PeerConnection
	cb      core.RoomCallbacks
	local   *localParticipant
	remotes map[string]*remoteParticipant
	joined  chan error

	// negotiateMu serializes offer/answer exchanges; glare is avoided by
	// the server never offering while an answer is pending.
	negotiateMu sync.Mutex
}

func (r *room) SetCallbacks(cb core.RoomCallbacks) {
	r.mu.Lock()
	r.cb = cb
	r.mu.Unlock()
}

func (r *room) callbacks() core.RoomCallbacks {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cb
}

func (r *room) State() core.ConnectionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *room) setState(s core.ConnectionState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *room) LocalParticipant() core.LocalParticipant { return r.local }

func (r *room) RemoteParticipants() []core.RemoteParticipant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RemoteParticipant, 0, len(r.remotes))
	for _, p := range r.remotes {
		out = append(out, p)
	}
	return out
}

func webRTCConfig(forceRelay bool) webrtc.Configuration {
	cfg := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
	if forceRelay {
		cfg.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}
	return cfg
}

// Connect dials the signaling endpoint, joins with the given credential
// and waits for the join acknowledgement.
func (r *room) Connect(ctx context.Context, url, token string, opts core.ConnectOptions) error {
	if r.State() != core.ConnectionDisconnected {
		return fmt.Errorf("room is not disconnected")
	}
	r.setState(core.ConnectionConnecting)

	pc, err := webrtc.NewPeerConnection(webRTCConfig(r.opts.ForceRelay))
	if err != nil {
		r.setState(core.ConnectionDisconnected)
		return fmt.Errorf("create peer connection: %w", err)
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "rtc").Str("ice_state", s.String()).Msg("ICE state")
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed {
			r.teardown(core.DisconnectUnknown, true)
		}
	})
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		ci := cand.ToJSON()
		r.sendSignal(signalMessage{
			Type:          "candidate",
			Candidate:     ci.Candidate,
			SDPMid:        ci.SDPMid,
			SDPMLineIndex: ci.SDPMLineIndex,
		})
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		r.handleRemoteTrack(track)
	})

	joined := make(chan error, 1)
	r.mu.Lock()
	r.pc = pc
	r.joined = joined
	r.mu.Unlock()

	signal, err := dialSignal(ctx, url+"/rtc", r.handleSignal, func(cause error) {
		r.teardown(core.DisconnectUnknown, true)
	})
	if err != nil {
		_ = pc.Close()
		r.setState(core.ConnectionDisconnected)
		return err
	}
	r.mu.Lock()
	r.signal = signal
	r.mu.Unlock()

	if err := signal.sendMessage(signalMessage{Type: "join", Token: token, AutoSubscribe: opts.AutoSubscribe}); err != nil {
		r.teardown(core.DisconnectJoinFailure, false)
		return err
	}

	select {
	case err := <-joined:
		if err != nil {
			r.teardown(core.DisconnectJoinFailure, false)
			return err
		}
	case <-time.After(joinTimeout):
		r.teardown(core.DisconnectJoinFailure, false)
		return fmt.Errorf("timed out waiting for join acknowledgement")
	case <-ctx.Done():
		r.teardown(core.DisconnectJoinFailure, false)
		return ctx.Err()
	}

	r.setState(core.ConnectionConnected)
	return nil
}

// Disconnect leaves the room deliberately. Local capture is untouched.
func (r *room) Disconnect() {
	r.sendSignal(signalMessage{Type: "leave"})
	r.teardown(core.DisconnectClientInitiated, true)
}

// teardown closes the transport exactly once per session and optionally
// reports the disconnect upward.
func (r *room) teardown(reason core.DisconnectReason, notify bool) {
	r.mu.Lock()
	signal, pc := r.signal, r.pc
	r.signal, r.pc = nil, nil
	remotes := r.remotes
	r.remotes = make(map[string]*remoteParticipant)
	wasDisconnected := r.state == core.ConnectionDisconnected
	r.state = core.ConnectionDisconnected
	r.mu.Unlock()

	// Publication records are bound to the closed peer connection; they
	// must not survive into the next session.
	r.local.reset()

	if signal == nil && pc == nil && wasDisconnected {
		return
	}
	if signal != nil {
		signal.close()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("peer connection close failed")
		}
	}
	for _, p := range remotes {
		p.stopTracks()
	}

	if notify {
		if cb := r.callbacks(); cb.OnDisconnected != nil {
			cb.OnDisconnected(reason)
		}
	}
}

func (r *room) sendSignal(msg signalMessage) {
	r.mu.RLock()
	signal := r.signal
	r.mu.RUnlock()
	if signal == nil {
		return
	}
	if err := signal.sendMessage(msg); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Str("type", msg.Type).Msg("signal send failed")
	}
}

func (r *room) handleSignal(msg signalMessage) {
	switch msg.Type {
	case "joined":
		r.handleJoined(msg)
	case "offer":
		r.handleOffer(msg)
	case "answer":
		r.handleAnswer(msg)
	case "candidate":
		r.handleCandidate(msg)
	case "participant_joined":
		r.handleParticipantJoined(msg)
	case "participant_left":
		r.handleParticipantLeft(msg)
	case "track_published":
		r.handleTrackPublished(msg)
	case "track_unpublished":
		r.handleTrackUnpublished(msg)
	case "mute_changed":
		r.handleMuteChanged(msg)
	case "quality_changed":
		r.handleQualityChanged(msg)
	case "leave":
		r.teardown(parseDisconnectReason(msg.Reason), true)
	case "error":
		r.handleError(msg)
	default:
		log.Warn().Str("module", "rtc").Str("type", msg.Type).Msg("unknown signal message, dropping")
	}
}

func (r *room) handleJoined(msg signalMessage) {
	r.local.setIdentity(msg.Identity, msg.Metadata)
	r.mu.Lock()
	for _, dto := range msg.Participants {
		r.remotes[dto.Identity] = newRemoteParticipant(dto)
	}
	joined := r.joined
	r.joined = nil
	r.mu.Unlock()

	log.Debug().Str("module", "rtc").Str("identity", msg.Identity).Int("participants", len(msg.Participants)).Msg("joined room")
	if joined != nil {
		joined <- nil
	}
}

func (r *room) handleError(msg signalMessage) {
	r.mu.Lock()
	joined := r.joined
	r.joined = nil
	r.mu.Unlock()

	err := fmt.Errorf("server rejected request: %s", msg.Reason)
	if joined != nil {
		joined <- err
		return
	}
	log.Warn().Err(err).Str("module", "rtc").Msg("server error")
}

func (r *room) peerConnection() *webrtc.PeerConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pc
}

func (r *room) handleOffer(msg signalMessage) {
	pc := r.peerConnection()
	if pc == nil {
		return
	}
	r.negotiateMu.Lock()
	defer r.negotiateMu.Unlock()

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP}
	if err := pc.SetRemoteDescription(offer); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Msg("apply remote offer failed")
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "rtc").Msg("create answer failed")
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Msg("set local answer failed")
		return
	}
	r.sendSignal(signalMessage{Type: "answer", SDP: answer.SDP})
}

func (r *room) handleAnswer(msg signalMessage) {
	pc := r.peerConnection()
	if pc == nil {
		return
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}
	if err := pc.SetRemoteDescription(answer); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Msg("apply remote answer failed")
	}
}

func (r *room) handleCandidate(msg signalMessage) {
	pc := r.peerConnection()
	if pc == nil {
		return
	}
	ci := webrtc.ICECandidateInit{
		Candidate:     msg.Candidate,
		SDPMid:        msg.SDPMid,
		SDPMLineIndex: msg.SDPMLineIndex,
	}
	if err := pc.AddICECandidate(ci); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Msg("add ICE candidate failed")
	}
}

func (r *room) handleParticipantJoined(msg signalMessage) {
	if msg.Participant == nil {
		return
	}
	p := newRemoteParticipant(*msg.Participant)
	r.mu.Lock()
	r.remotes[p.identity] = p
	r.mu.Unlock()

	if cb := r.callbacks(); cb.OnParticipantConnected != nil {
		cb.OnParticipantConnected(p)
	}
}

func (r *room) handleParticipantLeft(msg signalMessage) {
	r.mu.Lock()
	p, ok := r.remotes[msg.Identity]
	delete(r.remotes, msg.Identity)
	r.mu.Unlock()
	if !ok {
		return
	}
	p.stopTracks()

	if cb := r.callbacks(); cb.OnParticipantDisconnected != nil {
		cb.OnParticipantDisconnected(p)
	}
}

func (r *room) remoteParticipant(identity string) (*remoteParticipant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.remotes[identity]
	return p, ok
}

func (r *room) handleTrackPublished(msg signalMessage) {
	p, ok := r.remoteParticipant(msg.Identity)
	if !ok {
		log.Warn().Str("module", "rtc").Str("identity", msg.Identity).Msg("track published by unknown participant")
		return
	}
	p.addPublication(trackDTO{SID: msg.SID, Kind: msg.Kind, Source: msg.Source, Muted: msg.Muted})
}

func (r *room) handleTrackUnpublished(msg signalMessage) {
	p, ok := r.remoteParticipant(msg.Identity)
	if !ok {
		return
	}
	pub := p.removePublication(msg.SID)
	if pub == nil {
		return
	}
	track, _ := pub.Track().(*remoteTrack)
	if track != nil {
		track.stop()
	}
	if cb := r.callbacks(); cb.OnTrackUnsubscribed != nil && track != nil {
		cb.OnTrackUnsubscribed(track, pub, p)
	}
}

func (r *room) handleMuteChanged(msg signalMessage) {
	// The sid alone identifies the publication; search local first, then
	// remotes.
	r.local.mu.RLock()
	localPub, isLocal := r.local.pubs[msg.SID]
	r.local.mu.RUnlock()
	if isLocal {
		localPub.setMuted(msg.Muted)
		if cb := r.callbacks(); cb.OnTrackMuteChanged != nil {
			cb.OnTrackMuteChanged(localPub.publication, r.local)
		}
		return
	}

	r.mu.RLock()
	remotes := make([]*remoteParticipant, 0, len(r.remotes))
	for _, p := range r.remotes {
		remotes = append(remotes, p)
	}
	r.mu.RUnlock()
	for _, p := range remotes {
		if pub, ok := p.publication(msg.SID); ok {
			pub.setMuted(msg.Muted)
			if cb := r.callbacks(); cb.OnTrackMuteChanged != nil {
				cb.OnTrackMuteChanged(pub, p)
			}
			return
		}
	}
}

func (r *room) handleQualityChanged(msg signalMessage) {
	p, ok := r.remoteParticipant(msg.Identity)
	if !ok {
		return
	}
	q := parseQuality(msg.Quality)
	p.setQuality(q)
	if cb := r.callbacks(); cb.OnConnectionQualityChanged != nil {
		cb.OnConnectionQualityChanged(q, p)
	}
}

// handleRemoteTrack matches incoming media to its announced publication.
// The publisher sets the stream id to its identity and the track id to
// the publication sid.
func (r *room) handleRemoteTrack(pionTrack *webrtc.TrackRemote) {
	identity := pionTrack.StreamID()
	sid := pionTrack.ID()

	p, ok := r.remoteParticipant(identity)
	if !ok {
		log.Warn().Str("module", "rtc").Str("identity", identity).Str("sid", sid).Msg("media from unknown participant, dropping")
		return
	}
	pub, ok := p.publication(sid)
	if !ok {
		kind := core.TrackKindAudio
		source := core.TrackSourceMicrophone
		if pionTrack.Kind() == webrtc.RTPCodecTypeVideo {
			kind, source = core.TrackKindVideo, core.TrackSourceCamera
		}
		pub = p.addPublication(trackDTO{SID: sid, Kind: string(kind), Source: string(source)})
	}

	track := newRemoteTrack(sid, pub.Kind(), pub.Source(), pionTrack)
	track.muted.Store(pub.IsMuted())
	pub.setTrack(track)

	log.Debug().Str("module", "rtc").
		Str("identity", identity).
		Str("sid", sid).
		Str("kind", string(pub.Kind())).
		Msg("remote track arrived")

	if cb := r.callbacks(); cb.OnTrackSubscribed != nil {
		cb.OnTrackSubscribed(track, pub, p)
	}
}

func (r *room) addTrack(t *webrtc.TrackLocalStaticSample) (*webrtc.RTPSender, error) {
	pc := r.peerConnection()
	if pc == nil {
		return nil, fmt.Errorf("no peer connection")
	}
	return pc.AddTrack(t)
}

func (r *room) removeTrack(sender *webrtc.RTPSender) error {
	pc := r.peerConnection()
	if pc == nil {
		return nil
	}
	return pc.RemoveTrack(sender)
}

// negotiate sends a fresh offer after local publication changes.
func (r *room) negotiate(ctx context.Context) error {
	pc := r.peerConnection()
	if pc == nil {
		return fmt.Errorf("no peer connection")
	}
	r.negotiateMu.Lock()
	defer r.negotiateMu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	r.sendSignal(signalMessage{Type: "offer", SDP: offer.SDP})
	return nil
}

func (r *room) announcePublish(t *localTrack, opts core.TrackPublishOptions) error {
	r.mu.RLock()
	signal := r.signal
	r.mu.RUnlock()
	if signal == nil {
		return fmt.Errorf("no signaling connection")
	}
	return signal.sendMessage(signalMessage{
		Type:   "publish",
		SID:    t.sid,
		Kind:   string(t.kind),
		Source: string(t.source),
		Muted:  t.IsMuted(),
	})
}

func (r *room) announceUnpublish(sid string) {
	r.sendSignal(signalMessage{Type: "unpublish", SID: sid})
}

func (r *room) sendMute(sid string, muted bool) {
	r.sendSignal(signalMessage{Type: "mute", SID: sid, Muted: muted})
}

func parseQuality(s string) core.ConnectionQuality {
	switch strings.ToLower(s) {
	case "poor":
		return core.QualityPoor
	case "good":
		return core.QualityGood
	case "excellent":
		return core.QualityExcellent
	case "lost":
		return core.QualityLost
	default:
		return core.QualityUnknown
	}
}

func parseDisconnectReason(s string) core.DisconnectReason {
	switch strings.ToUpper(s) {
	case "CLIENT_INITIATED":
		return core.DisconnectClientInitiated
	case "DUPLICATE_IDENTITY":
		return core.DisconnectDuplicateIdentity
	case "SERVER_SHUTDOWN":
		return core.DisconnectServerShutdown
	case "PARTICIPANT_REMOVED":
		return core.DisconnectParticipantRemoved
	case "ROOM_DELETED":
		return core.DisconnectRoomDeleted
	case "STATE_MISMATCH":
		return core.DisconnectStateMismatch
	case "JOIN_FAILURE":
		return core.DisconnectJoinFailure
	default:
		return core.DisconnectUnknown
	}
}
