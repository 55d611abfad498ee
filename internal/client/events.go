package client

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/core"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/domain"
)

// resolveParticipant maps a room participant to a host user via the
// identity metadata. Participants without a resolvable host identity are
// invisible to the rest of the client.
func (c *Client) resolveParticipant(p core.Participant) (domain.ParticipantMetadata, bool) {
	meta, err := domain.DecodeParticipantMetadata(p.Metadata())
	if err != nil {
		if errors.Is(err, domain.ErrNoUserID) {
			log.Warn().Str("module", "client").Str("identity", p.Identity()).Msg("participant carries no host user id, ignoring")
		} else {
			log.Warn().Err(err).Str("module", "client").Str("identity", p.Identity()).Msg("unparseable participant metadata, ignoring")
		}
		return domain.ParticipantMetadata{}, false
	}
	return meta, true
}

func (c *Client) onParticipantConnected(p core.RemoteParticipant) {
	meta, ok := c.resolveParticipant(p)
	if !ok {
		return
	}
	log.Debug().Str("module", "client").Str("user", string(meta.UserID)).Msg("participant connected")

	user, known := c.session.User(meta.UserID)
	if !known {
		log.Warn().Str("module", "client").Str("user", string(meta.UserID)).Msg("participant does not map to a known user, ignoring")
		return
	}
	// Presence can lag the conference; joining implies being active.
	if !user.Active {
		log.Warn().Str("module", "client").Str("user", string(meta.UserID)).Msg("joining user is marked inactive, activating")
		c.session.ActivateUser(meta.UserID)
	}

	c.mu.Lock()
	c.participants[meta.UserID] = p
	c.mu.Unlock()

	// A stale breakout marker for a user who shows up in our room is
	// self-evidently wrong; clear it so later reconnects go to the right
	// place. Only meaningful in the main meeting room.
	if c.BreakoutRoom() == "" && c.session.IsPrivileged(c.session.CurrentUserID()) {
		if stale := c.session.BreakoutRoom(meta.UserID); stale != "" {
			log.Debug().Str("module", "client").Str("user", string(meta.UserID)).Msg("clearing stale breakout assignment")
			if err := c.session.SetBreakoutRoom(meta.UserID, ""); err != nil {
				log.Warn().Err(err).Str("module", "client").Msg("failed to clear stale breakout assignment")
			}
		}
	}

	c.requestRender()
}

func (c *Client) onParticipantDisconnected(p core.RemoteParticipant) {
	meta, ok := c.resolveParticipant(p)
	if !ok {
		return
	}
	log.Debug().Str("module", "client").Str("user", string(meta.UserID)).Msg("participant disconnected")

	c.mu.Lock()
	delete(c.participants, meta.UserID)
	c.mu.Unlock()

	// If the leaver was assigned to our breakout room, the assignment is
	// finished with them.
	if br := c.BreakoutRoom(); br != "" && c.session.BreakoutRoom(meta.UserID) == br {
		if err := c.session.SetBreakoutRoom(meta.UserID, ""); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("failed to clear breakout assignment for leaver")
		}
	}

	c.requestRender()
}

func (c *Client) onTrackSubscribed(track core.RemoteTrack, pub core.TrackPublication, p core.RemoteParticipant) {
	meta, ok := c.resolveParticipant(p)
	if !ok {
		return
	}
	log.Debug().Str("module", "client").
		Str("user", string(meta.UserID)).
		Str("kind", string(pub.Kind())).
		Str("source", string(pub.Source())).
		Msg("track subscribed")

	switch pub.Kind() {
	case core.TrackKindAudio:
		c.AttachAudioTrack(meta.UserID, track, pub.Source())
	case core.TrackKindVideo:
		c.AttachVideoTrack(meta.UserID, track)
	}
}

func (c *Client) onTrackUnsubscribed(track core.RemoteTrack, pub core.TrackPublication, p core.RemoteParticipant) {
	meta, ok := c.resolveParticipant(p)
	if !ok {
		return
	}
	log.Debug().Str("module", "client").
		Str("user", string(meta.UserID)).
		Str("sid", pub.SID()).
		Msg("track unsubscribed")
	track.Detach()
	c.requestRefresh(meta.UserID)
}

// onTrackMuteChanged drives the mute indicators. The local participant's
// own events are log-only: the local indicator follows user intent
// directly, not the round-tripped room state.
func (c *Client) onTrackMuteChanged(pub core.TrackPublication, p core.Participant) {
	meta, ok := c.resolveParticipant(p)
	if !ok {
		return
	}
	if p.IsLocal() {
		log.Debug().Str("module", "client").Bool("muted", pub.IsMuted()).Msg("local track mute changed")
		return
	}

	if meta.UseExternalAV {
		// External-AV users have no in-host client broadcasting presence;
		// mirror their room state into the host instead.
		muted := pub.IsMuted()
		switch pub.Kind() {
		case core.TrackKindAudio:
			c.session.HandleUserActivity(meta.UserID, &muted, nil)
		case core.TrackKindVideo:
			c.session.HandleUserActivity(meta.UserID, nil, &muted)
		}
		return
	}

	c.views.SetMuteIndicator(meta.UserID, pub.Kind(), pub.IsMuted())
}

func (c *Client) onConnectionQualityChanged(q core.ConnectionQuality, p core.Participant) {
	meta, ok := c.resolveParticipant(p)
	if !ok {
		return
	}
	if !c.cfg.DisplayConnectionQuality {
		return
	}
	c.views.SetQualityIndicator(meta.UserID, q)
}

func (c *Client) onDisconnected(reason core.DisconnectReason) {
	log.Info().Str("module", "client").Str("reason", reason.String()).Msg("disconnected from room")

	c.mu.Lock()
	c.participants = make(map[domain.UserID]core.Participant)
	c.mu.Unlock()

	c.setConnectionState(core.ConnectionDisconnected)
	c.views.SetConnectionButtons(false)
	if reason != core.DisconnectClientInitiated {
		c.session.Notify(core.NotifyWarn, "Disconnected from the conference ("+reason.String()+")")
	}
	c.requestRender()
}

func (c *Client) onReconnecting() {
	log.Warn().Str("module", "client").Msg("connection interrupted, attempting to reconnect")
	c.session.Notify(core.NotifyWarn, "Connection interrupted - reconnecting")
}

func (c *Client) onReconnected() {
	log.Info().Str("module", "client").Msg("reconnected to room")
	c.requestRender()
}

// onSocketMessage dispatches relay commands. Every action except a
// self-targeted breakout demands a privileged sender.
func (c *Client) onSocketMessage(msg domain.SocketMessage, from domain.UserID) {
	if !msg.Known() {
		log.Warn().Str("module", "client").Str("action", string(msg.Action)).Msg("unknown socket action, dropping")
		return
	}
	if !c.session.IsPrivileged(from) {
		log.Warn().Str("module", "client").
			Str("action", string(msg.Action)).
			Str("from", string(from)).
			Msg("socket command from unprivileged user, dropping")
		return
	}

	me := c.session.CurrentUserID()
	ctx := context.Background()

	switch msg.Action {
	case domain.SocketActionBreakout:
		if !msg.TargetedAt(me) {
			return
		}
		c.Breakout(ctx, msg.BreakoutRoom)
	case domain.SocketActionConnect:
		if _, err := c.Connect(ctx); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("remote connect command rejected")
		}
	case domain.SocketActionDisconnect:
		if _, err := c.Disconnect(); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("remote disconnect command rejected")
		}
	case domain.SocketActionRender:
		c.requestRender()
	}
}
