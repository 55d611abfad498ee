package client

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/core"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/domain"
)

// BreakoutRoom returns the local override; empty means the main meeting
// room.
func (c *Client) BreakoutRoom() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.breakoutRoom
}

func (c *Client) setBreakoutRoom(room string) {
	c.mu.Lock()
	c.breakoutRoom = room
	c.mu.Unlock()
}

// Breakout moves this client into the named sub-conference, or back to the
// main room when the name is empty. The move is a full disconnect and
// reconnect; on failure the override rolls back so the next manual connect
// lands in the main room.
func (c *Client) Breakout(ctx context.Context, room string) {
	if room == c.BreakoutRoom() {
		return
	}

	if room != "" {
		log.Info().Str("module", "client").Str("room", room).Msg("joining breakout room")
		c.session.Notify(core.NotifyInfo, "Joining breakout room")
	} else {
		log.Info().Str("module", "client").Msg("returning to main meeting room")
		c.session.Notify(core.NotifyInfo, "Leaving breakout room")
	}

	c.setBreakoutRoom(room)

	if _, err := c.Disconnect(); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("breakout move blocked by in-flight disconnect")
		c.setBreakoutRoom("")
		return
	}
	ok, err := c.Connect(ctx)
	if err != nil || !ok {
		log.Error().Err(err).Str("module", "client").Str("room", room).Msg("failed to enter breakout room")
		c.session.Notify(core.NotifyError, "Failed to join the breakout room")
		c.setBreakoutRoom("")
	}
}

// assignBreakout records a user's assignment in the durable registry and
// tells that user's client to move. Privileged callers only.
func (c *Client) assignBreakout(ctx context.Context, id domain.UserID, room string) error {
	me := c.session.CurrentUserID()
	if !c.session.IsPrivileged(me) {
		log.Warn().Str("module", "client").Str("user", string(me)).Msg("breakout assignment attempted without privilege")
		return ErrNotPrivileged
	}
	if err := c.session.SetBreakoutRoom(id, room); err != nil {
		return err
	}
	return c.relay.Emit(domain.SocketMessage{
		Action:       domain.SocketActionBreakout,
		UserID:       id,
		BreakoutRoom: room,
	}, id)
}

// StartBreakout creates a fresh breakout room, assigns the given user to
// it and follows them in.
func (c *Client) StartBreakout(ctx context.Context, id domain.UserID) error {
	room := string(domain.NewRoomName())
	if err := c.assignBreakout(ctx, id, room); err != nil {
		return err
	}
	c.Breakout(ctx, room)
	return nil
}

// JoinBreakout moves this (privileged) client into an existing user's
// breakout room without reassigning anyone.
func (c *Client) JoinBreakout(ctx context.Context, id domain.UserID) error {
	me := c.session.CurrentUserID()
	if !c.session.IsPrivileged(me) {
		return ErrNotPrivileged
	}
	room := c.session.BreakoutRoom(id)
	if room == "" {
		log.Warn().Str("module", "client").Str("user", string(id)).Msg("user has no breakout room to join")
		return nil
	}
	c.Breakout(ctx, room)
	return nil
}

// PullToBreakout assigns a user into this client's current breakout room.
func (c *Client) PullToBreakout(ctx context.Context, id domain.UserID) error {
	room := c.BreakoutRoom()
	if room == "" {
		log.Warn().Str("module", "client").Msg("not in a breakout room, nothing to pull into")
		return nil
	}
	return c.assignBreakout(ctx, id, room)
}

// EndUserBreakout sends one user back to the main meeting room.
func (c *Client) EndUserBreakout(ctx context.Context, id domain.UserID) error {
	return c.assignBreakout(ctx, id, "")
}

// EndAllBreakouts clears every assignment, broadcasts an untargeted return
// command and leaves our own breakout room if we are in one.
func (c *Client) EndAllBreakouts(ctx context.Context) error {
	me := c.session.CurrentUserID()
	if !c.session.IsPrivileged(me) {
		return ErrNotPrivileged
	}

	// The registry is the authority: users already in breakout rooms are
	// not participants of this room but their assignments still clear.
	for _, id := range c.session.BreakoutUsers() {
		if err := c.session.SetBreakoutRoom(id, ""); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("user", string(id)).Msg("failed to clear breakout assignment")
		}
	}

	if err := c.relay.Emit(domain.SocketMessage{Action: domain.SocketActionBreakout}); err != nil {
		return err
	}
	if c.BreakoutRoom() != "" {
		c.Breakout(ctx, "")
	}
	return nil
}
