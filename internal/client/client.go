// Package client owns the room/participant/track lifecycle: the connection
// state machine, the mapping between host users and room participants,
// local media acquisition and publishing, and the breakout sub-conference
// override. It only reaches the host through the injected core contracts.
package client

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/auth"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/config"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/core"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/domain"
)

// InitState tracks one-time local track and device setup, independent of
// the connection state. Set once per client lifetime.
type InitState int

const (
	Uninitialized InitState = iota
	Initializing
	Initialized
)

const (
	ServerTypeCustom = "custom"
	ServerTypeTavern = "tavern"

	tavernServerURL = "livekit.tavern.at"

	externalWebClientURL = "https://meet.livekit.io/custom"

	renderDebounce  = 2 * time.Second
	refreshDebounce = 200 * time.Millisecond
)

// Options carries the injected collaborators. All fields are required
// except Auth, which is only needed for the managed server type.
type Options struct {
	Session core.SessionContext
	Views   core.ViewBridge
	Devices core.MediaDevices
	Relay   core.SocketRelay
	Rooms   core.RoomFactory
	Config  *config.Config
	Auth    *auth.AuthService
}

type Client struct {
	session core.SessionContext
	views   core.ViewBridge
	devices core.MediaDevices
	relay   core.SocketRelay
	rooms   core.RoomFactory
	cfg     *config.Config

	serverTypes *ServerTypeRegistry

	mu              sync.RWMutex
	room            core.Room
	connectionState core.ConnectionState
	initState       InitState
	participants    map[domain.UserID]core.Participant
	audioTrack      core.LocalAudioTrack
	videoTrack      core.LocalVideoTrack
	screenTracks    []core.LocalTrack
	breakoutRoom    string
	currentRoom     domain.RoomName

	useExternalAV         bool
	audioBroadcastEnabled bool

	guard    opGuard
	debounce *Debouncer
}

func New(opts Options) *Client {
	c := &Client{
		session:       opts.Session,
		views:         opts.Views,
		devices:       opts.Devices,
		relay:         opts.Relay,
		rooms:         opts.Rooms,
		cfg:           opts.Config,
		serverTypes:   NewServerTypeRegistry(ServerTypeCustom),
		participants:  make(map[domain.UserID]core.Participant),
		useExternalAV: opts.Config.UseExternalAV,
		debounce:      NewDebouncer(),
	}

	c.serverTypes.Add(ServerType{
		Key:              ServerTypeCustom,
		Label:            "Self-hosted server",
		URLRequired:      true,
		UsernameRequired: true,
		PasswordRequired: true,
		TokenFunc:        auth.AccessToken,
	})
	if opts.Auth != nil {
		c.serverTypes.Add(ServerType{
			Key:       ServerTypeTavern,
			Label:     "Tavern managed server",
			URL:       tavernServerURL,
			TokenFunc: opts.Auth.TokenFunc,
		})
	}

	if c.relay != nil {
		c.relay.OnMessage(c.onSocketMessage)
	}
	return c
}

// AddServerType registers an additional server type at runtime. Returns
// false when the descriptor is malformed or the key is taken.
func (c *Client) AddServerType(st ServerType) bool {
	return c.serverTypes.Add(st)
}

func (c *Client) ServerTypes() *ServerTypeRegistry { return c.serverTypes }

func (c *Client) ConnectionState() core.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectionState
}

// CurrentRoom reports the room name used by the most recent connection
// attempt, breakout override included.
func (c *Client) CurrentRoom() domain.RoomName {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentRoom
}

func (c *Client) setConnectionState(s core.ConnectionState) {
	c.mu.Lock()
	c.connectionState = s
	c.mu.Unlock()
}

func (c *Client) InitState() InitState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initState
}

func (c *Client) SetInitState(s InitState) {
	c.mu.Lock()
	c.initState = s
	c.mu.Unlock()
}

func (c *Client) UseExternalAV() bool { return c.useExternalAV }

// InitializeRoom creates the room handle and wires the event callbacks.
// Called once during client initialization; the handle is re-entered on
// every later connect.
func (c *Client) InitializeRoom() {
	pub := c.publishOptions()
	room := c.rooms.NewRoom(core.RoomOptions{
		AdaptiveStream:  pub.Simulcast,
		Dynacast:        pub.Simulcast,
		ForceRelay:      c.cfg.ForceRelay,
		PublishDefaults: pub,
	})
	room.SetCallbacks(core.RoomCallbacks{
		OnParticipantConnected:     c.onParticipantConnected,
		OnParticipantDisconnected:  c.onParticipantDisconnected,
		OnTrackSubscribed:          c.onTrackSubscribed,
		OnTrackUnsubscribed:        c.onTrackUnsubscribed,
		OnTrackMuteChanged:         c.onTrackMuteChanged,
		OnConnectionQualityChanged: c.onConnectionQualityChanged,
		OnDisconnected:             c.onDisconnected,
		OnReconnecting:             c.onReconnecting,
		OnReconnected:              c.onReconnected,
	})
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
}

func (c *Client) roomHandle() core.Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

// Connect resolves the server type, obtains a join credential and enters
// the room. It returns whether the attempt succeeded; the only error ever
// returned is the in-flight guard rejection.
func (c *Client) Connect(ctx context.Context) (bool, error) {
	if !c.guard.begin(opConnecting) {
		return false, ErrConnectInFlight
	}
	defer c.guard.end()

	log.Debug().Str("module", "client").Msg("connect")
	c.setConnectionState(core.ConnectionConnecting)

	settings := c.session.ConnectionSettings()

	if stripped, changed := domain.StripScheme(settings.URL); changed {
		log.Warn().Str("module", "client").Str("url", settings.URL).Msg("protocol included in server URL, removing")
		settings.URL = stripped
		c.saveSettings(settings)
	}

	serverType := c.serverTypes.Resolve(settings.ServerType)

	me := c.session.CurrentUserID()
	if c.session.IsPrivileged(me) && serverType.MissingConnectionInfo(settings) {
		log.Error().Str("module", "client").Str("server_type", serverType.Key).Msg("connection information missing")
		c.session.Notify(core.NotifyError, "Connection information missing; check the server configuration")
		c.setConnectionState(core.ConnectionDisconnected)
		return false, nil
	}
	if c.session.IsPrivileged(me) && serverType.Key == ServerTypeTavern && c.cfg.AccountToken == "" {
		log.Error().Str("module", "client").Msg("managed server account token missing")
		c.session.Notify(core.NotifyError, "Account token missing; configure your account before connecting")
		c.setConnectionState(core.ConnectionDisconnected)
		return false, nil
	}

	if settings.Room == "" {
		settings.Room = domain.NewRoomName()
		log.Warn().Str("module", "client").Str("room", string(settings.Room)).Msg("no meeting room set, created random name")
		c.saveSettings(settings)
	}

	// An active breakout override replaces the configured meeting room.
	roomName := settings.Room
	if br := c.BreakoutRoom(); br != "" {
		roomName = domain.RoomName(br)
	}
	c.mu.Lock()
	c.currentRoom = roomName
	c.mu.Unlock()
	log.Debug().Str("module", "client").Str("room", string(roomName)).Msg("meeting room name resolved")

	metadata, err := domain.ParticipantMetadata{UserID: me, UseExternalAV: c.useExternalAV}.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "client").Msg("cannot encode identity metadata")
		c.setConnectionState(core.ConnectionDisconnected)
		return false, nil
	}

	userName := c.session.CurrentUserName()
	if userName == "" {
		log.Error().Str("module", "client").Msg("missing user name, cannot connect")
		c.setConnectionState(core.ConnectionDisconnected)
		return false, nil
	}

	token, err := serverType.TokenFunc(ctx, settings.Username, settings.Password, string(roomName), userName, metadata)
	if err != nil || token == "" {
		log.Error().Err(err).Str("module", "client").Str("server_type", serverType.Key).Msg("could not get access token")
		c.session.Notify(core.NotifyError, "Could not obtain a join credential for "+serverType.Label)
		c.setConnectionState(core.ConnectionDisconnected)
		return false, nil
	}

	address := serverType.URL
	if serverType.URLRequired {
		address = settings.URL
	}
	if address == "" {
		log.Error().Str("module", "client").Str("server_type", serverType.Key).Msg("server type does not provide a URL")
		c.session.Notify(core.NotifyError, serverType.Label+" does not provide a server URL")
		c.setConnectionState(core.ConnectionDisconnected)
		return false, nil
	}

	// External delegation hands the address and credential to an
	// out-of-process web client instead of connecting locally.
	if c.useExternalAV {
		log.Debug().Str("module", "client").Msg("external AV set, issuing join link instead of connecting")
		c.session.PromptExternalJoin(externalJoinURL(address, token))
		return true, nil
	}

	room := c.roomHandle()
	if room == nil {
		log.Error().Str("module", "client").Msg("connect called before the room was initialized")
		c.setConnectionState(core.ConnectionDisconnected)
		return false, nil
	}

	if err := room.Connect(ctx, "wss://"+address, token, core.ConnectOptions{AutoSubscribe: true}); err != nil {
		message := err.Error()
		if isClockSkewError(message) {
			message = "credential validity window missed; check that your clock is set correctly"
		}
		log.Error().Err(err).Str("module", "client").Msg("could not connect")
		c.session.Notify(core.NotifyError, "Connection error: "+message)
		c.views.SetConnectionButtons(false)
		c.setConnectionState(core.ConnectionDisconnected)
		return false, nil
	}

	if room.State() != core.ConnectionConnected {
		log.Error().Str("module", "client").Msg("not connected to room after attempting to connect")
		c.setConnectionState(core.ConnectionDisconnected)
		return false, nil
	}

	c.onConnected(ctx)
	c.setConnectionState(core.ConnectionConnected)
	log.Info().Str("module", "client").Str("room", string(roomName)).Msg("connected to room")
	return true, nil
}

// Disconnect leaves the room without stopping local track hardware, so a
// following reconnect is fast. Returns whether a disconnection occurred.
func (c *Client) Disconnect() (bool, error) {
	if !c.guard.begin(opDisconnecting) {
		return false, ErrDisconnectInFlight
	}
	defer c.guard.end()

	room := c.roomHandle()
	if room == nil || room.State() == core.ConnectionDisconnected {
		log.Warn().Str("module", "client").Msg("not currently connected, skipping disconnect")
		c.setConnectionState(core.ConnectionDisconnected)
		return false, nil
	}
	room.Disconnect()
	c.setConnectionState(core.ConnectionDisconnected)
	return true, nil
}

// onConnected runs post-connect setup: populate the participant map, flip
// the connect affordances and publish any already-acquired local tracks.
func (c *Client) onConnected(ctx context.Context) {
	log.Debug().Str("module", "client").Msg("client connected")

	c.addAllParticipants()
	c.views.SetConnectionButtons(true)

	c.mu.RLock()
	audio, video := c.audioTrack, c.videoTrack
	c.mu.RUnlock()
	if audio != nil {
		c.publishLocalTrack(ctx, audio)
	}
	if video != nil {
		c.publishLocalTrack(ctx, video)
	}
}

func (c *Client) addAllParticipants() {
	room := c.roomHandle()
	if room == nil {
		log.Warn().Str("module", "client").Msg("attempting to add participants before the room is available")
		return
	}

	me := c.session.CurrentUserID()
	if me != "" {
		c.mu.Lock()
		c.participants[me] = room.LocalParticipant()
		c.mu.Unlock()
	}
	for _, p := range room.RemoteParticipants() {
		c.onParticipantConnected(p)
	}
}

func (c *Client) saveSettings(s domain.ConnectionSettings) {
	if err := c.session.SaveConnectionSettings(s); err != nil {
		log.Error().Err(err).Str("module", "client").Msg("failed to persist connection settings")
	}
}

// ConnectedUsers lists host users currently in the conference. When not
// connected, the local user is still reported so their own view renders.
func (c *Client) ConnectedUsers() []domain.UserID {
	if c.useExternalAV {
		return nil
	}
	c.mu.RLock()
	users := make([]domain.UserID, 0, len(c.participants))
	for id := range c.participants {
		users = append(users, id)
	}
	c.mu.RUnlock()

	if len(users) == 0 {
		if me := c.session.CurrentUserID(); me != "" {
			users = append(users, me)
		}
	}
	return users
}

func (c *Client) participant(id domain.UserID) (core.Participant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.participants[id]
	return p, ok
}

func (c *Client) requestRender() {
	c.debounce.Call("render", renderDebounce, c.views.Render)
}

func (c *Client) requestRefresh(id domain.UserID) {
	c.debounce.Call("refresh:"+string(id), refreshDebounce, func() {
		c.views.RefreshView(id)
		c.reattachUserTracks(id)
	})
}

// reattachUserTracks re-binds a user's current tracks once their view
// elements materialize. Attaching is idempotent; when an element is still
// missing the attach path schedules the next refresh, so a track
// subscribed before the views render is picked up by a later pass.
func (c *Client) reattachUserTracks(id domain.UserID) {
	if id == c.session.CurrentUserID() {
		c.mu.RLock()
		camera := c.videoTrack
		screens := c.screenTracks
		c.mu.RUnlock()
		for _, s := range screens {
			if s.Kind() == core.TrackKindVideo {
				c.AttachVideoTrack(id, s)
				return
			}
		}
		if camera != nil {
			c.attachLocalVideo(camera)
		}
		return
	}
	if t := c.UserAudioTrack(id); t != nil {
		c.AttachAudioTrack(id, t, t.Source())
	}
	if t := c.UserVideoTrack(id); t != nil {
		c.AttachVideoTrack(id, t)
	}
}

// Close stops pending debounced work. It does not disconnect.
func (c *Client) Close() {
	c.debounce.Stop()
}

func externalJoinURL(address, token string) string {
	params := url.Values{}
	params.Set("liveKitUrl", "wss://"+address)
	params.Set("token", token)
	return externalWebClientURL + "?" + params.Encode()
}

func isClockSkewError(message string) bool {
	return strings.Contains(message, "validation failed, token is expired") ||
		strings.Contains(message, "validation failed, token not valid yet")
}
