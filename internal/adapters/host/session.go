// Package host implements the session, view and relay contracts for
// standalone operation, backed by local configuration instead of a live
// tabletop runtime.
package host

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/config"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/core"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/domain"
)

type userState struct {
	user     domain.User
	breakout string
	volume   float64
	muted    bool
	hidden   bool
}

// Session is a config-backed core.SessionContext. User and permission
// state lives in memory; connection settings persist through the config
// layer.
type Session struct {
	cfg *config.Config

	mu          sync.RWMutex
	localID     domain.UserID
	users       map[domain.UserID]*userState
	audioSource string
	videoSource string
	audioSink   string
	muteAll     bool
	voiceAlways bool
	externalURL string
}

// NewSession creates the session with the given local user. The local
// user is privileged iff marked as GM.
func NewSession(cfg *config.Config, local domain.User) *Session {
	s := &Session{
		cfg:         cfg,
		localID:     local.ID,
		users:       make(map[domain.UserID]*userState),
		voiceAlways: true,
	}
	s.users[local.ID] = &userState{user: local, volume: 1.0}
	return s
}

// AddUser registers a known remote user.
func (s *Session) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		s.users[u.ID] = &userState{user: u, volume: 1.0}
	}
}

func (s *Session) CurrentUserID() domain.UserID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localID
}

func (s *Session) CurrentUserName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.users[s.localID]; ok {
		return st.user.Name
	}
	return ""
}

func (s *Session) User(id domain.UserID) (*domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.users[id]
	if !ok {
		return nil, false
	}
	u := st.user
	return &u, true
}

func (s *Session) IsPrivileged(id domain.UserID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.users[id]
	return ok && st.user.IsGM
}

func (s *Session) ActivateUser(id domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.users[id]; ok {
		st.user.Active = true
	}
}

// Standalone operation grants everyone broadcast and share permission;
// a host integration would consult its permission tables here.
func (s *Session) CanUserBroadcastAudio(id domain.UserID) bool { return true }
func (s *Session) CanUserBroadcastVideo(id domain.UserID) bool { return true }
func (s *Session) CanUserShareAudio(id domain.UserID) bool     { return true }
func (s *Session) CanUserShareVideo(id domain.UserID) bool     { return true }

func (s *Session) VoiceModeAlways() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voiceAlways
}

func (s *Session) SetVoiceModeAlways(always bool) {
	s.mu.Lock()
	s.voiceAlways = always
	s.mu.Unlock()
}

func (s *Session) AudioSourceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.audioSource == "" {
		return "default"
	}
	return s.audioSource
}

func (s *Session) VideoSourceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.videoSource == "" {
		return "default"
	}
	return s.videoSource
}

func (s *Session) AudioSinkID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audioSink
}

func (s *Session) SetDevices(audioSource, videoSource, audioSink string) {
	s.mu.Lock()
	s.audioSource, s.videoSource, s.audioSink = audioSource, videoSource, audioSink
	s.mu.Unlock()
}

func (s *Session) UserVolume(id domain.UserID) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.users[id]; ok {
		return st.volume
	}
	return 1.0
}

func (s *Session) MuteAll() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.muteAll
}

func (s *Session) SetMuteAll(muted bool) {
	s.mu.Lock()
	s.muteAll = muted
	s.mu.Unlock()
}

func (s *Session) ConnectionSettings() domain.ConnectionSettings {
	return s.cfg.Connection
}

func (s *Session) SaveConnectionSettings(settings domain.ConnectionSettings) error {
	return s.cfg.SaveConnection(settings)
}

func (s *Session) BreakoutRoom(id domain.UserID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.users[id]; ok {
		return st.breakout
	}
	return ""
}

func (s *Session) SetBreakoutRoom(id domain.UserID, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.users[id]
	if !ok {
		return domain.ErrUnknownUser
	}
	st.breakout = room
	return nil
}

func (s *Session) BreakoutUsers() []domain.UserID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]domain.UserID, 0)
	for id, st := range s.users {
		if st.breakout != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Session) Notify(level core.NotifyLevel, message string) {
	switch level {
	case core.NotifyError:
		log.Error().Str("module", "host").Msg(message)
	case core.NotifyWarn:
		log.Warn().Str("module", "host").Msg(message)
	default:
		log.Info().Str("module", "host").Msg(message)
	}
}

func (s *Session) BroadcastActivity(muted, hidden *bool) {
	s.mu.Lock()
	if st, ok := s.users[s.localID]; ok {
		if muted != nil {
			st.muted = *muted
		}
		if hidden != nil {
			st.hidden = *hidden
		}
	}
	s.mu.Unlock()
	log.Debug().Str("module", "host").Msg("local activity broadcast")
}

func (s *Session) HandleUserActivity(id domain.UserID, muted, hidden *bool) {
	s.mu.Lock()
	if st, ok := s.users[id]; ok {
		if muted != nil {
			st.muted = *muted
		}
		if hidden != nil {
			st.hidden = *hidden
		}
	}
	s.mu.Unlock()
}

// UserActivity reports the tracked muted/hidden state for a user.
func (s *Session) UserActivity(id domain.UserID) (muted, hidden bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.users[id]; ok {
		return st.muted, st.hidden
	}
	return false, false
}

func (s *Session) PromptExternalJoin(url string) {
	s.mu.Lock()
	s.externalURL = url
	s.mu.Unlock()
	log.Info().Str("module", "host").Str("url", url).Msg("external AV join link ready")
}

// ExternalJoinURL returns the last issued external join link, empty when
// none was requested.
func (s *Session) ExternalJoinURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.externalURL
}
