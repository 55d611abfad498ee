package client

import (
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/auth"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/domain"
)

// ServerType describes a conferencing server flavor: which connection
// parameters it requires and how a join credential is obtained for it.
// Immutable once registered.
type ServerType struct {
	Key   string `validate:"required"`
	Label string `validate:"required"`
	// URL is the fixed address for managed types; self-hosted types leave
	// it empty and require one in the connection settings instead.
	URL              string
	URLRequired      bool
	UsernameRequired bool
	PasswordRequired bool
	TokenFunc        auth.TokenFunc `validate:"required"`
}

// MissingConnectionInfo reports whether required connection parameters are
// absent for this server type.
func (st ServerType) MissingConnectionInfo(s domain.ConnectionSettings) bool {
	return (st.URLRequired && s.URL == "") ||
		(st.UsernameRequired && s.Username == "") ||
		(st.PasswordRequired && s.Password == "")
}

// ServerTypeRegistry maps server-type keys to descriptors. Registration is
// a non-fatal extension point: malformed descriptors and duplicate keys are
// rejected with a boolean rather than an error.
type ServerTypeRegistry struct {
	mu         sync.RWMutex
	validate   *validator.Validate
	types      map[string]ServerType
	defaultKey string
}

func NewServerTypeRegistry(defaultKey string) *ServerTypeRegistry {
	return &ServerTypeRegistry{
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		types:      make(map[string]ServerType),
		defaultKey: defaultKey,
	}
}

func (r *ServerTypeRegistry) Add(st ServerType) bool {
	if err := r.validate.Struct(st); err != nil {
		log.Error().Err(err).Str("module", "client.servertypes").Str("key", st.Key).
			Msg("server type does not meet the structural requirements")
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[st.Key]; exists {
		log.Error().Str("module", "client.servertypes").Str("key", st.Key).
			Msg("server type key already registered")
		return false
	}
	r.types[st.Key] = st
	return true
}

func (r *ServerTypeRegistry) Get(key string) (ServerType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.types[key]
	return st, ok
}

// Resolve returns the descriptor for key, falling back to the default type
// when the key is unknown.
func (r *ServerTypeRegistry) Resolve(key string) ServerType {
	if st, ok := r.Get(key); ok {
		return st
	}
	log.Warn().Str("module", "client.servertypes").Str("key", key).Str("default", r.defaultKey).
		Msg("unknown server type, using default")
	st, _ := r.Get(r.defaultKey)
	return st
}

func (r *ServerTypeRegistry) Default() ServerType {
	st, _ := r.Get(r.defaultKey)
	return st
}
