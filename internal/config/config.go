package config

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/domain"
)

const DefaultAuthServer = "https://auth.tavern.at"

type Config struct {
	Connection domain.ConnectionSettings `mapstructure:"connection"`

	DisplayConnectionQuality bool   `mapstructure:"display_connection_quality"`
	AudioMusicMode           bool   `mapstructure:"audio_music_mode"`
	UseExternalAV            bool   `mapstructure:"use_external_av"`
	ForceRelay               bool   `mapstructure:"force_relay"`
	Debug                    bool   `mapstructure:"debug"`
	Trace                    bool   `mapstructure:"trace"`
	ResetRoom                bool   `mapstructure:"reset_room"`
	AuthServer               string `mapstructure:"auth_server"`
	AccountToken             string `mapstructure:"account_token"`

	ControlAddr string `mapstructure:"control_addr"`
	Mode        string `mapstructure:"mode"`

	v *viper.Viper
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		path = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(path)

	v.SetDefault("connection.server_type", "custom")
	v.SetDefault("display_connection_quality", true)
	v.SetDefault("audio_music_mode", false)
	v.SetDefault("use_external_av", false)
	v.SetDefault("force_relay", false)
	v.SetDefault("debug", false)
	v.SetDefault("trace", false)
	v.SetDefault("reset_room", false)
	v.SetDefault("auth_server", DefaultAuthServer)
	v.SetDefault("control_addr", ":8090")
	v.SetDefault("mode", "release")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", path).Msg("config file not found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.v = v

	// One-shot room reset: regenerate the meeting room id and clear the
	// trigger before anything connects with the stale name.
	if cfg.ResetRoom {
		cfg.Connection.Room = domain.NewRoomName()
		cfg.ResetRoom = false
		v.Set("connection.room", string(cfg.Connection.Room))
		v.Set("reset_room", false)
		if err := v.WriteConfig(); err != nil {
			log.Error().Err(err).Str("module", "config").Msg("failed to persist room reset")
		}
		log.Warn().Str("module", "config").Str("room", string(cfg.Connection.Room)).Msg("meeting room id reset")
	}

	return &cfg, nil
}

// SaveConnection persists updated connection settings back to the config
// file. Best effort: callers log failures and move on.
func (c *Config) SaveConnection(s domain.ConnectionSettings) error {
	c.Connection = s
	if c.v == nil {
		return nil
	}
	c.v.Set("connection.server_type", s.ServerType)
	c.v.Set("connection.url", s.URL)
	c.v.Set("connection.room", string(s.Room))
	c.v.Set("connection.username", s.Username)
	c.v.Set("connection.password", s.Password)
	return c.v.WriteConfig()
}
