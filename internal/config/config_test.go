package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/domain"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfigFile(t, "")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "custom", cfg.Connection.ServerType)
	require.True(t, cfg.DisplayConnectionQuality)
	require.False(t, cfg.AudioMusicMode)
	require.Equal(t, DefaultAuthServer, cfg.AuthServer)
	require.Equal(t, ":8090", cfg.ControlAddr)
	require.Equal(t, "release", cfg.Mode)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfigFile(t, `
connection:
  server_type: tavern
  room: my-meeting
audio_music_mode: true
force_relay: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "tavern", cfg.Connection.ServerType)
	require.Equal(t, domain.RoomName("my-meeting"), cfg.Connection.Room)
	require.True(t, cfg.AudioMusicMode)
	require.True(t, cfg.ForceRelay)
}

func TestLoad_ResetRoomIsOneShot(t *testing.T) {
	path := writeConfigFile(t, `
connection:
  room: stale-room
reset_room: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.NotEqual(t, domain.RoomName("stale-room"), cfg.Connection.Room)
	require.Len(t, string(cfg.Connection.Room), 32)
	require.False(t, cfg.ResetRoom)

	// The trigger must be cleared on disk too.
	again, err := Load(path)
	require.NoError(t, err)
	require.False(t, again.ResetRoom)
	require.Equal(t, cfg.Connection.Room, again.Connection.Room)
}

func TestSaveConnection_Persists(t *testing.T) {
	path := writeConfigFile(t, "")

	cfg, err := Load(path)
	require.NoError(t, err)

	settings := domain.ConnectionSettings{
		ServerType: "custom",
		URL:        "livekit.example.com",
		Room:       "main-meeting",
		Username:   "devkey",
		Password:   "devsecret",
	}
	require.NoError(t, cfg.SaveConnection(settings))
	require.Equal(t, settings, cfg.Connection)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings, reloaded.Connection)
}
