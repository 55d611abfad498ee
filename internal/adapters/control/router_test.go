package control

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/adapters/av"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/adapters/host"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/adapters/rtc"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/auth"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/client"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/config"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/domain"
)

func newTestRouter(t *testing.T, gm bool, authURL string) *gin.Engine {
	t.Helper()
	cfg := &config.Config{Mode: "release", AuthServer: authURL, AccountToken: "token-1"}
	local := domain.User{ID: "u1", Name: "Local User", IsGM: gm, Active: true}
	session := host.NewSession(cfg, local)
	hub := host.NewRelayHub()
	devices := rtc.NewDevices(host.NewSyntheticProvider())

	var lk *client.Client
	views := host.NewViews(func() []domain.UserID { return lk.ConnectedUsers() })
	authService := auth.NewAuthService(authURL, cfg.AccountToken)
	lk = client.New(client.Options{
		Session: session,
		Views:   views,
		Devices: devices,
		Relay:   hub.Endpoint(local.ID),
		Rooms:   rtc.NewFactory(),
		Config:  cfg,
		Auth:    authService,
	})
	t.Cleanup(lk.Close)

	avc := av.NewClient(lk, session, devices)
	return SetupRouter(cfg, avc, lk, session, authService)
}

func TestStatusEndpoint(t *testing.T) {
	r := newTestRouter(t, true, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "disconnected", body["connectionState"])
	require.Equal(t, false, body["sharingScreen"])
}

func TestDevicesEndpoint(t *testing.T) {
	r := newTestRouter(t, true, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/devices", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		AudioSources map[string]string `json:"audioSources"`
		AudioSinks   map[string]string `json:"audioSinks"`
		VideoSources map[string]string `json:"videoSources"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Contains(t, body.AudioSources, "default")
	require.Contains(t, body.AudioSinks, "default")
	require.Contains(t, body.VideoSources, "default")
}

func TestToggleAudio_RejectsMissingBody(t *testing.T) {
	r := newTestRouter(t, true, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/audio", nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBreakout_RequiresPrivilege(t *testing.T) {
	r := newTestRouter(t, false, "")

	for _, path := range []string{
		"/api/breakout/start",
		"/api/breakout/join",
		"/api/breakout/pull",
		"/api/breakout/end",
		"/api/breakout/end-all",
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"userId":"u2"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusForbidden, w.Code, path)
	}
}

func TestAccountEndpoint(t *testing.T) {
	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "/validate", req.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(auth.ValidatedUser{ID: "acct-1", ActiveMembership: true})
	}))
	defer authSrv.Close()

	r := newTestRouter(t, true, authSrv.URL)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/account", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var user auth.ValidatedUser
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	require.Equal(t, "acct-1", user.ID)
	require.True(t, user.ActiveMembership)
}

func TestAccountEndpoint_ForwardsServiceError(t *testing.T) {
	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(auth.APIError{ErrorID: "INVALID_TOKEN", StatusCode: http.StatusForbidden, Message: "invalid token"})
	}))
	defer authSrv.Close()

	r := newTestRouter(t, true, authSrv.URL)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/account", nil))

	require.Equal(t, http.StatusForbidden, w.Code)
}
