package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/adapters/av"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/adapters/control"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/adapters/host"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/adapters/rtc"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/auth"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/client"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/config"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := pflag.StringP("config", "c", "", "path to config file")
	userID := pflag.String("user", "local", "host user id for this client")
	userName := pflag.String("name", "", "display name, defaults to the configured username")
	gm := pflag.Bool("gm", false, "run with the GM role")
	connect := pflag.Bool("connect", false, "connect to the meeting room on startup")
	pflag.Parse()

	// Initialize the global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.Trace {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}

	name := *userName
	if name == "" {
		name = cfg.Connection.Username
	}
	if name == "" {
		name = *userID
	}
	localUser, err := domain.NewUser(domain.UserID(*userID), name)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid local user")
	}
	localUser.IsGM = *gm
	localUser.Active = true

	session := host.NewSession(cfg, *localUser)
	hub := host.NewRelayHub()
	devices := rtc.NewDevices(host.NewSyntheticProvider())

	// The view bridge enumerates users through the client, which does not
	// exist yet; the closure resolves the cycle.
	var lk *client.Client
	views := host.NewViews(func() []domain.UserID {
		return lk.ConnectedUsers()
	})

	authService := auth.NewAuthService(cfg.AuthServer, cfg.AccountToken)
	lk = client.New(client.Options{
		Session: session,
		Views:   views,
		Devices: devices,
		Relay:   hub.Endpoint(localUser.ID),
		Rooms:   rtc.NewFactory(),
		Config:  cfg,
		Auth:    authService,
	})

	avc := av.NewClient(lk, session, devices)

	if err := avc.Initialize(ctx, av.VoiceModeAlways); err != nil {
		log.Fatal().Err(err).Msg("initialization failed")
	}
	defer lk.Close()

	if *connect {
		if ok, err := avc.Connect(ctx); err != nil || !ok {
			log.Error().Err(err).Msg("startup connect failed")
		}
	}

	r := control.SetupRouter(cfg, avc, lk, session, authService)
	srv := &http.Server{
		Addr:    cfg.ControlAddr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", cfg.ControlAddr).Msg("AV client control server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	if _, err := avc.Disconnect(); err != nil {
		log.Warn().Err(err).Msg("disconnect on shutdown failed")
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Client exited gracefully")
}
