// Package control exposes a local HTTP surface over the AV client, the
// standalone stand-in for the host UI's buttons and menus.
package control

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/adapters/av"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/auth"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/client"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/config"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/core"
	"github.com/silentmark/fvtt-module-avclient-livekit/internal/domain"
)

type Controller struct {
	av      *av.Client
	lk      *client.Client
	session core.SessionContext
	authz   *auth.AuthService
}

func SetupRouter(cfg *config.Config, avc *av.Client, lk *client.Client, session core.SessionContext, authz *auth.AuthService) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	ctl := &Controller{av: avc, lk: lk, session: session, authz: authz}

	api := r.Group("/api")
	api.GET("/status", ctl.handleStatus)
	api.GET("/devices", ctl.handleDevices)
	api.GET("/stats", ctl.handleStats)
	api.GET("/account", ctl.handleAccount)
	api.POST("/connect", ctl.handleConnect)
	api.POST("/disconnect", ctl.handleDisconnect)
	api.POST("/audio", ctl.handleToggleAudio)
	api.POST("/video", ctl.handleToggleVideo)
	api.POST("/share-screen", ctl.handleShareScreen)

	breakout := api.Group("/breakout")
	breakout.POST("/start", ctl.handleStartBreakout)
	breakout.POST("/join", ctl.handleJoinBreakout)
	breakout.POST("/pull", ctl.handlePullToBreakout)
	breakout.POST("/end", ctl.handleEndBreakout)
	breakout.POST("/end-all", ctl.handleEndAllBreakouts)

	log.Info().Str("module", "control").Str("addr", cfg.ControlAddr).Msg("control router setup")
	return r
}

func (ctl *Controller) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connectionState": ctl.lk.ConnectionState().String(),
		"currentRoom":     ctl.lk.CurrentRoom(),
		"breakoutRoom":    ctl.lk.BreakoutRoom(),
		"sharingScreen":   ctl.lk.IsSharingScreen(),
		"users":           ctl.lk.ConnectedUsers(),
	})
}

func (ctl *Controller) handleAccount(c *gin.Context) {
	user, err := ctl.authz.Validate(c.Request.Context())
	if err != nil {
		var apiErr *auth.APIError
		if errors.As(err, &apiErr) {
			c.JSON(apiErr.StatusCode, gin.H{"error": apiErr.Message})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (ctl *Controller) handleDevices(c *gin.Context) {
	ctx := c.Request.Context()
	sources, err := ctl.av.AudioSources(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	sinks, err := ctl.av.AudioSinks(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	cameras, err := ctl.av.VideoSources(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"audioSources": sources,
		"audioSinks":   sinks,
		"videoSources": cameras,
	})
}

func (ctl *Controller) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, ctl.lk.AllStatistics())
}

func (ctl *Controller) handleConnect(c *gin.Context) {
	ok, err := ctl.av.Connect(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": ok})
}

func (ctl *Controller) handleDisconnect(c *gin.Context) {
	ok, err := ctl.av.Disconnect()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"disconnected": ok})
}

type toggleRequest struct {
	Enable bool `json:"enable"`
}

func (ctl *Controller) handleToggleAudio(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid enable flag"})
		return
	}
	ctl.av.ToggleAudio(c.Request.Context(), req.Enable)
	c.JSON(http.StatusOK, gin.H{"enabled": req.Enable})
}

func (ctl *Controller) handleToggleVideo(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid enable flag"})
		return
	}
	ctl.av.ToggleVideo(c.Request.Context(), req.Enable)
	c.JSON(http.StatusOK, gin.H{"enabled": req.Enable})
}

func (ctl *Controller) handleShareScreen(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid enable flag"})
		return
	}
	if err := ctl.lk.ShareScreen(c.Request.Context(), req.Enable); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sharing": req.Enable})
}

type breakoutRequest struct {
	UserID domain.UserID `json:"userId"`
}

// requirePrivilege rejects breakout management for non-GM local users.
// The client enforces this again; rejecting here gives a clean HTTP error.
func (ctl *Controller) requirePrivilege(c *gin.Context) bool {
	if !ctl.session.IsPrivileged(ctl.session.CurrentUserID()) {
		c.JSON(http.StatusForbidden, gin.H{"error": "breakout management requires the GM role"})
		return false
	}
	return true
}

func (ctl *Controller) bindBreakoutUser(c *gin.Context) (domain.UserID, bool) {
	var req breakoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid userId"})
		return "", false
	}
	return req.UserID, true
}

func (ctl *Controller) handleStartBreakout(c *gin.Context) {
	if !ctl.requirePrivilege(c) {
		return
	}
	id, ok := ctl.bindBreakoutUser(c)
	if !ok {
		return
	}
	if err := ctl.lk.StartBreakout(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"breakoutRoom": ctl.lk.BreakoutRoom()})
}

func (ctl *Controller) handleJoinBreakout(c *gin.Context) {
	if !ctl.requirePrivilege(c) {
		return
	}
	id, ok := ctl.bindBreakoutUser(c)
	if !ok {
		return
	}
	if err := ctl.lk.JoinBreakout(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"breakoutRoom": ctl.lk.BreakoutRoom()})
}

func (ctl *Controller) handlePullToBreakout(c *gin.Context) {
	if !ctl.requirePrivilege(c) {
		return
	}
	id, ok := ctl.bindBreakoutUser(c)
	if !ok {
		return
	}
	if err := ctl.lk.PullToBreakout(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"breakoutRoom": ctl.lk.BreakoutRoom()})
}

func (ctl *Controller) handleEndBreakout(c *gin.Context) {
	if !ctl.requirePrivilege(c) {
		return
	}
	id, ok := ctl.bindBreakoutUser(c)
	if !ok {
		return
	}
	if err := ctl.lk.EndUserBreakout(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ended": true})
}

func (ctl *Controller) handleEndAllBreakouts(c *gin.Context) {
	if !ctl.requirePrivilege(c) {
		return
	}
	if err := ctl.lk.EndAllBreakouts(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ended": true})
}
