package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dkeye/Parley/internal/adapters/rtc"
	"github.com/dkeye/Parley/internal/adapters/signal"
	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const sessionTokenKey = "token"

// ClientTokenMiddleware puts the bearer token on the context. Sources in
// order: Authorization header, token query parameter, cookie session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			if v, ok := sessions.Default(c).Get(sessionTokenKey).(string); ok {
				token = v
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type Deps struct {
	Orch     *orch.Orchestrator
	Auth     core.Authenticator
	RTC      webrtc.Configuration
	Gatherer prometheus.Gatherer
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("ParleySessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": d.Orch.Registry.Len()})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{orch: d.Orch, auth: d.Auth, rtc: rtc.ClientView(d.RTC)}
	ctrl := signal.NewSignalWSController(d.Orch, d.Auth, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	})

	api := r.Group("/api")
	api.POST("/session", h.createSession)
	api.DELETE("/session", h.deleteSession)
	api.GET("/ws", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	authed := api.Group("", h.requireAuth)
	authed.GET("/presence/:id", h.presence)
	authed.GET("/online", h.online)
	authed.GET("/rtc/config", h.rtcConfig)

	return r
}

type handlers struct {
	orch *orch.Orchestrator
	auth core.Authenticator
	rtc  rtc.ClientConfig
}

func (h *handlers) createSession(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	user, err := h.auth.Authenticate(c.Request.Context(), req.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	s := sessions.Default(c)
	s.Set(sessionTokenKey, req.Token)
	if err := s.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": user})
}

func (h *handlers) deleteSession(c *gin.Context) {
	s := sessions.Default(c)
	s.Clear()
	_ = s.Save()
	c.Status(http.StatusNoContent)
}

func (h *handlers) requireAuth(c *gin.Context) {
	user, err := h.auth.Authenticate(c.Request.Context(), c.GetString("client_token"))
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, core.ErrUnauthorized) {
			status = http.StatusInternalServerError
		}
		c.AbortWithStatusJSON(status, gin.H{"error": "unauthorized"})
		return
	}
	c.Set("user_id", string(user))
	c.Next()
}

func (h *handlers) presence(c *gin.Context) {
	user, err := domain.ParseUserID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.orch.Presence.Snapshot(c.Request.Context(), user))
}

func (h *handlers) online(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.orch.Registry.OnlineUsers()})
}

func (h *handlers) rtcConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.rtc)
}
