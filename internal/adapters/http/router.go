package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/dkeye/VoiceHub/internal/adapters/signal"
	"github.com/dkeye/VoiceHub/internal/app/orch"
	"github.com/dkeye/VoiceHub/internal/config"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const sessionTokenKey = "token"

// HealthChecker reports whether the backing store answers.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, health HealthChecker) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: int(cfg.Auth.TTL.Seconds()), HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("VoiceSessions", store))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctrl := signal.NewSignalWSController(o, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		RateEvents: cfg.RateLimit.Events,
		RateWindow: cfg.RateLimit.Window,
	})
	h := &handlers{orch: o, health: health}

	api := r.Group("/api")
	api.GET("/healthz", h.healthz)
	api.POST("/session", h.createSession)
	api.DELETE("/session", h.deleteSession)
	api.GET("/servers/online", h.onlineServers)
	api.GET("/servers/:id", BearerAuth(o), h.serverSnapshot)

	api.GET("/ws/signal", func(c *gin.Context) {
		token, _ := sessions.Default(c).Get(sessionTokenKey).(string)
		log.Info().Str("module", "adapters.http").Bool("session", token != "").Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c, token)
	})

	return r
}

// BearerAuth resolves "Authorization: Bearer <token>" to an identity and
// stores it under "user_id".
func BearerAuth(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			abortWithError(c, domain.Denied("http.auth", "unauthenticated", "bearer token required"))
			return
		}
		uid, err := o.Auth.Resolve(c.Request.Context(), raw)
		if err != nil {
			abortWithError(c, domain.Denied("http.auth", "unauthenticated", "invalid session token"))
			return
		}
		c.Set("user_id", string(uid))
		c.Next()
	}
}
