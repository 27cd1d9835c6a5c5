package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/classmeet/server/internal/adapters/signal"
	"github.com/classmeet/server/internal/app"
	"github.com/classmeet/server/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ClassmeetSessions", store))
	r.Use(IdentityMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctrl := signal.NewSignalWSController(orch, cfg)

	api := r.Group("/api")
	api.GET("/ws/meet", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})
	api.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"rooms":       orch.Registry.RoomCount(),
			"connections": orch.Registry.ConnCount(),
		})
	})

	return r
}
