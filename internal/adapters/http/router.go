package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/hathor-music/syncd/internal/adapters/signal"
	"github.com/hathor-music/syncd/internal/config"
	"github.com/hathor-music/syncd/internal/store"
)

// SetupRouter wires the WebSocket sync endpoint and the read-only REST
// surface. All mutation rides the WebSocket protocol; REST is discovery
// only.
func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.SyncWSController, db *store.DB) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	// GET /api/rooms — open public rooms with integer participant counts.
	api.GET("/rooms", func(c *gin.Context) {
		rooms, err := db.ListPublicRooms(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("list rooms")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rooms": rooms})
	})

	api.GET("/ws/sync", func(c *gin.Context) {
		ctl.HandleSync(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
