package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/colonylab/nestfeed/internal/app"
	"github.com/colonylab/nestfeed/internal/feed"
	"github.com/colonylab/nestfeed/internal/handlers"
	"github.com/colonylab/nestfeed/internal/middleware"
	"github.com/colonylab/nestfeed/internal/realtime"
)

// NewRouter builds the Gin engine, wires middleware and registers the feed
// routes.
func NewRouter(db *gorm.DB, service *feed.Service, hub *realtime.Hub, streams *realtime.StreamManager, cfg *app.Config) (*gin.Engine, error) {
	if service == nil {
		return nil, fmt.Errorf("feed service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	registerHealthRoutes(r, cfg, db)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")

	notificationHandler := handlers.NewNotificationHandler(service)
	registerNotificationRoutes(api, notificationHandler)

	if hub != nil && streams != nil {
		realtimeHandler := handlers.NewRealtimeHandler(hub, streams)
		api.GET("/notifications/stream", realtimeHandler.Stream)
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
