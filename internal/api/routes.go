package api

import (
	"github.com/gin-gonic/gin"
	"github.com/irfndi/stock-monitor/internal/api/handlers"
	"github.com/irfndi/stock-monitor/internal/logging"
	"github.com/irfndi/stock-monitor/internal/metrics"
	"github.com/irfndi/stock-monitor/internal/middleware"
	"go.opentelemetry.io/otel/trace"
)

// Handlers groups the HTTP handlers mounted by SetupRoutes.
type Handlers struct {
	Health    *handlers.HealthHandler
	Watchlist *handlers.WatchlistHandler
	Refresh   *handlers.RefreshHandler
}

// RouterConfig carries the middleware dependencies.
type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	Logger         logging.Logger
	Metrics        *metrics.Registry
	// TracerProvider may be nil to use the global provider.
	TracerProvider trace.TracerProvider
}

func SetupRoutes(router *gin.Engine, h Handlers, cfg RouterConfig) {
	router.Use(
		gin.Recovery(),
		middleware.Tracing(cfg.ServiceName, cfg.TracerProvider),
		middleware.RequestID(),
		middleware.RequestLogger(cfg.Logger, cfg.Metrics),
		middleware.CORS(cfg.AllowedOrigins, handlers.InvalidateViewsHeader),
	)

	// Probes
	router.GET("/health", h.Health.HealthCheck)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	monitor := router.Group("/monitor")
	{
		watchlist := monitor.Group("/watchlist")
		{
			watchlist.GET("", h.Watchlist.GetWatchlist)
			watchlist.PUT("/:ticker", h.Watchlist.AddTicker)
			watchlist.DELETE("/:ticker", h.Watchlist.RemoveTicker)
			watchlist.POST("/:ticker/favourite", h.Watchlist.SetFavourite)
			watchlist.POST("/batch/remove", h.Watchlist.RemoveBatch)
		}

		archive := monitor.Group("/archive")
		{
			archive.GET("", h.Watchlist.GetArchive)
			archive.DELETE("/:ticker", h.Watchlist.DeleteArchived)
		}

		refresh := monitor.Group("/refresh")
		{
			refresh.POST("", h.Refresh.StartRefresh)
			refresh.GET("", h.Refresh.ListRefreshJobs)
			refresh.GET("/:job_id", h.Refresh.GetRefreshJob)
		}
	}
}
