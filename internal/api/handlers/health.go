package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

var startTime = time.Now()

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	healthTimeout   = 3 * time.Second
)

// HealthChecker is a dependency that can report its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BreakerReporter exposes the market data circuit breaker state.
type BreakerReporter interface {
	BreakerState() string
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	db         HealthChecker
	redis      HealthChecker
	marketData BreakerReporter
	version    string
	logger     *logrus.Logger
	stats      func(ctx context.Context) SystemStats
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Version    string         `json:"version"`
	Uptime     string         `json:"uptime"`
	Services   ServicesHealth `json:"services"`
	MarketData string         `json:"market_data,omitempty"`
	System     SystemStats    `json:"system"`
}

// ServicesHealth reports the storage dependencies.
type ServicesHealth struct {
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// SystemStats is a host resource snapshot.
type SystemStats struct {
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	CPUPercent        float64 `json:"cpu_percent"`
	Goroutines        int     `json:"goroutines,omitempty"`
}

// NewHealthHandler creates a health handler. marketData may be nil.
func NewHealthHandler(db, redis HealthChecker, marketData BreakerReporter, version string, logger *logrus.Logger) *HealthHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HealthHandler{
		db:         db,
		redis:      redis,
		marketData: marketData,
		version:    version,
		logger:     logger,
		stats:      hostStats,
	}
}

// HealthCheck reports 503 when Postgres or Redis is unreachable. The market
// data breaker state is informational.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	response := HealthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Services: ServicesHealth{
			Database: h.check(ctx, "database", h.db),
			Redis:    h.check(ctx, "redis", h.redis),
		},
		System: h.stats(ctx),
	}
	if h.marketData != nil {
		response.MarketData = h.marketData.BreakerState()
	}

	statusCode := http.StatusOK
	if response.Services.Database != statusHealthy || response.Services.Redis != statusHealthy {
		response.Status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

func (h *HealthHandler) check(ctx context.Context, name string, dep HealthChecker) string {
	if dep == nil {
		return statusUnhealthy
	}
	if err := dep.HealthCheck(ctx); err != nil {
		h.logger.WithError(err).WithField("service", name).Warn("Health check failed")
		return statusUnhealthy
	}
	return statusHealthy
}

// hostStats samples memory and CPU usage. Sampling errors leave zeros.
func hostStats(ctx context.Context) SystemStats {
	stats := SystemStats{Goroutines: runtime.NumGoroutine()}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryUsedPercent = round1(vm.UsedPercent)
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = round1(pct[0])
	}
	return stats
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
