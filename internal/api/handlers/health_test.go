package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockHealthChecker mocks a storage dependency.
type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type fixedBreaker string

func (b fixedBreaker) BreakerState() string { return string(b) }

func runHealthCheck(t *testing.T, h *HealthHandler) (*httptest.ResponseRecorder, HealthResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", h.HealthCheck)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestHealthHandler_Healthy(t *testing.T) {
	db, redis := &MockHealthChecker{}, &MockHealthChecker{}
	db.On("HealthCheck", mock.Anything).Return(nil)
	redis.On("HealthCheck", mock.Anything).Return(nil)

	h := NewHealthHandler(db, redis, fixedBreaker("closed"), "1.2.3", logrus.New())
	h.stats = func(context.Context) SystemStats { return SystemStats{MemoryUsedPercent: 41.5} }

	w, resp := runHealthCheck(t, h)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Services.Database)
	assert.Equal(t, "healthy", resp.Services.Redis)
	assert.Equal(t, "closed", resp.MarketData)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, 41.5, resp.System.MemoryUsedPercent)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestHealthHandler_DegradedWhenStorageDown(t *testing.T) {
	tests := []struct {
		name      string
		dbErr     error
		redisErr  error
		wantDB    string
		wantRedis string
	}{
		{"database down", errors.New("connection refused"), nil, "unhealthy", "healthy"},
		{"redis down", nil, errors.New("i/o timeout"), "healthy", "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, redis := &MockHealthChecker{}, &MockHealthChecker{}
			db.On("HealthCheck", mock.Anything).Return(tt.dbErr)
			redis.On("HealthCheck", mock.Anything).Return(tt.redisErr)

			h := NewHealthHandler(db, redis, nil, "test", logrus.New())
			w, resp := runHealthCheck(t, h)
			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
			assert.Equal(t, "degraded", resp.Status)
			assert.Equal(t, tt.wantDB, resp.Services.Database)
			assert.Equal(t, tt.wantRedis, resp.Services.Redis)
		})
	}
}

func TestHealthHandler_OpenBreakerIsInformational(t *testing.T) {
	db, redis := &MockHealthChecker{}, &MockHealthChecker{}
	db.On("HealthCheck", mock.Anything).Return(nil)
	redis.On("HealthCheck", mock.Anything).Return(nil)

	h := NewHealthHandler(db, redis, fixedBreaker("open"), "test", nil)
	w, resp := runHealthCheck(t, h)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "open", resp.MarketData)
}

func TestHealthHandler_MissingDependency(t *testing.T) {
	redis := &MockHealthChecker{}
	redis.On("HealthCheck", mock.Anything).Return(nil)

	h := NewHealthHandler(nil, redis, nil, "test", nil)
	w, resp := runHealthCheck(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", resp.Services.Database)
}

func TestHostStats(t *testing.T) {
	stats := hostStats(context.Background())
	assert.GreaterOrEqual(t, stats.MemoryUsedPercent, 0.0)
	assert.LessOrEqual(t, stats.MemoryUsedPercent, 100.0)
	assert.Positive(t, stats.Goroutines)
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 41.5, round1(41.47))
	assert.Equal(t, 0.0, round1(0))
}
