package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/irfndi/stock-monitor/internal/metrics"
	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/irfndi/stock-monitor/internal/utils"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStats struct{ calls int32 }

func (c *countingStats) LogStats() { atomic.AddInt32(&c.calls, 1) }

func seedArchive(db *memDB) {
	db.archived["OLD"] = models.ArchivedWatchlistItem{Ticker: "OLD", ExpiresAt: testNow.Add(-time.Hour)}
	db.archived["NEW"] = models.ArchivedWatchlistItem{Ticker: "NEW", ExpiresAt: testNow.Add(time.Hour)}
}

func TestCleanupService_RunCleanupPurgesExpired(t *testing.T) {
	db := newMemDB()
	seedArchive(db)
	_, archive := db.stores()
	views := &recordingViews{}
	stats := &countingStats{}
	m := metrics.NewRegistry()

	svc := NewCleanupService(archive, views, m, logrus.New(), stats)
	purged, err := svc.RunCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.NotContains(t, db.archived, "OLD")
	assert.Contains(t, db.archived, "NEW")
	assert.Equal(t, [][]models.View{{models.ViewArchive}}, views.calls())
	assert.Equal(t, int32(1), atomic.LoadInt32(&stats.calls))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ArchivePurged))

	// Nothing left to purge: no invalidation.
	purged, err = svc.RunCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged)
	assert.Len(t, views.calls(), 1)
}

func TestCleanupService_RunCleanupError(t *testing.T) {
	db := newMemDB()
	db.failWrites = true
	_, archive := db.stores()

	svc := NewCleanupService(archive, nil, nil, nil)
	_, err := svc.RunCleanup(context.Background())
	assert.ErrorIs(t, err, utils.ErrStorageUnavailable)
}

func TestCleanupService_StartAndStop(t *testing.T) {
	db := newMemDB()
	seedArchive(db)
	_, archive := db.stores()
	stats := &countingStats{}

	svc := NewCleanupService(archive, nil, nil, logrus.New(), stats)
	svc.Start(10 * time.Millisecond)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&stats.calls) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	svc.Stop()

	db.mu.Lock()
	defer db.mu.Unlock()
	assert.NotContains(t, db.archived, "OLD")
}

func TestCleanupService_StopWithoutStart(t *testing.T) {
	svc := NewCleanupService(&memArchive{newMemDB()}, nil, nil, nil)
	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without Start")
	}
}
