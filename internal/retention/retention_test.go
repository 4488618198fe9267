package retention

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"smartplug-telemetry-backend/internal/model"
	"smartplug-telemetry-backend/internal/store"
)

func newTestStore(t *testing.T) (store.Store, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Device{}, &model.Sample{}, &model.AggregateRow{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return store.NewGormStore(db), db
}

func TestPurgeOldAggregated(t *testing.T) {
	st, db := newTestStore(t)

	device := model.Device{SN: "X1", Name: "X1"}
	require.NoError(t, db.Create(&device).Error)

	now := time.Now().UTC()
	old := now.Add(-3 * time.Hour)
	recent := now.Add(-30 * time.Minute)

	sample := func(at *time.Time, aggregated bool) model.Sample {
		return model.Sample{
			DeviceID:     device.ID,
			SerialNumber: device.SN,
			EATTime:      at,
			IsAggregated: aggregated,
		}
	}

	purgeable := sample(&old, true)
	tooRecent := sample(&recent, true)
	notConsumed := sample(&old, false)
	noTimestamp := sample(nil, true)
	require.NoError(t, db.Create(&purgeable).Error)
	require.NoError(t, db.Create(&tooRecent).Error)
	require.NoError(t, db.Create(&notConsumed).Error)
	require.NoError(t, db.Create(&noTimestamp).Error)

	svc := NewService(st)
	deleted, err := svc.PurgeOldAggregated(context.Background(), 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []model.Sample
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 3)
	for _, s := range remaining {
		assert.NotEqual(t, purgeable.ID, s.ID)
	}
}

func TestPurgeOldAggregatedNothingToDo(t *testing.T) {
	st, _ := newTestStore(t)

	svc := NewService(st)
	deleted, err := svc.PurgeOldAggregated(context.Background(), 2*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
