package store

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"smartplug-telemetry-backend/internal/model"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// Any is a helper for sqlmock to match any argument.
type Any struct{}

// Match satisfies the sqlmock.Argument interface
func (a Any) Match(v driver.Value) bool {
	return true
}

func TestGormStore_MarkAggregatesPushed(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "aggregate_rows" SET "is_pushed"=$1 WHERE id IN ($2,$3)`)).
		WithArgs(true, int64(7), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := s.MarkAggregatesPushed(context.Background(), []int64{7, 9})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_MarkAggregatesPushedEmpty(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	// No IDs means no SQL at all.
	err := s.MarkAggregatesPushed(context.Background(), nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_PurgeAggregatedBefore(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	cutoff := time.Now().UTC().Add(-2 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "samples" WHERE is_aggregated = $1 AND eat_time IS NOT NULL AND eat_time < $2`)).
		WithArgs(true, Any{}).
		WillReturnResult(sqlmock.NewResult(0, 13))
	mock.ExpectCommit()

	deleted, err := s.PurgeAggregatedBefore(context.Background(), cutoff)
	assert.NoError(t, err)
	assert.Equal(t, int64(13), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_CreateSampleSerialMismatch(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "devices"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sn"}).AddRow(1, "HW52Z_001"))

	err := s.CreateSample(context.Background(), &model.Sample{
		DeviceID:     1,
		SerialNumber: "SOMETHING_ELSE",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match device serial")

	// No INSERT may have been issued.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_CreateSampleRequiresDevice(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	err := s.CreateSample(context.Background(), &model.Sample{})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_CreateSampleInheritsSerial(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "devices"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sn"}).AddRow(1, "HW52Z_001"))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "samples"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectCommit()

	sample := &model.Sample{DeviceID: 1}
	err := s.CreateSample(context.Background(), sample)
	assert.NoError(t, err)
	assert.Equal(t, "HW52Z_001", sample.SerialNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_LatestAggregateNone(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "aggregate_rows"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	row, err := s.LatestAggregate(context.Background(), 1)
	assert.NoError(t, err)
	assert.Nil(t, row)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_DeviceBySerialNotFound(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "devices"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.DeviceBySerial(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
