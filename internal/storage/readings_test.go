package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodwatch/internal/models"
)

func setupMockReadingRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *ReadingRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewReadingRepository(db, zerolog.Nop())
}

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func TestAppendReading(t *testing.T) {
	db, mock, repo := setupMockReadingRepo(t)
	defer db.Close()

	ts := time.Now().UTC()
	reading := &models.Reading{
		DeviceID:      "dev-1",
		Timestamp:     ts,
		WaterLevelCm:  fptr(250),
		RawDistanceCm: fptr(50),
		PHValue:       fptr(7.1),
		RainfallRaw:   iptr(120),
	}

	mock.ExpectExec(`INSERT INTO sensor_readings`).
		WithArgs("dev-1", ts,
			sql.NullFloat64{Float64: 250, Valid: true},
			sql.NullFloat64{Float64: 50, Valid: true},
			sql.NullFloat64{},
			sql.NullFloat64{},
			sql.NullFloat64{Float64: 7.1, Valid: true},
			sql.NullFloat64{},
			sql.NullInt64{Int64: 120, Valid: true},
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.AppendReading(context.Background(), reading)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertLatestSnapshot_CarryForward(t *testing.T) {
	db, mock, repo := setupMockReadingRepo(t)
	defer db.Close()

	now := time.Now().UTC()
	prev := now.Add(-2 * time.Minute)

	rows := sqlmock.NewRows([]string{
		"device_id", "timestamp", "water_level_cm",
		"previous_timestamp", "previous_water_level_cm",
		"raw_distance_cm", "tds_ppm", "turbidity_ntu", "ph_value",
		"temperature_c", "rainfall_value_raw", "last_updated_at",
	}).AddRow(
		"dev-1", now, 130.0,
		prev, 100.0,
		170.0, nil, nil, nil,
		nil, nil, now,
	)

	mock.ExpectQuery(`INSERT INTO latest_device_readings`).
		WillReturnRows(rows)

	snap, err := repo.UpsertLatestSnapshot(context.Background(), &models.Reading{
		DeviceID:      "dev-1",
		Timestamp:     now,
		WaterLevelCm:  fptr(130),
		RawDistanceCm: fptr(170),
	})

	require.NoError(t, err)
	assert.Equal(t, "dev-1", snap.DeviceID)
	require.NotNil(t, snap.WaterLevelCm)
	assert.Equal(t, 130.0, *snap.WaterLevelCm)
	require.NotNil(t, snap.PreviousWaterLevelCm)
	assert.Equal(t, 100.0, *snap.PreviousWaterLevelCm)
	require.NotNil(t, snap.PreviousTimestamp)
	assert.True(t, snap.PreviousTimestamp.Equal(prev))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertLatestSnapshot_FirstInsertHasNoPrevious(t *testing.T) {
	db, mock, repo := setupMockReadingRepo(t)
	defer db.Close()

	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"device_id", "timestamp", "water_level_cm",
		"previous_timestamp", "previous_water_level_cm",
		"raw_distance_cm", "tds_ppm", "turbidity_ntu", "ph_value",
		"temperature_c", "rainfall_value_raw", "last_updated_at",
	}).AddRow(
		"dev-1", now, 100.0,
		nil, nil,
		200.0, nil, nil, nil,
		nil, nil, now,
	)

	mock.ExpectQuery(`INSERT INTO latest_device_readings`).
		WillReturnRows(rows)

	snap, err := repo.UpsertLatestSnapshot(context.Background(), &models.Reading{
		DeviceID:      "dev-1",
		Timestamp:     now,
		WaterLevelCm:  fptr(100),
		RawDistanceCm: fptr(200),
	})

	require.NoError(t, err)
	assert.Nil(t, snap.PreviousTimestamp)
	assert.Nil(t, snap.PreviousWaterLevelCm)
	require.NoError(t, mock.ExpectationsWereMet())
}
