package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"floodwatch/internal/models"
)

// ReadingRepository is the Postgres implementation of ReadingStore.
type ReadingRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewReadingRepository creates a ReadingRepository.
func NewReadingRepository(db *sql.DB, log zerolog.Logger) *ReadingRepository {
	return &ReadingRepository{db: db, log: log}
}

func (r *ReadingRepository) AppendReading(ctx context.Context, reading *models.Reading) error {
	query := `
		INSERT INTO sensor_readings (
			device_id, "timestamp", water_level_cm, raw_distance_cm,
			tds_ppm, turbidity_ntu, ph_value, temperature_c, rainfall_value_raw
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		reading.DeviceID,
		reading.Timestamp,
		toNullFloat(reading.WaterLevelCm),
		toNullFloat(reading.RawDistanceCm),
		toNullFloat(reading.TdsPpm),
		toNullFloat(reading.TurbidityNtu),
		toNullFloat(reading.PHValue),
		toNullFloat(reading.TemperatureC),
		toNullInt(reading.RainfallRaw),
	)
	if err != nil {
		return fmt.Errorf("append reading for %s: %w", reading.DeviceID, err)
	}
	return nil
}

func (r *ReadingRepository) UpsertLatestSnapshot(ctx context.Context, reading *models.Reading) (*models.LatestSnapshot, error) {
	// Carry-forward semantics: on conflict the row's current timestamp and
	// water level are shifted into the previous_* columns before being
	// overwritten. previous_* starts out NULL on first insert.
	query := `
		INSERT INTO latest_device_readings (
			device_id, "timestamp", water_level_cm,
			previous_timestamp, previous_water_level_cm,
			raw_distance_cm, tds_ppm, turbidity_ntu, ph_value,
			temperature_c, rainfall_value_raw, last_updated_at
		) VALUES ($1, $2, $3, NULL, NULL, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (device_id) DO UPDATE SET
			previous_timestamp = latest_device_readings."timestamp",
			previous_water_level_cm = latest_device_readings.water_level_cm,
			"timestamp" = EXCLUDED."timestamp",
			water_level_cm = EXCLUDED.water_level_cm,
			raw_distance_cm = EXCLUDED.raw_distance_cm,
			tds_ppm = EXCLUDED.tds_ppm,
			turbidity_ntu = EXCLUDED.turbidity_ntu,
			ph_value = EXCLUDED.ph_value,
			temperature_c = EXCLUDED.temperature_c,
			rainfall_value_raw = EXCLUDED.rainfall_value_raw,
			last_updated_at = NOW()
		RETURNING device_id, "timestamp", water_level_cm,
			previous_timestamp, previous_water_level_cm,
			raw_distance_cm, tds_ppm, turbidity_ntu, ph_value,
			temperature_c, rainfall_value_raw, last_updated_at
	`

	var snap models.LatestSnapshot
	var level, prevLevel, rawDist, tds, turb, ph, temp sql.NullFloat64
	var prevTS sql.NullTime
	var rainfall sql.NullInt64

	err := r.db.QueryRowContext(ctx, query,
		reading.DeviceID,
		reading.Timestamp,
		toNullFloat(reading.WaterLevelCm),
		toNullFloat(reading.RawDistanceCm),
		toNullFloat(reading.TdsPpm),
		toNullFloat(reading.TurbidityNtu),
		toNullFloat(reading.PHValue),
		toNullFloat(reading.TemperatureC),
		toNullInt(reading.RainfallRaw),
	).Scan(
		&snap.DeviceID,
		&snap.Timestamp,
		&level,
		&prevTS,
		&prevLevel,
		&rawDist,
		&tds,
		&turb,
		&ph,
		&temp,
		&rainfall,
		&snap.LastUpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert latest snapshot for %s: %w", reading.DeviceID, err)
	}

	snap.WaterLevelCm = nullFloat(level)
	snap.PreviousWaterLevelCm = nullFloat(prevLevel)
	snap.RawDistanceCm = nullFloat(rawDist)
	snap.TdsPpm = nullFloat(tds)
	snap.TurbidityNtu = nullFloat(turb)
	snap.PHValue = nullFloat(ph)
	snap.TemperatureC = nullFloat(temp)
	if prevTS.Valid {
		t := prevTS.Time
		snap.PreviousTimestamp = &t
	}
	if rainfall.Valid {
		n := int(rainfall.Int64)
		snap.RainfallRaw = &n
	}

	return &snap, nil
}

func toNullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func toNullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
