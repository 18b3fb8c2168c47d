package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"floodwatch/internal/models"
)

// DeviceRepository is the Postgres implementation of DeviceStore.
type DeviceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewDeviceRepository creates a DeviceRepository.
func NewDeviceRepository(db *sql.DB, log zerolog.Logger) *DeviceRepository {
	return &DeviceRepository{db: db, log: log}
}

func (r *DeviceRepository) GetDeviceConfig(ctx context.Context, deviceID string) (*models.DeviceConfig, error) {
	query := `
		SELECT device_id, location, sensor_height_cm,
		       alert_threshold_absolute_cm, alert_threshold_percentage, is_offline
		FROM devices
		WHERE device_id = $1
	`

	var cfg models.DeviceConfig
	var location sql.NullString
	var height, absThr, percThr sql.NullFloat64

	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&cfg.DeviceID,
		&location,
		&height,
		&absThr,
		&percThr,
		&cfg.IsOffline,
	)
	if err == sql.ErrNoRows {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get device config %s: %w", deviceID, err)
	}

	cfg.Location = location.String
	cfg.SensorHeightCm = nullFloat(height)
	cfg.AlertThresholdAbsoluteCm = nullFloat(absThr)
	cfg.AlertThresholdPercentage = nullFloat(percThr)

	return &cfg, nil
}

func (r *DeviceRepository) SetOfflineFlag(ctx context.Context, deviceID string, offline bool) (bool, error) {
	// Conditional write: only flips the flag when it differs, so racing
	// sweep and reactive checks converge idempotently.
	query := `
		UPDATE devices
		SET is_offline = $2
		WHERE device_id = $1 AND is_offline <> $2
	`

	res, err := r.db.ExecContext(ctx, query, deviceID, offline)
	if err != nil {
		return false, fmt.Errorf("set offline flag for %s: %w", deviceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set offline flag for %s: %w", deviceID, err)
	}
	return n > 0, nil
}

func (r *DeviceRepository) ListWithLastSeen(ctx context.Context) ([]models.DeviceLastSeen, error) {
	query := `
		SELECT d.device_id, d.location, d.is_offline, lr.last_updated_at
		FROM devices d
		LEFT JOIN latest_device_readings lr ON d.device_id = lr.device_id
		ORDER BY d.device_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list devices with last seen: %w", err)
	}
	defer rows.Close()

	var out []models.DeviceLastSeen
	for rows.Next() {
		var d models.DeviceLastSeen
		var location sql.NullString
		var lastSeen sql.NullTime
		if err := rows.Scan(&d.DeviceID, &location, &d.IsOffline, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan device row: %w", err)
		}
		d.Location = location.String
		if lastSeen.Valid {
			t := lastSeen.Time
			d.LastSeen = &t
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list devices with last seen: %w", err)
	}
	return out, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
