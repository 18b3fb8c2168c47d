package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"floodwatch/internal/models"
)

// AlertRepository is the Postgres implementation of AlertStore.
type AlertRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAlertRepository creates an AlertRepository.
func NewAlertRepository(db *sql.DB, log zerolog.Logger) *AlertRepository {
	return &AlertRepository{db: db, log: log}
}

func (r *AlertRepository) FindActive(ctx context.Context, deviceID string, rule models.RuleType) (*models.Alert, error) {
	query := `
		SELECT id, device_id, alert_type, message, severity,
		       triggering_sensor_data, alert_triggered_at,
		       sensor_data_timestamp, resolved_at, is_active
		FROM device_alerts
		WHERE device_id = $1 AND alert_type = $2 AND is_active = TRUE
		ORDER BY alert_triggered_at DESC
		LIMIT 1
	`

	var a models.Alert
	var triggeringData []byte
	var resolvedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, deviceID, string(rule)).Scan(
		&a.ID,
		&a.DeviceID,
		&a.AlertType,
		&a.Message,
		&a.Severity,
		&triggeringData,
		&a.TriggeredAt,
		&a.SensorDataTimestamp,
		&resolvedAt,
		&a.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active alert (%s, %s): %w", deviceID, rule, err)
	}

	a.TriggeringData = triggeringData
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return &a, nil
}

func (r *AlertRepository) Create(ctx context.Context, a *models.Alert) error {
	query := `
		INSERT INTO device_alerts (
			id, device_id, alert_type, message, severity,
			triggering_sensor_data, alert_triggered_at,
			sensor_data_timestamp, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), $7, TRUE)
		RETURNING alert_triggered_at
	`

	err := r.db.QueryRowContext(ctx, query,
		a.ID,
		a.DeviceID,
		string(a.AlertType),
		a.Message,
		string(a.Severity),
		a.TriggeringData,
		a.SensorDataTimestamp,
	).Scan(&a.TriggeredAt)
	if err != nil {
		return fmt.Errorf("create alert (%s, %s): %w", a.DeviceID, a.AlertType, err)
	}

	a.IsActive = true
	r.log.Info().
		Str("alert_id", a.ID).
		Str("device_id", a.DeviceID).
		Str("alert_type", string(a.AlertType)).
		Str("severity", string(a.Severity)).
		Msg("alert created")
	return nil
}

func (r *AlertRepository) Resolve(ctx context.Context, alertID string, resolvedAt time.Time) error {
	// Guarded by is_active so a concurrent double-resolve is a no-op.
	query := `
		UPDATE device_alerts
		SET is_active = FALSE, resolved_at = $2
		WHERE id = $1 AND is_active = TRUE
	`

	res, err := r.db.ExecContext(ctx, query, alertID, resolvedAt)
	if err != nil {
		return fmt.Errorf("resolve alert %s: %w", alertID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		r.log.Info().Str("alert_id", alertID).Msg("alert resolved")
	}
	return nil
}
