package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"floodwatch/internal/models"
)

// SubscriptionRepository is the Postgres implementation of SubscriptionStore.
type SubscriptionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSubscriptionRepository creates a SubscriptionRepository.
func NewSubscriptionRepository(db *sql.DB, log zerolog.Logger) *SubscriptionRepository {
	return &SubscriptionRepository{db: db, log: log}
}

func (r *SubscriptionRepository) ListForDevice(ctx context.Context, deviceID string) ([]models.PushSubscription, error) {
	// Preference rows are the sole authorization: a subscription with no
	// preference for this device receives nothing.
	query := `
		SELECT ps.id, ps.endpoint
		FROM push_subscriptions ps
		JOIN notification_preferences np ON np.push_subscription_id = ps.id
		WHERE np.device_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list subscribers for %s: %w", deviceID, err)
	}
	defer rows.Close()

	var out []models.PushSubscription
	for rows.Next() {
		var s models.PushSubscription
		if err := rows.Scan(&s.ID, &s.Endpoint); err != nil {
			return nil, fmt.Errorf("scan subscription row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subscribers for %s: %w", deviceID, err)
	}
	return out, nil
}

func (r *SubscriptionRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete subscription %d: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM notification_preferences WHERE push_subscription_id = $1`, id); err != nil {
		return fmt.Errorf("delete preferences for subscription %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete subscription %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete subscription %d: %w", id, err)
	}

	r.log.Info().Int64("subscription_id", id).Msg("dead subscription deleted")
	return nil
}
