// Package storage defines the persistence contracts the core depends on,
// plus their Postgres implementations. Callers own transactional semantics
// no wider than a single call: every write here is individually atomic.
package storage

import (
	"context"
	"errors"
	"time"

	"floodwatch/internal/models"
)

// ErrDeviceNotFound is returned when a device id has no configuration row.
var ErrDeviceNotFound = errors.New("device not found")

// DeviceStore reads device configuration and maintains the offline flag.
type DeviceStore interface {
	// GetDeviceConfig returns the configuration for one device, or
	// ErrDeviceNotFound.
	GetDeviceConfig(ctx context.Context, deviceID string) (*models.DeviceConfig, error)

	// SetOfflineFlag writes the offline flag only when it actually changes,
	// reporting whether a change happened. The conditional update makes the
	// sweep/reactive race benign.
	SetOfflineFlag(ctx context.Context, deviceID string, offline bool) (changed bool, err error)

	// ListWithLastSeen returns every device joined with the server-receipt
	// time of its newest snapshot (nil when the device never reported).
	ListWithLastSeen(ctx context.Context) ([]models.DeviceLastSeen, error)
}

// ReadingStore persists readings.
type ReadingStore interface {
	// AppendReading appends one immutable reading to the history table.
	AppendReading(ctx context.Context, r *models.Reading) error

	// UpsertLatestSnapshot writes the per-device rolling snapshot, shifting
	// the prior current values into the previous slot, and returns the
	// resulting row.
	UpsertLatestSnapshot(ctx context.Context, r *models.Reading) (*models.LatestSnapshot, error)
}

// AlertStore maintains alert lifecycle rows.
type AlertStore interface {
	// FindActive returns the active alert for (device, rule), or nil.
	FindActive(ctx context.Context, deviceID string, rule models.RuleType) (*models.Alert, error)

	// Create inserts a new active alert row.
	Create(ctx context.Context, a *models.Alert) error

	// Resolve marks an alert inactive with the given resolution time.
	// Resolving an already-resolved alert is a no-op.
	Resolve(ctx context.Context, alertID string, resolvedAt time.Time) error
}

// SubscriptionStore resolves and prunes push subscribers.
type SubscriptionStore interface {
	// ListForDevice returns every subscription with a preference row for
	// the device. Subscriptions without preferences receive nothing.
	ListForDevice(ctx context.Context, deviceID string) ([]models.PushSubscription, error)

	// Delete removes a subscription proven dead, preferences included.
	Delete(ctx context.Context, id int64) error
}
