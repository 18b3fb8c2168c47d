// Package liveness tracks device reachability. A periodic sweep marks
// devices offline when their newest snapshot is older than the threshold;
// ingestion flips them back online reactively.
package liveness

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"floodwatch/internal/metrics"
	"floodwatch/internal/notify"
	"floodwatch/internal/realtime"
	"floodwatch/internal/storage"
)

// Notifier is the push fan-out for status transitions. Satisfied by
// *notify.Dispatcher.
type Notifier interface {
	Dispatch(deviceID string, n notify.Notification)
}

// Monitor sweeps all devices on a fixed interval and exposes the reactive
// online flip used by the ingestion path. Status writes are conditional in
// the store, so a sweep and a concurrent ingestion can both run without
// producing duplicate transition events.
type Monitor struct {
	devices   storage.DeviceStore
	publisher realtime.Publisher
	notifier  Notifier
	threshold time.Duration
	interval  time.Duration
	log       zerolog.Logger

	now func() time.Time
}

func NewMonitor(devices storage.DeviceStore, publisher realtime.Publisher, notifier Notifier, threshold, interval time.Duration, log zerolog.Logger) *Monitor {
	return &Monitor{
		devices:   devices,
		publisher: publisher,
		notifier:  notifier,
		threshold: threshold,
		interval:  interval,
		log:       log,
		now:       time.Now,
	}
}

// Run sweeps once immediately, then on every tick until the context ends.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info().
		Dur("interval", m.interval).
		Dur("offline_threshold", m.threshold).
		Msg("Liveness monitor started")

	m.Sweep(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("Liveness monitor stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep recomputes the offline flag for every device. A device with no
// snapshot at all counts as offline. Failures on one device never stop
// the rest of the sweep.
func (m *Monitor) Sweep(ctx context.Context) {
	start := m.now()

	devices, err := m.devices.ListWithLastSeen(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("Liveness sweep failed to list devices")
		return
	}

	for _, d := range devices {
		offline := d.LastSeen == nil || start.Sub(*d.LastSeen) > m.threshold
		if err := m.transition(ctx, d.DeviceID, d.Location, d.LastSeen, offline); err != nil {
			m.log.Error().Err(err).Str("device_id", d.DeviceID).Msg("Liveness transition failed")
		}
	}

	metrics.SweepDuration.Observe(time.Since(start).Seconds())
}

// MarkOnlineIfNeeded flips a device back online after a fresh reading,
// emitting and dispatching the same status transition as the sweep would.
// The flag write is conditional, so a device already online is a no-op
// and emits nothing. Failures are logged, never surfaced: a stale flag
// must not reject an otherwise valid reading.
func (m *Monitor) MarkOnlineIfNeeded(ctx context.Context, deviceID, location string, seenAt time.Time) {
	if err := m.transition(ctx, deviceID, location, &seenAt, false); err != nil {
		m.log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to mark device online")
	}
}

// transition writes the flag and, when it actually changed, broadcasts the
// status event and dispatches the matching push notification.
func (m *Monitor) transition(ctx context.Context, deviceID, location string, lastSeen *time.Time, offline bool) error {
	changed, err := m.devices.SetOfflineFlag(ctx, deviceID, offline)
	if err != nil || !changed {
		return err
	}

	status := "online"
	if offline {
		status = "offline"
	}
	metrics.DeviceStatusChangesTotal.WithLabelValues(status).Inc()
	m.log.Warn().
		Str("device_id", deviceID).
		Str("status", status).
		Msg("Device status changed")

	m.publisher.Publish(ctx, realtime.EventDeviceStatusUpdate, statusPayload(deviceID, location, offline, lastSeen))
	m.notifier.Dispatch(deviceID, statusNotification(deviceID, location, lastSeen, offline))

	return nil
}

func statusNotification(deviceID, location string, lastSeen *time.Time, offline bool) notify.Notification {
	if location == "" {
		location = "N/A"
	}
	seen := "never"
	if lastSeen != nil {
		seen = lastSeen.Format(time.RFC3339)
	}

	title := "Device Online"
	body := fmt.Sprintf("Device %s (%s) is back online. Last seen: %s", deviceID, location, seen)
	status := "online"
	if offline {
		title = "Device Offline"
		body = fmt.Sprintf("Device %s (%s) has stopped reporting. Last seen: %s", deviceID, location, seen)
		status = "offline"
	}

	return notify.Notification{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"deviceId": deviceID,
			"status":   status,
			"lastSeen": seen,
		},
		URL: "/dashboard",
	}
}

func statusPayload(deviceID, location string, offline bool, lastSeen *time.Time) map[string]interface{} {
	payload := map[string]interface{}{
		"deviceId":  deviceID,
		"location":  location,
		"isOffline": offline,
	}
	if lastSeen != nil {
		payload["lastSeen"] = *lastSeen
	}
	return payload
}
