// Package realtime publishes state-change events for connected dashboards.
// Delivery is fire-and-forget: at most once, no guarantee, never an error
// surfaced to the caller.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"floodwatch/internal/metrics"
)

// Event names emitted by the core.
const (
	EventNewSensorData       = "new_sensor_data"
	EventRainfallUpdate      = "rainfall_update"
	EventWaterQualityUpdate  = "water_quality_update"
	EventFloodAlert          = "flood_alert"
	EventRapidRiseAlert      = "rapid_water_rise_alert"
	EventWaterQualityAlert   = "critical_water_quality_alert"
	EventAlertResolved       = "alert_resolved"
	EventDeviceStatusUpdate  = "device_status_update"
)

// Publisher is the broadcast contract.
type Publisher interface {
	Publish(ctx context.Context, event string, payload interface{})
}

// envelope is the wire format on the Redis channel.
type envelope struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload"`
	EmittedAt time.Time   `json:"emitted_at"`
}

// RedisBroadcaster publishes events on a Redis channel consumed by the
// dashboard gateway.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

// NewRedisBroadcaster creates a RedisBroadcaster.
func NewRedisBroadcaster(client *redis.Client, channel string, log zerolog.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, channel: channel, log: log}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, event string, payload interface{}) {
	body, err := json.Marshal(envelope{
		Event:     event,
		Payload:   payload,
		EmittedAt: time.Now().UTC(),
	})
	if err != nil {
		b.log.Error().Err(err).Str("event", event).Msg("failed to marshal realtime event")
		metrics.RealtimePublishTotal.WithLabelValues(event, "failed").Inc()
		return
	}

	if err := b.client.Publish(ctx, b.channel, body).Err(); err != nil {
		b.log.Error().Err(err).Str("event", event).Msg("failed to publish realtime event")
		metrics.RealtimePublishTotal.WithLabelValues(event, "failed").Inc()
		return
	}

	metrics.RealtimePublishTotal.WithLabelValues(event, "success").Inc()
}

// NopPublisher discards every event. Used when Redis is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event string, payload interface{}) {}
