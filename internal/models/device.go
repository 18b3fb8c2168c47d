package models

import "time"

// DeviceConfig is the per-device configuration owned by the
// device-management service. Read-only to this service.
type DeviceConfig struct {
	DeviceID                 string   `json:"device_id"`
	Location                 string   `json:"location"`
	SensorHeightCm           *float64 `json:"sensor_height_cm"`
	AlertThresholdAbsoluteCm *float64 `json:"alert_threshold_absolute_cm"`
	AlertThresholdPercentage *float64 `json:"alert_threshold_percentage"`
	IsOffline                bool     `json:"is_offline"`
}

// DeviceLastSeen is one row of the liveness sweep query: device identity
// plus the server-receipt time of its newest snapshot, if any.
type DeviceLastSeen struct {
	DeviceID  string     `json:"device_id"`
	Location  string     `json:"location"`
	IsOffline bool       `json:"is_offline"`
	LastSeen  *time.Time `json:"last_seen_at"`
}
