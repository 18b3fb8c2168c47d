package models

import "time"

// LatestSnapshot is the single rolling row per device holding the current
// reading plus the immediately previous timestamp and water level. The
// upsert shifts current values into the previous slot before overwriting,
// which is what makes rate-of-rise computable without scanning history.
type LatestSnapshot struct {
	DeviceID              string     `json:"device_id"`
	Timestamp             time.Time  `json:"timestamp"`
	WaterLevelCm          *float64   `json:"water_level_cm"`
	PreviousTimestamp     *time.Time `json:"previous_timestamp"`
	PreviousWaterLevelCm  *float64   `json:"previous_water_level_cm"`
	RawDistanceCm         *float64   `json:"raw_distance_cm"`
	TdsPpm                *float64   `json:"tds_ppm"`
	TurbidityNtu          *float64   `json:"turbidity_ntu"`
	PHValue               *float64   `json:"ph_value"`
	TemperatureC          *float64   `json:"temperature_c"`
	RainfallRaw           *int       `json:"rainfall_value_raw"`
	LastUpdatedAt         time.Time  `json:"last_updated_at"`
}
