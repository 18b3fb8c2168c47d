package models

import "time"

// RuleType identifies one independently evaluated alert condition.
type RuleType string

const (
	RuleFlood        RuleType = "flood"
	RuleRapidRise    RuleType = "rapid_rise"
	RuleWaterQuality RuleType = "critical_water_quality"
)

// Severity of an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is a lifecycle record keyed by (device, rule). At most one active
// alert may exist per key at any time. Rows are never deleted, only
// resolved, so the table doubles as an audit trail.
type Alert struct {
	ID                  string     `json:"id"`
	DeviceID            string     `json:"device_id"`
	AlertType           RuleType   `json:"alert_type"`
	Message             string     `json:"message"`
	Severity            Severity   `json:"severity"`
	TriggeringData      []byte     `json:"triggering_sensor_data"` // JSON snapshot of triggering values
	TriggeredAt         time.Time  `json:"alert_triggered_at"`
	SensorDataTimestamp time.Time  `json:"sensor_data_timestamp"`
	ResolvedAt          *time.Time `json:"resolved_at"`
	IsActive            bool       `json:"is_active"`
}

// AlertInfo summarizes the alerting outcome of one ingested reading,
// returned to the ingestion caller.
type AlertInfo struct {
	Triggered bool                   `json:"triggered"`
	Message   string                 `json:"message"`
	Payload   map[string]interface{} `json:"payload"`
}
