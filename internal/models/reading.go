package models

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Reading is one ingested sensor sample. Immutable once stored;
// history is append-only.
type Reading struct {
	DeviceID       string    `json:"device_id"`
	Timestamp      time.Time `json:"timestamp"`
	WaterLevelCm   *float64  `json:"water_level_cm"`
	RawDistanceCm  *float64  `json:"raw_distance_cm"`
	TdsPpm         *float64  `json:"tds_ppm"`
	TurbidityNtu   *float64  `json:"turbidity_ntu"`
	PHValue        *float64  `json:"ph_value"`
	TemperatureC   *float64  `json:"temperature_c"`
	RainfallRaw    *int      `json:"rainfall_value_raw"`
}

// ReadingInput is the raw ingestion payload as reported by a device.
// The waterLevel_cm field carries the raw ultrasonic distance, not the
// derived level; the field name is kept for firmware compatibility.
type ReadingInput struct {
	DeviceID        string   `json:"deviceId"`
	DeviceTimestamp string   `json:"deviceTimestamp,omitempty"`
	RawDistanceCm   *float64 `json:"waterLevel_cm,omitempty"`
	TdsPpm          *float64 `json:"tds_ppm,omitempty"`
	TurbidityNtu    *float64 `json:"turbidity_ntu,omitempty"`
	PHValue         *float64 `json:"ph_value,omitempty"`
	TemperatureC    *float64 `json:"temperature_c,omitempty"`
	RainfallRaw     *int     `json:"rainfall_value_raw,omitempty"`
}

// Validation errors
var (
	ErrEmptyDeviceID    = errors.New("deviceId is required")
	ErrInvalidTimestamp = errors.New("invalid deviceTimestamp format")
)

// SupportedTimestampFormats lists formats we attempt to parse
var SupportedTimestampFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.UnixDate,
}

// Validate checks the required ingestion fields.
func (in *ReadingInput) Validate() error {
	if strings.TrimSpace(in.DeviceID) == "" {
		return ErrEmptyDeviceID
	}
	if strings.TrimSpace(in.DeviceTimestamp) != "" {
		if _, err := ParseTimestamp(in.DeviceTimestamp); err != nil {
			return err
		}
	}
	return nil
}

// ReadingTimestamp returns the device-reported timestamp, or now when the
// device omitted one.
func (in *ReadingInput) ReadingTimestamp(now time.Time) (time.Time, error) {
	if strings.TrimSpace(in.DeviceTimestamp) == "" {
		return now.UTC(), nil
	}
	return ParseTimestamp(in.DeviceTimestamp)
}

// ParseTimestamp attempts to parse a timestamp string into time.Time.
// Accepts the layouts above plus bare unix epoch seconds or milliseconds.
func ParseTimestamp(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)

	for _, format := range SupportedTimestampFormats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}

	if epoch, err := strconv.ParseInt(ts, 10, 64); err == nil && epoch > 0 {
		// Millisecond epochs passed 1e12 back in 2001; second epochs
		// will not reach it for millennia.
		if epoch >= 1e12 {
			return time.UnixMilli(epoch).UTC(), nil
		}
		return time.Unix(epoch, 0).UTC(), nil
	}

	return time.Time{}, ErrInvalidTimestamp
}
