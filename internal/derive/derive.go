// Package derive converts raw sensor payloads into physical quantities.
// Every function here is pure: same input and thresholds, same output.
package derive

import (
	"floodwatch/internal/config"
)

// RainfallCategory is a 4-bucket classification of the raw rainfall code.
type RainfallCategory string

const (
	RainfallNone     RainfallCategory = "none"
	RainfallLight    RainfallCategory = "light"
	RainfallModerate RainfallCategory = "moderate"
	RainfallHeavy    RainfallCategory = "heavy"
)

// WaterQuality is the combined pH/turbidity classification.
type WaterQuality string

const (
	QualityGood       WaterQuality = "good"
	QualityModerate   WaterQuality = "moderate"
	QualityPoor       WaterQuality = "poor"
	QualityCritical   WaterQuality = "critical"
	QualityIncomplete WaterQuality = "incomplete"
)

// WaterLevel derives the water level from the sensor mount height and the
// raw ultrasonic distance, clamped to a minimum of 0. Returns nil when the
// mount height is unconfigured or the distance is missing: a misconfigured
// device must not fail the whole ingestion.
func WaterLevel(sensorHeightCm *float64, rawDistanceCm *float64) *float64 {
	if sensorHeightCm == nil || rawDistanceCm == nil {
		return nil
	}
	level := *sensorHeightCm - *rawDistanceCm
	if level < 0 {
		level = 0
	}
	return &level
}

// Rainfall classifies the raw rainfall code against three ascending
// thresholds.
func Rainfall(raw int, cfg config.AlertConfig) RainfallCategory {
	switch {
	case raw <= cfg.RainfallNoneMax:
		return RainfallNone
	case raw <= cfg.RainfallLightMax:
		return RainfallLight
	case raw <= cfg.RainfallModerateMax:
		return RainfallModerate
	default:
		return RainfallHeavy
	}
}

// Quality combines pH and turbidity into one category. Either metric
// critical makes the overall critical; else either poor makes it poor;
// else both good makes it good; anything else is moderate. Missing pH or
// turbidity yields QualityIncomplete, which never participates in
// alerting.
func Quality(ph, turbidity *float64, cfg config.AlertConfig) WaterQuality {
	if ph == nil || turbidity == nil {
		return QualityIncomplete
	}

	phCat := phCategory(*ph, cfg)
	turbCat := turbidityCategory(*turbidity, cfg)

	switch {
	case phCat == QualityCritical || turbCat == QualityCritical:
		return QualityCritical
	case phCat == QualityPoor || turbCat == QualityPoor:
		return QualityPoor
	case phCat == QualityGood && turbCat == QualityGood:
		return QualityGood
	default:
		return QualityModerate
	}
}

// phCategory has symmetric critical/poor bands around the good range.
func phCategory(ph float64, cfg config.AlertConfig) WaterQuality {
	switch {
	case ph < cfg.PHCriticalLow || ph > cfg.PHCriticalHigh:
		return QualityCritical
	case ph < cfg.PHPoorLow || ph > cfg.PHPoorHigh:
		return QualityPoor
	case ph >= cfg.PHGoodLow && ph <= cfg.PHGoodHigh:
		return QualityGood
	default:
		return QualityModerate
	}
}

// turbidityCategory has ascending bands.
func turbidityCategory(ntu float64, cfg config.AlertConfig) WaterQuality {
	switch {
	case ntu <= cfg.TurbidityGoodMax:
		return QualityGood
	case ntu <= cfg.TurbidityModerateMax:
		return QualityModerate
	case ntu <= cfg.TurbidityPoorMax:
		return QualityPoor
	default:
		return QualityCritical
	}
}
