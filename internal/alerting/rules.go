package alerting

import (
	"fmt"
	"math"

	"floodwatch/internal/config"
	"floodwatch/internal/derive"
	"floodwatch/internal/models"
)

// condition is the three-state outcome of one rule evaluation. Skipped
// evaluations neither trigger nor resolve: a reading that cannot be judged
// says nothing about the hazard.
type condition int

const (
	condSkip condition = iota
	condNotMet
	condMet
)

// evaluation is the full result of running one rule against a snapshot.
type evaluation struct {
	state      condition
	severity   models.Severity
	message    string
	triggering map[string]interface{}
}

// floodThreshold is one resolved critical level with its provenance.
type floodThreshold struct {
	level    float64
	source   string
	severity models.Severity
	// percentage is set when the level came from a percentage threshold
	percentage *float64
}

// resolveFloodThreshold walks the cascade, first applicable wins:
// device percentage × mount height, device absolute, global percentage ×
// mount height, global absolute. Device-specific thresholds are critical,
// global fallbacks only warning.
func resolveFloodThreshold(dev *models.DeviceConfig, cfg config.AlertConfig) floodThreshold {
	height := dev.SensorHeightCm
	perc := dev.AlertThresholdPercentage
	abs := dev.AlertThresholdAbsoluteCm

	resolvers := []func() *floodThreshold{
		func() *floodThreshold {
			if perc == nil || height == nil || *height <= 0 || *perc <= 0 || *perc > 1 {
				return nil
			}
			return &floodThreshold{
				level:      *height * *perc,
				source:     "device_percentage_threshold",
				severity:   models.SeverityCritical,
				percentage: perc,
			}
		},
		func() *floodThreshold {
			if abs == nil || *abs <= 0 {
				return nil
			}
			return &floodThreshold{
				level:    *abs,
				source:   "device_absolute_threshold",
				severity: models.SeverityCritical,
			}
		},
		func() *floodThreshold {
			if height == nil || *height <= 0 {
				return nil
			}
			p := cfg.FloodPercentageThreshold
			return &floodThreshold{
				level:      *height * p,
				source:     "global_percentage_threshold",
				severity:   models.SeverityWarning,
				percentage: &p,
			}
		},
		func() *floodThreshold {
			return &floodThreshold{
				level:    cfg.FloodAbsoluteThresholdCm,
				source:   "global_absolute_threshold",
				severity: models.SeverityWarning,
			}
		},
	}

	for _, resolve := range resolvers {
		if thr := resolve(); thr != nil {
			return *thr
		}
	}
	// Unreachable: the final resolver always applies.
	return floodThreshold{level: cfg.FloodAbsoluteThresholdCm, source: "global_absolute_threshold", severity: models.SeverityWarning}
}

// evaluateFlood checks the current water level against the resolved
// critical level. A snapshot without a water level is skipped, not
// resolved: we cannot tell whether the hazard passed.
func evaluateFlood(dev *models.DeviceConfig, snap *models.LatestSnapshot, cfg config.AlertConfig) evaluation {
	if snap.WaterLevelCm == nil {
		return evaluation{state: condSkip}
	}
	level := *snap.WaterLevelCm

	thr := resolveFloodThreshold(dev, cfg)
	if level < thr.level {
		return evaluation{state: condNotMet}
	}

	location := dev.Location
	if location == "" {
		location = "N/A"
	}

	var message string
	switch thr.source {
	case "device_percentage_threshold", "global_percentage_threshold":
		message = fmt.Sprintf(
			"FLOOD WARNING! %s (%s): water level %.1fcm >= %.0f%% (%.2fcm) of sensor height (%.0fcm)",
			dev.DeviceID, location, level, *thr.percentage*100, thr.level, *dev.SensorHeightCm,
		)
	default:
		message = fmt.Sprintf(
			"FLOOD WARNING! %s (%s): water level %.1fcm >= %.1fcm",
			dev.DeviceID, location, level, thr.level,
		)
	}

	triggering := map[string]interface{}{
		"waterLevel_cm":   level,
		"threshold_type":  thr.source,
		"threshold_value": round2(thr.level),
	}
	if dev.SensorHeightCm != nil {
		triggering["sensorHeight_cm"] = *dev.SensorHeightCm
	}
	if thr.percentage != nil {
		triggering["alert_threshold_percentage"] = *thr.percentage
	}

	return evaluation{
		state:      condMet,
		severity:   thr.severity,
		message:    message,
		triggering: triggering,
	}
}

// evaluateRapidRise computes the rate of change between the snapshot's
// current and previous water level. Missing samples or a non-positive
// time delta make the condition unevaluable.
func evaluateRapidRise(dev *models.DeviceConfig, snap *models.LatestSnapshot, cfg config.AlertConfig) evaluation {
	if snap.WaterLevelCm == nil || snap.PreviousWaterLevelCm == nil || snap.PreviousTimestamp == nil {
		return evaluation{state: condSkip}
	}

	current := *snap.WaterLevelCm
	previous := *snap.PreviousWaterLevelCm
	deltaLevel := current - previous
	deltaSeconds := snap.Timestamp.Sub(*snap.PreviousTimestamp).Seconds()

	if deltaSeconds <= 0 {
		return evaluation{state: condSkip}
	}
	if deltaLevel <= 0 {
		return evaluation{state: condNotMet}
	}

	rate := deltaLevel / (deltaSeconds / 60)
	if rate < cfg.RapidRiseThresholdCmPerMinute {
		return evaluation{state: condNotMet}
	}

	message := fmt.Sprintf(
		"RAPID WATER RISE DETECTED! %s: level rose %.2fcm in %.2fs (rate: %.2f cm/min)",
		dev.DeviceID, deltaLevel, deltaSeconds, rate,
	)

	return evaluation{
		state:    condMet,
		severity: models.SeverityCritical,
		message:  message,
		triggering: map[string]interface{}{
			"currentWaterLevel_cm":       current,
			"previousWaterLevel_cm":      previous,
			"deltaLevel_cm":              round2(deltaLevel),
			"deltaTime_seconds":          round2(deltaSeconds),
			"rateOfChange_cm_per_minute": round2(rate),
		},
	}
}

// evaluateWaterQuality maps the derived category onto the rule: poor is a
// warning, critical is critical, incomplete is skipped entirely.
func evaluateWaterQuality(dev *models.DeviceConfig, snap *models.LatestSnapshot, cfg config.AlertConfig) evaluation {
	quality := derive.Quality(snap.PHValue, snap.TurbidityNtu, cfg)

	switch quality {
	case derive.QualityIncomplete:
		return evaluation{state: condSkip}
	case derive.QualityPoor, derive.QualityCritical:
	default:
		return evaluation{state: condNotMet}
	}

	severity := models.SeverityWarning
	if quality == derive.QualityCritical {
		severity = models.SeverityCritical
	}

	message := fmt.Sprintf(
		"WATER QUALITY WARNING (%s)! %s: pH=%.2f, turbidity=%.2f NTU",
		quality, dev.DeviceID, *snap.PHValue, *snap.TurbidityNtu,
	)

	return evaluation{
		state:    condMet,
		severity: severity,
		message:  message,
		triggering: map[string]interface{}{
			"ph_value":        *snap.PHValue,
			"turbidity_ntu":   *snap.TurbidityNtu,
			"qualityCategory": string(quality),
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
