// Package ingest orchestrates the processing of one sensor reading:
// validation, metric derivation, persistence, realtime broadcast, liveness
// flip, alert evaluation, and the optional export enqueue.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"floodwatch/internal/config"
	"floodwatch/internal/derive"
	"floodwatch/internal/metrics"
	"floodwatch/internal/models"
	"floodwatch/internal/realtime"
	"floodwatch/internal/storage"
)

// Evaluator runs the alert rules for a fresh snapshot. Satisfied by
// *alerting.Engine.
type Evaluator interface {
	Evaluate(ctx context.Context, dev *models.DeviceConfig, snap *models.LatestSnapshot) (models.AlertInfo, error)
}

// OnlineMarker flips a device back online after a fresh reading.
// Satisfied by *liveness.Monitor.
type OnlineMarker interface {
	MarkOnlineIfNeeded(ctx context.Context, deviceID, location string, seenAt time.Time)
}

// Result is what the ingestion endpoint returns to the device.
type Result struct {
	Snapshot *models.LatestSnapshot   `json:"snapshot"`
	Rainfall *derive.RainfallCategory `json:"rainfall_category,omitempty"`
	Quality  derive.WaterQuality      `json:"water_quality"`
	Alert    models.AlertInfo         `json:"alert"`
}

// Service processes readings end to end. Persistence failures abort the
// request; broadcast and export failures never do.
type Service struct {
	cfg       config.AlertConfig
	devices   storage.DeviceStore
	readings  storage.ReadingStore
	engine    Evaluator
	liveness  OnlineMarker
	publisher realtime.Publisher
	export    chan<- *models.ReadingEnvelope
	node      string
	log       zerolog.Logger

	now func() time.Time
}

func NewService(
	cfg config.AlertConfig,
	devices storage.DeviceStore,
	readings storage.ReadingStore,
	engine Evaluator,
	liveness OnlineMarker,
	publisher realtime.Publisher,
	export chan<- *models.ReadingEnvelope,
	node string,
	log zerolog.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		devices:   devices,
		readings:  readings,
		engine:    engine,
		liveness:  liveness,
		publisher: publisher,
		export:    export,
		node:      node,
		log:       log,
		now:       time.Now,
	}
}

// Process runs the full pipeline for one reported reading.
func (s *Service) Process(ctx context.Context, in *models.ReadingInput) (*Result, error) {
	if err := in.Validate(); err != nil {
		metrics.IngestValidationErrors.WithLabelValues(validationErrorType(err)).Inc()
		return nil, err
	}

	dev, err := s.devices.GetDeviceConfig(ctx, in.DeviceID)
	if err != nil {
		if !errors.Is(err, storage.ErrDeviceNotFound) {
			metrics.IngestReadingsTotal.WithLabelValues(in.DeviceID, "error").Inc()
		}
		return nil, err
	}

	ts, err := in.ReadingTimestamp(s.now())
	if err != nil {
		metrics.IngestValidationErrors.WithLabelValues(validationErrorType(err)).Inc()
		return nil, err
	}

	reading := &models.Reading{
		DeviceID:      dev.DeviceID,
		Timestamp:     ts,
		WaterLevelCm:  derive.WaterLevel(dev.SensorHeightCm, in.RawDistanceCm),
		RawDistanceCm: in.RawDistanceCm,
		TdsPpm:        in.TdsPpm,
		TurbidityNtu:  in.TurbidityNtu,
		PHValue:       in.PHValue,
		TemperatureC:  in.TemperatureC,
		RainfallRaw:   in.RainfallRaw,
	}

	if err := s.readings.AppendReading(ctx, reading); err != nil {
		metrics.IngestReadingsTotal.WithLabelValues(dev.DeviceID, "error").Inc()
		return nil, fmt.Errorf("append reading: %w", err)
	}

	snap, err := s.readings.UpsertLatestSnapshot(ctx, reading)
	if err != nil {
		metrics.IngestReadingsTotal.WithLabelValues(dev.DeviceID, "error").Inc()
		return nil, fmt.Errorf("upsert snapshot: %w", err)
	}

	s.publisher.Publish(ctx, realtime.EventNewSensorData, snap)

	result := &Result{Snapshot: snap}

	if reading.RainfallRaw != nil {
		cat := derive.Rainfall(*reading.RainfallRaw, s.cfg)
		result.Rainfall = &cat
		s.publisher.Publish(ctx, realtime.EventRainfallUpdate, map[string]interface{}{
			"deviceId":  dev.DeviceID,
			"category":  string(cat),
			"raw":       *reading.RainfallRaw,
			"timestamp": snap.Timestamp,
		})
	}

	result.Quality = derive.Quality(reading.PHValue, reading.TurbidityNtu, s.cfg)
	if result.Quality != derive.QualityIncomplete {
		s.publisher.Publish(ctx, realtime.EventWaterQualityUpdate, map[string]interface{}{
			"deviceId":      dev.DeviceID,
			"quality":       string(result.Quality),
			"ph_value":      *reading.PHValue,
			"turbidity_ntu": *reading.TurbidityNtu,
			"timestamp":     snap.Timestamp,
		})
	}

	// A reporting device is alive regardless of what it reported.
	s.liveness.MarkOnlineIfNeeded(ctx, dev.DeviceID, dev.Location, snap.LastUpdatedAt)

	info, err := s.engine.Evaluate(ctx, dev, snap)
	if err != nil {
		metrics.IngestReadingsTotal.WithLabelValues(dev.DeviceID, "error").Inc()
		return nil, fmt.Errorf("evaluate alerts: %w", err)
	}
	result.Alert = info

	s.enqueueExport(reading)

	metrics.IngestReadingsTotal.WithLabelValues(dev.DeviceID, "ok").Inc()
	s.log.Debug().
		Str("device_id", dev.DeviceID).
		Time("timestamp", snap.Timestamp).
		Bool("alert_triggered", info.Triggered).
		Msg("Reading processed")

	return result, nil
}

func validationErrorType(err error) string {
	switch {
	case errors.Is(err, models.ErrEmptyDeviceID):
		return "missing_device_id"
	case errors.Is(err, models.ErrInvalidTimestamp):
		return "invalid_timestamp"
	default:
		return "other"
	}
}

// enqueueExport hands the reading to the export stream without blocking.
// A full queue drops the envelope; the reading itself is already durable.
func (s *Service) enqueueExport(reading *models.Reading) {
	if s.export == nil {
		return
	}
	envelope := models.NewReadingEnvelope(reading, s.node)
	select {
	case s.export <- envelope:
		metrics.ExportQueueSize.Set(float64(len(s.export)))
	default:
		metrics.ExportFailedTotal.Inc()
		s.log.Warn().
			Str("device_id", reading.DeviceID).
			Msg("Export queue full, dropping envelope")
	}
}
