// Package alerting runs the hazard rules against every fresh snapshot and
// drives the alert lifecycle: one active row per (device, rule), realtime
// events on trigger and resolution, push fan-out while a hazard persists.
package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"floodwatch/internal/config"
	"floodwatch/internal/metrics"
	"floodwatch/internal/models"
	"floodwatch/internal/notify"
	"floodwatch/internal/realtime"
	"floodwatch/internal/storage"
)

// Notifier is the push fan-out the engine hands triggered alerts to.
// Satisfied by *notify.Dispatcher.
type Notifier interface {
	Dispatch(deviceID string, n notify.Notification)
}

// rule binds an evaluator to its identity and realtime event name.
type rule struct {
	id    models.RuleType
	event string
	eval  func(*models.DeviceConfig, *models.LatestSnapshot, config.AlertConfig) evaluation
}

// Engine evaluates all rules for a snapshot and applies lifecycle
// transitions. Per-(device, rule) locks serialize concurrent ingestions
// for the same key, so the find-then-create window never produces two
// active rows.
type Engine struct {
	cfg       config.AlertConfig
	alerts    storage.AlertStore
	publisher realtime.Publisher
	notifier  Notifier
	log       zerolog.Logger
	rules     []rule

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(cfg config.AlertConfig, alerts storage.AlertStore, publisher realtime.Publisher, notifier Notifier, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		alerts:    alerts,
		publisher: publisher,
		notifier:  notifier,
		log:       log,
		rules: []rule{
			{id: models.RuleFlood, event: realtime.EventFloodAlert, eval: evaluateFlood},
			{id: models.RuleRapidRise, event: realtime.EventRapidRiseAlert, eval: evaluateRapidRise},
			{id: models.RuleWaterQuality, event: realtime.EventWaterQualityAlert, eval: evaluateWaterQuality},
		},
		locks: make(map[string]*sync.Mutex),
	}
}

// Evaluate runs every rule and returns the summary for the ingestion
// response. The summary carries the last rule that triggered, except that
// a critical outcome is never displaced by a warning. Persistence errors
// abort the remaining rules and propagate to the caller.
func (e *Engine) Evaluate(ctx context.Context, dev *models.DeviceConfig, snap *models.LatestSnapshot) (models.AlertInfo, error) {
	var info models.AlertInfo
	var infoSeverity models.Severity

	for _, r := range e.rules {
		ev := r.eval(dev, snap, e.cfg)
		triggered, payload, err := e.apply(ctx, dev, snap, r, ev)
		if err != nil {
			return info, fmt.Errorf("alert rule %s: %w", r.id, err)
		}
		if !triggered {
			continue
		}
		if !info.Triggered || ev.severity == models.SeverityCritical || infoSeverity != models.SeverityCritical {
			info = models.AlertInfo{
				Triggered: true,
				Message:   ev.message,
				Payload:   payload,
			}
			infoSeverity = ev.severity
		}
	}

	return info, nil
}

// apply performs the lifecycle transition for one rule under the key lock.
func (e *Engine) apply(ctx context.Context, dev *models.DeviceConfig, snap *models.LatestSnapshot, r rule, ev evaluation) (bool, map[string]interface{}, error) {
	if ev.state == condSkip {
		return false, nil, nil
	}

	lock := e.keyLock(dev.DeviceID + "/" + string(r.id))
	lock.Lock()
	defer lock.Unlock()

	active, err := e.alerts.FindActive(ctx, dev.DeviceID, r.id)
	if err != nil {
		return false, nil, err
	}

	if ev.state == condNotMet {
		if active == nil {
			return false, nil, nil
		}
		if err := e.alerts.Resolve(ctx, active.ID, snap.Timestamp); err != nil {
			return false, nil, err
		}
		metrics.AlertsResolvedTotal.WithLabelValues(string(r.id)).Inc()
		e.log.Info().
			Str("device_id", dev.DeviceID).
			Str("rule", string(r.id)).
			Str("alert_id", active.ID).
			Msg("Alert resolved")
		e.publisher.Publish(ctx, realtime.EventAlertResolved, map[string]interface{}{
			"alertId":    active.ID,
			"deviceId":   dev.DeviceID,
			"alertType":  active.AlertType,
			"resolvedAt": snap.Timestamp,
		})
		return false, nil, nil
	}

	payload := e.alertPayload(dev, snap, r, ev)

	if active != nil {
		// Hazard persists: no new row, but keep subscribers informed.
		e.notifier.Dispatch(dev.DeviceID, e.notification(r, ev, payload))
		return true, payload, nil
	}

	triggering, err := json.Marshal(ev.triggering)
	if err != nil {
		return false, nil, err
	}
	a := &models.Alert{
		ID:                  uuid.NewString(),
		DeviceID:            dev.DeviceID,
		AlertType:           r.id,
		Message:             ev.message,
		Severity:            ev.severity,
		TriggeringData:      triggering,
		SensorDataTimestamp: snap.Timestamp,
	}
	if err := e.alerts.Create(ctx, a); err != nil {
		return false, nil, err
	}
	metrics.AlertsTriggeredTotal.WithLabelValues(string(r.id), string(ev.severity)).Inc()
	e.log.Warn().
		Str("device_id", dev.DeviceID).
		Str("rule", string(r.id)).
		Str("severity", string(ev.severity)).
		Str("alert_id", a.ID).
		Msg("Alert triggered")

	payload["alertId"] = a.ID
	e.publisher.Publish(ctx, r.event, payload)
	e.notifier.Dispatch(dev.DeviceID, e.notification(r, ev, payload))

	return true, payload, nil
}

// alertPayload is the realtime and response payload for a met rule.
func (e *Engine) alertPayload(dev *models.DeviceConfig, snap *models.LatestSnapshot, r rule, ev evaluation) map[string]interface{} {
	payload := map[string]interface{}{
		"deviceId":  dev.DeviceID,
		"location":  dev.Location,
		"alertType": string(r.id),
		"severity":  string(ev.severity),
		"message":   ev.message,
		"timestamp": snap.Timestamp,
	}
	for k, v := range ev.triggering {
		payload[k] = v
	}
	return payload
}

func (e *Engine) notification(r rule, ev evaluation, payload map[string]interface{}) notify.Notification {
	data := make(map[string]string, len(payload))
	for k, v := range payload {
		data[k] = fmt.Sprint(v)
	}
	return notify.Notification{
		Title: notificationTitle(r.id, ev.severity),
		Body:  ev.message,
		Data:  data,
		URL:   "/dashboard",
	}
}

func notificationTitle(id models.RuleType, severity models.Severity) string {
	switch id {
	case models.RuleFlood:
		return "Flood Alert"
	case models.RuleRapidRise:
		return "Rapid Water Rise"
	case models.RuleWaterQuality:
		if severity == models.SeverityCritical {
			return "Critical Water Quality"
		}
		return "Water Quality Warning"
	}
	return "Alert"
}

func (e *Engine) keyLock(key string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.locks[key]
	if !ok {
		m = &sync.Mutex{}
		e.locks[key] = m
	}
	return m
}
