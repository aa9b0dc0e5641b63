// Package alerts turns threshold violations into persisted alert records and
// fans them out to downstream notifiers.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"zonewatch/internal/config"
	"zonewatch/internal/metrics"
	"zonewatch/internal/model"
	"zonewatch/internal/threshold"
)

type Store interface {
	InsertAlert(ctx context.Context, alert model.Alert) (model.Alert, error)
	HasActiveAlert(ctx context.Context, alertType string, zoneID int64, since time.Time) (bool, error)
}

// Notifier receives every alert after it has been stored. Notifier errors
// are logged and never undo the insert.
type Notifier interface {
	Notify(ctx context.Context, alert model.Alert) error
}

type Emitter struct {
	store     Store
	notifiers []Notifier
	logger    *slog.Logger
	now       func() time.Time

	mu  sync.RWMutex
	cfg config.AlertingConfig
}

func NewEmitter(store Store, cfg config.AlertingConfig, logger *slog.Logger, notifiers ...Notifier) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{store: store, cfg: cfg, logger: logger, notifiers: notifiers, now: time.Now}
}

func (e *Emitter) UpdateConfig(cfg config.AlertingConfig) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

func (e *Emitter) config() config.AlertingConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Emit persists an alert for a violating verdict. It returns nil when the
// verdict is clean or an active alert for the zone suppresses this one.
func (e *Emitter) Emit(ctx context.Context, zone model.Zone, reading model.Reading, verdict threshold.Verdict) (*model.Alert, error) {
	if !verdict.Violation {
		return nil, nil
	}
	cfg := e.config()
	if cfg.Dedupe.Enabled {
		var since time.Time
		if cfg.Dedupe.Window > 0 {
			since = e.now().Add(-cfg.Dedupe.Window)
		}
		active, err := e.store.HasActiveAlert(ctx, model.AlertTypeEnvironmental, zone.ID, since)
		if err != nil {
			return nil, err
		}
		if active {
			metrics.AlertsSuppressed.WithLabelValues(zone.Code).Inc()
			e.logger.Debug("alert suppressed", "zone", zone.Code, "severity", verdict.Severity)
			return nil, nil
		}
	}

	stored, err := e.store.InsertAlert(ctx, Build(zone, reading, verdict, cfg.ConfidenceScore))
	if err != nil {
		return nil, err
	}
	metrics.AlertsEmitted.WithLabelValues(zone.Code, string(stored.Severity)).Inc()
	e.logger.Warn("environmental alert",
		"alert_id", stored.ID,
		"zone", zone.Code,
		"severity", stored.Severity,
		"temperature", reading.Temperature,
		"humidity", reading.Humidity,
		"temperature_diff", verdict.Deviation.TemperatureDiff,
		"humidity_diff", verdict.Deviation.HumidityDiff,
	)
	e.notify(ctx, stored)
	return &stored, nil
}

func (e *Emitter) notify(ctx context.Context, alert model.Alert) {
	for _, n := range e.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			metrics.AlertPublishTotal.WithLabelValues("failed").Inc()
			e.logger.Error("alert notify failed", "alert_id", alert.ID, "err", err)
			continue
		}
		metrics.AlertPublishTotal.WithLabelValues("success").Inc()
	}
}

// Build renders the alert record for a violating reading.
func Build(zone model.Zone, reading model.Reading, verdict threshold.Verdict, confidence float64) model.Alert {
	zoneID := zone.ID
	score := confidence
	return model.Alert{
		Type:     model.AlertTypeEnvironmental,
		Severity: verdict.Severity,
		Title:    "Environmental Alert - " + zone.Name,
		Message: fmt.Sprintf(
			"Environmental conditions in %s are outside optimal range. Temperature: %s°C (optimal: %s°C), Humidity: %s%% (optimal: %s%%)",
			zone.Name,
			num(reading.Temperature), num(verdict.Deviation.OptimalTemperature),
			num(reading.Humidity), num(verdict.Deviation.OptimalHumidity),
		),
		ZoneID:           &zoneID,
		ZoneCode:         zone.Code,
		ZoneName:         zone.Name,
		AffectedProducts: []string{"All products in " + zone.Name},
		ConfidenceScore:  &score,
		Status:           model.AlertActive,
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
