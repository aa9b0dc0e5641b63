package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"

	"zonewatch/internal/apperr"
	"zonewatch/internal/config"
	"zonewatch/internal/metrics"
	"zonewatch/internal/model"
	"zonewatch/internal/threshold"
)

type ReadingStore interface {
	InsertReading(ctx context.Context, reading model.Reading) (model.Reading, error)
}

type ZoneResolver interface {
	Resolve(ctx context.Context, ref model.ZoneRef) (model.Zone, error)
}

type AlertEmitter interface {
	Emit(ctx context.Context, zone model.Zone, reading model.Reading, verdict threshold.Verdict) (*model.Alert, error)
}

// Result is the outcome of one ingested reading. Alert is nil when the
// reading stayed within range.
type Result struct {
	Reading model.Reading `json:"reading"`
	Alert   *model.Alert  `json:"alert,omitempty"`
}

type Engine struct {
	logger   *slog.Logger
	store    ReadingStore
	zones    ZoneResolver
	emitter  AlertEmitter
	policies atomic.Value
}

func NewEngine(cfg *config.Config, logger *slog.Logger, store ReadingStore, zones ZoneResolver, emitter AlertEmitter) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		logger:  logger,
		store:   store,
		zones:   zones,
		emitter: emitter,
	}
	e.UpdateConfig(cfg)
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e.policies.Store(threshold.FromConfig(cfg.Thresholds))
	if u, ok := e.emitter.(interface{ UpdateConfig(config.AlertingConfig) }); ok {
		u.UpdateConfig(cfg.Alerting)
	}
}

func (e *Engine) Policies() threshold.Policies {
	if v := e.policies.Load(); v != nil {
		return v.(threshold.Policies)
	}
	return threshold.DefaultPolicies()
}

// Start consumes readings from async sources until ctx is cancelled.
func (e *Engine) Start(ctx context.Context, in <-chan model.ReadingInput) {
	go func() {
		for {
			select {
			case input, ok := <-in:
				if !ok {
					return
				}
				e.process(ctx, input)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) process(ctx context.Context, input model.ReadingInput) {
	_, err := e.Ingest(ctx, input)
	if err == nil {
		return
	}
	switch apperr.Status(err) {
	case 400, 404:
		e.logger.Warn("reading rejected", "source", input.Source, "zone", string(input.Zone), "err", err)
	default:
		e.logger.Error("reading failed", "source", input.Source, "zone", string(input.Zone), "err", err)
	}
}

// Ingest validates a reading, resolves its zone, stores it and evaluates it
// against the zone's thresholds. Validation and lookup failures write
// nothing. When the alert insert fails the stored reading is kept and
// returned alongside the error.
func (e *Engine) Ingest(ctx context.Context, input model.ReadingInput) (Result, error) {
	source := input.Source
	if source == "" {
		source = "api"
	}
	if err := validate(input); err != nil {
		metrics.ReadingsTotal.WithLabelValues(source, "rejected").Inc()
		return Result{}, err
	}
	zone, err := e.zones.Resolve(ctx, input.Zone)
	if err != nil {
		status := "failed"
		var nf *apperr.NotFoundError
		if errors.As(err, &nf) {
			status = "rejected"
		}
		metrics.ReadingsTotal.WithLabelValues(source, status).Inc()
		return Result{}, err
	}

	reading, err := e.store.InsertReading(ctx, model.Reading{
		ZoneID:          zone.ID,
		Temperature:     *input.Temperature,
		Humidity:        *input.Humidity,
		AirQualityIndex: input.AirQualityIndex,
		CO2Level:        input.CO2Level,
		Pressure:        input.Pressure,
	})
	if err != nil {
		metrics.ReadingsTotal.WithLabelValues(source, "failed").Inc()
		return Result{}, err
	}
	reading.ZoneCode, reading.ZoneName = zone.Code, zone.Name
	metrics.ReadingsTotal.WithLabelValues(source, "stored").Inc()
	e.logger.Debug("reading stored", "source", source, "zone", zone.Code, "reading_id", reading.ID,
		"temperature", reading.Temperature, "humidity", reading.Humidity)

	res := Result{Reading: reading}
	verdict := e.Policies().Evaluate(reading, zone)
	if !verdict.Violation {
		return res, nil
	}
	alert, err := e.emitter.Emit(ctx, zone, reading, verdict)
	if err != nil {
		return res, err
	}
	res.Alert = alert
	return res, nil
}

func validate(input model.ReadingInput) error {
	var missing []string
	if strings.TrimSpace(string(input.Zone)) == "" {
		missing = append(missing, "zone_id")
	}
	if input.Temperature == nil {
		missing = append(missing, "temperature")
	}
	if input.Humidity == nil {
		missing = append(missing, "humidity")
	}
	if len(missing) > 0 {
		return apperr.Validation("", "Missing required fields: %s", strings.Join(missing, ", "))
	}
	for field, v := range map[string]*float64{
		"temperature":       input.Temperature,
		"humidity":          input.Humidity,
		"air_quality_index": input.AirQualityIndex,
		"co2_level":         input.CO2Level,
		"pressure":          input.Pressure,
	} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return apperr.Validation(field, "must be a finite number")
		}
	}
	return nil
}
