package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"zonewatch/internal/alerts"
	"zonewatch/internal/apperr"
	"zonewatch/internal/config"
	"zonewatch/internal/logging"
	"zonewatch/internal/model"
	"zonewatch/internal/storage"
	"zonewatch/internal/zones"
)

var dbSeq atomic.Int64

type harness struct {
	engine *Engine
	store  storage.Store
}

func newHarness(t *testing.T, cfg *config.Config) harness {
	t.Helper()
	dsn := fmt.Sprintf("file:engine-test-%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", dbSeq.Add(1))
	store, err := storage.NewSQLite(dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	logger := logging.Discard()
	registry := zones.NewRegistry(store, cfg.ZoneCache.TTL, nil, logger)
	if err := registry.Seed(ctx, cfg.Zones); err != nil {
		t.Fatalf("seed: %v", err)
	}
	emitter := alerts.NewEmitter(store, cfg.Alerting, logger)
	return harness{engine: NewEngine(cfg, logger, store, registry, emitter), store: store}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	t18, h45 := 18.0, 45.0
	cfg.Zones = []config.ZoneConfig{
		{Code: "A", Name: "Zone A", CapacityKg: 5000, OptimalTemperature: &t18, OptimalHumidity: &h45},
		{Code: "B", Name: "Zone B"},
	}
	return cfg
}

func fptr(v float64) *float64 { return &v }

func activeAlerts(t *testing.T, s storage.Store) []model.Alert {
	t.Helper()
	list, err := s.ListAlerts(context.Background(), model.AlertFilter{Status: model.AlertActive})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	return list
}

func TestZoneAScenario(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	res, err := h.engine.Ingest(ctx, model.ReadingInput{Zone: "A", Temperature: fptr(21.5), Humidity: fptr(46)})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Reading.ID == 0 || res.Reading.RecordedAt.IsZero() {
		t.Fatalf("reading not persisted: %+v", res.Reading)
	}
	if res.Alert == nil || res.Alert.Severity != model.SeverityHigh || res.Alert.Status != model.AlertActive {
		t.Fatalf("expected high active alert, got %+v", res.Alert)
	}
	list := activeAlerts(t, h.store)
	if len(list) != 1 || list[0].ZoneCode != "A" {
		t.Fatalf("alerts after first reading: %+v", list)
	}

	res, err = h.engine.Ingest(ctx, model.ReadingInput{Zone: "A", Temperature: fptr(18.2), Humidity: fptr(45.5)})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Alert != nil {
		t.Fatalf("in-range reading produced alert: %+v", res.Alert)
	}
	if len(activeAlerts(t, h.store)) != 1 {
		t.Fatalf("no new alert expected")
	}
	readings, err := h.store.ZoneReadings(ctx, res.Reading.ZoneID, time.Time{})
	if err != nil || len(readings) != 2 {
		t.Fatalf("both readings should be stored: %d %v", len(readings), err)
	}
}

func TestMissingTemperatureWritesNothing(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	_, err := h.engine.Ingest(ctx, model.ReadingInput{Zone: "A", Humidity: fptr(46)})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	latest, err := h.store.LatestReadings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, z := range latest {
		if z.Latest != nil {
			t.Fatalf("zone %s has a reading after failed ingest", z.Zone.Code)
		}
	}
}

func TestUnknownZoneWritesNothing(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	_, err := h.engine.Ingest(ctx, model.ReadingInput{Zone: "Q", Temperature: fptr(30), Humidity: fptr(90)})
	if apperr.Status(err) != 404 {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(activeAlerts(t, h.store)) != 0 {
		t.Fatalf("unknown zone must not create alerts")
	}
}

func TestZoneWithoutOptimaUsesDefaults(t *testing.T) {
	h := newHarness(t, testConfig())
	res, err := h.engine.Ingest(context.Background(), model.ReadingInput{Zone: "B", Temperature: fptr(20.5), Humidity: fptr(45)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Alert == nil || res.Alert.Severity != model.SeverityMedium {
		t.Fatalf("expected medium alert against 18/45 defaults: %+v", res.Alert)
	}
}

func TestNumericZoneID(t *testing.T) {
	h := newHarness(t, testConfig())
	res, err := h.engine.Ingest(context.Background(), model.ReadingInput{Zone: "1", Temperature: fptr(18), Humidity: fptr(45)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reading.ZoneCode != "A" {
		t.Fatalf("numeric id should resolve to zone A: %+v", res.Reading)
	}
}

func TestRejectsNonFiniteValues(t *testing.T) {
	h := newHarness(t, testConfig())
	nan := 0.0
	nan = nan / nan
	_, err := h.engine.Ingest(context.Background(), model.ReadingInput{Zone: "A", Temperature: &nan, Humidity: fptr(45)})
	if apperr.Status(err) != 400 {
		t.Fatalf("NaN must be rejected: %v", err)
	}
}

func TestUpdateConfigChangesPolicy(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg)
	next := testConfig()
	next.Thresholds.Alert.TemperatureDelta = 5
	next.Thresholds.Alert.TemperatureHigh = 6
	h.engine.UpdateConfig(next)
	res, err := h.engine.Ingest(context.Background(), model.ReadingInput{Zone: "A", Temperature: fptr(21.5), Humidity: fptr(45)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Alert != nil {
		t.Fatalf("wider policy should not alert: %+v", res.Alert)
	}
}

func TestStartConsumesChannel(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := make(chan model.ReadingInput, 4)
	h.engine.Start(ctx, in)
	in <- model.ReadingInput{Zone: "A", Temperature: fptr(30), Humidity: fptr(45), Source: "test"}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(activeAlerts(t, h.store)) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("reading from channel was not processed")
}
