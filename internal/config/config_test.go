package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseYAMLAppliesDefaults(t *testing.T) {
	t.Setenv("ZONEWATCH_DSN", "")
	t.Setenv("DATABASE_URL", "")
	doc := `
log_level: debug
api:
  addr: ":9090"
zones:
  - code: A
    name: Grain Store A
    capacity_kg: 5000
    optimal_temperature: 16
  - code: B
    name: Cold Room B
stream:
  interval: 5s
alerting:
  dedupe:
    enabled: true
    window: 15m
`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.API.Addr != ":9090" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected api/log: %+v %s", cfg.API, cfg.LogLevel)
	}
	if cfg.Stream.Interval != 5*time.Second {
		t.Fatalf("interval: %s", cfg.Stream.Interval)
	}
	if cfg.Stream.AlertLimit != 5 || cfg.Stream.ActivityLimit != 10 {
		t.Fatalf("stream limits not defaulted: %+v", cfg.Stream)
	}
	if !cfg.Alerting.Dedupe.Enabled || cfg.Alerting.Dedupe.Window != 15*time.Minute {
		t.Fatalf("dedupe: %+v", cfg.Alerting.Dedupe)
	}
	if cfg.Alerting.ConfidenceScore != 95 {
		t.Fatalf("confidence: %v", cfg.Alerting.ConfidenceScore)
	}
	if len(cfg.Zones) != 2 || cfg.Zones[0].OptimalTemperature == nil || *cfg.Zones[0].OptimalTemperature != 16 {
		t.Fatalf("zones: %+v", cfg.Zones)
	}
	if cfg.Zones[1].OptimalHumidity != nil {
		t.Fatalf("unset optimal humidity must stay nil")
	}
	if cfg.Thresholds.Alert.TemperatureDelta != 2 || cfg.Thresholds.Display.TemperatureWarning != 1 {
		t.Fatalf("threshold defaults lost: %+v", cfg.Thresholds)
	}
}

func TestParseJSON(t *testing.T) {
	t.Setenv("ZONEWATCH_DSN", "")
	t.Setenv("DATABASE_URL", "")
	cfg, err := Parse([]byte(`{"api":{"addr":":7070"},"storage":{"driver":"postgres","dsn":"postgres://db/zw"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Storage.Driver != "postgres" || cfg.API.Addr != ":7070" {
		t.Fatalf("unexpected: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"driver":        "storage:\n  driver: mysql\n",
		"dup zone":      "zones:\n  - {code: A, name: a}\n  - {code: A, name: b}\n",
		"zone name":     "zones:\n  - {code: A}\n",
		"alert order":   "thresholds:\n  alert:\n    temperature_delta: 4\n    temperature_high: 3\n",
		"display order": "thresholds:\n  display:\n    humidity_warning: 6\n    humidity_alert: 5\n",
		"kafka":         "ingest:\n  kafka:\n    enabled: true\n",
		"mqtt":          "ingest:\n  mqtt:\n    enabled: true\n    broker: tcp://localhost:1883\n",
		"publish":       "publish:\n  kafka:\n    enabled: true\n    topic: alerts\n",
		"confidence":    "alerting:\n  confidence_score: 120\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestEnvOverridesDSN(t *testing.T) {
	t.Setenv("ZONEWATCH_DSN", "")
	t.Setenv("DATABASE_URL", "postgres://warehouse@db:5432/zonewatch")
	cfg, err := Parse([]byte("log_level: info\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Storage.Driver != "postgres" || !strings.HasPrefix(cfg.Storage.DSN, "postgres://") {
		t.Fatalf("env not applied: %+v", cfg.Storage)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zonewatch.yaml")
	cfg := DefaultConfig()
	cfg.Zones = []ZoneConfig{{Code: "A", Name: "Zone A", CapacityKg: 1000}}
	cfg.Stream.Interval = 12 * time.Second
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Stream.Interval != 12*time.Second || len(loaded.Zones) != 1 {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestManagerReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zonewatch.yaml")
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	if m.Get().LogLevel != "info" {
		t.Fatalf("initial level: %s", m.Get().LogLevel)
	}
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	needs, err := m.NeedsReload()
	if err != nil || !needs {
		t.Fatalf("expected reload to be needed: %v %v", needs, err)
	}
	cfg, err := m.Reload()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.LogLevel != "debug" || m.Get().LogLevel != "debug" {
		t.Fatalf("reload not applied")
	}
}

func TestStaticManager(t *testing.T) {
	m := NewStaticManager(nil)
	if m.Get().API.Addr != ":8080" {
		t.Fatalf("static manager default: %s", m.Get().API.Addr)
	}
	if needs, _ := m.NeedsReload(); needs {
		t.Fatalf("static manager never reloads")
	}
}
