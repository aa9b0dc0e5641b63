package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	LogFormat  string           `json:"log_format" yaml:"log_format"`
	API        APIConfig        `json:"api" yaml:"api"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Zones      []ZoneConfig     `json:"zones" yaml:"zones"`
	ZoneCache  ZoneCacheConfig  `json:"zone_cache" yaml:"zone_cache"`
	Thresholds ThresholdsConfig `json:"thresholds" yaml:"thresholds"`
	Alerting   AlertingConfig   `json:"alerting" yaml:"alerting"`
	Stream     StreamConfig     `json:"stream" yaml:"stream"`
	Ingest     IngestConfig     `json:"ingest" yaml:"ingest"`
	Publish    PublishConfig    `json:"publish" yaml:"publish"`
}

type APIConfig struct {
	Addr            string        `json:"addr" yaml:"addr"`
	CORSOrigins     []string      `json:"cors_origins" yaml:"cors_origins"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `json:"max_body_bytes" yaml:"max_body_bytes"`
}

type StorageConfig struct {
	Driver       string `json:"driver" yaml:"driver"`
	DSN          string `json:"dsn" yaml:"dsn"`
	MaxOpenConns int    `json:"max_open_conns" yaml:"max_open_conns"`
}

// ZoneConfig seeds a storage zone at startup. Zones are upserted by code.
type ZoneConfig struct {
	Code               string   `json:"code" yaml:"code"`
	Name               string   `json:"name" yaml:"name"`
	CapacityKg         float64  `json:"capacity_kg" yaml:"capacity_kg"`
	OptimalTemperature *float64 `json:"optimal_temperature" yaml:"optimal_temperature"`
	OptimalHumidity    *float64 `json:"optimal_humidity" yaml:"optimal_humidity"`
	ZoneType           string   `json:"zone_type" yaml:"zone_type"`
}

// ZoneCacheConfig bounds how stale zone optimal values may be. A zero TTL
// disables the cache and every evaluation reads the zone fresh.
type ZoneCacheConfig struct {
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

type ThresholdsConfig struct {
	DefaultOptimalTemperature float64             `json:"default_optimal_temperature" yaml:"default_optimal_temperature"`
	DefaultOptimalHumidity    float64             `json:"default_optimal_humidity" yaml:"default_optimal_humidity"`
	Alert                     AlertPolicyConfig   `json:"alert" yaml:"alert"`
	Display                   DisplayPolicyConfig `json:"display" yaml:"display"`
}

// AlertPolicyConfig decides when a reading produces an alert row.
type AlertPolicyConfig struct {
	TemperatureDelta float64 `json:"temperature_delta" yaml:"temperature_delta"`
	HumidityDelta    float64 `json:"humidity_delta" yaml:"humidity_delta"`
	TemperatureHigh  float64 `json:"temperature_high" yaml:"temperature_high"`
	HumidityHigh     float64 `json:"humidity_high" yaml:"humidity_high"`
}

// DisplayPolicyConfig drives the optimal/warning/alert dashboard labels.
type DisplayPolicyConfig struct {
	TemperatureWarning float64 `json:"temperature_warning" yaml:"temperature_warning"`
	HumidityWarning    float64 `json:"humidity_warning" yaml:"humidity_warning"`
	TemperatureAlert   float64 `json:"temperature_alert" yaml:"temperature_alert"`
	HumidityAlert      float64 `json:"humidity_alert" yaml:"humidity_alert"`
}

type AlertingConfig struct {
	ConfidenceScore float64      `json:"confidence_score" yaml:"confidence_score"`
	Dedupe          DedupeConfig `json:"dedupe" yaml:"dedupe"`
}

// DedupeConfig suppresses a new environmental alert while the zone already
// has an active one. Window 0 means any active alert suppresses.
type DedupeConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled"`
	Window  time.Duration `json:"window" yaml:"window"`
}

type StreamConfig struct {
	Interval      time.Duration `json:"interval" yaml:"interval"`
	WriteTimeout  time.Duration `json:"write_timeout" yaml:"write_timeout"`
	AlertLimit    int           `json:"alert_limit" yaml:"alert_limit"`
	ActivityLimit int           `json:"activity_limit" yaml:"activity_limit"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
	MQTT          MQTTConfig      `json:"mqtt" yaml:"mqtt"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type MQTTConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Broker   string `json:"broker" yaml:"broker"`
	ClientID string `json:"client_id" yaml:"client_id"`
	Topic    string `json:"topic" yaml:"topic"`
	QoS      byte   `json:"qos" yaml:"qos"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type PublishConfig struct {
	Kafka KafkaPublishConfig `json:"kafka" yaml:"kafka"`
}

type KafkaPublishConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		API: APIConfig{
			Addr:            ":8080",
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 5 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Storage: StorageConfig{Driver: "sqlite", DSN: "file:zonewatch.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"},
		Thresholds: ThresholdsConfig{
			DefaultOptimalTemperature: 18,
			DefaultOptimalHumidity:    45,
			Alert: AlertPolicyConfig{
				TemperatureDelta: 2,
				HumidityDelta:    5,
				TemperatureHigh:  3,
				HumidityHigh:     8,
			},
			Display: DisplayPolicyConfig{
				TemperatureWarning: 1,
				HumidityWarning:    3,
				TemperatureAlert:   2,
				HumidityAlert:      5,
			},
		},
		Alerting: AlertingConfig{ConfidenceScore: 95.0},
		Stream: StreamConfig{
			Interval:      30 * time.Second,
			WriteTimeout:  10 * time.Second,
			AlertLimit:    5,
			ActivityLimit: 10,
		},
		Ingest: IngestConfig{
			ChannelBuffer: 1000,
			MQTT:          MQTTConfig{ClientID: "zonewatch", QoS: 1},
			TCPStream:     TCPStreamConfig{Addr: ":9100"},
		},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML or JSON document on top of DefaultConfig.
func Parse(content []byte) (*Config, error) {
	cfg := DefaultConfig()
	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

// applyEnv lets deployments keep credentials out of the config file.
func applyEnv(cfg *Config) {
	if dsn := strings.TrimSpace(os.Getenv("ZONEWATCH_DSN")); dsn != "" {
		cfg.Storage.DSN = dsn
	} else if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Storage.DSN = dsn
		if cfg.Storage.Driver == "" || cfg.Storage.Driver == "sqlite" {
			cfg.Storage.Driver = "postgres"
		}
	}
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = def.Storage.Driver
	}
	if cfg.API.ShutdownTimeout <= 0 {
		cfg.API.ShutdownTimeout = def.API.ShutdownTimeout
	}
	if cfg.API.MaxBodyBytes <= 0 {
		cfg.API.MaxBodyBytes = def.API.MaxBodyBytes
	}
	if cfg.Thresholds.DefaultOptimalTemperature == 0 {
		cfg.Thresholds.DefaultOptimalTemperature = def.Thresholds.DefaultOptimalTemperature
	}
	if cfg.Thresholds.DefaultOptimalHumidity == 0 {
		cfg.Thresholds.DefaultOptimalHumidity = def.Thresholds.DefaultOptimalHumidity
	}
	if cfg.Alerting.ConfidenceScore == 0 {
		cfg.Alerting.ConfidenceScore = def.Alerting.ConfidenceScore
	}
	if cfg.Stream.Interval <= 0 {
		cfg.Stream.Interval = def.Stream.Interval
	}
	if cfg.Stream.WriteTimeout <= 0 {
		cfg.Stream.WriteTimeout = def.Stream.WriteTimeout
	}
	if cfg.Stream.AlertLimit <= 0 {
		cfg.Stream.AlertLimit = def.Stream.AlertLimit
	}
	if cfg.Stream.ActivityLimit <= 0 {
		cfg.Stream.ActivityLimit = def.Stream.ActivityLimit
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = def.Ingest.ChannelBuffer
	}
	if cfg.Ingest.MQTT.ClientID == "" {
		cfg.Ingest.MQTT.ClientID = def.Ingest.MQTT.ClientID
	}
	for i := range cfg.Zones {
		cfg.Zones[i].Code = strings.TrimSpace(cfg.Zones[i].Code)
		cfg.Zones[i].Name = strings.TrimSpace(cfg.Zones[i].Name)
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Addr == "" {
		return errors.New("api.addr required")
	}
	switch strings.ToLower(cfg.Storage.Driver) {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("storage.driver %q unsupported (sqlite, postgres)", cfg.Storage.Driver)
	}
	ap := cfg.Thresholds.Alert
	if ap.TemperatureDelta <= 0 || ap.HumidityDelta <= 0 {
		return errors.New("thresholds.alert deltas must be > 0")
	}
	if ap.TemperatureHigh < ap.TemperatureDelta || ap.HumidityHigh < ap.HumidityDelta {
		return errors.New("thresholds.alert high bounds must be >= the violation deltas")
	}
	dp := cfg.Thresholds.Display
	if dp.TemperatureWarning < 0 || dp.HumidityWarning < 0 {
		return errors.New("thresholds.display warning bounds must be >= 0")
	}
	if dp.TemperatureAlert < dp.TemperatureWarning || dp.HumidityAlert < dp.HumidityWarning {
		return errors.New("thresholds.display alert bounds must be >= the warning bounds")
	}
	if cfg.Alerting.ConfidenceScore < 0 || cfg.Alerting.ConfidenceScore > 100 {
		return errors.New("alerting.confidence_score must be within 0..100")
	}
	if cfg.Alerting.Dedupe.Window < 0 {
		return errors.New("alerting.dedupe.window must be >= 0")
	}
	if cfg.ZoneCache.TTL < 0 {
		return errors.New("zone_cache.ttl must be >= 0")
	}
	seen := make(map[string]struct{}, len(cfg.Zones))
	for i, z := range cfg.Zones {
		if z.Code == "" || z.Name == "" {
			return fmt.Errorf("zones[%d]: code and name required", i)
		}
		if _, dup := seen[z.Code]; dup {
			return fmt.Errorf("zones[%d]: duplicate code %q", i, z.Code)
		}
		seen[z.Code] = struct{}{}
		if z.CapacityKg < 0 {
			return fmt.Errorf("zones[%d]: capacity_kg must be >= 0", i)
		}
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Ingest.MQTT.Enabled {
		if cfg.Ingest.MQTT.Broker == "" || cfg.Ingest.MQTT.Topic == "" {
			return errors.New("ingest.mqtt requires broker and topic")
		}
		if cfg.Ingest.MQTT.QoS > 2 {
			return errors.New("ingest.mqtt.qos must be 0, 1 or 2")
		}
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Publish.Kafka.Enabled {
		if len(cfg.Publish.Kafka.Brokers) == 0 || cfg.Publish.Kafka.Topic == "" {
			return errors.New("publish.kafka requires brokers and topic")
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config; Reload and Watch are no-ops.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
