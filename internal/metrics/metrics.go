package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonewatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zonewatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// Ingest metrics
	ReadingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonewatch_readings_total",
			Help: "Readings processed by the engine",
		},
		[]string{"source", "status"}, // status: stored, rejected, failed
	)

	IngestDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonewatch_ingest_dropped_total",
			Help: "Readings dropped because the engine channel was full",
		},
		[]string{"source"},
	)

	IngestParseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonewatch_ingest_parse_errors_total",
			Help: "Payloads that could not be decoded into a reading",
		},
		[]string{"source"},
	)

	// Alert metrics
	AlertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonewatch_alerts_emitted_total",
			Help: "Environmental alerts persisted",
		},
		[]string{"zone", "severity"},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonewatch_alerts_suppressed_total",
			Help: "Alerts skipped because an active alert already covers the zone",
		},
		[]string{"zone"},
	)

	AlertPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonewatch_alert_publish_total",
			Help: "Alerts forwarded to downstream notifiers",
		},
		[]string{"status"}, // status: success, failed
	)

	// Stream metrics
	StreamConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zonewatch_stream_connections",
			Help: "Open realtime push connections",
		},
		[]string{"transport"},
	)

	SnapshotDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zonewatch_snapshot_duration_seconds",
			Help:    "Time taken to assemble a realtime snapshot",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// Zone cache
	ZoneCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonewatch_zone_cache_lookups_total",
			Help: "Zone registry cache lookups",
		},
		[]string{"result"}, // result: hit, miss
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonewatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)

// CacheObserver feeds cache hit/miss events into ZoneCacheLookups.
type CacheObserver struct{}

func (CacheObserver) CacheHit()  { ZoneCacheLookups.WithLabelValues("hit").Inc() }
func (CacheObserver) CacheMiss() { ZoneCacheLookups.WithLabelValues("miss").Inc() }
