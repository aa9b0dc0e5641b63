// Package ingest feeds readings from asynchronous transports into the
// engine channel. Every transport shares the same parser and normalizer.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"zonewatch/internal/metrics"
	"zonewatch/internal/model"
	"zonewatch/internal/normalize"
)

// SendNonBlocking hands a reading to the engine. A full channel drops the
// reading rather than stalling the transport.
func SendNonBlocking(ctx context.Context, out chan<- model.ReadingInput, in model.ReadingInput, logger *slog.Logger) bool {
	select {
	case out <- in:
		return true
	case <-ctx.Done():
		return false
	default:
		metrics.IngestDropped.WithLabelValues(in.Source).Inc()
		if logger != nil {
			logger.Warn("reading channel full, dropping reading", "source", in.Source, "zone", in.Zone)
		}
		return false
	}
}

// ParsePayload decodes a single self-contained message such as a Kafka
// value or an MQTT payload. CSV payloads must be positional.
func ParsePayload(data []byte) (*normalize.ReadingFields, error) {
	return NewParser().ParseLine(string(data))
}

func deliver(ctx context.Context, source string, fields *normalize.ReadingFields, out chan<- model.ReadingInput, logger *slog.Logger) bool {
	in, err := normalize.Normalize(*fields)
	if err != nil {
		metrics.IngestParseErrors.WithLabelValues(source).Inc()
		if logger != nil {
			logger.Warn("reading normalize error", "source", source, "err", err, "raw", fields.Raw)
		}
		return false
	}
	in.Source = source
	return SendNonBlocking(ctx, out, in, logger)
}

func parseFailed(source string, err error, logger *slog.Logger) {
	metrics.IngestParseErrors.WithLabelValues(source).Inc()
	if logger != nil {
		logger.Warn("reading parse error", "source", source, "err", err)
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
