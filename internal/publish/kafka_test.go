package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"zonewatch/internal/model"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestMessageKeyedByZone(t *testing.T) {
	zoneID := int64(4)
	alert := model.Alert{ID: 9, Type: "environmental", Severity: model.SeverityHigh, ZoneID: &zoneID, ZoneCode: "A", CreatedAt: time.Unix(1700000000, 0).UTC()}
	msg, err := Message(alert)
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if string(msg.Key) != "A" {
		t.Fatalf("key: %s", msg.Key)
	}
	var decoded model.Alert
	if err := json.Unmarshal(msg.Value, &decoded); err != nil || decoded.ID != 9 {
		t.Fatalf("value did not round trip: %v %+v", err, decoded)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "high" {
		t.Fatalf("headers: %+v", msg.Headers)
	}
}

func TestMessageKeyFallbacks(t *testing.T) {
	zoneID := int64(12)
	msg, _ := Message(model.Alert{Type: "manual", ZoneID: &zoneID})
	if string(msg.Key) != "12" {
		t.Fatalf("zone id key: %s", msg.Key)
	}
	msg, _ = Message(model.Alert{Type: "manual"})
	if string(msg.Key) != "manual" {
		t.Fatalf("type key: %s", msg.Key)
	}
}

func TestNotify(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{writer: w, timeout: time.Second}
	if err := p.Notify(context.Background(), model.Alert{ID: 1, ZoneCode: "B"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "B" {
		t.Fatalf("written: %+v", w.msgs)
	}
	w.err = errors.New("broker down")
	if err := p.Notify(context.Background(), model.Alert{ID: 2}); err == nil {
		t.Fatalf("expected write error")
	}
}
