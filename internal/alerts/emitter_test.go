package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"zonewatch/internal/config"
	"zonewatch/internal/logging"
	"zonewatch/internal/model"
	"zonewatch/internal/threshold"
)

type memStore struct {
	alerts []model.Alert
}

func (m *memStore) InsertAlert(_ context.Context, a model.Alert) (model.Alert, error) {
	a.ID = int64(len(m.alerts) + 1)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.alerts = append(m.alerts, a)
	return a, nil
}

func (m *memStore) HasActiveAlert(_ context.Context, alertType string, zoneID int64, since time.Time) (bool, error) {
	for _, a := range m.alerts {
		if a.Type == alertType && a.ZoneID != nil && *a.ZoneID == zoneID && a.Status == model.AlertActive && !a.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

type recordingNotifier struct {
	got []model.Alert
	err error
}

func (r *recordingNotifier) Notify(_ context.Context, a model.Alert) error {
	r.got = append(r.got, a)
	return r.err
}

var zoneA = model.Zone{ID: 7, Code: "A", Name: "Zone A"}

func evaluate(temp, hum float64) (model.Reading, threshold.Verdict) {
	r := model.Reading{ZoneID: zoneA.ID, Temperature: temp, Humidity: hum}
	return r, threshold.DefaultPolicies().Evaluate(r, zoneA)
}

func TestBuildRendersAlert(t *testing.T) {
	r, v := evaluate(21.5, 46)
	a := Build(zoneA, r, v, 95)
	if a.Severity != model.SeverityHigh || a.Type != model.AlertTypeEnvironmental {
		t.Fatalf("severity/type: %s %s", a.Severity, a.Type)
	}
	if a.Title != "Environmental Alert - Zone A" {
		t.Fatalf("title: %q", a.Title)
	}
	want := "Environmental conditions in Zone A are outside optimal range. Temperature: 21.5°C (optimal: 18°C), Humidity: 46% (optimal: 45%)"
	if a.Message != want {
		t.Fatalf("message:\n got %q\nwant %q", a.Message, want)
	}
	if len(a.AffectedProducts) != 1 || a.AffectedProducts[0] != "All products in Zone A" {
		t.Fatalf("affected products: %v", a.AffectedProducts)
	}
	if a.ConfidenceScore == nil || *a.ConfidenceScore != 95 || a.ZoneID == nil || *a.ZoneID != 7 {
		t.Fatalf("score/zone: %+v", a)
	}
}

func TestEmitSkipsCleanReadings(t *testing.T) {
	store := &memStore{}
	e := NewEmitter(store, config.AlertingConfig{ConfidenceScore: 95}, logging.Discard())
	r, v := evaluate(18.2, 45.5)
	got, err := e.Emit(context.Background(), zoneA, r, v)
	if err != nil || got != nil || len(store.alerts) != 0 {
		t.Fatalf("clean reading produced alert: %+v %v", got, err)
	}
}

func TestEmitWithoutDedupeRepeats(t *testing.T) {
	store := &memStore{}
	n := &recordingNotifier{}
	e := NewEmitter(store, config.AlertingConfig{ConfidenceScore: 95}, logging.Discard(), n)
	r, v := evaluate(20.5, 45)
	for i := 0; i < 2; i++ {
		if _, err := e.Emit(context.Background(), zoneA, r, v); err != nil {
			t.Fatal(err)
		}
	}
	if len(store.alerts) != 2 || len(n.got) != 2 {
		t.Fatalf("expected one alert per violating reading, got %d (notified %d)", len(store.alerts), len(n.got))
	}
	if store.alerts[0].Severity != model.SeverityMedium {
		t.Fatalf("severity: %s", store.alerts[0].Severity)
	}
}

func TestEmitDedupeSuppresses(t *testing.T) {
	store := &memStore{}
	e := NewEmitter(store, config.AlertingConfig{
		ConfidenceScore: 95,
		Dedupe:          config.DedupeConfig{Enabled: true, Window: time.Hour},
	}, logging.Discard())
	r, v := evaluate(25, 60)
	first, err := e.Emit(context.Background(), zoneA, r, v)
	if err != nil || first == nil {
		t.Fatalf("first alert: %+v %v", first, err)
	}
	second, err := e.Emit(context.Background(), zoneA, r, v)
	if err != nil || second != nil {
		t.Fatalf("second alert should be suppressed: %+v %v", second, err)
	}
	store.alerts[0].Status = model.AlertResolved
	third, err := e.Emit(context.Background(), zoneA, r, v)
	if err != nil || third == nil {
		t.Fatalf("alert after resolution: %+v %v", third, err)
	}
}

func TestNotifierFailureKeepsAlert(t *testing.T) {
	store := &memStore{}
	n := &recordingNotifier{err: errors.New("broker down")}
	e := NewEmitter(store, config.AlertingConfig{ConfidenceScore: 95}, logging.Discard(), n)
	r, v := evaluate(10, 45)
	got, err := e.Emit(context.Background(), zoneA, r, v)
	if err != nil || got == nil || len(store.alerts) != 1 {
		t.Fatalf("notifier error must not fail the emit: %+v %v", got, err)
	}
}
