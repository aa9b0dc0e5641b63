// Package aggregate builds the read-only views served to dashboards and
// realtime clients.
package aggregate

import (
	"context"
	"time"

	"zonewatch/internal/apperr"
	"zonewatch/internal/model"
	"zonewatch/internal/threshold"
)

type Store interface {
	ListZones(ctx context.Context) ([]model.Zone, error)
	LatestReadings(ctx context.Context) ([]model.ZoneEnvironment, error)
	ZoneReadings(ctx context.Context, zoneID int64, since time.Time) ([]model.Reading, error)
	ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error)
	AlertStats(ctx context.Context, since time.Time) ([]model.AlertStat, error)
	ActiveAlertCounts(ctx context.Context) (map[model.Severity]int, error)
	ListActivities(ctx context.Context, filter model.ActivityFilter) ([]model.Activity, error)
	ActivityStats(ctx context.Context, dayStart, weekStart time.Time) ([]model.ActivityStat, error)
}

type Reader struct {
	store    Store
	policies func() threshold.Policies
	now      func() time.Time
}

// NewReader builds a Reader. policies is consulted on every call so config
// reloads apply to the next read.
func NewReader(store Store, policies func() threshold.Policies) *Reader {
	if policies == nil {
		policies = threshold.DefaultPolicies
	}
	return &Reader{store: store, policies: policies, now: time.Now}
}

// LatestPerZone returns every zone with its most recent reading and the
// display labels for it. Zones without readings have a nil Latest and no
// labels.
func (r *Reader) LatestPerZone(ctx context.Context) ([]model.ZoneEnvironment, error) {
	envs, err := r.store.LatestReadings(ctx)
	if err != nil {
		return nil, err
	}
	p := r.policies()
	for i := range envs {
		if envs[i].Latest == nil {
			continue
		}
		st := p.Display(*envs[i].Latest, envs[i].Zone)
		envs[i].TemperatureStatus = st.Temperature
		envs[i].HumidityStatus = st.Humidity
		envs[i].Status = st.Overall
	}
	return envs, nil
}

// ZoneHistory returns a zone's readings from the last window, newest first.
func (r *Reader) ZoneHistory(ctx context.Context, zoneID int64, window time.Duration) ([]model.Reading, error) {
	if window <= 0 {
		return nil, apperr.Validation("hours", "must be positive")
	}
	return r.store.ZoneReadings(ctx, zoneID, r.now().Add(-window))
}

func (r *Reader) AlertStats(ctx context.Context, window time.Duration) ([]model.AlertStat, error) {
	if window <= 0 {
		return nil, apperr.Validation("days", "must be positive")
	}
	return r.store.AlertStats(ctx, r.now().Add(-window))
}

// ActivityStats counts activities per type for today (UTC) and the last
// seven days.
func (r *Reader) ActivityStats(ctx context.Context) ([]model.ActivityStat, error) {
	now := r.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return r.store.ActivityStats(ctx, dayStart, dayStart.AddDate(0, 0, -7))
}

// Snapshot is the payload pushed to realtime clients.
type Snapshot struct {
	Timestamp     time.Time               `json:"timestamp"`
	Environmental []model.ZoneEnvironment `json:"environmental"`
	Alerts        []model.Alert           `json:"alerts"`
	Activities    []model.Activity        `json:"activities"`
}

func (r *Reader) Snapshot(ctx context.Context, alertLimit, activityLimit int) (Snapshot, error) {
	env, err := r.LatestPerZone(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	alerts, err := r.store.ListAlerts(ctx, model.AlertFilter{Status: model.AlertActive, Limit: alertLimit, NewestFirst: true})
	if err != nil {
		return Snapshot{}, err
	}
	activities, err := r.store.ListActivities(ctx, model.ActivityFilter{Limit: activityLimit})
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Timestamp:     r.now().UTC(),
		Environmental: env,
		Alerts:        alerts,
		Activities:    activities,
	}, nil
}

type SeverityCount struct {
	Severity model.Severity `json:"severity"`
	Count    int            `json:"count"`
}

type Overview struct {
	ZoneCount         int     `json:"zone_count"`
	TotalCapacityKg   float64 `json:"total_capacity_kg"`
	ZonesInAlert      int     `json:"zones_in_alert"`
	ZonesInWarning    int     `json:"zones_in_warning"`
	TotalAlerts       int     `json:"total_alerts"`
	SystemHealthScore int     `json:"system_health_score"`
}

type Dashboard struct {
	Zones         []model.Zone            `json:"zones"`
	Alerts        []SeverityCount         `json:"alerts"`
	Activities    []model.ActivityStat    `json:"activities"`
	Environmental []model.ZoneEnvironment `json:"environmental"`
	Overview      Overview                `json:"overview"`
}

func (r *Reader) Dashboard(ctx context.Context) (Dashboard, error) {
	zones, err := r.store.ListZones(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	counts, err := r.store.ActiveAlertCounts(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	activities, err := r.ActivityStats(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	env, err := r.LatestPerZone(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{Zones: zones, Activities: activities, Environmental: env, Alerts: []SeverityCount{}}
	for _, sev := range []model.Severity{model.SeverityHigh, model.SeverityMedium, model.SeverityLow} {
		if n := counts[sev]; n > 0 {
			d.Alerts = append(d.Alerts, SeverityCount{Severity: sev, Count: n})
		}
	}
	for sev, n := range counts {
		if !sev.Valid() {
			d.Alerts = append(d.Alerts, SeverityCount{Severity: sev, Count: n})
		}
		d.Overview.TotalAlerts += n
	}
	for _, z := range zones {
		d.Overview.TotalCapacityKg += z.CapacityKg
	}
	d.Overview.ZoneCount = len(zones)
	for _, e := range env {
		switch e.Status {
		case model.StatusAlert:
			d.Overview.ZonesInAlert++
		case model.StatusWarning:
			d.Overview.ZonesInWarning++
		}
	}
	d.Overview.SystemHealthScore = HealthScore(counts[model.SeverityHigh], counts[model.SeverityMedium], d.Overview.ZonesInAlert)
	return d, nil
}

// HealthScore is 100 less weighted penalties for active alerts and alerting
// zones, floored at zero.
func HealthScore(high, medium, zonesInAlert int) int {
	return max(0, 100-10*high-5*medium-8*zonesInAlert)
}
