package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const AlertTypeEnvironmental = "environmental"

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Priority orders severities for listings: high=1, medium=2, low=3.
func (s Severity) Priority() int {
	switch s {
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	}
	return 4
}

func (s Severity) Valid() bool {
	return s.Priority() < 4
}

type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertResolved AlertStatus = "resolved"
)

func (s AlertStatus) Valid() bool {
	return s == AlertActive || s == AlertResolved
}

// EnvStatus is the dashboard-facing label for a reading.
type EnvStatus string

const (
	StatusOptimal EnvStatus = "optimal"
	StatusWarning EnvStatus = "warning"
	StatusAlert   EnvStatus = "alert"
)

type Zone struct {
	ID                 int64     `json:"id"`
	Code               string    `json:"zone_code"`
	Name               string    `json:"zone_name"`
	CapacityKg         float64   `json:"capacity_kg"`
	OptimalTemperature *float64  `json:"optimal_temperature"`
	OptimalHumidity    *float64  `json:"optimal_humidity"`
	ZoneType           string    `json:"zone_type,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

type Reading struct {
	ID              int64     `json:"id"`
	ZoneID          int64     `json:"zone_id"`
	ZoneCode        string    `json:"zone_code,omitempty"`
	ZoneName        string    `json:"zone_name,omitempty"`
	Temperature     float64   `json:"temperature"`
	Humidity        float64   `json:"humidity"`
	AirQualityIndex *float64  `json:"air_quality_index"`
	CO2Level        *float64  `json:"co2_level"`
	Pressure        *float64  `json:"pressure"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// ReadingInput is an unvalidated reading as received from a client or a bus.
type ReadingInput struct {
	Zone            ZoneRef  `json:"zone_id"`
	Temperature     *float64 `json:"temperature"`
	Humidity        *float64 `json:"humidity"`
	AirQualityIndex *float64 `json:"air_quality_index,omitempty"`
	CO2Level        *float64 `json:"co2_level,omitempty"`
	Pressure        *float64 `json:"pressure,omitempty"`
	Source          string   `json:"-"`
}

// ZoneRef identifies a zone either by its code ("A") or by its numeric id.
// JSON numbers and strings are both accepted.
type ZoneRef string

func (r *ZoneRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = ZoneRef(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("zone_id must be a string or a number")
	}
	*r = ZoneRef(n.String())
	return nil
}

// ID returns the numeric form of the reference, if it has one.
func (r ZoneRef) ID() (int64, bool) {
	id, err := strconv.ParseInt(string(r), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type Alert struct {
	ID               int64       `json:"id"`
	Type             string      `json:"alert_type"`
	Severity         Severity    `json:"severity"`
	Title            string      `json:"title"`
	Message          string      `json:"message"`
	ZoneID           *int64      `json:"zone_id"`
	ZoneCode         string      `json:"zone_code,omitempty"`
	ZoneName         string      `json:"zone_name,omitempty"`
	AffectedProducts []string    `json:"affected_products"`
	ConfidenceScore  *float64    `json:"confidence_score"`
	Status           AlertStatus `json:"status"`
	ActionRequiredBy *time.Time  `json:"action_required_by,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	ResolvedAt       *time.Time  `json:"resolved_at"`
}

type AlertFilter struct {
	Status   AlertStatus
	Severity Severity
	Type     string
	ZoneID   int64
	Limit    int

	// NewestFirst skips severity ranking and orders by creation time only.
	NewestFirst bool
}

type AlertStat struct {
	Status   AlertStatus `json:"status"`
	Severity Severity    `json:"severity"`
	Count    int         `json:"count"`
}

type Activity struct {
	ID           int64     `json:"id"`
	ActivityType string    `json:"activity_type"`
	Title        string    `json:"title"`
	ZoneID       *int64    `json:"zone_id"`
	ZoneName     string    `json:"zone_name,omitempty"`
	PerformedBy  string    `json:"performed_by"`
	Description  string    `json:"description,omitempty"`
	Status       string    `json:"status"`
	PerformedAt  time.Time `json:"performed_at"`
}

type ActivityFilter struct {
	Type   string
	ZoneID int64
	Limit  int
}

type ActivityStat struct {
	ActivityType string `json:"activity_type"`
	Count        int    `json:"count"`
	TodayCount   int    `json:"today_count"`
	WeekCount    int    `json:"week_count"`
}

// ZoneEnvironment pairs a zone with its most recent reading. Latest is nil
// for zones that have never reported.
type ZoneEnvironment struct {
	Zone              Zone      `json:"zone"`
	Latest            *Reading  `json:"environmental"`
	TemperatureStatus EnvStatus `json:"temperature_status,omitempty"`
	HumidityStatus    EnvStatus `json:"humidity_status,omitempty"`
	Status            EnvStatus `json:"status,omitempty"`
}
