// Package threshold compares readings against a zone's optimal conditions.
//
// Two policies exist side by side. AlertPolicy decides whether a reading is
// worth an alert row and how severe it is. DisplayPolicy labels readings for
// dashboards (optimal, warning, alert). They use different bounds and are
// configured separately.
package threshold

import (
	"math"

	"zonewatch/internal/config"
	"zonewatch/internal/model"
)

type Defaults struct {
	Temperature float64
	Humidity    float64
}

type AlertPolicy struct {
	TemperatureDelta float64
	HumidityDelta    float64
	TemperatureHigh  float64
	HumidityHigh     float64
}

type DisplayPolicy struct {
	TemperatureWarning float64
	HumidityWarning    float64
	TemperatureAlert   float64
	HumidityAlert      float64
}

type Policies struct {
	Defaults      Defaults
	Alert         AlertPolicy
	DisplayPolicy DisplayPolicy
}

func DefaultPolicies() Policies {
	return FromConfig(config.DefaultConfig().Thresholds)
}

func FromConfig(c config.ThresholdsConfig) Policies {
	return Policies{
		Defaults: Defaults{Temperature: c.DefaultOptimalTemperature, Humidity: c.DefaultOptimalHumidity},
		Alert: AlertPolicy{
			TemperatureDelta: c.Alert.TemperatureDelta,
			HumidityDelta:    c.Alert.HumidityDelta,
			TemperatureHigh:  c.Alert.TemperatureHigh,
			HumidityHigh:     c.Alert.HumidityHigh,
		},
		DisplayPolicy: DisplayPolicy{
			TemperatureWarning: c.Display.TemperatureWarning,
			HumidityWarning:    c.Display.HumidityWarning,
			TemperatureAlert:   c.Display.TemperatureAlert,
			HumidityAlert:      c.Display.HumidityAlert,
		},
	}
}

// Optimal returns the zone's target conditions, falling back to the defaults
// for values the zone leaves unset.
func (d Defaults) Optimal(zone model.Zone) (temperature, humidity float64) {
	temperature, humidity = d.Temperature, d.Humidity
	if zone.OptimalTemperature != nil {
		temperature = *zone.OptimalTemperature
	}
	if zone.OptimalHumidity != nil {
		humidity = *zone.OptimalHumidity
	}
	return temperature, humidity
}

type Deviation struct {
	OptimalTemperature float64
	OptimalHumidity    float64
	TemperatureDiff    float64
	HumidityDiff       float64
}

func (d Defaults) Deviation(temperature, humidity float64, zone model.Zone) Deviation {
	ot, oh := d.Optimal(zone)
	return Deviation{
		OptimalTemperature: ot,
		OptimalHumidity:    oh,
		TemperatureDiff:    math.Abs(temperature - ot),
		HumidityDiff:       math.Abs(humidity - oh),
	}
}

// Verdict is the outcome of evaluating one reading. Severity is empty when
// Violation is false.
type Verdict struct {
	Violation bool
	Severity  model.Severity
	Deviation Deviation
}

// Classify applies the alert policy to a deviation.
func (p AlertPolicy) Classify(dev Deviation) Verdict {
	v := Verdict{Deviation: dev}
	if dev.TemperatureDiff <= p.TemperatureDelta && dev.HumidityDiff <= p.HumidityDelta {
		return v
	}
	v.Violation = true
	v.Severity = model.SeverityMedium
	if dev.TemperatureDiff > p.TemperatureHigh || dev.HumidityDiff > p.HumidityHigh {
		v.Severity = model.SeverityHigh
	}
	return v
}

// Evaluate is pure: same reading and zone, same verdict.
func (p Policies) Evaluate(reading model.Reading, zone model.Zone) Verdict {
	return p.Alert.Classify(p.Defaults.Deviation(reading.Temperature, reading.Humidity, zone))
}

type DisplayStatus struct {
	Temperature model.EnvStatus
	Humidity    model.EnvStatus
	Overall     model.EnvStatus
}

func tier(diff, warning, alert float64) model.EnvStatus {
	switch {
	case diff > alert:
		return model.StatusAlert
	case diff > warning:
		return model.StatusWarning
	}
	return model.StatusOptimal
}

// Label applies the display policy to a deviation. Overall is the worse of
// the two per-metric labels.
func (p DisplayPolicy) Label(dev Deviation) DisplayStatus {
	s := DisplayStatus{
		Temperature: tier(dev.TemperatureDiff, p.TemperatureWarning, p.TemperatureAlert),
		Humidity:    tier(dev.HumidityDiff, p.HumidityWarning, p.HumidityAlert),
	}
	s.Overall = worst(s.Temperature, s.Humidity)
	return s
}

func (p Policies) Display(reading model.Reading, zone model.Zone) DisplayStatus {
	return p.DisplayPolicy.Label(p.Defaults.Deviation(reading.Temperature, reading.Humidity, zone))
}

func worst(a, b model.EnvStatus) model.EnvStatus {
	rank := func(s model.EnvStatus) int {
		switch s {
		case model.StatusAlert:
			return 2
		case model.StatusWarning:
			return 1
		}
		return 0
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
