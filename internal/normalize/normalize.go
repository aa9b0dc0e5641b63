// Package normalize turns loosely typed sensor payload fields into a
// ReadingInput for the engine.
package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"zonewatch/internal/model"
)

// ReadingFields holds raw string values pulled out of a payload by one of
// the ingest parsers.
type ReadingFields struct {
	Zone            string
	Temperature     string
	Humidity        string
	AirQualityIndex string
	CO2Level        string
	Pressure        string
	Extras          map[string]string
	Raw             string
}

// Assign routes a named value to its field. Unknown names land in Extras.
func (f *ReadingFields) Assign(name, value string) {
	value = strings.TrimSpace(value)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "zone_id", "zone", "zone_code", "zoneid", "zonecode", "location":
		f.Zone = value
	case "temperature", "temp", "t", "temp_c":
		f.Temperature = value
	case "humidity", "hum", "rh", "h":
		f.Humidity = value
	case "air_quality_index", "aqi", "air_quality":
		f.AirQualityIndex = value
	case "co2_level", "co2", "co2_ppm":
		f.CO2Level = value
	case "pressure", "press", "hpa", "pressure_hpa":
		f.Pressure = value
	default:
		if f.Extras == nil {
			f.Extras = map[string]string{}
		}
		f.Extras[strings.ToLower(name)] = value
	}
}

// Normalize parses numeric fields. Absent temperature or humidity stays nil
// so the engine reports it as a validation error; malformed numbers fail
// here.
func Normalize(fields ReadingFields) (model.ReadingInput, error) {
	in := model.ReadingInput{Zone: model.ZoneRef(strings.TrimSpace(fields.Zone))}
	for _, f := range []struct {
		name  string
		value string
		dst   **float64
	}{
		{"temperature", fields.Temperature, &in.Temperature},
		{"humidity", fields.Humidity, &in.Humidity},
		{"air_quality_index", fields.AirQualityIndex, &in.AirQualityIndex},
		{"co2_level", fields.CO2Level, &in.CO2Level},
		{"pressure", fields.Pressure, &in.Pressure},
	} {
		v, ok, err := ParseNumber(f.value)
		if err != nil {
			return model.ReadingInput{}, fmt.Errorf("%s: %w", f.name, err)
		}
		if ok {
			*f.dst = &v
		}
	}
	return in, nil
}

var unitSuffixes = []string{"°c", "degc", "hpa", "ppm", "%", "c"}

var fahrenheitSuffixes = []string{"°f", "degf"}

// ParseNumber reads a float, tolerating a trailing unit such as "21.5°C"
// or "46%". Fahrenheit values are converted to Celsius. Empty and null
// values report ok=false.
func ParseNumber(value string) (float64, bool, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" || v == "null" || v == "<nil>" {
		return 0, false, nil
	}
	fahrenheit := false
	for _, suffix := range fahrenheitSuffixes {
		if strings.HasSuffix(v, suffix) {
			v = strings.TrimSpace(strings.TrimSuffix(v, suffix))
			fahrenheit = true
			break
		}
	}
	if !fahrenheit {
		for _, suffix := range unitSuffixes {
			if strings.HasSuffix(v, suffix) {
				v = strings.TrimSpace(strings.TrimSuffix(v, suffix))
				break
			}
		}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid number %q", value)
	}
	if fahrenheit {
		f = (f - 32) * 5 / 9
	}
	return f, true, nil
}
