package storage

import (
	"context"
	"database/sql"
	"time"

	"zonewatch/internal/apperr"
	"zonewatch/internal/model"
)

func (b *baseStore) InsertReading(ctx context.Context, r model.Reading) (model.Reading, error) {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = b.clock()
	}
	r.RecordedAt = r.RecordedAt.UTC()
	row := b.db.QueryRowContext(ctx, b.q(`
		INSERT INTO environmental_data (zone_id, temperature, humidity, air_quality_index, co2_level, pressure, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		r.ZoneID, r.Temperature, r.Humidity, nullFloat(r.AirQualityIndex), nullFloat(r.CO2Level), nullFloat(r.Pressure), b.t(r.RecordedAt))
	if err := row.Scan(&r.ID); err != nil {
		return model.Reading{}, apperr.Datastore("insert reading", err)
	}
	return r, nil
}

// ZoneReadings returns the zone's readings recorded at or after since,
// newest first.
func (b *baseStore) ZoneReadings(ctx context.Context, zoneID int64, since time.Time) ([]model.Reading, error) {
	rows, err := b.db.QueryContext(ctx, b.q(`
		SELECT ed.id, ed.zone_id, sz.zone_code, sz.zone_name, ed.temperature, ed.humidity,
		       ed.air_quality_index, ed.co2_level, ed.pressure, ed.recorded_at
		FROM environmental_data ed
		JOIN storage_zones sz ON sz.id = ed.zone_id
		WHERE ed.zone_id = ? AND ed.recorded_at >= ?
		ORDER BY ed.recorded_at DESC, ed.id DESC`), zoneID, b.t(since))
	if err != nil {
		return nil, apperr.Datastore("zone readings", err)
	}
	defer rows.Close()
	out := []model.Reading{}
	for rows.Next() {
		var (
			r          model.Reading
			aqi, co2   sql.NullFloat64
			pressure   sql.NullFloat64
			recordedAt scanTime
		)
		if err := rows.Scan(&r.ID, &r.ZoneID, &r.ZoneCode, &r.ZoneName, &r.Temperature, &r.Humidity, &aqi, &co2, &pressure, &recordedAt); err != nil {
			return nil, apperr.Datastore("zone readings", err)
		}
		r.AirQualityIndex, r.CO2Level, r.Pressure = floatPtr(aqi), floatPtr(co2), floatPtr(pressure)
		r.RecordedAt = recordedAt.Time
		out = append(out, r)
	}
	return out, apperr.Datastore("zone readings", rows.Err())
}

// LatestReadings lists every zone with its most recent reading. Zones that
// never reported carry a nil Latest.
func (b *baseStore) LatestReadings(ctx context.Context) ([]model.ZoneEnvironment, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT sz.id, sz.zone_code, sz.zone_name, sz.capacity_kg, sz.optimal_temperature, sz.optimal_humidity, sz.zone_type, sz.created_at,
		       ed.id, ed.temperature, ed.humidity, ed.air_quality_index, ed.co2_level, ed.pressure, ed.recorded_at
		FROM storage_zones sz
		LEFT JOIN environmental_data ed ON ed.id = (
			SELECT e2.id FROM environmental_data e2
			WHERE e2.zone_id = sz.id
			ORDER BY e2.recorded_at DESC, e2.id DESC
			LIMIT 1)
		ORDER BY sz.zone_code`)
	if err != nil {
		return nil, apperr.Datastore("latest readings", err)
	}
	defer rows.Close()
	out := []model.ZoneEnvironment{}
	for rows.Next() {
		var (
			z               model.Zone
			optT, optH      sql.NullFloat64
			createdAt       scanTime
			readingID       sql.NullInt64
			temp, hum       sql.NullFloat64
			aqi, co2, press sql.NullFloat64
			recordedAt      scanTime
		)
		if err := rows.Scan(&z.ID, &z.Code, &z.Name, &z.CapacityKg, &optT, &optH, &z.ZoneType, &createdAt,
			&readingID, &temp, &hum, &aqi, &co2, &press, &recordedAt); err != nil {
			return nil, apperr.Datastore("latest readings", err)
		}
		z.OptimalTemperature, z.OptimalHumidity = floatPtr(optT), floatPtr(optH)
		z.CreatedAt = createdAt.Time
		env := model.ZoneEnvironment{Zone: z}
		if readingID.Valid {
			env.Latest = &model.Reading{
				ID:              readingID.Int64,
				ZoneID:          z.ID,
				ZoneCode:        z.Code,
				ZoneName:        z.Name,
				Temperature:     temp.Float64,
				Humidity:        hum.Float64,
				AirQualityIndex: floatPtr(aqi),
				CO2Level:        floatPtr(co2),
				Pressure:        floatPtr(press),
				RecordedAt:      recordedAt.Time,
			}
		}
		out = append(out, env)
	}
	return out, apperr.Datastore("latest readings", rows.Err())
}
