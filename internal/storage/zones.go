package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"zonewatch/internal/apperr"
	"zonewatch/internal/model"
)

const zoneColumns = `id, zone_code, zone_name, capacity_kg, optimal_temperature, optimal_humidity, zone_type, created_at`

func scanZone(row rowScanner) (model.Zone, error) {
	var (
		z         model.Zone
		optT      sql.NullFloat64
		optH      sql.NullFloat64
		createdAt scanTime
	)
	if err := row.Scan(&z.ID, &z.Code, &z.Name, &z.CapacityKg, &optT, &optH, &z.ZoneType, &createdAt); err != nil {
		return model.Zone{}, err
	}
	z.OptimalTemperature = floatPtr(optT)
	z.OptimalHumidity = floatPtr(optH)
	z.CreatedAt = createdAt.Time
	return z, nil
}

// UpsertZone inserts a zone or refreshes the descriptive fields of the zone
// with the same code. The id and created_at of an existing row are kept.
func (b *baseStore) UpsertZone(ctx context.Context, zone model.Zone) (model.Zone, error) {
	if zone.CreatedAt.IsZero() {
		zone.CreatedAt = b.clock()
	}
	_, err := b.db.ExecContext(ctx, b.q(`
		INSERT INTO storage_zones (zone_code, zone_name, capacity_kg, optimal_temperature, optimal_humidity, zone_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (zone_code) DO UPDATE SET
			zone_name = excluded.zone_name,
			capacity_kg = excluded.capacity_kg,
			optimal_temperature = excluded.optimal_temperature,
			optimal_humidity = excluded.optimal_humidity,
			zone_type = excluded.zone_type`),
		zone.Code, zone.Name, zone.CapacityKg, nullFloat(zone.OptimalTemperature), nullFloat(zone.OptimalHumidity), zone.ZoneType, b.t(zone.CreatedAt))
	if err != nil {
		return model.Zone{}, apperr.Datastore("upsert zone", err)
	}
	return b.GetZoneByCode(ctx, zone.Code)
}

// CreateZone inserts a new zone and reports a conflict when the code is
// already registered.
func (b *baseStore) CreateZone(ctx context.Context, zone model.Zone) (model.Zone, error) {
	if zone.CreatedAt.IsZero() {
		zone.CreatedAt = b.clock()
	}
	row := b.db.QueryRowContext(ctx, b.q(`
		INSERT INTO storage_zones (zone_code, zone_name, capacity_kg, optimal_temperature, optimal_humidity, zone_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		zone.Code, zone.Name, zone.CapacityKg, nullFloat(zone.OptimalTemperature), nullFloat(zone.OptimalHumidity), zone.ZoneType, b.t(zone.CreatedAt))
	if err := row.Scan(&zone.ID); err != nil {
		if b.dialect.isUnique(err) {
			return model.Zone{}, &apperr.ConflictError{Msg: "zone " + strconv.Quote(zone.Code) + " already exists"}
		}
		return model.Zone{}, apperr.Datastore("create zone", err)
	}
	zone.CreatedAt = zone.CreatedAt.UTC()
	return zone, nil
}

func (b *baseStore) GetZoneByID(ctx context.Context, id int64) (model.Zone, error) {
	row := b.db.QueryRowContext(ctx, b.q(`SELECT `+zoneColumns+` FROM storage_zones WHERE id = ?`), id)
	z, err := scanZone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Zone{}, apperr.NotFound("zone", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return model.Zone{}, apperr.Datastore("get zone", err)
	}
	return z, nil
}

func (b *baseStore) GetZoneByCode(ctx context.Context, code string) (model.Zone, error) {
	row := b.db.QueryRowContext(ctx, b.q(`SELECT `+zoneColumns+` FROM storage_zones WHERE zone_code = ?`), code)
	z, err := scanZone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Zone{}, apperr.NotFound("zone", code)
	}
	if err != nil {
		return model.Zone{}, apperr.Datastore("get zone", err)
	}
	return z, nil
}

func (b *baseStore) ListZones(ctx context.Context) ([]model.Zone, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT `+zoneColumns+` FROM storage_zones ORDER BY zone_code`)
	if err != nil {
		return nil, apperr.Datastore("list zones", err)
	}
	defer rows.Close()
	out := []model.Zone{}
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, apperr.Datastore("list zones", err)
		}
		out = append(out, z)
	}
	return out, apperr.Datastore("list zones", rows.Err())
}
