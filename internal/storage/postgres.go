package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/zonewatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db, dialect: dialect{
		numbered:   true,
		encodeTime: func(t time.Time) any { return t.UTC() },
		isUnique:   postgresIsUnique,
	}}}, nil
}

func postgresIsUnique(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.exec(ctx, []string{
		`CREATE TABLE IF NOT EXISTS storage_zones (
			id BIGSERIAL PRIMARY KEY,
			zone_code TEXT NOT NULL UNIQUE,
			zone_name TEXT NOT NULL,
			capacity_kg DOUBLE PRECISION NOT NULL DEFAULT 0,
			optimal_temperature DOUBLE PRECISION,
			optimal_humidity DOUBLE PRECISION,
			zone_type TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS environmental_data (
			id BIGSERIAL PRIMARY KEY,
			zone_id BIGINT NOT NULL REFERENCES storage_zones(id),
			temperature DOUBLE PRECISION NOT NULL,
			humidity DOUBLE PRECISION NOT NULL,
			air_quality_index DOUBLE PRECISION,
			co2_level DOUBLE PRECISION,
			pressure DOUBLE PRECISION,
			recorded_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_env_zone_recorded ON environmental_data(zone_id, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			alert_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			zone_id BIGINT REFERENCES storage_zones(id),
			affected_products JSONB NOT NULL DEFAULT '[]',
			confidence_score DOUBLE PRECISION,
			status TEXT NOT NULL DEFAULT 'active',
			action_required_by TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_status_created ON alerts(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_zone_type ON alerts(zone_id, alert_type, status)`,
		`CREATE TABLE IF NOT EXISTS activities (
			id BIGSERIAL PRIMARY KEY,
			activity_type TEXT NOT NULL,
			title TEXT NOT NULL,
			zone_id BIGINT REFERENCES storage_zones(id),
			performed_by TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'completed',
			performed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_performed ON activities(performed_at)`,
	})
}
