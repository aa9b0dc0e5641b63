package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:zonewatch.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// single writer; also keeps shared in-memory databases alive
	db.SetMaxOpenConns(1)
	return &sqliteStore{baseStore{db: db, dialect: dialect{
		encodeTime: func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
		isUnique:   sqliteIsUnique,
	}}}, nil
}

func sqliteIsUnique(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.exec(ctx, []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS storage_zones (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			zone_code TEXT NOT NULL UNIQUE,
			zone_name TEXT NOT NULL,
			capacity_kg REAL NOT NULL DEFAULT 0,
			optimal_temperature REAL,
			optimal_humidity REAL,
			zone_type TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS environmental_data (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			zone_id INTEGER NOT NULL REFERENCES storage_zones(id),
			temperature REAL NOT NULL,
			humidity REAL NOT NULL,
			air_quality_index REAL,
			co2_level REAL,
			pressure REAL,
			recorded_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_env_zone_recorded ON environmental_data(zone_id, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			zone_id INTEGER REFERENCES storage_zones(id),
			affected_products TEXT NOT NULL DEFAULT '[]',
			confidence_score REAL,
			status TEXT NOT NULL DEFAULT 'active',
			action_required_by TEXT,
			created_at TEXT NOT NULL,
			resolved_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_status_created ON alerts(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_zone_type ON alerts(zone_id, alert_type, status)`,
		`CREATE TABLE IF NOT EXISTS activities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			activity_type TEXT NOT NULL,
			title TEXT NOT NULL,
			zone_id INTEGER REFERENCES storage_zones(id),
			performed_by TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'completed',
			performed_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_performed ON activities(performed_at)`,
	})
}
