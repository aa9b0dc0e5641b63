package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"zonewatch/internal/apperr"
	"zonewatch/internal/config"
	"zonewatch/internal/model"
)

// Store is the relational datastore behind the engine and the API. Lookups
// of missing rows return *apperr.NotFoundError; every other failure is an
// *apperr.DatastoreError.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error

	UpsertZone(ctx context.Context, zone model.Zone) (model.Zone, error)
	CreateZone(ctx context.Context, zone model.Zone) (model.Zone, error)
	GetZoneByID(ctx context.Context, id int64) (model.Zone, error)
	GetZoneByCode(ctx context.Context, code string) (model.Zone, error)
	ListZones(ctx context.Context) ([]model.Zone, error)

	InsertReading(ctx context.Context, reading model.Reading) (model.Reading, error)
	ZoneReadings(ctx context.Context, zoneID int64, since time.Time) ([]model.Reading, error)
	LatestReadings(ctx context.Context) ([]model.ZoneEnvironment, error)

	InsertAlert(ctx context.Context, alert model.Alert) (model.Alert, error)
	GetAlert(ctx context.Context, id int64) (model.Alert, error)
	UpdateAlertStatus(ctx context.Context, id int64, status model.AlertStatus, resolvedAt *time.Time) (model.Alert, error)
	DeleteAlert(ctx context.Context, id int64) error
	ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error)
	AlertStats(ctx context.Context, since time.Time) ([]model.AlertStat, error)
	ActiveAlertCounts(ctx context.Context) (map[model.Severity]int, error)
	HasActiveAlert(ctx context.Context, alertType string, zoneID int64, since time.Time) (bool, error)

	InsertActivity(ctx context.Context, activity model.Activity) (model.Activity, error)
	ListActivities(ctx context.Context, filter model.ActivityFilter) ([]model.Activity, error)
	ActivityStats(ctx context.Context, dayStart, weekStart time.Time) ([]model.ActivityStat, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		s, err = NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		s, err = NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		if b, ok := s.(interface{ setMaxOpenConns(int) }); ok {
			b.setMaxOpenConns(cfg.MaxOpenConns)
		}
	}
	return s, nil
}

// dialect captures what differs between the sqlite and postgres backends.
// Queries are written with '?' placeholders and rebound when needed.
type dialect struct {
	numbered   bool
	encodeTime func(time.Time) any
	isUnique   func(error) bool
}

type baseStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) Ping(ctx context.Context) error {
	return apperr.Datastore("ping", b.db.PingContext(ctx))
}

func (b *baseStore) setMaxOpenConns(n int) {
	b.db.SetMaxOpenConns(n)
}

func (b *baseStore) exec(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return apperr.Datastore("init schema", err)
		}
	}
	return nil
}

func (b *baseStore) q(query string) string {
	if !b.dialect.numbered {
		return query
	}
	return rebind(query)
}

func (b *baseStore) t(ts time.Time) any {
	return b.dialect.encodeTime(ts.UTC())
}

func (b *baseStore) nt(ts *time.Time) any {
	if ts == nil {
		return nil
	}
	return b.t(*ts)
}

func (b *baseStore) clock() time.Time {
	if b.now != nil {
		return b.now().UTC()
	}
	return time.Now().UTC()
}

// rebind turns '?' placeholders into '$1', '$2', ...
func rebind(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// scanTime reads timestamps stored either natively (postgres) or as
// fixed-width UTC text (sqlite).
type scanTime struct {
	Time  time.Time
	Valid bool
}

func (s *scanTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		s.Time, s.Valid = time.Time{}, false
		return nil
	case time.Time:
		s.Time, s.Valid = v.UTC(), true
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	}
	return errors.New("unsupported timestamp column type")
}

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func (s *scanTime) parse(v string) error {
	v = strings.TrimSpace(v)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			s.Time, s.Valid = ts.UTC(), true
			return nil
		}
	}
	return errors.New("unparseable timestamp " + strconv.Quote(v))
}

func (s scanTime) ptr() *time.Time {
	if !s.Valid {
		return nil
	}
	t := s.Time
	return &t
}

// scanJSONList decodes a JSON array column; NULL and malformed values
// yield an empty list.
type scanJSONList struct {
	Values []string
}

func (s *scanJSONList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		s.Values = []string{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return errors.New("unsupported json column type")
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		out = []string{}
	}
	s.Values = out
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
