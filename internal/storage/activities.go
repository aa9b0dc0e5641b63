package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"zonewatch/internal/apperr"
	"zonewatch/internal/model"
)

func (b *baseStore) InsertActivity(ctx context.Context, act model.Activity) (model.Activity, error) {
	if act.PerformedAt.IsZero() {
		act.PerformedAt = b.clock()
	}
	if act.Status == "" {
		act.Status = "completed"
	}
	act.PerformedAt = act.PerformedAt.UTC()
	row := b.db.QueryRowContext(ctx, b.q(`
		INSERT INTO activities (activity_type, title, zone_id, performed_by, description, status, performed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		act.ActivityType, act.Title, nullInt(act.ZoneID), act.PerformedBy, act.Description, act.Status, b.t(act.PerformedAt))
	if err := row.Scan(&act.ID); err != nil {
		return model.Activity{}, apperr.Datastore("insert activity", err)
	}
	return act, nil
}

// ListActivities returns activities newest first.
func (b *baseStore) ListActivities(ctx context.Context, f model.ActivityFilter) ([]model.Activity, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "ac.activity_type = ?")
		args = append(args, f.Type)
	}
	if f.ZoneID > 0 {
		where = append(where, "ac.zone_id = ?")
		args = append(args, f.ZoneID)
	}
	query := `
		SELECT ac.id, ac.activity_type, ac.title, ac.zone_id, COALESCE(sz.zone_name, ''),
		       ac.performed_by, ac.description, ac.status, ac.performed_at
		FROM activities ac
		LEFT JOIN storage_zones sz ON sz.id = ac.zone_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ac.performed_at DESC, ac.id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := b.db.QueryContext(ctx, b.q(query), args...)
	if err != nil {
		return nil, apperr.Datastore("list activities", err)
	}
	defer rows.Close()
	out := []model.Activity{}
	for rows.Next() {
		var (
			act         model.Activity
			zoneID      sql.NullInt64
			performedAt scanTime
		)
		if err := rows.Scan(&act.ID, &act.ActivityType, &act.Title, &zoneID, &act.ZoneName,
			&act.PerformedBy, &act.Description, &act.Status, &performedAt); err != nil {
			return nil, apperr.Datastore("list activities", err)
		}
		act.ZoneID = intPtr(zoneID)
		act.PerformedAt = performedAt.Time
		out = append(out, act)
	}
	return out, apperr.Datastore("list activities", rows.Err())
}

// ActivityStats counts activities per type, overall and since the start of
// the current day and week.
func (b *baseStore) ActivityStats(ctx context.Context, dayStart, weekStart time.Time) ([]model.ActivityStat, error) {
	rows, err := b.db.QueryContext(ctx, b.q(`
		SELECT activity_type,
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN performed_at >= ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN performed_at >= ? THEN 1 ELSE 0 END), 0)
		FROM activities
		GROUP BY activity_type
		ORDER BY activity_type`), b.t(dayStart), b.t(weekStart))
	if err != nil {
		return nil, apperr.Datastore("activity stats", err)
	}
	defer rows.Close()
	out := []model.ActivityStat{}
	for rows.Next() {
		var st model.ActivityStat
		if err := rows.Scan(&st.ActivityType, &st.Count, &st.TodayCount, &st.WeekCount); err != nil {
			return nil, apperr.Datastore("activity stats", err)
		}
		out = append(out, st)
	}
	return out, apperr.Datastore("activity stats", rows.Err())
}
