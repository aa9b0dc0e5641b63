package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"zonewatch/internal/apperr"
	"zonewatch/internal/model"
)

const alertSelect = `
	SELECT a.id, a.alert_type, a.severity, a.title, a.message, a.zone_id,
	       COALESCE(sz.zone_code, ''), COALESCE(sz.zone_name, ''),
	       a.affected_products, a.confidence_score, a.status, a.action_required_by, a.created_at, a.resolved_at
	FROM alerts a
	LEFT JOIN storage_zones sz ON sz.id = a.zone_id`

// severityRank sorts high before medium before low; unknown values last.
const severityRank = `CASE a.severity WHEN 'high' THEN 1 WHEN 'medium' THEN 2 WHEN 'low' THEN 3 ELSE 4 END`

func scanAlert(row rowScanner) (model.Alert, error) {
	var (
		a          model.Alert
		zoneID     sql.NullInt64
		confidence sql.NullFloat64
		products   scanJSONList
		actionBy   scanTime
		createdAt  scanTime
		resolvedAt scanTime
	)
	if err := row.Scan(&a.ID, &a.Type, &a.Severity, &a.Title, &a.Message, &zoneID, &a.ZoneCode, &a.ZoneName,
		&products, &confidence, &a.Status, &actionBy, &createdAt, &resolvedAt); err != nil {
		return model.Alert{}, err
	}
	a.ZoneID = intPtr(zoneID)
	a.ConfidenceScore = floatPtr(confidence)
	a.AffectedProducts = products.Values
	a.ActionRequiredBy = actionBy.ptr()
	a.CreatedAt = createdAt.Time
	a.ResolvedAt = resolvedAt.ptr()
	return a, nil
}

func (b *baseStore) InsertAlert(ctx context.Context, a model.Alert) (model.Alert, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = b.clock()
	}
	if a.Status == "" {
		a.Status = model.AlertActive
	}
	if a.AffectedProducts == nil {
		a.AffectedProducts = []string{}
	}
	row := b.db.QueryRowContext(ctx, b.q(`
		INSERT INTO alerts (alert_type, severity, title, message, zone_id, affected_products, confidence_score, status, action_required_by, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		a.Type, string(a.Severity), a.Title, a.Message, nullInt(a.ZoneID), encodeJSON(a.AffectedProducts),
		nullFloat(a.ConfidenceScore), string(a.Status), b.nt(a.ActionRequiredBy), b.t(a.CreatedAt), b.nt(a.ResolvedAt))
	if err := row.Scan(&a.ID); err != nil {
		return model.Alert{}, apperr.Datastore("insert alert", err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func (b *baseStore) GetAlert(ctx context.Context, id int64) (model.Alert, error) {
	row := b.db.QueryRowContext(ctx, b.q(alertSelect+` WHERE a.id = ?`), id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Alert{}, apperr.NotFound("alert", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return model.Alert{}, apperr.Datastore("get alert", err)
	}
	return a, nil
}

// UpdateAlertStatus sets the status and resolution time. Reopening an alert
// clears resolved_at.
func (b *baseStore) UpdateAlertStatus(ctx context.Context, id int64, status model.AlertStatus, resolvedAt *time.Time) (model.Alert, error) {
	if status != model.AlertResolved {
		resolvedAt = nil
	}
	res, err := b.db.ExecContext(ctx, b.q(`UPDATE alerts SET status = ?, resolved_at = ? WHERE id = ?`),
		string(status), b.nt(resolvedAt), id)
	if err != nil {
		return model.Alert{}, apperr.Datastore("update alert", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.Alert{}, apperr.NotFound("alert", strconv.FormatInt(id, 10))
	}
	return b.GetAlert(ctx, id)
}

func (b *baseStore) DeleteAlert(ctx context.Context, id int64) error {
	res, err := b.db.ExecContext(ctx, b.q(`DELETE FROM alerts WHERE id = ?`), id)
	if err != nil {
		return apperr.Datastore("delete alert", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("alert", strconv.FormatInt(id, 10))
	}
	return nil
}

// ListAlerts filters alerts and orders them by severity rank, then newest
// first. Zero-valued filter fields are ignored.
func (b *baseStore) ListAlerts(ctx context.Context, f model.AlertFilter) ([]model.Alert, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "a.status = ?")
		args = append(args, string(f.Status))
	}
	if f.Severity != "" {
		where = append(where, "a.severity = ?")
		args = append(args, string(f.Severity))
	}
	if f.Type != "" {
		where = append(where, "a.alert_type = ?")
		args = append(args, f.Type)
	}
	if f.ZoneID > 0 {
		where = append(where, "a.zone_id = ?")
		args = append(args, f.ZoneID)
	}
	query := alertSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.NewestFirst {
		query += " ORDER BY a.created_at DESC, a.id DESC"
	} else {
		query += " ORDER BY " + severityRank + ", a.created_at DESC, a.id DESC"
	}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := b.db.QueryContext(ctx, b.q(query), args...)
	if err != nil {
		return nil, apperr.Datastore("list alerts", err)
	}
	defer rows.Close()
	out := []model.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, apperr.Datastore("list alerts", err)
		}
		out = append(out, a)
	}
	return out, apperr.Datastore("list alerts", rows.Err())
}

// AlertStats counts alerts created at or after since, grouped by status and
// severity.
func (b *baseStore) AlertStats(ctx context.Context, since time.Time) ([]model.AlertStat, error) {
	rows, err := b.db.QueryContext(ctx, b.q(`
		SELECT status, severity, COUNT(*)
		FROM alerts
		WHERE created_at >= ?
		GROUP BY status, severity
		ORDER BY status, severity`), b.t(since))
	if err != nil {
		return nil, apperr.Datastore("alert stats", err)
	}
	defer rows.Close()
	out := []model.AlertStat{}
	for rows.Next() {
		var st model.AlertStat
		if err := rows.Scan(&st.Status, &st.Severity, &st.Count); err != nil {
			return nil, apperr.Datastore("alert stats", err)
		}
		out = append(out, st)
	}
	return out, apperr.Datastore("alert stats", rows.Err())
}

func (b *baseStore) ActiveAlertCounts(ctx context.Context) (map[model.Severity]int, error) {
	rows, err := b.db.QueryContext(ctx, b.q(`SELECT severity, COUNT(*) FROM alerts WHERE status = ? GROUP BY severity`), string(model.AlertActive))
	if err != nil {
		return nil, apperr.Datastore("active alert counts", err)
	}
	defer rows.Close()
	out := map[model.Severity]int{}
	for rows.Next() {
		var (
			sev   model.Severity
			count int
		)
		if err := rows.Scan(&sev, &count); err != nil {
			return nil, apperr.Datastore("active alert counts", err)
		}
		out[sev] = count
	}
	return out, apperr.Datastore("active alert counts", rows.Err())
}

// HasActiveAlert reports whether an active alert of the given type exists
// for the zone, created at or after since.
func (b *baseStore) HasActiveAlert(ctx context.Context, alertType string, zoneID int64, since time.Time) (bool, error) {
	var n int
	err := b.db.QueryRowContext(ctx, b.q(`
		SELECT COUNT(*) FROM alerts
		WHERE alert_type = ? AND zone_id = ? AND status = ? AND created_at >= ?`),
		alertType, zoneID, string(model.AlertActive), b.t(since)).Scan(&n)
	if err != nil {
		return false, apperr.Datastore("find active alert", err)
	}
	return n > 0, nil
}
