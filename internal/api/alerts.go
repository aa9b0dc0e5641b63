package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"zonewatch/internal/apperr"
	"zonewatch/internal/model"
)

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.AlertFilter{
		Status:   model.AlertStatus(q.Get("status")),
		Severity: model.Severity(q.Get("severity")),
		Type:     q.Get("type"),
	}
	if filter.Status == "" {
		filter.Status = model.AlertActive
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.fail(w, r, apperr.Validation("limit", "must be a non-negative integer"), "Failed to fetch alerts")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("zone_id"); v != "" {
		zone, err := s.zones.Resolve(r.Context(), model.ZoneRef(v))
		if err != nil {
			s.fail(w, r, err, "Failed to fetch alerts")
			return
		}
		filter.ZoneID = zone.ID
	}
	days := 30
	if v := q.Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.fail(w, r, apperr.Validation("days", "must be a positive integer"), "Failed to fetch alerts")
			return
		}
		days = n
	}
	list, err := s.store.ListAlerts(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err, "Failed to fetch alerts")
		return
	}
	stats, err := s.reader.AlertStats(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		s.fail(w, r, err, "Failed to fetch alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    list,
		"stats":   stats,
		"count":   len(list),
	})
}

type alertRequest struct {
	AlertType        string         `json:"alert_type"`
	Severity         model.Severity `json:"severity"`
	Title            string         `json:"title"`
	Message          string         `json:"message"`
	ZoneID           model.ZoneRef  `json:"zone_id"`
	AffectedProducts []string       `json:"affected_products"`
	ConfidenceScore  *float64       `json:"confidence_score"`
	ActionRequiredBy *time.Time     `json:"action_required_by"`
}

func (req alertRequest) validate() error {
	var missing []string
	if strings.TrimSpace(req.AlertType) == "" {
		missing = append(missing, "alert_type")
	}
	if req.Severity == "" {
		missing = append(missing, "severity")
	}
	if strings.TrimSpace(req.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(req.Message) == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return apperr.Validation("", "Missing required fields: %s", strings.Join(missing, ", "))
	}
	if !req.Severity.Valid() {
		return apperr.Validation("severity", "must be one of high, medium, low")
	}
	if req.ConfidenceScore != nil && (*req.ConfidenceScore < 0 || *req.ConfidenceScore > 100) {
		return apperr.Validation("confidence_score", "must be between 0 and 100")
	}
	return nil
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "Failed to create alert")
		return
	}
	if err := req.validate(); err != nil {
		s.fail(w, r, err, "Failed to create alert")
		return
	}
	alert := model.Alert{
		Type:             req.AlertType,
		Severity:         req.Severity,
		Title:            req.Title,
		Message:          req.Message,
		AffectedProducts: req.AffectedProducts,
		ConfidenceScore:  req.ConfidenceScore,
		Status:           model.AlertActive,
		ActionRequiredBy: req.ActionRequiredBy,
	}
	if req.ZoneID != "" {
		zone, err := s.zones.Resolve(r.Context(), req.ZoneID)
		if err != nil {
			s.fail(w, r, err, "Failed to create alert")
			return
		}
		alert.ZoneID = &zone.ID
		alert.ZoneCode, alert.ZoneName = zone.Code, zone.Name
	}
	stored, err := s.store.InsertAlert(r.Context(), alert)
	if err != nil {
		s.fail(w, r, err, "Failed to create alert")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data":    stored,
		"message": "Alert created successfully",
	})
}

func (s *Server) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	id, err := alertID(r)
	if err != nil {
		s.fail(w, r, err, "Failed to update alert")
		return
	}
	var req struct {
		Status model.AlertStatus `json:"status"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "Failed to update alert")
		return
	}
	if req.Status == "" {
		s.fail(w, r, apperr.Validation("status", "is required"), "Failed to update alert")
		return
	}
	if !req.Status.Valid() {
		s.fail(w, r, apperr.Validation("status", "must be active or resolved"), "Failed to update alert")
		return
	}
	var resolvedAt *time.Time
	if req.Status == model.AlertResolved {
		now := s.now().UTC()
		resolvedAt = &now
	}
	updated, err := s.store.UpdateAlertStatus(r.Context(), id, req.Status, resolvedAt)
	if err != nil {
		s.fail(w, r, err, "Failed to update alert")
		return
	}
	s.logger.Info("alert updated", "alert_id", id, "status", req.Status, "request_id", RequestID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    updated,
		"message": "Alert updated successfully",
	})
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id, err := alertID(r)
	if err != nil {
		s.fail(w, r, err, "Failed to delete alert")
		return
	}
	if err := s.store.DeleteAlert(r.Context(), id); err != nil {
		s.fail(w, r, err, "Failed to delete alert")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Alert deleted successfully"})
}

func alertID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("id", "must be a positive integer")
	}
	return id, nil
}
