package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"zonewatch/internal/apperr"
	"zonewatch/internal/model"
)

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ActivityFilter{Type: q.Get("type"), Limit: 50}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.fail(w, r, apperr.Validation("limit", "must be a positive integer"), "Failed to fetch activities")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("zone_id"); v != "" {
		zone, err := s.zones.Resolve(r.Context(), model.ZoneRef(v))
		if err != nil {
			s.fail(w, r, err, "Failed to fetch activities")
			return
		}
		filter.ZoneID = zone.ID
	}
	list, err := s.store.ListActivities(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err, "Failed to fetch activities")
		return
	}
	stats, err := s.reader.ActivityStats(r.Context())
	if err != nil {
		s.fail(w, r, err, "Failed to fetch activities")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    list,
		"stats":   stats,
		"count":   len(list),
	})
}

type activityRequest struct {
	ActivityType string        `json:"activity_type"`
	Title        string        `json:"title"`
	ZoneID       model.ZoneRef `json:"zone_id"`
	PerformedBy  string        `json:"performed_by"`
	Description  string        `json:"description"`
	Status       string        `json:"status"`
	PerformedAt  *time.Time    `json:"performed_at"`
}

func (s *Server) handleCreateActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "Failed to create activity")
		return
	}
	var missing []string
	if strings.TrimSpace(req.ActivityType) == "" {
		missing = append(missing, "activity_type")
	}
	if strings.TrimSpace(req.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(req.PerformedBy) == "" {
		missing = append(missing, "performed_by")
	}
	if len(missing) > 0 {
		s.fail(w, r, apperr.Validation("", "Missing required fields: %s", strings.Join(missing, ", ")), "Failed to create activity")
		return
	}
	act := model.Activity{
		ActivityType: req.ActivityType,
		Title:        req.Title,
		PerformedBy:  req.PerformedBy,
		Description:  req.Description,
		Status:       req.Status,
	}
	if req.PerformedAt != nil {
		act.PerformedAt = *req.PerformedAt
	}
	if req.ZoneID != "" {
		zone, err := s.zones.Resolve(r.Context(), req.ZoneID)
		if err != nil {
			s.fail(w, r, err, "Failed to create activity")
			return
		}
		act.ZoneID = &zone.ID
		act.ZoneName = zone.Name
	}
	stored, err := s.store.InsertActivity(r.Context(), act)
	if err != nil {
		s.fail(w, r, err, "Failed to create activity")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data":    stored,
		"message": "Activity logged successfully",
	})
}
