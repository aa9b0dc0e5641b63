package api

import (
	"net/http"
	"strconv"
	"time"

	"zonewatch/internal/apperr"
	"zonewatch/internal/model"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var input model.ReadingInput
	if err := s.decode(w, r, &input); err != nil {
		s.fail(w, r, err, "Failed to record environmental data")
		return
	}
	input.Source = "api"
	res, err := s.engine.Ingest(r.Context(), input)
	if err != nil {
		s.fail(w, r, err, "Failed to record environmental data")
		return
	}
	payload := map[string]any{
		"success": true,
		"data":    res.Reading,
		"message": "Environmental data recorded successfully",
	}
	if res.Alert != nil {
		payload["alert"] = res.Alert
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *Server) handleListEnvironmental(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	zoneRef := q.Get("zone_id")
	if zoneRef == "" {
		envs, err := s.reader.LatestPerZone(r.Context())
		if err != nil {
			s.fail(w, r, err, "Failed to fetch environmental data")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": envs})
		return
	}
	hours := 24
	if v := q.Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.fail(w, r, apperr.Validation("hours", "must be a positive integer"), "Failed to fetch environmental data")
			return
		}
		hours = n
	}
	zone, err := s.zones.Resolve(r.Context(), model.ZoneRef(zoneRef))
	if err != nil {
		s.fail(w, r, err, "Failed to fetch environmental data")
		return
	}
	readings, err := s.reader.ZoneHistory(r.Context(), zone.ID, time.Duration(hours)*time.Hour)
	if err != nil {
		s.fail(w, r, err, "Failed to fetch environmental data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"zone":    zone,
		"data":    readings,
		"count":   len(readings),
	})
}

func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	envs, err := s.reader.LatestPerZone(r.Context())
	if err != nil {
		s.fail(w, r, err, "Failed to fetch zones")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": envs, "count": len(envs)})
}

func (s *Server) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	var z model.Zone
	if err := s.decode(w, r, &z); err != nil {
		s.fail(w, r, err, "Failed to create zone")
		return
	}
	z.ID = 0
	created, err := s.zones.Create(r.Context(), z)
	if err != nil {
		s.fail(w, r, err, "Failed to create zone")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data":    created,
		"message": "Zone created successfully",
	})
}
