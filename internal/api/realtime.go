package api

import (
	"net/http"
	"net/url"

	"nhooyr.io/websocket"

	"zonewatch/internal/metrics"
	"zonewatch/internal/stream"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.reader.Dashboard(r.Context())
	if err != nil {
		s.fail(w, r, err, "Failed to fetch dashboard statistics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": d})
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Get().Stream
	sink, err := stream.NewSSESink(w, cfg.WriteTimeout)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	gauge := metrics.StreamConnections.WithLabelValues("sse")
	gauge.Inc()
	defer gauge.Dec()

	s.logger.Debug("sse client connected", "request_id", RequestID(r.Context()), "remote_addr", r.RemoteAddr)
	if err := s.notifier.Serve(r.Context(), sink); err != nil {
		_ = sink.SendError("Failed to compute realtime snapshot")
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	origins := s.cfg.Get().API.CORSOrigins
	opts := &websocket.AcceptOptions{}
	if len(origins) == 1 && origins[0] == "*" {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = originHosts(origins)
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	gauge := metrics.StreamConnections.WithLabelValues("ws")
	gauge.Inc()
	defer gauge.Dec()

	// clients only receive; CloseRead cancels ctx once the peer goes away
	ctx := conn.CloseRead(r.Context())
	if err := s.notifier.Serve(ctx, stream.NewWSSink(conn, s.cfg.Get().Stream.WriteTimeout)); err != nil {
		conn.Close(websocket.StatusInternalError, "snapshot failed")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// originHosts turns configured CORS origins into the host patterns the
// websocket handshake matches against.
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}
