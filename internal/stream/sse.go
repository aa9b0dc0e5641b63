package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"zonewatch/internal/aggregate"
)

// SSESink frames snapshots as text/event-stream "data:" events.
type SSESink struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
}

// NewSSESink writes the event-stream headers and returns a sink for w.
func NewSSESink(w http.ResponseWriter, writeTimeout time.Duration) (*SSESink, error) {
	if _, ok := w.(http.Flusher); !ok {
		return nil, errors.New("streaming unsupported")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &SSESink{w: w, rc: http.NewResponseController(w), writeTimeout: writeTimeout}, nil
}

func (s *SSESink) Send(_ context.Context, snap aggregate.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if s.writeTimeout > 0 {
		// not every writer supports deadlines; httptest.ResponseRecorder does not
		_ = s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	return s.rc.Flush()
}

// SendError emits a terminal "event: error" frame.
func (s *SSESink) SendError(msg string) error {
	data, _ := json.Marshal(map[string]string{"error": msg})
	if _, err := s.w.Write([]byte("event: error\ndata: " + string(data) + "\n\n")); err != nil {
		return err
	}
	return s.rc.Flush()
}
