package stream

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"zonewatch/internal/aggregate"
	"zonewatch/internal/apperr"
	"zonewatch/internal/config"
	"zonewatch/internal/logging"
)

type countingSource struct {
	calls atomic.Int64
	err   error
}

func (s *countingSource) Snapshot(context.Context, int, int) (aggregate.Snapshot, error) {
	s.calls.Add(1)
	if s.err != nil {
		return aggregate.Snapshot{}, s.err
	}
	return aggregate.Snapshot{Timestamp: time.Now().UTC()}, nil
}

type chanSink struct {
	events chan aggregate.Snapshot
	err    error
}

func (s *chanSink) Send(_ context.Context, snap aggregate.Snapshot) error {
	if s.err != nil {
		return s.err
	}
	s.events <- snap
	return nil
}

func streamConfig(interval time.Duration) func() config.StreamConfig {
	return func() config.StreamConfig {
		return config.StreamConfig{Interval: interval, AlertLimit: 5, ActivityLimit: 10}
	}
}

func TestFirstEventIsImmediate(t *testing.T) {
	src := &countingSource{}
	n := NewNotifier(src, streamConfig(time.Hour), logging.Discard())
	sink := &chanSink{events: make(chan aggregate.Snapshot, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Serve(ctx, sink) }()

	select {
	case <-sink.events:
	case <-time.After(time.Second):
		t.Fatalf("first event did not arrive before the interval elapsed")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("cancel should end cleanly: %v", err)
	}
}

func TestEventsFollowInterval(t *testing.T) {
	src := &countingSource{}
	n := NewNotifier(src, streamConfig(20*time.Millisecond), logging.Discard())
	sink := &chanSink{events: make(chan aggregate.Snapshot, 8)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = n.Serve(ctx, sink) }()

	start := time.Now()
	for i := 0; i < 3; i++ {
		select {
		case <-sink.events:
		case <-time.After(time.Second):
			t.Fatalf("event %d missing", i)
		}
	}
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Fatalf("three events arrived too fast: %s", elapsed)
	}
}

func TestNoWorkAfterDisconnect(t *testing.T) {
	src := &countingSource{}
	n := NewNotifier(src, streamConfig(10*time.Millisecond), logging.Discard())
	sink := &chanSink{events: make(chan aggregate.Snapshot, 64)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Serve(ctx, sink) }()

	<-sink.events
	cancel()
	<-done
	calls := src.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if got := src.calls.Load(); got != calls {
		t.Fatalf("snapshot computed after disconnect: %d -> %d", calls, got)
	}
}

func TestSnapshotFailureEndsStream(t *testing.T) {
	src := &countingSource{err: errors.New("db down")}
	n := NewNotifier(src, streamConfig(time.Hour), logging.Discard())
	err := n.Serve(context.Background(), &chanSink{events: make(chan aggregate.Snapshot, 1)})
	var se *apperr.StreamError
	if !errors.As(err, &se) {
		t.Fatalf("expected stream error, got %v", err)
	}
}

func TestSinkFailureEndsStream(t *testing.T) {
	n := NewNotifier(&countingSource{}, streamConfig(time.Hour), logging.Discard())
	err := n.Serve(context.Background(), &chanSink{err: errors.New("broken pipe")})
	var se *apperr.StreamError
	if !errors.As(err, &se) {
		t.Fatalf("expected stream error, got %v", err)
	}
}

func TestSSESinkFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	sink, err := NewSSESink(rec, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Send(context.Background(), aggregate.Snapshot{}); err != nil {
		t.Fatal(err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %s", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: {") || !strings.HasSuffix(body, "}\n\n") {
		t.Fatalf("framing: %q", body)
	}
	if !rec.Flushed {
		t.Fatalf("event not flushed")
	}
}
