package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zonewatch/internal/aggregate"
	"zonewatch/internal/apperr"
	"zonewatch/internal/config"
	"zonewatch/internal/engine"
	"zonewatch/internal/model"
	"zonewatch/internal/stream"
)

type Ingestor interface {
	Ingest(ctx context.Context, input model.ReadingInput) (engine.Result, error)
}

type ZoneService interface {
	Resolve(ctx context.Context, ref model.ZoneRef) (model.Zone, error)
	Create(ctx context.Context, zone model.Zone) (model.Zone, error)
}

type Store interface {
	Ping(ctx context.Context) error
	InsertAlert(ctx context.Context, alert model.Alert) (model.Alert, error)
	UpdateAlertStatus(ctx context.Context, id int64, status model.AlertStatus, resolvedAt *time.Time) (model.Alert, error)
	DeleteAlert(ctx context.Context, id int64) error
	ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error)
	InsertActivity(ctx context.Context, activity model.Activity) (model.Activity, error)
	ListActivities(ctx context.Context, filter model.ActivityFilter) ([]model.Activity, error)
}

type Deps struct {
	Config   *config.Manager
	Engine   Ingestor
	Zones    ZoneService
	Store    Store
	Reader   *aggregate.Reader
	Notifier *stream.Notifier
	Logger   *slog.Logger
	Version  string
}

type Server struct {
	cfg      *config.Manager
	engine   Ingestor
	zones    ZoneService
	store    Store
	reader   *aggregate.Reader
	notifier *stream.Notifier
	logger   *slog.Logger
	version  string
	now      func() time.Time
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := d.Config
	if cfg == nil {
		cfg = config.NewStaticManager(nil)
	}
	return &Server{
		cfg:      cfg,
		engine:   d.Engine,
		zones:    d.Zones,
		store:    d.Store,
		reader:   d.Reader,
		notifier: d.Notifier,
		logger:   logger,
		version:  d.Version,
		now:      time.Now,
	}
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(routeLabel)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/environmental", s.handleListEnvironmental).Methods(http.MethodGet)
	r.HandleFunc("/environmental", s.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/zones", s.handleListZones).Methods(http.MethodGet)
	r.HandleFunc("/zones", s.handleCreateZone).Methods(http.MethodPost)

	r.HandleFunc("/alerts", s.handleListAlerts).Methods(http.MethodGet)
	r.HandleFunc("/alerts", s.handleCreateAlert).Methods(http.MethodPost)
	r.HandleFunc("/alerts/{id:[0-9]+}", s.handleUpdateAlert).Methods(http.MethodPut)
	r.HandleFunc("/alerts/{id:[0-9]+}", s.handleDeleteAlert).Methods(http.MethodDelete)

	r.HandleFunc("/activities", s.handleListActivities).Methods(http.MethodGet)
	r.HandleFunc("/activities", s.handleCreateActivity).Methods(http.MethodPost)

	r.HandleFunc("/dashboard/stats", s.handleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/realtime/stream", s.handleSSE).Methods(http.MethodGet)
	r.HandleFunc("/realtime/ws", s.handleWS).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	apiCfg := s.cfg.Get().API
	cors := handlers.CORS(
		handlers.AllowedOrigins(apiCfg.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Request-ID"}),
	)
	return Chain(r,
		handlers.ProxyHeaders,
		RequestLogging(s.logger),
		Recovery(s.logger),
		cors,
	)
}

// Start serves the API on cfg.API.Addr until ctx is cancelled.
func Start(ctx context.Context, s *Server) *http.Server {
	apiCfg := s.cfg.Get().API
	s.logger.Info("api enabled", "addr", apiCfg.Addr)
	httpServer := &http.Server{
		Addr:              apiCfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), apiCfg.ShutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", "err", err)
		}
	}()
	return httpServer
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.logger.Error("health check failed", "err", err)
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"time":    s.now().UTC().Format(time.RFC3339Nano),
		"version": s.version,
	})
}

// decode reads a JSON body capped at api.max_body_bytes.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Get().API.MaxBodyBytes))
	if err != nil {
		return apperr.Validation("body", "unreadable or too large")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.Validation("body", "invalid JSON: %v", err)
	}
	return nil
}

// fail logs server-side detail and writes the client-facing envelope.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	code := apperr.Status(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error(fallback, "err", err, "path", r.URL.Path, "request_id", RequestID(r.Context()))
	}
	writeError(w, code, apperr.PublicMessage(err, fallback))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
