package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"zonewatch/internal/aggregate"
	"zonewatch/internal/alerts"
	"zonewatch/internal/api"
	"zonewatch/internal/config"
	"zonewatch/internal/engine"
	"zonewatch/internal/ingest"
	"zonewatch/internal/logging"
	"zonewatch/internal/metrics"
	"zonewatch/internal/model"
	"zonewatch/internal/publish"
	"zonewatch/internal/storage"
	"zonewatch/internal/stream"
	"zonewatch/internal/zones"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "zonewatch.yaml", "path to YAML or JSON config")
	initConfig := flag.Bool("init-config", false, "write a default config to -config and exit")
	flag.Parse()

	path := config.ResolvePath(*configPath)
	if *initConfig {
		if err := config.Save(path, config.DefaultConfig()); err != nil {
			fmt.Fprintln(os.Stderr, "init-config:", err)
			os.Exit(1)
		}
		fmt.Println("wrote", path)
		return
	}

	manager, err := loadConfig(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	cfg := manager.Get()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat).With("version", version)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, manager, logger); err != nil {
		logger.Error("zonewatch exited", "err", err)
		os.Exit(1)
	}
}

// loadConfig falls back to defaults when the file does not exist so the
// service can start with only ZONEWATCH_DSN set.
func loadConfig(path string) (*config.Manager, error) {
	manager, err := config.NewManager(path)
	if err == nil {
		return manager, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		cfg, perr := config.Parse([]byte("{}"))
		if perr != nil {
			return nil, perr
		}
		return config.NewStaticManager(cfg), nil
	}
	return nil, err
}

func run(ctx context.Context, manager *config.Manager, logger *slog.Logger) error {
	cfg := manager.Get()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return err
	}
	logger.Info("storage ready", "driver", cfg.Storage.Driver)

	registry := zones.NewRegistry(store, cfg.ZoneCache.TTL, metrics.CacheObserver{}, logging.Component(logger, "zones"))
	if err := registry.Seed(ctx, cfg.Zones); err != nil {
		return err
	}

	var notifiers []alerts.Notifier
	if cfg.Publish.Kafka.Enabled {
		publisher := publish.NewKafkaPublisher(cfg.Publish.Kafka)
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
		logger.Info("kafka alert publishing enabled", "topic", cfg.Publish.Kafka.Topic)
	}
	emitter := alerts.NewEmitter(store, cfg.Alerting, logging.Component(logger, "alerts"), notifiers...)
	eng := engine.NewEngine(cfg, logging.Component(logger, "engine"), store, registry, emitter)

	readings := make(chan model.ReadingInput, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, readings)
	ingestLogger := logging.Component(logger, "ingest")
	ingest.StartKafka(ctx, manager, readings, ingestLogger)
	ingest.StartMQTT(ctx, manager, readings, ingestLogger)
	ingest.StartTCPStream(ctx, manager, readings, ingestLogger)

	reader := aggregate.NewReader(store, eng.Policies)
	notifier := stream.NewNotifier(reader, func() config.StreamConfig { return manager.Get().Stream }, logging.Component(logger, "stream"))

	server := api.NewServer(api.Deps{
		Config:   manager,
		Engine:   eng,
		Zones:    registry,
		Store:    store,
		Reader:   reader,
		Notifier: notifier,
		Logger:   logging.Component(logger, "api"),
		Version:  version,
	})
	api.Start(ctx, server)

	if manager.Path() != "" {
		go manager.Watch(0, func(next *config.Config) {
			eng.UpdateConfig(next)
			if err := registry.Reload(ctx, next.Zones); err != nil {
				logger.Warn("zone reseed failed", "err", err)
			}
			logger.Info("config reloaded", "path", manager.Path())
		}, func(err error) {
			logger.Warn("config reload failed", "err", err)
		}, ctx.Done())
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
