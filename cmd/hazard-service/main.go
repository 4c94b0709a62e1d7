package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"hazard-service/internal/alert"
	"hazard-service/internal/breaker"
	"hazard-service/internal/catalog"
	"hazard-service/internal/config"
	"hazard-service/internal/db"
	"hazard-service/internal/dedup"
	"hazard-service/internal/fingerprint"
	"hazard-service/internal/geofence"
	httphandler "hazard-service/internal/http"
	"hazard-service/internal/logger"
	"hazard-service/internal/metrics"
	"hazard-service/internal/repository"
	"hazard-service/internal/service"
	"hazard-service/internal/transport/kafka"
	"hazard-service/internal/transport/mqtt"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (yaml, json or toml)")
	flag.Parse()

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	if err := run(*configPath); err != nil {
		errLog := logger.New("info", "console", os.Stderr)
		errLog.Error().Err(err).Msg("hazard service stopped")
		os.Exit(1)
	}
}

// run owns every resource it opens, so deferred cleanup happens on all exit paths.
func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	m := metrics.New()

	cache, err := openCache(cfg, m, log)
	if err != nil {
		return fmt.Errorf("initialise dedup cache: %w", err)
	}
	defer cache.Close()

	store, gdb, err := openStore(cfg, log)
	if err != nil {
		return fmt.Errorf("initialise store: %w", err)
	}
	if gdb != nil {
		defer func() {
			if err := db.Close(gdb); err != nil {
				log.Error().Err(err).Msg("failed to close database")
			}
		}()
	}

	zones := geofence.NewRegistry()
	if cfg.Geofence.ZonesPath != "" {
		n, err := geofence.LoadZones(zones, cfg.Geofence.ZonesPath)
		if err != nil {
			return fmt.Errorf("load geofence zones %s: %w", cfg.Geofence.ZonesPath, err)
		}
		log.Info().Int("zones", n).Msg("geofence zones loaded")
	}

	var (
		sinks       = alert.MultiSink{alert.NewLogSink(log)}
		publishers  []service.Publisher
		broadcaster service.ZoneBroadcaster
		mqttClient  paho.Client
		mqttStats   *mqtt.Stats
		ingestor    atomic.Pointer[mqtt.Ingestor]
	)
	if cfg.MQTT.Enabled() {
		mqttStats = mqtt.NewStats(cfg.MQTT.Broker)
		mqttClient, err = mqtt.Connect(mqttConfig(cfg.MQTT), mqttStats, func(c paho.Client) {
			if ing := ingestor.Load(); ing != nil {
				ing.Subscribe(c)
			}
		}, log)
		if mqttClient == nil {
			return fmt.Errorf("connect to mqtt broker: %w", err)
		}
		if err != nil {
			log.Warn().Err(err).Msg("mqtt broker not reachable yet")
		}
		defer mqttClient.Disconnect(250)
		sinks = append(sinks, mqtt.NewAlertSink(mqttClient, mqttStats, cfg.MQTT.AlertPrefix, cfg.MQTT.QoS))
		if cfg.MQTT.PublishTopic != "" {
			publishers = append(publishers, mqtt.NewEventPublisher(mqttClient, mqttStats, cfg.MQTT.PublishTopic, cfg.MQTT.QoS))
		}
		notifier := mqtt.NewZoneNotifier(mqttClient, mqttStats, cfg.Geofence.TopicPrefix, cfg.Geofence.QoS)
		broadcaster = geofence.NewBroadcaster(zones, notifier, log)
	}
	if cfg.Kafka.Enabled() {
		kp := kafka.NewEventPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		defer kp.Close()
		publishers = append(publishers, kp)
	}

	hub := service.NewSubscriberHub(sinks, service.HubConfig{
		Alert:                 cfg.Alert,
		Proximity:             cfg.Proximity,
		MinDisplacementMeters: cfg.Subscribers.MinDisplacementMeters,
		FreshWindow:           cfg.Subscribers.FreshWindow,
		RepeatWindow:          cfg.Subscribers.RepeatWindow,
		Region:                cfg.Geo.ServiceRegion(),
	}, m, log)
	defer hub.Close()

	if cfg.Catalog.Path != "" {
		entries, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			return fmt.Errorf("load hazard catalog %s: %w", cfg.Catalog.Path, err)
		}
		hub.SetCatalog(entries)
		log.Info().Int("entries", len(entries)).Msg("hazard catalog loaded")
	}

	hazardService := service.NewHazardService(service.Deps{
		Cache:      cache,
		Store:      store,
		Generator:  fingerprint.NewGenerator(cfg.Dedup.WindowMinutes, cfg.Dedup.Precision),
		Hub:        hub,
		Publishers: publishers,
		Zones:      broadcaster,
		Metrics:    m,
	}, service.Options{
		CacheTTL: cfg.Dedup.TTL,
		Region:   cfg.Geo.ServiceRegion(),
	}, log)

	if mqttClient != nil && cfg.MQTT.IngestTopic != "" {
		ing := mqtt.NewIngestor(hazardService, mqttStats, cfg.MQTT.IngestTopic, cfg.MQTT.QoS, log)
		ingestor.Store(ing)
		if mqttClient.IsConnected() {
			ing.Subscribe(mqttClient)
		}
	}

	handler := httphandler.NewHandler(hazardService, hub, zones, mqttStats, log)
	router := httphandler.NewRouter(handler, m, cfg.HTTP.AllowedOrigins, cfg.Auth.JWTSecret, log)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.HTTP.Addr).
			Bool("redis", cfg.Redis.Enabled()).
			Bool("postgis", gdb != nil).
			Bool("mqtt", cfg.MQTT.Enabled()).
			Bool("kafka", cfg.Kafka.Enabled()).
			Int("geofence_zones", len(zones.Zones(false))).
			Dur("cache_ttl", hazardService.CacheTTL()).
			Msg("hazard service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func openCache(cfg *config.Config, m *metrics.Metrics, log zerolog.Logger) (dedup.Cache, error) {
	if !cfg.Redis.Enabled() {
		log.Info().Int("max_keys", cfg.Dedup.MemoryMaxKeys).Msg("using in-process dedup cache")
		return dedup.NewMemoryCache(cfg.Dedup.MemoryMaxKeys), nil
	}
	rc, err := dedup.NewRedisCache(dedup.RedisConfig{
		URL:      cfg.Redis.URL,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Timeout:  cfg.Redis.Timeout,
		Breaker: breaker.Config{
			MaxFailures:  cfg.Redis.BreakerFailures,
			ResetTimeout: cfg.Redis.BreakerResetWait,
		},
	}, log)
	if err != nil {
		return nil, err
	}
	if err := rc.Ping(context.Background()); err != nil {
		// Dedup fails open, so an unreachable Redis is not fatal at boot.
		log.Warn().Err(err).Msg("redis not reachable, dedup will fail open until it recovers")
	}
	m.RegisterStateGauge("redis_breaker_state", "Redis circuit breaker state (0 closed, 1 open, 2 half-open).", func() float64 {
		return float64(rc.BreakerState())
	})
	return rc, nil
}

func openStore(cfg *config.Config, log zerolog.Logger) (repository.Store, *gorm.DB, error) {
	if cfg.Database.DSN == "" {
		log.Warn().Msg("no database configured, events are kept in memory")
		return repository.NewMemoryStore(), nil, nil
	}
	gdb, err := db.Open(db.Options{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		AutoMigrate:     cfg.Database.AutoMigrate,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewPostGISStore(gdb, cfg.Database.Timeout), gdb, nil
}

func mqttConfig(c config.MQTTConfig) mqtt.Config {
	return mqtt.Config{
		Broker:   c.Broker,
		ClientID: c.ClientID,
		Username: c.Username,
		Password: c.Password,
	}
}
