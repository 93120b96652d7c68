package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streamcast/internal/core/ports"
	"streamcast/internal/core/registry"
	"streamcast/internal/core/services"
	httphandlers "streamcast/internal/handlers/http"
	"streamcast/internal/infrastructure/distributed"
	"streamcast/internal/infrastructure/middleware"
	"streamcast/internal/infrastructure/monitoring"
	"streamcast/internal/infrastructure/repositories"
	signalinfra "streamcast/internal/infrastructure/signal"
	"streamcast/pkg/circuitbreaker"
	"streamcast/pkg/config"
	"streamcast/pkg/logger"
	"streamcast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// STREAMCAST_* overrides may live in a local .env
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// logger config lives in the file we failed to read
		zapLogger := logger.New("info")
		zapLogger.Sugar().Fatalw("failed to load configuration", "path", *configPath, "error", err)
	}

	zapLogger := logger.NewWithOptions(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tracer, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	repoFactory, err := repositories.NewRepositoryFactory(startupCtx, cfg, log)
	startupCancel()
	if err != nil {
		log.Fatalw("failed to open store", "backend", cfg.Store.Backend, "error", err)
	}
	store := repoFactory.Store()

	collector := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	catalog := services.NewCatalogService(store, store, cfg.Store.CatalogCacheTTL, log)
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.Issuer)

	instanceID := cfg.Signal.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	publishers := services.MultiPublisher{catalog}
	var bus *distributed.EventBus
	busCtx, busCancel := context.WithCancel(context.Background())
	defer busCancel()
	if client := repoFactory.RedisClient(); client != nil {
		bus = distributed.NewEventBus(client, instanceID, cfg.Redis.Channel, log)
		publishers = append(publishers, bus)

		go func() {
			err := bus.Subscribe(busCtx, func(env distributed.Envelope) error {
				collector.RecordRemoteEvent(env.Event.Type)
				return catalog.Publish(busCtx, env.Event)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("event bus subscription ended", "error", err)
			}
		}()
	}

	reg := registry.New()
	hub := signalinfra.NewHub(cfg.Signal.SendBuffer, log)
	lifecycle := services.NewLifecycleService(
		reg,
		services.NewRelayService(reg, hub, collector, log),
		services.NewRosterNotifier(hub, collector, log),
		hub,
		store,
		authService,
		publishers,
		collector,
		log,
		services.LifecycleOptions{
			StoreTimeout:        cfg.Store.CallTimeout,
			TrustClientIdentity: cfg.Signal.TrustClientIdentity,
		},
	)
	wsServer := signalinfra.NewWebSocketServer(lifecycle, hub, wsOptions(cfg), log)

	health := monitoring.NewHealthChecker()
	health.AddStoreCheck(store, cfg.Monitoring.HealthTimeout)
	health.AddCheck("store_circuit", func(context.Context) error {
		if stats := store.BreakerStats(); stats.State == circuitbreaker.StateOpen {
			return fmt.Errorf("circuit open after %d failures", stats.FailureCount)
		}
		return nil
	}, cfg.Monitoring.HealthTimeout)
	if client := repoFactory.RedisClient(); client != nil {
		health.AddRedisCheck(client, cfg.Monitoring.HealthTimeout)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.RequestLogger(logger.NewContextLogger(zapLogger)),
		middleware.TracingMiddleware(),
		middleware.NewHTTPRateLimitMiddleware(cfg),
		middleware.ErrorHandlerMiddleware(log),
	)

	router.GET("/ws", gin.WrapF(wsServer.HandleWebSocket))
	router.GET("/health", gin.WrapF(wsServer.HealthCheck))
	router.GET("/ready", httphandlers.ReadyHandler(health))
	if cfg.Monitoring.PrometheusEnabled {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
		log.Infow("Prometheus metrics enabled", "path", cfg.Monitoring.MetricsPath)
	}

	api := router.Group("/api/v1")
	// anonymous reads stay open; a valid token only tags the request log
	api.Use(middleware.OptionalAuthMiddleware(authService))
	for _, registrar := range []ports.RouteRegistrar{
		httphandlers.NewStreamHandler(catalog, httphandlers.ICEServersFromConfig(cfg.WebRTC.ICEServers)),
		httphandlers.NewChatHandler(catalog, authService),
	} {
		registrar.RegisterRoutes(api)
	}

	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// no WriteTimeout: upgraded websockets manage their own deadlines
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting streamcast signaling server",
			"address", cfg.Server.Address,
			"instance_id", instanceID,
			"store", cfg.Store.Backend,
			"event_bus", bus != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// sockets first, so their stream rows are ended while the store is still open
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error closing websocket sessions", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	busCancel()
	if bus != nil {
		if err := bus.Close(); err != nil {
			log.Warnw("error closing event bus", "error", err)
		}
	}
	catalog.Stop()
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repositories", "error", err)
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("error flushing traces", "error", err)
	}

	log.Info("streamcast signaling server stopped")
}

func wsOptions(cfg *config.Config) signalinfra.Options {
	opts := signalinfra.DefaultOptions()
	opts.PingInterval = cfg.Signal.PingInterval
	opts.PongTimeout = cfg.Signal.PongTimeout
	opts.WriteTimeout = cfg.Signal.WriteTimeout
	opts.SendBuffer = cfg.Signal.SendBuffer
	opts.AllowedOrigins = cfg.Auth.AllowedOrigins
	if cfg.RateLimiting.WebSocket.MaxMessageSizeBytes > 0 {
		opts.ReadLimit = cfg.RateLimiting.WebSocket.MaxMessageSizeBytes
	}
	if cfg.RateLimiting.Enabled {
		opts.MessageRate = cfg.RateLimiting.WebSocket.MessagesPerSecond
		opts.MessageBurst = cfg.RateLimiting.WebSocket.Burst
	} else {
		opts.MessageRate = float64(rate.Inf)
	}
	return opts
}
