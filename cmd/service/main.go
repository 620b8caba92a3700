package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mzansi-solutions/farm-alert-service/internal/advisor"
	"github.com/mzansi-solutions/farm-alert-service/internal/alerts"
	"github.com/mzansi-solutions/farm-alert-service/internal/cache"
	"github.com/mzansi-solutions/farm-alert-service/internal/circuitbreaker"
	"github.com/mzansi-solutions/farm-alert-service/internal/client"
	"github.com/mzansi-solutions/farm-alert-service/internal/config"
	"github.com/mzansi-solutions/farm-alert-service/internal/crops"
	"github.com/mzansi-solutions/farm-alert-service/internal/degraded"
	httphandler "github.com/mzansi-solutions/farm-alert-service/internal/http"
	"github.com/mzansi-solutions/farm-alert-service/internal/lifecycle"
	"github.com/mzansi-solutions/farm-alert-service/internal/models"
	"github.com/mzansi-solutions/farm-alert-service/internal/observability"
	"github.com/mzansi-solutions/farm-alert-service/internal/service"
	"github.com/mzansi-solutions/farm-alert-service/internal/session"
	"github.com/mzansi-solutions/farm-alert-service/internal/store"
	"github.com/mzansi-solutions/farm-alert-service/internal/traffic"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	weatherClient, err := client.NewWeatherbitClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "weather_api",
			OnStateChange: func(component string, from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(component, from.String(), to.String())
				observability.SetCircuitBreakerStateGauge(component, observability.CircuitBreakerStateValue(to.String()))
				logger.Warn("circuit breaker state change", zap.String("component", component), zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		weatherClient.SetCircuitBreaker(cb)
		observability.SetCircuitBreakerStateGauge("weather_api", 0)
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	var (
		currentCache  cache.Cache[models.Observation]
		forecastCache cache.Cache[models.Forecast]
		cachePing     func() error
		mcClient      interface{ Close() error }
	)
	switch cfg.CacheBackend {
	case "memcached":
		mc := cache.NewMemcachedClient(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		cur := cache.NewMemcachedCache[models.Observation](mc, "current", cfg.StaleCacheTTL)
		if err := cur.Ping(); err != nil {
			logger.Fatal("memcached ping", zap.String("addrs", cfg.MemcachedAddrs), zap.Error(err))
		}
		currentCache = cur
		forecastCache = cache.NewMemcachedCache[models.Forecast](mc, "forecast", cfg.StaleCacheTTL)
		cachePing = cur.Ping
		mcClient = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		currentCache = cache.NewInMemoryCache[models.Observation](cfg.StaleCacheTTL, nil)
		forecastCache = cache.NewInMemoryCache[models.Forecast](cfg.StaleCacheTTL, nil)
		logger.Info("cache backend: in_memory")
	}

	var (
		st         store.Store
		redisStore *store.RedisStore
	)
	switch cfg.StoreBackend {
	case "redis":
		redisStore, err = store.NewRedisStore(cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			logger.Fatal("redis store", zap.Error(err))
		}
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisStore.Ping(pingCtx)
		pingCancel()
		if err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		st = redisStore
		logger.Info("store backend: redis")
	default:
		st = store.NewMemoryStore(nil)
		logger.Info("store backend: memory")
	}

	weatherService := service.NewWeatherService(weatherClient, currentCache, forecastCache, service.WeatherConfig{
		CurrentTTL:      cfg.CurrentTTL,
		ForecastTTL:     cfg.ForecastTTL,
		StaleTTL:        cfg.StaleCacheTTL,
		CoalesceEnabled: cfg.CoalesceEnabled,
		CoalesceTimeout: cfg.CoalesceTimeout,
	})

	classifier := alerts.NewClassifier(
		alerts.WithLogger(logger),
		alerts.WithCurrentThresholds(cfg.CurrentThresholds),
		alerts.WithForecastThresholds(cfg.ForecastThresholds),
		alerts.WithWindUnits(cfg.CurrentWindUnit, cfg.ForecastWindUnit),
	)
	board := alerts.NewBoard(nil)
	alertService := service.NewAlertService(weatherService, classifier, board, nil)

	var gen advisor.Generator
	if cfg.AdvisorEnabled {
		gc, err := advisor.NewGeminiClient(advisor.GeminiConfig{
			APIKey:       cfg.GeminiAPIKey,
			BaseURL:      cfg.AdvisorURL,
			Model:        cfg.AdvisorModel,
			Timeout:      cfg.AdvisorTimeout,
			RetryMax:     cfg.AdvisorRetryMax,
			RetryWaitMin: cfg.AdvisorRetryWaitMin,
			RetryWaitMax: cfg.AdvisorRetryWaitMax,
		})
		if err != nil {
			logger.Fatal("advisor client", zap.Error(err))
		}
		gen = gc
		logger.Info("advisor enabled", zap.String("model", cfg.AdvisorModel))
	} else {
		logger.Info("advisor disabled; using offline fallbacks")
	}
	adv := advisor.New(gen, nil, logger)

	var sessions *session.Manager
	if cfg.SessionSigningKey != "" {
		verifier, err := session.NewVerifier(cfg.SessionSigningKey, cfg.SessionIssuer, cfg.SessionAudience, nil)
		if err != nil {
			logger.Fatal("session verifier", zap.Error(err))
		}
		sessions = session.NewManager(st, verifier, cfg.SessionTTL, nil, logger)
	} else {
		logger.Warn("SESSION_SIGNING_KEY not set; session and crop endpoints disabled")
	}
	cropManager := crops.NewManager(st, nil)

	tracker := traffic.NewTracker(nil)
	monitor := degraded.NewMonitor(tracker, cfg.DegradedWindow, cfg.DegradedErrorPct)
	recovery := degraded.NewRecovery(degraded.RecoveryConfig{
		Validate:    weatherClient.ValidateAPIKey,
		Initial:     cfg.DegradedRetryInitial,
		Max:         cfg.DegradedRetryMax,
		Timeout:     cfg.WeatherAPITimeout,
		OnRecovered: monitor.Clear,
		OnExhausted: func() {
			logger.Error("degraded recovery exhausted; upstream still failing")
		},
		Logger: logger,
	})
	recovery.Start(ctx)
	state := lifecycle.New(nil)

	healthConfig := &httphandler.HealthConfig{
		Version:              cfg.Version,
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		CachePing:            cachePing,
		StorePing:            st.Ping,
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
		healthConfig.RateLimitRPS = cfg.RateLimitRPS
	}

	deps := httphandler.Deps{
		Weather:   weatherService,
		Alerts:    alertService,
		Advisor:   adv,
		Sessions:  sessions,
		Tracker:   tracker,
		Monitor:   monitor,
		Recovery:  recovery,
		Lifecycle: state,
		Health:    healthConfig,
		Limits: httphandler.RequestLimits{
			LocationMinLen: cfg.LocationMinLength,
			LocationMaxLen: cfg.LocationMaxLength,
			DefaultDays:    cfg.DefaultForecastDays,
			MaxDays:        cfg.MaxForecastDays,
		},
		Logger: logger,
	}
	if sessions != nil {
		deps.Crops = cropManager
	}
	handler := httphandler.NewHandler(deps)

	observability.RegisterRateLimitGauges(tracker, cfg.OverloadWindow)
	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(cfg.TrackedLocations)

		refresher := service.NewRefresher(alertService, service.RefresherConfig{
			Locations: cfg.TrackedLocations,
			Mode:      cfg.RefreshMode,
			Days:      cfg.RefreshDays,
			Logger:    logger,
		})
		go func() {
			if err := refresher.Run(ctx, cfg.RefreshInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("periodic alert refresh stopped", zap.Error(err))
			}
		}()
	}

	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:  logger,
		Limiter: limiter,
		Timeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + cfg.AdvisorTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort), zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	go func() {
		if cfg.ReadyDelay > 0 {
			select {
			case <-time.After(cfg.ReadyDelay):
			case <-ctx.Done():
				return
			}
		}
		state.MarkReady()
		logger.Info("service ready")
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	state.BeginShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	observability.RecordShutdownInFlight(inFlight)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if mcClient != nil {
		if err := mcClient.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			logger.Error("redis close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
