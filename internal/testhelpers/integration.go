//go:build integration
// +build integration

// Package testhelpers builds live stacks for integration tests.
package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mzansi-solutions/farm-alert-service/internal/alerts"
	"github.com/mzansi-solutions/farm-alert-service/internal/cache"
	"github.com/mzansi-solutions/farm-alert-service/internal/client"
	"github.com/mzansi-solutions/farm-alert-service/internal/models"
	"github.com/mzansi-solutions/farm-alert-service/internal/service"
	"github.com/mzansi-solutions/farm-alert-service/internal/store"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
	RedisURL      string // empty keeps the store in memory
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = "https://api.weatherbit.io/v2.0"
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
		RedisURL:      os.Getenv("INTEGRATION_REDIS_URL"),
	}
}

// Stack is a live weather and alert pipeline with its backing stores.
type Stack struct {
	Client   client.WeatherClient
	Current  cache.Cache[models.Observation]
	Forecast cache.Cache[models.Forecast]
	Store    store.Store
	Weather  *service.WeatherService
	Alerts   *service.AlertService
}

// SetupIntegrationStack wires the provider client, caches, store and services.
// Memcached and Redis fall back to in-memory backends when unreachable.
func SetupIntegrationStack(t *testing.T, cfg IntegrationTestConfig) (*Stack, func()) {
	t.Helper()
	wc, err := client.NewWeatherbitClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewWeatherbitClient() error = %v", err)
	}

	clock := clockwork.NewRealClock()
	s := &Stack{Client: wc}
	var cleanups []func()

	if cfg.CacheBackend == "memcached" {
		mc := cache.NewMemcachedClient(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		current := cache.NewMemcachedCache[models.Observation](mc, "current", time.Hour)
		if err := current.Ping(); err == nil {
			s.Current = current
			s.Forecast = cache.NewMemcachedCache[models.Forecast](mc, "forecast", time.Hour)
			cleanups = append(cleanups, func() { _ = mc.Close() })
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available (%v), using in-memory cache", err)
		}
	}
	if s.Current == nil {
		s.Current = cache.NewInMemoryCache[models.Observation](time.Hour, clock)
		s.Forecast = cache.NewInMemoryCache[models.Forecast](time.Hour, clock)
	}

	if cfg.RedisURL != "" {
		rs, err := store.NewRedisStore(cfg.RedisURL, "farm-it:")
		if err == nil && rs.Ping(context.Background()) == nil {
			s.Store = rs
			cleanups = append(cleanups, func() { _ = rs.Close() })
		} else {
			t.Logf("Redis not available, using in-memory store")
		}
	}
	if s.Store == nil {
		s.Store = store.NewMemoryStore(clock)
	}

	s.Weather = service.NewWeatherService(wc, s.Current, s.Forecast, service.WeatherConfig{
		CurrentTTL:  5 * time.Minute,
		ForecastTTL: 30 * time.Minute,
		StaleTTL:    time.Hour,
	})
	s.Alerts = service.NewAlertService(s.Weather, alerts.NewClassifier(), alerts.NewBoard(clock), clock)

	return s, func() {
		for _, c := range cleanups {
			c()
		}
	}
}
