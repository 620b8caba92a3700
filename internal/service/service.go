// Package service holds the request-path orchestration: cache-aside weather
// retrieval, alert classification and publication, and background refresh.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mmcloughlin/geohash"
	"go.uber.org/zap"

	"github.com/mzansi-solutions/farm-alert-service/internal/cache"
	"github.com/mzansi-solutions/farm-alert-service/internal/client"
	"github.com/mzansi-solutions/farm-alert-service/internal/models"
	"github.com/mzansi-solutions/farm-alert-service/internal/observability"
	"github.com/mzansi-solutions/farm-alert-service/internal/validation"
)

// GeohashPrecision groups coordinates into ~1.2km cells for cache keys.
const GeohashPrecision = 6

// WeatherConfig tunes WeatherService caching.
type WeatherConfig struct {
	CurrentTTL      time.Duration
	ForecastTTL     time.Duration
	StaleTTL        time.Duration // max age for stale fallback, 0 disables it
	CoalesceEnabled bool
	CoalesceTimeout time.Duration
	Clock           clockwork.Clock
}

// WeatherService serves observations and forecasts cache-aside, falling back to
// stale cache entries when the provider fails.
type WeatherService struct {
	client   client.WeatherClient
	current  fetchPath[models.Observation]
	forecast fetchPath[models.Forecast]
	clock    clockwork.Clock
}

// fetchPath is the cache-aside pipeline for one payload type.
type fetchPath[T any] struct {
	cacheType string
	cache     cache.Cache[T]
	ttl       time.Duration
	staleTTL  time.Duration
	misses    *missTracker
	coalescer *requestCoalescer[T] // nil when coalescing is disabled
	// stale marks a value as served from stale cache and returns when it was fetched
	stale func(T) (T, time.Time)
}

// NewWeatherService wires a provider client to its two caches.
func NewWeatherService(c client.WeatherClient, current cache.Cache[models.Observation], forecast cache.Cache[models.Forecast], cfg WeatherConfig) *WeatherService {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	s := &WeatherService{
		client: c,
		clock:  cfg.Clock,
		current: fetchPath[models.Observation]{
			cacheType: "current",
			cache:     current,
			ttl:       cfg.CurrentTTL,
			staleTTL:  cfg.StaleTTL,
			misses:    newMissTracker(),
			stale: func(o models.Observation) (models.Observation, time.Time) {
				o.Stale = true
				return o, o.Timestamp
			},
		},
		forecast: fetchPath[models.Forecast]{
			cacheType: "forecast",
			cache:     forecast,
			ttl:       cfg.ForecastTTL,
			staleTTL:  cfg.StaleTTL,
			misses:    newMissTracker(),
			stale: func(f models.Forecast) (models.Forecast, time.Time) {
				f.Stale = true
				return f, f.Timestamp
			},
		},
	}
	if cfg.CoalesceEnabled && cfg.CoalesceTimeout > 0 {
		s.current.coalescer = newRequestCoalescer[models.Observation](cfg.CoalesceTimeout)
		s.forecast.coalescer = newRequestCoalescer[models.Forecast](cfg.CoalesceTimeout)
	}
	return s
}

// GetCurrent returns current conditions for location.
func (s *WeatherService) GetCurrent(ctx context.Context, location string) (models.Observation, error) {
	key := CacheKey(location)
	label := strings.TrimSpace(location)
	return readThrough(ctx, s.clock, &s.current, key, func(ctx context.Context) (models.Observation, error) {
		return s.client.GetCurrent(ctx, label)
	})
}

// GetForecast returns a daily forecast of days entries for location.
func (s *WeatherService) GetForecast(ctx context.Context, location string, days int) (models.Forecast, error) {
	key := CacheKey(location) + ":" + strconv.Itoa(days)
	label := strings.TrimSpace(location)
	return readThrough(ctx, s.clock, &s.forecast, key, func(ctx context.Context) (models.Forecast, error) {
		return s.client.GetForecast(ctx, label, days)
	})
}

// ValidateAPIKey checks the provider key. Used by health checks.
func (s *WeatherService) ValidateAPIKey(ctx context.Context) error {
	return s.client.ValidateAPIKey(ctx)
}

func readThrough[T any](ctx context.Context, clock clockwork.Clock, p *fetchPath[T], key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	start := clock.Now()
	logger := loggerFromContext(ctx)

	getStart := clock.Now()
	cached, ok, err := p.cache.Get(ctx, key)
	getDuration := clock.Since(getStart).Seconds()
	switch {
	case err != nil:
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	case ok:
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheHitsTotal.WithLabelValues(p.cacheType).Inc()
		logger.Debug("cache hit", zap.String("key", key), zap.String("cache", p.cacheType))
		return cached, nil
	default:
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "miss").Observe(getDuration)
	}
	observability.CacheMissesTotal.WithLabelValues(p.cacheType).Inc()

	locLabel := observability.MetricLocationLabel(key)
	outstanding, done := p.misses.begin(p.cacheType + ":" + key)
	defer done()
	if outstanding > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(locLabel).Inc()
		observability.CacheStampedeConcurrency.Observe(float64(outstanding))
	}
	logger.Debug("cache miss, fetching upstream", zap.String("key", key), zap.String("cache", p.cacheType))

	var data T
	var upstreamErr error
	if p.coalescer != nil {
		waitStart := clock.Now()
		var shared bool
		data, shared, upstreamErr = p.coalescer.GetOrDo(ctx, key, fetch)
		if shared {
			observability.RequestCoalescingHitsTotal.WithLabelValues(locLabel).Inc()
			observability.RequestCoalescingWaitSeconds.Observe(clock.Since(waitStart).Seconds())
		}
	} else {
		data, upstreamErr = fetch(ctx)
	}

	if upstreamErr != nil {
		if p.staleTTL > 0 && servesStale(upstreamErr) {
			stale, ok, staleErr := p.cache.GetStale(ctx, key, p.staleTTL)
			if staleErr == nil && ok {
				marked, fetchedAt := p.stale(stale)
				age := clock.Since(fetchedAt)
				observability.StaleCacheServesTotal.WithLabelValues(locLabel).Inc()
				observability.StaleCacheAgeSeconds.Observe(age.Seconds())
				logger.Info("serving stale cache",
					zap.String("key", key),
					zap.String("cache", p.cacheType),
					zap.Duration("age", age),
					zap.Error(upstreamErr),
				)
				return marked, nil
			}
		}
		return zero, fmt.Errorf("fetch %s for %s: %w", p.cacheType, key, upstreamErr)
	}

	setStart := clock.Now()
	if setErr := p.cache.Set(ctx, key, data, p.ttl); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(clock.Since(setStart).Seconds())
		logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
	} else {
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(clock.Since(setStart).Seconds())
	}
	logger.Debug("weather served",
		zap.String("key", key),
		zap.String("cache", p.cacheType),
		zap.Duration("duration", clock.Since(start)),
	)
	return data, nil
}

// servesStale reports whether a failed fetch may fall back to stale data. Caller
// mistakes such as unknown locations or a bad key are returned as is.
func servesStale(err error) bool {
	return !errors.Is(err, client.ErrLocationNotFound) &&
		!errors.Is(err, client.ErrInvalidAPIKey) &&
		!errors.Is(err, context.Canceled)
}

// CacheKey normalizes a location label into a cache key. Place names are
// trimmed and lowercased; "lat,lon" pairs collapse to a geohash cell so nearby
// coordinates share an entry.
func CacheKey(location string) string {
	loc := strings.ToLower(strings.TrimSpace(location))
	if lat, lon, ok := validation.ParseCoordinates(loc); ok {
		return "gh:" + geohash.EncodeWithPrecision(lat, lon, GeohashPrecision)
	}
	return loc
}

// categorizeCacheError returns a stable label for cache error metrics.
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}

// loggerFromContext returns the request logger, or a no-op logger outside a request.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value("logger").(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}
