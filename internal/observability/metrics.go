package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mzansi-solutions/farm-alert-service/internal/models"
	"github.com/mzansi-solutions/farm-alert-service/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Weather provider call rate by endpoint (current, forecast). Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Provider latency per request. Watch for: p95 > 2s (upstream degradation), p99 > 5s (timeout risk).
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts for provider calls. Watch for: high retries = unstable upstream.
	WeatherAPIRetriesTotal *prometheus.CounterVec

	// Provider failures by category (timeout, rate_limited, upstream_5xx, ...).
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Text generation calls by kind (farming, tasks, safety, clothing) and status.
	AdvisorCallsTotal *prometheus.CounterVec

	// Text generation latency. Watch for: slow model responses eating the request timeout.
	AdvisorDuration *prometheus.HistogramVec

	// Responses served from offline fallback text. Watch for: sustained fallbacks = generator down or key revoked.
	AdvisorFallbacksTotal *prometheus.CounterVec

	// Cache hits by payload type (current, forecast).
	CacheHitsTotal *prometheus.CounterVec

	// Cache misses by payload type. Hit rate = hits/(hits+misses).
	CacheMissesTotal *prometheus.CounterVec

	// Cache backend errors by operation and category. Watch for: memcached unreachable.
	CacheErrorsTotal *prometheus.CounterVec

	// Cache operation latency by operation (get, set) and result (hit, miss, error, ok).
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Concurrent misses for one key. Watch for: stampedes on popular locations.
	CacheStampedeDetectedTotal *prometheus.CounterVec

	// Concurrent misses observed when a stampede is detected.
	CacheStampedeConcurrency prometheus.Histogram

	// Requests that joined an in-flight provider call instead of issuing their own.
	RequestCoalescingHitsTotal *prometheus.CounterVec

	// Time coalesced requests spent waiting on the leader.
	RequestCoalescingWaitSeconds prometheus.Histogram

	// Responses served from stale cache after a provider failure.
	StaleCacheServesTotal *prometheus.CounterVec

	// Age of stale entries when served.
	StaleCacheAgeSeconds prometheus.Histogram

	// Circuit breaker state per component: 0=closed, 1=open, 2=half_open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions. Watch for: flapping between open and half_open.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Alert records produced by the classifier. Watch for: spikes in HIGH severity.
	AlertsGeneratedTotal *prometheus.CounterVec

	// Alert board publishes by result (accepted, discarded). Discards mean overlapping refreshes.
	AlertBoardPublishesTotal *prometheus.CounterVec

	// Scheduled alert refresh runs and failures.
	AlertRefreshTotal       *prometheus.CounterVec
	AlertRefreshDuration    prometheus.Histogram
	CropOperationsTotal     *prometheus.CounterVec
	SessionOperationsTotal  *prometheus.CounterVec
	ShutdownInFlightGauge   prometheus.Gauge
	WeatherQueriesTotal     prometheus.Counter

	// Per-location query count (allow-list; others go to "other"). Watch for: top locations, traffic distribution.
	WeatherQueriesByLocationTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	trackedLocationsMu sync.RWMutex
	trackedLocations   map[string]struct{}

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of weather provider calls",
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Weather provider latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for weather provider calls",
		},
		[]string{"endpoint"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Weather provider failures by category",
		},
		[]string{"endpoint", "category"},
	)
	AdvisorCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisorCallsTotal",
			Help: "Total number of text generation calls",
		},
		[]string{"kind", "status"},
	)
	AdvisorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "advisorDurationSeconds",
			Help:    "Text generation latency in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"kind"},
	)
	AdvisorFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisorFallbacksTotal",
			Help: "Advisory responses served from offline fallback text",
		},
		[]string{"kind"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of cache misses",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation and category",
		},
		[]string{"op", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache operation latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
		},
		[]string{"op", "result"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Concurrent cache misses for the same key",
		},
		[]string{"location"},
	)
	CacheStampedeConcurrency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheStampedeConcurrency",
			Help:    "Concurrent misses for one key when a stampede is detected",
			Buckets: []float64{2, 3, 5, 10, 20, 50},
		},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Requests served by joining an in-flight provider call",
		},
		[]string{"location"},
	)
	RequestCoalescingWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "requestCoalescingWaitSeconds",
			Help:    "Time coalesced requests waited for the leader",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
	StaleCacheServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staleCacheServesTotal",
			Help: "Responses served from stale cache after a provider failure",
		},
		[]string{"location"},
	)
	StaleCacheAgeSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "staleCacheAgeSeconds",
			Help:    "Age of stale cache entries when served",
			Buckets: []float64{60, 300, 600, 1800, 3600, 7200},
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state: 0=closed, 1=open, 2=half_open",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	AlertsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertsGeneratedTotal",
			Help: "Alert records produced by the classifier",
		},
		[]string{"hazard", "severity", "mode"},
	)
	AlertBoardPublishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertBoardPublishesTotal",
			Help: "Alert board publishes by result (accepted, discarded)",
		},
		[]string{"result"},
	)
	AlertRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertRefreshTotal",
			Help: "Scheduled alert refreshes per location by result",
		},
		[]string{"result"},
	)
	AlertRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alertRefreshDurationSeconds",
			Help:    "Duration of one refresh pass over tracked locations",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
		},
	)
	CropOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropOperationsTotal",
			Help: "Crop list operations by operation and result",
		},
		[]string{"op", "result"},
	)
	SessionOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionOperationsTotal",
			Help: "Session login/lookup/logout by result",
		},
		[]string{"op", "result"},
	)
	ShutdownInFlightGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdownInFlightRequests",
			Help: "In-flight requests when graceful shutdown began",
		},
	)
	WeatherQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherQueriesTotal",
			Help: "Total number of weather and alert lookups",
		},
	)
	WeatherQueriesByLocationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueriesByLocationTotal",
			Help: "Weather queries by location (allow-list; others use location=other)",
		},
		[]string{"location"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal, WeatherAPIErrorsTotal,
		AdvisorCallsTotal, AdvisorDuration, AdvisorFallbacksTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		CacheStampedeDetectedTotal, CacheStampedeConcurrency,
		RequestCoalescingHitsTotal, RequestCoalescingWaitSeconds,
		StaleCacheServesTotal, StaleCacheAgeSeconds,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		AlertsGeneratedTotal, AlertBoardPublishesTotal, AlertRefreshTotal, AlertRefreshDuration,
		CropOperationsTotal, SessionOperationsTotal,
		ShutdownInFlightGauge,
		WeatherQueriesTotal, WeatherQueriesByLocationTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call once from main with the tracker the middleware records into.
func RegisterRateLimitGauges(tracker *traffic.Tracker, window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(tracker.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(tracker.DenialCount(window)) },
			),
		)
	})
}

// CircuitBreakerStateValue maps a breaker state name to the gauge value.
func CircuitBreakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half_open":
		return 2
	default:
		return 0
	}
}

// RecordCircuitBreakerTransition counts a transition and moves the state gauge.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(CircuitBreakerStateValue(to))
}

// SetCircuitBreakerStateGauge sets the state gauge without counting a transition.
func SetCircuitBreakerStateGauge(component string, value float64) {
	CircuitBreakerState.WithLabelValues(component).Set(value)
}

// RecordAlerts counts generated records by hazard, severity and mode.
func RecordAlerts(records []models.AlertRecord) {
	for _, r := range records {
		AlertsGeneratedTotal.WithLabelValues(string(r.Hazard), string(r.Severity), r.Mode).Inc()
	}
}

// RecordBoardPublish counts a board publish as accepted or discarded.
func RecordBoardPublish(accepted bool) {
	if accepted {
		AlertBoardPublishesTotal.WithLabelValues("accepted").Inc()
		return
	}
	AlertBoardPublishesTotal.WithLabelValues("discarded").Inc()
}

// RecordShutdownInFlight records in-flight requests at shutdown start.
func RecordShutdownInFlight(n int64) {
	ShutdownInFlightGauge.Set(float64(n))
}

// ResultLabel returns "ok" or "error" for operation counters.
func ResultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// SetTrackedLocations sets the allow-list for location metrics. Non-tracked locations increment "other".
func SetTrackedLocations(locations []string) {
	trackedLocationsMu.Lock()
	defer trackedLocationsMu.Unlock()
	trackedLocations = make(map[string]struct{}, len(locations))
	for _, loc := range locations {
		trackedLocations[normalizeLocationForMetrics(loc)] = struct{}{}
	}
}

// MetricLocationLabel returns the location label to use on per-location metrics:
// the normalized location when tracked, otherwise "other".
func MetricLocationLabel(location string) string {
	loc := normalizeLocationForMetrics(location)
	trackedLocationsMu.RLock()
	_, ok := trackedLocations[loc] // nil map read is safe in Go
	trackedLocationsMu.RUnlock()
	if ok {
		return loc
	}
	return "other"
}

// RecordWeatherQuery records a weather query for the given location.
func RecordWeatherQuery(location string) {
	WeatherQueriesTotal.Inc()
	WeatherQueriesByLocationTotal.WithLabelValues(MetricLocationLabel(location)).Inc()
}

func normalizeLocationForMetrics(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return s
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
