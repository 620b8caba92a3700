package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mzansi-solutions/farm-alert-service/internal/advisor"
	"github.com/mzansi-solutions/farm-alert-service/internal/client"
	"github.com/mzansi-solutions/farm-alert-service/internal/crops"
	"github.com/mzansi-solutions/farm-alert-service/internal/degraded"
	"github.com/mzansi-solutions/farm-alert-service/internal/lifecycle"
	"github.com/mzansi-solutions/farm-alert-service/internal/models"
	"github.com/mzansi-solutions/farm-alert-service/internal/observability"
	"github.com/mzansi-solutions/farm-alert-service/internal/service"
	"github.com/mzansi-solutions/farm-alert-service/internal/session"
	"github.com/mzansi-solutions/farm-alert-service/internal/traffic"
	"github.com/mzansi-solutions/farm-alert-service/internal/validation"
)

// RequestLimits bounds user input on the weather and alert routes.
type RequestLimits struct {
	LocationMinLen int
	LocationMaxLen int
	DefaultDays    int
	MaxDays        int
}

func (l RequestLimits) withDefaults() RequestLimits {
	if l.LocationMinLen <= 0 {
		l.LocationMinLen = 1
	}
	if l.LocationMaxLen <= 0 {
		l.LocationMaxLen = 100
	}
	if l.MaxDays <= 0 || l.MaxDays > client.MaxForecastDays {
		l.MaxDays = client.MaxForecastDays
	}
	if l.DefaultDays <= 0 || l.DefaultDays > l.MaxDays {
		l.DefaultDays = 7
	}
	return l
}

// Deps are the collaborators of Handler. Weather, Alerts and Tracker are required;
// the rest may be nil, which disables the routes or checks that need them.
type Deps struct {
	Weather   *service.WeatherService
	Alerts    *service.AlertService
	Advisor   *advisor.Advisor
	Crops     *crops.Manager
	Sessions  *session.Manager
	Tracker   *traffic.Tracker
	Monitor   *degraded.Monitor
	Recovery  *degraded.Recovery
	Lifecycle *lifecycle.State
	Health    *HealthConfig
	Limits    RequestLimits
	Logger    *zap.Logger
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather   *service.WeatherService
	alerts    *service.AlertService
	advisor   *advisor.Advisor
	crops     *crops.Manager
	sessions  *session.Manager
	tracker   *traffic.Tracker
	monitor   *degraded.Monitor
	recovery  *degraded.Recovery
	lifecycle *lifecycle.State
	health    *healthState
	limits    RequestLimits
	logger    *zap.Logger
}

// NewHandler returns a new Handler.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Tracker == nil {
		d.Tracker = traffic.NewTracker(nil)
	}
	if d.Lifecycle == nil {
		d.Lifecycle = lifecycle.New(nil)
		d.Lifecycle.MarkReady()
	}
	if d.Advisor == nil {
		d.Advisor = advisor.New(nil, nil, d.Logger)
	}
	return &Handler{
		weather:   d.Weather,
		alerts:    d.Alerts,
		advisor:   d.Advisor,
		crops:     d.Crops,
		sessions:  d.Sessions,
		tracker:   d.Tracker,
		monitor:   d.Monitor,
		recovery:  d.Recovery,
		lifecycle: d.Lifecycle,
		health:    &healthState{cfg: d.Health},
		limits:    d.Limits.withDefaults(),
		logger:    d.Logger,
	}
}

// GetWeather handles GET /weather/{location}.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	location, ok := h.locationVar(w, r)
	if !ok {
		return
	}
	observability.RecordWeatherQuery(location)
	result, err := h.weather.GetCurrent(r.Context(), location)
	if err != nil {
		h.upstreamFailed(w, r, err)
		return
	}
	h.tracker.RecordSuccess()
	writeJSON(w, http.StatusOK, result)
}

// GetForecast handles GET /weather/{location}/forecast?days=N.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	location, ok := h.locationVar(w, r)
	if !ok {
		return
	}
	days, ok := h.daysParam(w, r)
	if !ok {
		return
	}
	observability.RecordWeatherQuery(location)
	result, err := h.weather.GetForecast(r.Context(), location, days)
	if err != nil {
		h.upstreamFailed(w, r, err)
		return
	}
	h.tracker.RecordSuccess()
	writeJSON(w, http.StatusOK, result)
}

// GetAlerts handles GET /alerts/{location}?detailed=true.
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	location, ok := h.locationVar(w, r)
	if !ok {
		return
	}
	result, err := h.alerts.CurrentAlerts(r.Context(), location, detailedParam(r))
	if err != nil {
		h.upstreamFailed(w, r, err)
		return
	}
	h.tracker.RecordSuccess()
	writeJSON(w, http.StatusOK, result)
}

// GetForecastAlerts handles GET /alerts/{location}/forecast?days=N&detailed=true.
func (h *Handler) GetForecastAlerts(w http.ResponseWriter, r *http.Request) {
	location, ok := h.locationVar(w, r)
	if !ok {
		return
	}
	days, ok := h.daysParam(w, r)
	if !ok {
		return
	}
	result, err := h.alerts.ForecastAlerts(r.Context(), location, days, detailedParam(r))
	if err != nil {
		h.upstreamFailed(w, r, err)
		return
	}
	h.tracker.RecordSuccess()
	writeJSON(w, http.StatusOK, result)
}

// GetLatestAlerts handles GET /alerts/{location}/latest?mode=current|forecast.
// Without a mode the most recently published set is returned.
func (h *Handler) GetLatestAlerts(w http.ResponseWriter, r *http.Request) {
	location, ok := h.locationVar(w, r)
	if !ok {
		return
	}
	mode := strings.ToLower(r.URL.Query().Get("mode"))
	switch mode {
	case "", models.ModeCurrent, models.ModeForecast:
	default:
		writeError(w, r, http.StatusBadRequest, "INVALID_MODE", "mode must be current or forecast")
		return
	}
	snap, found := h.alerts.LatestAlerts(location, mode)
	if !found {
		writeError(w, r, http.StatusNotFound, "NO_ALERTS", "no alerts published for "+location)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) locationVar(w http.ResponseWriter, r *http.Request) (string, bool) {
	location, err := validation.ValidateLocation(mux.Vars(r)["location"], h.limits.LocationMinLen, h.limits.LocationMaxLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return "", false
	}
	return location, true
}

func (h *Handler) daysParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	days, err := validation.ValidateDays(r.URL.Query().Get("days"), h.limits.DefaultDays, h.limits.MaxDays)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DAYS", err.Error())
		return 0, false
	}
	return days, true
}

func detailedParam(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("detailed"))
	return err == nil && v
}

// upstreamFailed writes the error response for a failed provider call and feeds
// the degraded monitor. Unknown locations are the caller's problem and do not
// count against upstream health.
func (h *Handler) upstreamFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, client.ErrLocationNotFound) {
		h.tracker.RecordSuccess()
		writeError(w, r, http.StatusNotFound, "LOCATION_NOT_FOUND", "location not found")
		return
	}
	if errors.Is(err, context.Canceled) {
		writeServiceError(w, r, err)
		return
	}
	h.tracker.RecordError()
	if degradedNow, pct := h.monitor.Degraded(); degradedNow {
		loggerFrom(r, h.logger).Warn("error rate above threshold, starting recovery", zap.Float64("error_pct", pct))
		h.recovery.Notify()
	}
	writeServiceError(w, r, err)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID, _ := r.Context().Value("correlation_id").(string)
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError writes a 503 for upstream failures and logs the cause at debug.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
}

// writeStoreError writes a 503 for session or crop storage failures.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Unable to reach storage")
	loggerFrom(r, zap.NewNop()).Warn("store error", zap.Error(err))
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body: "+strings.TrimPrefix(err.Error(), "json: "))
		return false
	}
	return true
}

func loggerFrom(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		return logger
	}
	return fallback
}
