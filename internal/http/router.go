package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mzansi-solutions/farm-alert-service/internal/observability"
)

// RouterConfig configures NewRouter. A nil Limiter disables rate limiting; a zero
// Timeout leaves upstream routes without a deadline.
type RouterConfig struct {
	Logger  *zap.Logger
	Limiter *rate.Limiter
	Timeout time.Duration
}

// NewRouter registers every route of the service on a gorilla/mux router.
// Crop and session routes are only mounted when the handler has the managers for them.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = h.logger
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.Use(SessionMiddleware(h.sessions))
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	// Routes that reach the weather provider share the limiter and the deadline.
	upstream := []mux.MiddlewareFunc{
		RateLimitMiddleware(cfg.Limiter, h.tracker),
		TimeoutMiddleware(cfg.Timeout),
	}

	weatherRouter := router.PathPrefix("/weather").Subrouter()
	weatherRouter.Use(upstream...)
	weatherRouter.HandleFunc("/{location}", h.GetWeather).Methods(http.MethodGet)
	weatherRouter.HandleFunc("/{location}/forecast", h.GetForecast).Methods(http.MethodGet)

	// The board read never calls upstream.
	router.HandleFunc("/alerts/{location}/latest", h.GetLatestAlerts).Methods(http.MethodGet)
	alertsRouter := router.PathPrefix("/alerts").Subrouter()
	alertsRouter.Use(upstream...)
	alertsRouter.HandleFunc("/{location}", h.GetAlerts).Methods(http.MethodGet)
	alertsRouter.HandleFunc("/{location}/forecast", h.GetForecastAlerts).Methods(http.MethodGet)

	adviceRouter := router.PathPrefix("/advice").Subrouter()
	adviceRouter.Use(upstream...)
	adviceRouter.HandleFunc("/safety", h.PostSafetyAdvice).Methods(http.MethodPost)
	adviceRouter.HandleFunc("/{location}/farming", h.GetFarmingAdvice).Methods(http.MethodGet)
	adviceRouter.HandleFunc("/{location}/tasks", h.GetTaskPlan).Methods(http.MethodGet)
	adviceRouter.HandleFunc("/{location}/clothing", h.GetClothingAdvice).Methods(http.MethodGet)

	if h.sessions != nil {
		router.HandleFunc("/session", h.PostSession).Methods(http.MethodPost)
		router.HandleFunc("/session", RequireSession(h.GetSession)).Methods(http.MethodGet)
		router.HandleFunc("/session", RequireSession(h.PatchSession)).Methods(http.MethodPatch)
		router.HandleFunc("/session", RequireSession(h.DeleteSession)).Methods(http.MethodDelete)
	}

	if h.sessions != nil && h.crops != nil {
		cropRouter := router.PathPrefix("/crops").Subrouter()
		cropRouter.HandleFunc("", RequireSession(h.ListCrops)).Methods(http.MethodGet)
		cropRouter.HandleFunc("", RequireSession(h.PostCrop)).Methods(http.MethodPost)
		// Fixed paths before /{id}.
		cropRouter.HandleFunc("/active", RequireSession(h.ListActiveCrops)).Methods(http.MethodGet)
		cropRouter.HandleFunc("/harvest", RequireSession(h.ListHarvestReadyCrops)).Methods(http.MethodGet)
		cropRouter.HandleFunc("/summary", RequireSession(h.GetCropSummary)).Methods(http.MethodGet)
		cropRouter.HandleFunc("/{id}", RequireSession(h.PutCrop)).Methods(http.MethodPut)
		cropRouter.HandleFunc("/{id}", RequireSession(h.DeleteCrop)).Methods(http.MethodDelete)
	}

	return router
}
