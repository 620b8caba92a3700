package http

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mzansi-solutions/farm-alert-service/internal/models"
	"github.com/mzansi-solutions/farm-alert-service/internal/session"
)

// adviceForecastDays is the horizon used for farming tips and task planning.
const adviceForecastDays = 7

type safetyRequest struct {
	DisasterType string `json:"disasterType"`
	Severity     string `json:"severity"`
	Location     string `json:"location"`
}

// sessionCrops returns the signed-in user's crops, or nil for anonymous callers.
// Store failures degrade to no crops.
func (h *Handler) sessionCrops(r *http.Request) []models.Crop {
	s, ok := session.FromContext(r.Context())
	if !ok || h.crops == nil {
		return nil
	}
	list, err := h.crops.All(r.Context(), s.UserID)
	if err != nil {
		loggerFrom(r, h.logger).Warn("crop lookup failed, advising without crops", zap.Error(err))
		return nil
	}
	return list
}

func (h *Handler) adviceForecast(w http.ResponseWriter, r *http.Request, days int) (string, models.Forecast, bool) {
	location, ok := h.locationVar(w, r)
	if !ok {
		return "", models.Forecast{}, false
	}
	fc, err := h.weather.GetForecast(r.Context(), location, days)
	if err != nil {
		h.upstreamFailed(w, r, err)
		return "", models.Forecast{}, false
	}
	h.tracker.RecordSuccess()
	return location, fc, true
}

// GetFarmingAdvice handles GET /advice/{location}/farming.
func (h *Handler) GetFarmingAdvice(w http.ResponseWriter, r *http.Request) {
	location, fc, ok := h.adviceForecast(w, r, adviceForecastDays)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.advisor.FarmingTips(r.Context(), location, fc, h.sessionCrops(r)))
}

// GetTaskPlan handles GET /advice/{location}/tasks.
func (h *Handler) GetTaskPlan(w http.ResponseWriter, r *http.Request) {
	location, fc, ok := h.adviceForecast(w, r, adviceForecastDays)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.advisor.UpcomingTasks(r.Context(), location, fc, h.sessionCrops(r)))
}

// GetClothingAdvice handles GET /advice/{location}/clothing?day=N, N counting from 0 (today).
func (h *Handler) GetClothingAdvice(w http.ResponseWriter, r *http.Request) {
	day := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("day")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n >= h.limits.MaxDays {
			writeError(w, r, http.StatusBadRequest, "INVALID_DAY",
				"day must be between 0 and "+strconv.Itoa(h.limits.MaxDays-1))
			return
		}
		day = n
	}
	location, fc, ok := h.adviceForecast(w, r, day+1)
	if !ok {
		return
	}
	if day >= len(fc.Days) {
		writeError(w, r, http.StatusNotFound, "DAY_NOT_AVAILABLE", "forecast does not cover the requested day")
		return
	}
	writeJSON(w, http.StatusOK, h.advisor.Clothing(r.Context(), location, fc.Days[day]))
}

// PostSafetyAdvice handles POST /advice/safety.
func (h *Handler) PostSafetyAdvice(w http.ResponseWriter, r *http.Request) {
	var req safetyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.DisasterType = strings.TrimSpace(req.DisasterType)
	if req.DisasterType == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "disasterType is required")
		return
	}
	if req.Severity == "" {
		req.Severity = string(models.SeverityMedium)
	}
	if req.Location == "" {
		req.Location = "South Africa"
	}
	writeJSON(w, http.StatusOK, h.advisor.SafetyTips(r.Context(), req.DisasterType, req.Severity, req.Location))
}
