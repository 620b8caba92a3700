package service

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/mzansi-solutions/farm-alert-service/internal/alerts"
	"github.com/mzansi-solutions/farm-alert-service/internal/models"
	"github.com/mzansi-solutions/farm-alert-service/internal/observability"
)

// WeatherProvider is the read side of WeatherService used by alerting.
type WeatherProvider interface {
	GetCurrent(ctx context.Context, location string) (models.Observation, error)
	GetForecast(ctx context.Context, location string, days int) (models.Forecast, error)
}

// AlertResult is one classification pass.
type AlertResult struct {
	Location    string               `json:"location"`
	Mode        string               `json:"mode"`
	Alerts      []models.AlertRecord `json:"alerts"`
	Published   bool                 `json:"published"`
	Stale       bool                 `json:"stale,omitempty"`
	GeneratedAt time.Time            `json:"generatedAt"`
}

// AlertService fetches weather, classifies it and publishes the result to the board.
type AlertService struct {
	weather    WeatherProvider
	classifier *alerts.Classifier
	board      *alerts.Board
	clock      clockwork.Clock
}

// NewAlertService creates an AlertService. A nil clock uses the real clock.
func NewAlertService(weather WeatherProvider, classifier *alerts.Classifier, board *alerts.Board, clock clockwork.Clock) *AlertService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AlertService{weather: weather, classifier: classifier, board: board, clock: clock}
}

// CurrentAlerts classifies current conditions. With detailed set, returned records
// carry hazard instructions; the board always keeps the plain records.
func (s *AlertService) CurrentAlerts(ctx context.Context, location string, detailed bool) (AlertResult, error) {
	ticket := s.board.Begin(location, models.ModeCurrent)
	obs, err := s.weather.GetCurrent(ctx, location)
	if err != nil {
		return AlertResult{}, err
	}
	records := s.classifier.Current(obs, location)
	return s.publish(ctx, location, models.ModeCurrent, ticket, records, obs.Stale, detailed), nil
}

// ForecastAlerts classifies a daily forecast series of days entries.
func (s *AlertService) ForecastAlerts(ctx context.Context, location string, days int, detailed bool) (AlertResult, error) {
	ticket := s.board.Begin(location, models.ModeForecast)
	fc, err := s.weather.GetForecast(ctx, location, days)
	if err != nil {
		return AlertResult{}, err
	}
	records := s.classifier.Forecast(fc.Days, location)
	return s.publish(ctx, location, models.ModeForecast, ticket, records, fc.Stale, detailed), nil
}

// LatestAlerts returns the last set published for location in mode. An empty mode
// returns the most recently published of either mode.
func (s *AlertService) LatestAlerts(location, mode string) (alerts.Snapshot, bool) {
	return s.board.Latest(location, mode)
}

func (s *AlertService) publish(ctx context.Context, location, mode string, ticket uint64, records []models.AlertRecord, stale, detailed bool) AlertResult {
	published := s.board.Publish(location, mode, ticket, records)
	observability.RecordBoardPublish(published)
	observability.RecordAlerts(records)

	logger := loggerFromContext(ctx)
	if !published {
		logger.Debug("alert result superseded by a newer request",
			zap.String("location", location),
			zap.String("mode", mode),
		)
	}
	logger.Debug("alerts classified",
		zap.String("location", location),
		zap.String("mode", mode),
		zap.Int("count", len(records)),
		zap.Bool("stale", stale),
	)

	if detailed {
		records = alerts.Detailed(records)
	}
	if records == nil {
		records = []models.AlertRecord{}
	}
	return AlertResult{
		Location:    location,
		Mode:        mode,
		Alerts:      records,
		Published:   published,
		Stale:       stale,
		GeneratedAt: s.clock.Now(),
	}
}
