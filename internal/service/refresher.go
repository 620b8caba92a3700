package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/mzansi-solutions/farm-alert-service/internal/models"
	"github.com/mzansi-solutions/farm-alert-service/internal/observability"
)

// Refresher keeps the alert board populated for a fixed set of locations.
type Refresher struct {
	alerts    *AlertService
	locations []string
	mode      string
	days      int
	clock     clockwork.Clock
	logger    *zap.Logger
}

// RefresherConfig selects what to refresh. Mode is models.ModeCurrent (default)
// or models.ModeForecast, in which case Days forecast entries are classified.
type RefresherConfig struct {
	Locations []string
	Mode      string
	Days      int
	Clock     clockwork.Clock
	Logger    *zap.Logger
}

func NewRefresher(svc *AlertService, cfg RefresherConfig) *Refresher {
	if cfg.Mode == "" {
		cfg.Mode = models.ModeCurrent
	}
	if cfg.Days <= 0 {
		cfg.Days = 7
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Refresher{
		alerts:    svc,
		locations: cfg.Locations,
		mode:      cfg.Mode,
		days:      cfg.Days,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
}

// Refresh classifies every location concurrently and publishes the results.
// Returns the joined per-location errors.
func (r *Refresher) Refresh(ctx context.Context) error {
	start := r.clock.Now()
	r.logger.Info("refreshing alerts", zap.Int("locations", len(r.locations)), zap.String("mode", r.mode))

	ctx = context.WithValue(ctx, "logger", r.logger)
	var wg sync.WaitGroup
	errCh := make(chan error, len(r.locations))
	for _, loc := range r.locations {
		wg.Add(1)
		go func(loc string) {
			defer wg.Done()
			var err error
			if r.mode == models.ModeForecast {
				_, err = r.alerts.ForecastAlerts(ctx, loc, r.days, false)
			} else {
				_, err = r.alerts.CurrentAlerts(ctx, loc, false)
			}
			if err != nil {
				errCh <- fmt.Errorf("refresh %s: %w", loc, err)
			}
		}(loc)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := r.clock.Since(start).Seconds()
	observability.AlertRefreshDuration.Observe(duration)
	r.logger.Info("alert refresh complete",
		zap.Int("locations", len(r.locations)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration),
	)
	if len(errs) > 0 {
		observability.AlertRefreshTotal.WithLabelValues("error").Inc()
		return errors.Join(errs...)
	}
	observability.AlertRefreshTotal.WithLabelValues("success").Inc()
	return nil
}

// Run refreshes once, then every interval until ctx is done. A non-positive
// interval means only the initial refresh runs.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) error {
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("initial alert refresh failed", zap.Error(err))
	}
	if interval <= 0 {
		return nil
	}
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn("periodic alert refresh failed", zap.Error(err))
			}
		}
	}
}
