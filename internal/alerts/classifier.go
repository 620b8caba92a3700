// Package alerts derives disaster-risk alert records from weather observations.
//
// The Classifier is synchronous and keeps no state between calls apart from the
// identifier sequence. It never returns an error: absent or malformed inputs simply
// do not trigger the rules that depend on them.
package alerts

import (
	"fmt"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/mzansi-solutions/farm-alert-service/internal/models"
)

// droughtWindow is the number of consecutive days summed by the drought rule.
const droughtWindow = 7

// Classifier maps observations to alert records.
type Classifier struct {
	clock            clockwork.Clock
	logger           *zap.Logger
	current          Thresholds
	forecast         Thresholds
	currentWindUnit  string
	forecastWindUnit string
	seq              atomic.Uint64
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock sets the clock used for identifiers and timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(cl *Classifier) { cl.clock = c }
}

// WithLogger sets the logger used to report rules that panicked.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Classifier) { cl.logger = l }
}

// WithCurrentThresholds overrides the instantaneous-mode thresholds.
func WithCurrentThresholds(t Thresholds) Option {
	return func(cl *Classifier) { cl.current = t }
}

// WithForecastThresholds overrides the forecast-mode thresholds.
func WithForecastThresholds(t Thresholds) Option {
	return func(cl *Classifier) { cl.forecast = t }
}

// WithWindUnits sets the wind unit labels stamped on records of each mode.
func WithWindUnits(current, forecast string) Option {
	return func(cl *Classifier) {
		cl.currentWindUnit = current
		cl.forecastWindUnit = forecast
	}
}

// NewClassifier returns a Classifier using DefaultThresholds for current readings,
// DefaultForecastThresholds for forecast days, the real clock, km/h for current
// readings and m/s for forecast days.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		clock:            clockwork.NewRealClock(),
		logger:           zap.NewNop(),
		current:          DefaultThresholds(),
		forecast:         DefaultForecastThresholds(),
		currentWindUnit:  models.WindUnitKPH,
		forecastWindUnit: models.WindUnitMPS,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current evaluates one current-conditions reading. Records are returned in rule
// order: heat, wind, storm or rain, cold, fire, UV.
func (c *Classifier) Current(obs models.Observation, location string) []models.AlertRecord {
	in := ruleInput{obs: obs, t: c.current, windUnit: c.unitFor(obs, c.currentWindUnit)}
	var out []models.AlertRecord
	for _, r := range instantRules {
		if f, ok := c.safeEval(r, in); ok {
			out = append(out, c.record(f, location, models.ModeCurrent, -1, obs.Date, in.windUnit))
		}
	}
	return out
}

// Forecast evaluates each day of an ordered series (index 0 is the nearest day).
// Every day gets the instantaneous rules, then flooding and frost. Heat reads the
// day's maximum temperature when present. From day 6
// onward the drought rule runs over the trailing seven days, so a series shorter
// than seven days never yields a drought record.
func (c *Classifier) Forecast(days []models.Observation, location string) []models.AlertRecord {
	var out []models.AlertRecord
	for i, day := range days {
		in := ruleInput{obs: day, t: c.forecast, windUnit: c.unitFor(day, c.forecastWindUnit), forecast: true}
		for _, r := range instantRules {
			if f, ok := c.safeEval(r, in); ok {
				out = append(out, c.record(f, location, models.ModeForecast, i, day.Date, in.windUnit))
			}
		}
		for _, r := range forecastRules {
			if f, ok := c.safeEval(r, in); ok {
				out = append(out, c.record(f, location, models.ModeForecast, i, day.Date, in.windUnit))
			}
		}
		if i >= droughtWindow-1 {
			window := days[i-droughtWindow+1 : i+1]
			drought := rule{name: "drought", eval: func(ruleInput) (finding, bool) {
				return droughtFinding(window, c.forecast)
			}}
			if f, ok := c.safeEval(drought, in); ok {
				out = append(out, c.record(f, location, models.ModeForecast, i, day.Date, in.windUnit))
			}
		}
	}
	return out
}

// safeEval runs a rule, treating a panic as no match.
func (c *Classifier) safeEval(r rule, in ruleInput) (f finding, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Warn("alert rule panicked",
				zap.String("rule", r.name),
				zap.Any("panic", p),
			)
			f, ok = finding{}, false
		}
	}()
	return r.eval(in)
}

func (c *Classifier) record(f finding, location, mode string, dayIndex int, date, windUnit string) models.AlertRecord {
	now := c.clock.Now()
	seq := c.seq.Add(1)
	var id string
	if dayIndex < 0 {
		id = fmt.Sprintf("%s_%d_%d", f.hazard, now.UnixMilli(), seq)
		dayIndex = 0
	} else {
		id = fmt.Sprintf("%s_d%d_%d_%d", f.hazard, dayIndex, now.UnixMilli(), seq)
	}
	return models.AlertRecord{
		ID:          id,
		Title:       f.title,
		Description: f.desc,
		Severity:    f.severity,
		Category:    categoryFor(f.hazard),
		Hazard:      f.hazard,
		Source:      sourceFor(f.hazard),
		Location:    location,
		Mode:        mode,
		Date:        date,
		DayIndex:    dayIndex,
		WindUnit:    windUnit,
		CreatedAt:   now,
		ExpiresAt:   now.Add(f.validFor),
		Active:      true,
	}
}

func (c *Classifier) unitFor(obs models.Observation, fallback string) string {
	if obs.WindUnit != "" {
		return obs.WindUnit
	}
	return fallback
}
