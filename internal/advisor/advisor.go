// Package advisor produces farming, task, safety and clothing advice from a text
// generator, falling back to rule-based text whenever generation fails.
package advisor

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/mzansi-solutions/farm-alert-service/internal/models"
	"github.com/mzansi-solutions/farm-alert-service/internal/observability"
)

const (
	kindFarming  = "farming"
	kindTasks    = "tasks"
	kindSafety   = "safety"
	kindClothing = "clothing"

	mpsToKPH = 3.6
)

// Advisor wraps a Generator with prompts, post-processing and offline fallbacks.
// A nil generator always uses the fallbacks.
type Advisor struct {
	gen    Generator
	clock  clockwork.Clock
	logger *zap.Logger
}

// New creates an Advisor. clock and logger may be nil.
func New(gen Generator, clock clockwork.Clock, logger *zap.Logger) *Advisor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advisor{gen: gen, clock: clock, logger: logger}
}

// generate calls the generator and records metrics. ok is false when the caller
// should use its fallback.
func (a *Advisor) generate(ctx context.Context, kind, prompt string) (string, bool) {
	logger := loggerFromContext(ctx, a.logger)
	if a.gen == nil {
		observability.AdvisorFallbacksTotal.WithLabelValues(kind).Inc()
		return "", false
	}
	start := a.clock.Now()
	text, err := a.gen.Generate(ctx, prompt)
	observability.AdvisorDuration.WithLabelValues(kind).Observe(a.clock.Since(start).Seconds())
	if err != nil {
		observability.AdvisorCallsTotal.WithLabelValues(kind, "error").Inc()
		observability.AdvisorFallbacksTotal.WithLabelValues(kind).Inc()
		logger.Warn("text generation failed, using fallback", zap.String("kind", kind), zap.Error(err))
		return "", false
	}
	observability.AdvisorCallsTotal.WithLabelValues(kind, "success").Inc()
	return text, true
}

// FarmingTips advises on today's conditions (forecast day 0) and the active crops.
func (a *Advisor) FarmingTips(ctx context.Context, location string, fc models.Forecast, crops []models.Crop) models.FarmingAdvice {
	out := models.FarmingAdvice{Location: location, Source: models.AdviceSourceFallback}
	if len(fc.Days) == 0 {
		out.Tips = FallbackFarmingTips(fc)
		return out
	}
	today := fc.Days[0]
	cond := FarmingConditions{
		Temperature:   models.Value(today.Temperature),
		Humidity:      models.Value(today.Humidity),
		Precipitation: models.Value(today.Precipitation),
		WindSpeed:     models.Value(today.WindSpeed),
		WeeklyRain:    fc.WeeklyRain(),
	}
	var names []string
	for _, c := range crops {
		if c.Active() {
			names = append(names, c.Name)
		}
	}

	if text, ok := a.generate(ctx, kindFarming, FarmingPrompt(location, cond, names)); ok {
		if tips := ParseFarmingTips(text); len(tips) > 0 {
			out.Source = models.AdviceSourceAI
			out.Tips = tips
			return out
		}
	}
	out.Tips = FallbackFarmingTips(fc)
	return out
}

// UpcomingTasks plans the coming week from crop state and the forecast.
func (a *Advisor) UpcomingTasks(ctx context.Context, location string, fc models.Forecast, crops []models.Crop) models.TaskPlan {
	now := a.clock.Now()
	var summaries []string
	for _, c := range crops {
		if !c.Active() {
			continue
		}
		summaries = append(summaries, fmt.Sprintf("%s (planted %d days ago, harvest in %d days)",
			c.Name, c.DaysSincePlanting(now), c.DaysUntilHarvest(now)))
	}

	prompt := TasksPrompt(location, summaries, fc.WeeklyRain(), fc.RainyDays(), fc.GoodPlantingWindow())
	if text, ok := a.generate(ctx, kindTasks, prompt); ok {
		return models.TaskPlan{Location: location, Source: models.AdviceSourceAI, Text: text}
	}
	return models.TaskPlan{Location: location, Source: models.AdviceSourceFallback, Text: FallbackTasks(fc, crops, now)}
}

// SafetyTips returns guidance for a disaster type (usually an alert hazard).
func (a *Advisor) SafetyTips(ctx context.Context, disasterType, severity, location string) models.SafetyAdvice {
	now := a.clock.Now()
	out := models.SafetyAdvice{
		DisasterType: disasterType,
		Severity:     severity,
		Location:     location,
		Source:       models.AdviceSourceFallback,
	}
	if text, ok := a.generate(ctx, kindSafety, SafetyPrompt(disasterType, severity, location)); ok {
		if tips := ParseSafetyTips(text, disasterType, severity, now); len(tips) > 0 {
			out.Source = models.AdviceSourceAI
			out.Tips = tips
			return out
		}
	}
	out.Tips = FallbackSafetyTips(disasterType, severity, now)
	return out
}

// Clothing suggests what to wear on one forecast day.
func (a *Advisor) Clothing(ctx context.Context, location string, day models.Observation) models.ClothingSuggestion {
	condition := day.Description
	if condition == "" {
		condition = "Unknown"
	}
	temp := "unknown"
	if models.Present(day.Temperature) {
		temp = fmt.Sprintf("%.1f°C", *day.Temperature)
	}
	wind := models.Value(day.WindSpeed)
	if day.WindUnit == models.WindUnitMPS {
		wind *= mpsToKPH
	}

	out := models.ClothingSuggestion{
		Day:              day.Date,
		WeatherCondition: condition,
		Temperature:      temp,
		Source:           models.AdviceSourceFallback,
		Timestamp:        a.clock.Now(),
	}
	prompt := ClothingPrompt(condition, temp, models.Value(day.PrecipProbability), wind, location)
	if text, ok := a.generate(ctx, kindClothing, prompt); ok {
		out.Source = models.AdviceSourceAI
		out.Suggestion = text
		out.Items = SplitItems(text)
		return out
	}
	out.Suggestion = FallbackClothing(condition)
	return out
}

func loggerFromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value("logger").(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}
