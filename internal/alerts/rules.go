package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/mzansi-solutions/farm-alert-service/internal/models"
)

const (
	sourceWeather = "SA Weather Service"
	sourceFire    = "SA Fire Service"
	sourceHealth  = "SA Health Department"
)

// finding is what a rule reports when it matches. The classifier turns it into
// an AlertRecord.
type finding struct {
	hazard   models.Hazard
	title    string
	desc     string
	severity models.Severity
	validFor time.Duration
}

// ruleInput is one observation together with the thresholds of its mode.
type ruleInput struct {
	obs      models.Observation
	t        Thresholds
	windUnit string
	forecast bool
}

// heatTemp is the day's maximum for forecast days when reported, otherwise the
// reading's temperature.
func (in ruleInput) heatTemp() *float64 {
	if in.forecast && models.Present(in.obs.MaxTemp) {
		return in.obs.MaxTemp
	}
	return in.obs.Temperature
}

type rule struct {
	name string
	eval func(in ruleInput) (finding, bool)
}

// instantRules run in both modes, in this order.
var instantRules = []rule{
	{name: "heat", eval: heatRule},
	{name: "wind", eval: windRule},
	{name: "storm", eval: stormRule},
	{name: "cold", eval: coldRule},
	{name: "fire", eval: fireRule},
	{name: "uv", eval: uvRule},
}

// forecastRules run after the instantaneous rules for every forecast day.
var forecastRules = []rule{
	{name: "flooding", eval: floodRule},
	{name: "frost", eval: frostRule},
}

func gt(p *float64, limit float64) bool {
	return models.Present(p) && *p > limit
}

func lt(p *float64, limit float64) bool {
	return models.Present(p) && *p < limit
}

func heatRule(in ruleInput) (finding, bool) {
	temp := in.heatTemp()
	switch {
	case gt(temp, in.t.HeatWarning):
		return finding{
			hazard:   models.HazardHeat,
			title:    "Heat Wave Warning",
			desc:     "Extreme temperatures detected. Heat index may reach dangerous levels. Stay hydrated and avoid outdoor activities.",
			severity: models.SeverityHigh,
			validFor: 24 * time.Hour,
		}, true
	case gt(temp, in.t.HeatAdvisory):
		return finding{
			hazard:   models.HazardHeat,
			title:    "Heat Advisory",
			desc:     "High temperatures expected. Drink plenty of water and limit outdoor activities during peak hours.",
			severity: models.SeverityMedium,
			validFor: 12 * time.Hour,
		}, true
	}
	return finding{}, false
}

func windRule(in ruleInput) (finding, bool) {
	wind := in.obs.WindSpeed
	switch {
	case gt(wind, in.t.WindWarning):
		return finding{
			hazard:   models.HazardWind,
			title:    "High Wind Warning",
			desc:     fmt.Sprintf("Strong winds detected with speeds up to %d %s. Secure loose objects and avoid outdoor activities.", int(*wind), in.windUnit),
			severity: models.SeverityHigh,
			validFor: 6 * time.Hour,
		}, true
	case gt(wind, in.t.WindAdvisory):
		return finding{
			hazard:   models.HazardWind,
			title:    "Wind Advisory",
			desc:     "Moderate to strong winds expected. Be cautious when driving and secure outdoor furniture.",
			severity: models.SeverityMedium,
			validFor: 3 * time.Hour,
		}, true
	}
	return finding{}, false
}

// stormRule covers both description-driven hazards. A storm suppresses the rain
// advisory for the same observation.
func stormRule(in ruleInput) (finding, bool) {
	desc := strings.ToLower(in.obs.Description)
	if desc == "" {
		return finding{}, false
	}
	if strings.Contains(desc, "storm") {
		return finding{
			hazard:   models.HazardStorm,
			title:    "Thunderstorm Warning",
			desc:     "Severe thunderstorms detected in your area. Seek shelter immediately and avoid open areas.",
			severity: models.SeverityHigh,
			validFor: 2 * time.Hour,
		}, true
	}
	if strings.Contains(desc, "rain") && gt(in.obs.Humidity, in.t.RainHumidity) {
		return finding{
			hazard:   models.HazardRain,
			title:    "Heavy Rain Advisory",
			desc:     "Heavy rainfall expected. Be cautious of flash flooding and slippery roads.",
			severity: models.SeverityMedium,
			validFor: 4 * time.Hour,
		}, true
	}
	return finding{}, false
}

func coldRule(in ruleInput) (finding, bool) {
	temp := in.obs.Temperature
	switch {
	case lt(temp, in.t.ColdWarning):
		return finding{
			hazard:   models.HazardCold,
			title:    "Cold Weather Warning",
			desc:     "Extremely cold temperatures detected. Dress warmly and be aware of frostbite risk.",
			severity: models.SeverityHigh,
			validFor: 24 * time.Hour,
		}, true
	case lt(temp, in.t.ColdAdvisory):
		return finding{
			hazard:   models.HazardCold,
			title:    "Cold Weather Advisory",
			desc:     "Cold temperatures expected. Dress in layers and protect exposed skin.",
			severity: models.SeverityMedium,
			validFor: 12 * time.Hour,
		}, true
	}
	return finding{}, false
}

func fireRule(in ruleInput) (finding, bool) {
	o := in.obs
	if gt(o.Temperature, in.t.FireTemp) && lt(o.Humidity, in.t.FireHumidity) && gt(o.WindSpeed, in.t.FireWind) {
		return finding{
			hazard:   models.HazardFire,
			title:    "High Fire Risk Warning",
			desc:     "High fire risk conditions detected. Avoid outdoor fires and be extremely cautious with flammable materials.",
			severity: models.SeverityHigh,
			validFor: 6 * time.Hour,
		}, true
	}
	return finding{}, false
}

func uvRule(in ruleInput) (finding, bool) {
	if gt(in.obs.UVIndex, in.t.UVIndex) {
		return finding{
			hazard:   models.HazardUV,
			title:    "High UV Index Warning",
			desc:     "Extremely high UV index detected. Avoid sun exposure between 10 AM and 4 PM. Use sunscreen and protective clothing.",
			severity: models.SeverityMedium,
			validFor: 8 * time.Hour,
		}, true
	}
	return finding{}, false
}

func floodRule(in ruleInput) (finding, bool) {
	p := in.obs.Precipitation
	if !gt(p, in.t.FloodPrecip) {
		return finding{}, false
	}
	return finding{
		hazard:   models.HazardFlooding,
		title:    "Heavy Rainfall Alert",
		desc:     fmt.Sprintf("%.1f mm expected on %s. Risk of flooding.", *p, dayLabel(in.obs)),
		severity: models.SeverityHigh,
		validFor: 24 * time.Hour,
	}, true
}

func frostRule(in ruleInput) (finding, bool) {
	m := in.obs.MinTemp
	if !lt(m, in.t.FrostMinTemp) {
		return finding{}, false
	}
	return finding{
		hazard:   models.HazardFrost,
		title:    "Frost Warning",
		desc:     fmt.Sprintf("%.0f°C expected on %s. Protect sensitive crops.", *m, dayLabel(in.obs)),
		severity: models.SeverityMedium,
		validFor: 24 * time.Hour,
	}, true
}

// droughtFinding evaluates a 7-day precipitation window. Absent values count as no rain.
func droughtFinding(window []models.Observation, t Thresholds) (finding, bool) {
	if len(window) < droughtWindow {
		return finding{}, false
	}
	total := 0.0
	for _, d := range window {
		total += models.Value(d.Precipitation)
	}
	if total >= t.DroughtRain {
		return finding{}, false
	}
	return finding{
		hazard:   models.HazardDrought,
		title:    "Drought Risk",
		desc:     fmt.Sprintf("Very low rainfall in the coming week (%.1f mm total). Consider irrigation.", total),
		severity: models.SeverityLow,
		validFor: 7 * 24 * time.Hour,
	}, true
}

func dayLabel(o models.Observation) string {
	if o.Date != "" {
		return o.Date
	}
	return "the forecast day"
}

func categoryFor(h models.Hazard) models.Category {
	switch h {
	case models.HazardHeat:
		return models.CategoryHeat
	case models.HazardWind:
		return models.CategoryWind
	case models.HazardFire:
		return models.CategoryFire
	case models.HazardUV:
		return models.CategoryHealth
	case models.HazardFlooding:
		return models.CategoryFlooding
	case models.HazardFrost:
		return models.CategoryFrost
	case models.HazardDrought:
		return models.CategoryDrought
	default:
		return models.CategoryWeather
	}
}

func sourceFor(h models.Hazard) string {
	switch h {
	case models.HazardFire:
		return sourceFire
	case models.HazardUV:
		return sourceHealth
	default:
		return sourceWeather
	}
}
