package alerts

import (
	"errors"
	"fmt"
)

// ErrInvalidThresholds is returned by Thresholds.Validate.
var ErrInvalidThresholds = errors.New("invalid alert thresholds")

// Thresholds are the numeric trigger points for one invocation mode. Values are
// compared literally against the observation; wind speed is in whatever unit the
// provider endpoint delivers for that mode.
type Thresholds struct {
	HeatWarning  float64 // temp > HeatWarning
	HeatAdvisory float64 // HeatAdvisory < temp <= HeatWarning
	WindWarning  float64
	WindAdvisory float64 // equal to WindWarning disables the advisory tier
	RainHumidity float64 // description mentions rain and humidity above this
	ColdWarning  float64 // temp < ColdWarning
	ColdAdvisory float64 // ColdWarning <= temp < ColdAdvisory
	FireTemp     float64
	FireHumidity float64
	FireWind     float64
	UVIndex      float64
	FloodPrecip  float64 // forecast only, mm per day
	FrostMinTemp float64 // forecast only
	DroughtRain  float64 // forecast only, mm over a 7-day window
}

// DefaultThresholds returns the trigger points for current conditions, where wind
// is reported in km/h.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HeatWarning:  35,
		HeatAdvisory: 30,
		WindWarning:  50,
		WindAdvisory: 30,
		RainHumidity: 80,
		ColdWarning:  5,
		ColdAdvisory: 10,
		FireTemp:     25,
		FireHumidity: 30,
		FireWind:     15,
		UVIndex:      8,
		FloodPrecip:  50,
		FrostMinTemp: 0,
		DroughtRain:  5,
	}
}

// DefaultForecastThresholds returns the trigger points for forecast days. Daily
// forecasts report wind in m/s and warn above 15 with no advisory tier; heat is
// compared against the day's maximum temperature.
func DefaultForecastThresholds() Thresholds {
	t := DefaultThresholds()
	t.WindWarning = 15
	t.WindAdvisory = 15
	return t
}

// Validate checks that each two-tier hazard has its tiers in the right order.
func (t Thresholds) Validate() error {
	if t.HeatAdvisory >= t.HeatWarning {
		return fmt.Errorf("%w: heat advisory %.1f must be below warning %.1f", ErrInvalidThresholds, t.HeatAdvisory, t.HeatWarning)
	}
	if t.WindAdvisory > t.WindWarning {
		return fmt.Errorf("%w: wind advisory %.1f must not exceed warning %.1f", ErrInvalidThresholds, t.WindAdvisory, t.WindWarning)
	}
	if t.ColdAdvisory <= t.ColdWarning {
		return fmt.Errorf("%w: cold advisory %.1f must be above warning %.1f", ErrInvalidThresholds, t.ColdAdvisory, t.ColdWarning)
	}
	if t.DroughtRain < 0 {
		return fmt.Errorf("%w: drought rainfall must be non-negative", ErrInvalidThresholds)
	}
	return nil
}
