package models

import (
	"math"
	"time"
)

// Wind speed units as delivered by the provider endpoints.
const (
	WindUnitKPH = "km/h"
	WindUnitMPS = "m/s"
)

// Observation is a single weather reading: either current conditions or one day of a
// daily forecast. Numeric fields are pointers; nil means the provider did not report it.
type Observation struct {
	Location    string `json:"location"`
	Date        string `json:"date,omitempty"` // yyyy-mm-dd, forecast days only
	Description string `json:"description"`

	Temperature       *float64 `json:"temperature,omitempty"`
	FeelsLike         *float64 `json:"feelsLike,omitempty"`
	MinTemp           *float64 `json:"minTemp,omitempty"`
	MaxTemp           *float64 `json:"maxTemp,omitempty"`
	Humidity          *float64 `json:"humidity,omitempty"`
	WindSpeed         *float64 `json:"windSpeed,omitempty"`
	Precipitation     *float64 `json:"precipitation,omitempty"`
	PrecipProbability *float64 `json:"precipProbability,omitempty"`
	UVIndex           *float64 `json:"uvIndex,omitempty"`

	WindUnit  string    `json:"windUnit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Stale     bool      `json:"stale,omitempty"` // served from stale cache
}

// Forecast is an ordered daily series, index 0 being the nearest day.
type Forecast struct {
	Location  string        `json:"location"`
	Country   string        `json:"country,omitempty"`
	Timezone  string        `json:"timezone,omitempty"`
	Days      []Observation `json:"days"`
	Timestamp time.Time     `json:"timestamp"`
	Stale     bool          `json:"stale,omitempty"`
}

// Float returns a pointer to v. Convenience for building observations.
func Float(v float64) *float64 {
	return &v
}

// Present reports whether p holds a usable number.
func Present(p *float64) bool {
	return p != nil && !math.IsNaN(*p) && !math.IsInf(*p, 0)
}

// Value returns the number held by p, or 0 when absent.
func Value(p *float64) float64 {
	if !Present(p) {
		return 0
	}
	return *p
}

// WeeklyRain sums precipitation over the first seven days of the forecast.
func (f Forecast) WeeklyRain() float64 {
	total := 0.0
	for i := 0; i < len(f.Days) && i < 7; i++ {
		total += Value(f.Days[i].Precipitation)
	}
	return total
}

// RainyDays counts days in the first week with more than 5mm of precipitation.
func (f Forecast) RainyDays() int {
	n := 0
	for i := 0; i < len(f.Days) && i < 7; i++ {
		if Value(f.Days[i].Precipitation) > 5 {
			n++
		}
	}
	return n
}

// GoodPlantingWindow reports whether the next five days stay between 10 and 30°C
// with no more than 20mm of rain on any day.
func (f Forecast) GoodPlantingWindow() bool {
	if len(f.Days) == 0 {
		return false
	}
	for i := 0; i < len(f.Days) && i < 5; i++ {
		d := f.Days[i]
		t := Value(d.Temperature)
		if t < 10 || t > 30 || Value(d.Precipitation) > 20 {
			return false
		}
	}
	return true
}
