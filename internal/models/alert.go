package models

import "time"

// Severity is the alert tier. HIGH is a warning, MEDIUM an advisory.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// Rank orders severities for sorting; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Category groups alerts for presentation.
type Category string

const (
	CategoryWeather  Category = "Weather"
	CategoryFire     Category = "Fire"
	CategoryHealth   Category = "Health"
	CategoryFlooding Category = "Flooding"
	CategoryWind     Category = "Wind"
	CategoryHeat     Category = "Heat"
	CategoryFrost    Category = "Frost"
	CategoryDrought  Category = "Drought"
)

// Hazard names the rule family that produced an alert.
type Hazard string

const (
	HazardHeat     Hazard = "heat"
	HazardWind     Hazard = "wind"
	HazardStorm    Hazard = "storm"
	HazardRain     Hazard = "rain"
	HazardCold     Hazard = "cold"
	HazardFire     Hazard = "fire"
	HazardUV       Hazard = "uv"
	HazardFlooding Hazard = "flooding"
	HazardFrost    Hazard = "frost"
	HazardDrought  Hazard = "drought"
)

// Evaluation modes of the classifier.
const (
	ModeCurrent  = "current"
	ModeForecast = "forecast"
)

// AlertRecord is one disaster-risk notice. Records are created fresh on every
// classification and never mutated afterwards.
type AlertRecord struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	Category    Category  `json:"category"`
	Hazard      Hazard    `json:"hazard"`
	Source      string    `json:"source"`
	Location    string    `json:"location"`
	Mode        string    `json:"mode"`
	Date        string    `json:"date,omitempty"`     // forecast day the record refers to
	DayIndex    int       `json:"dayIndex,omitempty"` // position in the forecast series
	WindUnit    string    `json:"windUnit,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Active      bool      `json:"active"`
}
