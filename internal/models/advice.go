package models

import "time"

// Where advisory text came from.
const (
	AdviceSourceAI       = "ai"
	AdviceSourceFallback = "fallback"
)

// FarmingTip is one piece of farming advice.
type FarmingTip struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    int    `json:"priority"`
}

// FarmingAdvice is the response for a farming-tips request.
type FarmingAdvice struct {
	Location string       `json:"location"`
	Source   string       `json:"source"`
	Tips     []FarmingTip `json:"tips"`
}

// TaskPlan is the upcoming-week task list.
type TaskPlan struct {
	Location string `json:"location"`
	Source   string `json:"source"`
	Text     string `json:"text"`
}

// SafetyTip is one step of disaster-safety guidance.
type SafetyTip struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Severity    string    `json:"severity"`
	Timestamp   time.Time `json:"timestamp"`
	Generated   bool      `json:"generated"`
}

// SafetyAdvice groups the safety tips generated for one disaster.
type SafetyAdvice struct {
	DisasterType string      `json:"disasterType"`
	Severity     string      `json:"severity"`
	Location     string      `json:"location"`
	Source       string      `json:"source"`
	Tips         []SafetyTip `json:"tips"`
}

// ClothingSuggestion is a clothing recommendation for one forecast day.
type ClothingSuggestion struct {
	Day              string    `json:"day"`
	WeatherCondition string    `json:"weatherCondition"`
	Temperature      string    `json:"temperature"`
	Suggestion       string    `json:"suggestion"`
	Items            []string  `json:"items,omitempty"`
	Source           string    `json:"source"`
	Timestamp        time.Time `json:"timestamp"`
}
