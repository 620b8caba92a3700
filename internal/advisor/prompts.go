package advisor

import (
	"fmt"
	"strings"
)

// SafetyPrompt asks for five numbered safety tips for a disaster.
func SafetyPrompt(disasterType, severity, location string) string {
	return fmt.Sprintf(
		"Generate 5 specific safety tips for a %s disaster with %s severity in %s. "+
			"Make the tips practical, actionable, and relevant to the local context. "+
			"Format each tip as a numbered list with clear, concise instructions. "+
			"Focus on immediate actions people should take to protect themselves and their families.",
		disasterType, severity, location)
}

// ClothingPrompt asks for a five-part clothing recommendation. windKPH is in km/h.
func ClothingPrompt(condition, temperature string, precipChance, windKPH float64, location string) string {
	return fmt.Sprintf(
		"Generate a practical clothing suggestion for %s weather in %s. "+
			"Temperature: %s, Precipitation chance: %.0f%%, Wind speed: %.0f km/h. "+
			"Provide specific clothing recommendations including: "+
			"1. Base layer (shirt/top) "+
			"2. Outer layer (jacket/sweater) "+
			"3. Bottom wear (pants/shorts) "+
			"4. Footwear "+
			"5. Accessories (hat, gloves, umbrella if needed). "+
			"Keep the response concise and actionable.",
		condition, location, temperature, precipChance, windKPH)
}

// FarmingConditions are today's numbers fed into the farming-tips prompt.
type FarmingConditions struct {
	Temperature   float64
	Humidity      float64
	Precipitation float64
	WindSpeed     float64 // m/s
	WeeklyRain    float64
}

// FarmingPrompt asks for 5-8 farming tips for today's conditions and active crops.
func FarmingPrompt(location string, c FarmingConditions, activeCrops []string) string {
	crops := "None specified"
	if len(activeCrops) > 0 {
		crops = strings.Join(activeCrops, ", ")
	}
	return fmt.Sprintf(
		"You are an expert agricultural advisor. Generate 5-8 specific, actionable farming tips for a farmer in %s. "+
			"Current conditions: Temperature %.1f°C, Humidity %.0f%%, Today's rain: %.1fmm, Wind: %.1fm/s, Weekly rain: %.1fmm. "+
			"Active crops: %s. "+
			"Cover planting conditions, irrigation needs, pest control and spraying, disease risks, "+
			"weather alerts (heat/frost/wind), and harvest timing. "+
			"Format as a list, one tip per line, each with a short title and a brief explanation.",
		location, c.Temperature, c.Humidity, c.Precipitation, c.WindSpeed, c.WeeklyRain, crops)
}

// TasksPrompt asks for a prioritized task list for the coming week.
func TasksPrompt(location string, cropSummaries []string, weeklyRain float64, rainyDays int, goodPlanting bool) string {
	crops := "No active crops"
	if len(cropSummaries) > 0 {
		crops = strings.Join(cropSummaries, ", ")
	}
	planting := "Planting conditions may be challenging."
	if goodPlanting {
		planting = "Good planting conditions expected."
	}
	return fmt.Sprintf(
		"You are an agricultural planning assistant for a farmer in %s. "+
			"Crops: %s. Weather forecast: %.1fmm rain this week, %d rainy days expected. %s "+
			"Generate a prioritized task list for the upcoming week covering: "+
			"1. Crop-specific tasks (fertilization, monitoring, harvest readiness) "+
			"2. Weather-based preparations (irrigation if dry, drainage if wet, indoor tasks if rainy) "+
			"3. Optimal windows for planting, spraying, or field work. "+
			"Keep it practical and actionable for the week ahead.",
		location, crops, weeklyRain, rainyDays, planting)
}
