package advisor

import (
	"fmt"
	"strings"
	"time"

	"github.com/mzansi-solutions/farm-alert-service/internal/alerts"
	"github.com/mzansi-solutions/farm-alert-service/internal/models"
)

// FallbackFarmingTips derives tips from today's forecast day and the weekly rain
// total. It always returns at least one tip.
func FallbackFarmingTips(fc models.Forecast) []models.FarmingTip {
	if len(fc.Days) == 0 {
		return []models.FarmingTip{{
			Title:       "No Forecast",
			Description: "Weather data unavailable. Check conditions before field work.",
			Category:    "general",
			Priority:    1,
		}}
	}
	today := fc.Days[0]
	temp := models.Value(today.Temperature)
	humidity := models.Value(today.Humidity)
	precip := models.Value(today.Precipitation)
	wind := models.Value(today.WindSpeed)

	var tips []models.FarmingTip
	if temp >= 15 && temp <= 25 && precip < 5 {
		tips = append(tips, models.FarmingTip{
			Title:       "Good Planting Day",
			Description: "Soil conditions optimal. Ideal for planting.",
			Category:    "planting",
			Priority:    5,
		})
	}
	if fc.WeeklyRain() < 10 {
		tips = append(tips, models.FarmingTip{
			Title:       "Irrigation Recommended",
			Description: "Low rainfall this week. Plan irrigation.",
			Category:    "irrigation",
			Priority:    4,
		})
	}
	if wind > 15 {
		tips = append(tips, models.FarmingTip{
			Title:       "High Wind Warning",
			Description: "Avoid spraying pesticides today.",
			Category:    "pest_control",
			Priority:    5,
		})
	}
	if humidity > 80 && temp > 20 && temp < 30 {
		tips = append(tips, models.FarmingTip{
			Title:       "Disease Risk",
			Description: "Monitor crops for fungal diseases.",
			Category:    "pest_control",
			Priority:    4,
		})
	}
	if len(tips) == 0 {
		tips = append(tips, models.FarmingTip{
			Title:       "Normal Conditions",
			Description: "Weather favorable for farming activities.",
			Category:    "general",
			Priority:    1,
		})
	}
	return tips
}

// FallbackTasks builds the week-ahead plan from crop state and the forecast.
func FallbackTasks(fc models.Forecast, crops []models.Crop, now time.Time) string {
	var b strings.Builder

	var ready []models.Crop
	for _, c := range crops {
		if c.ReadyForHarvest(now) {
			ready = append(ready, c)
		}
	}
	if len(ready) > 0 {
		b.WriteString("HARVEST READY:\n")
		for _, c := range ready {
			if d := c.DaysUntilHarvest(now); d > 0 {
				fmt.Fprintf(&b, "  • %s - in %d days\n", c.Name, d)
			} else {
				fmt.Fprintf(&b, "  • %s - READY NOW!\n", c.Name)
			}
		}
		b.WriteString("\n")
	}

	var fertilize []string
	for _, c := range crops {
		if !c.Active() || c.PlantingDate == nil {
			continue
		}
		if d := c.DaysSincePlanting(now); d == 30 || d == 60 {
			fertilize = append(fertilize, c.Name)
		}
	}
	if len(fertilize) > 0 {
		b.WriteString("FERTILIZATION:\n")
		for _, name := range fertilize {
			fmt.Fprintf(&b, "  • Apply fertilizer to %s\n", name)
		}
		b.WriteString("\n")
	}

	b.WriteString("WEEK AHEAD:\n")
	switch rain := fc.WeeklyRain(); {
	case fc.RainyDays() >= 4:
		b.WriteString("  • High rainfall expected - plan indoor tasks\n")
	case rain < 5:
		b.WriteString("  • Dry week ahead - prepare irrigation\n")
	default:
		b.WriteString("  • Mixed conditions - flexible schedule\n")
	}
	if fc.GoodPlantingWindow() {
		b.WriteString("  • Optimal planting window - next 5 days\n")
	}
	return b.String()
}

// FallbackClothing picks a suggestion from keywords in the weather description.
func FallbackClothing(condition string) string {
	c := strings.ToLower(condition)
	switch {
	case strings.Contains(c, "rain") || strings.Contains(c, "storm") || strings.Contains(c, "drizzle"):
		return "Wear waterproof jacket and pants, waterproof boots, and bring an umbrella. Layer with warm clothing underneath."
	case strings.Contains(c, "sunny") || strings.Contains(c, "clear"):
		return "Wear light, breathable clothing like cotton t-shirt and shorts. Don't forget sunglasses, hat, and sunscreen."
	case strings.Contains(c, "cloud") || strings.Contains(c, "overcast"):
		return "Wear comfortable layers - light shirt with a light jacket or sweater. Jeans or comfortable pants work well."
	case strings.Contains(c, "cold") || strings.Contains(c, "freez") || strings.Contains(c, "snow") || strings.Contains(c, "frost"):
		return "Layer up with thermal underwear, warm sweater, heavy jacket, gloves, scarf, and warm boots."
	default:
		return "Wear comfortable, weather-appropriate clothing. Consider layering for temperature changes throughout the day."
	}
}

var genericSafety = []string{
	"Monitor official weather warnings and local news for updates",
	"Keep an emergency kit with water, food, torch and first aid supplies",
	"Agree on a family meeting point and emergency contacts",
	"Move livestock and equipment to safe ground where possible",
	"Follow instructions from local disaster management officials",
}

// FallbackSafetyTips returns the stored instruction list for hazards that have
// one, and general preparedness steps otherwise.
func FallbackSafetyTips(disasterType, severity string, now time.Time) []models.SafetyTip {
	items := genericSafety
	if text, ok := alerts.Instructions(models.Hazard(strings.ToLower(disasterType))); ok {
		items = SplitItems(strings.TrimPrefix(strings.TrimSpace(text), "Detailed Instructions:"))
	}
	tips := make([]models.SafetyTip, 0, len(items))
	for i, item := range items {
		tips = append(tips, models.SafetyTip{
			ID:          fmt.Sprintf("%s_tip_%d_%d", strings.ToLower(disasterType), now.UnixMilli(), i+1),
			Title:       fmt.Sprintf("Step %d", i+1),
			Description: item,
			Category:    disasterType,
			Severity:    severity,
			Timestamp:   now,
		})
	}
	return tips
}
