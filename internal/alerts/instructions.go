package alerts

import "github.com/mzansi-solutions/farm-alert-service/internal/models"

const instructionsHeader = "\n\nDetailed Instructions:\n"

var instructions = map[models.Hazard]string{
	models.HazardHeat: instructionsHeader +
		"1. Stay indoors in air-conditioned spaces\n" +
		"2. Drink plenty of water (at least 8 glasses per day)\n" +
		"3. Avoid alcoholic and caffeinated beverages\n" +
		"4. Wear loose, light-colored clothing\n" +
		"5. Check on elderly neighbors and family members\n" +
		"6. Never leave children or pets in vehicles",
	models.HazardWind: instructionsHeader +
		"1. Secure outdoor furniture and loose objects\n" +
		"2. Avoid driving unless absolutely necessary\n" +
		"3. Stay away from trees and power lines\n" +
		"4. Keep emergency supplies ready\n" +
		"5. Close and secure all windows and doors\n" +
		"6. Monitor local news for updates",
	models.HazardStorm: instructionsHeader +
		"1. Seek shelter immediately in a sturdy building\n" +
		"2. Avoid open areas, tall trees, and metal objects\n" +
		"3. Stay away from windows and doors\n" +
		"4. Unplug electrical appliances\n" +
		"5. Have a battery-powered radio ready\n" +
		"6. Wait 30 minutes after the last thunder before going outside",
}

// Instructions returns the safety instruction block for a hazard, if it has one.
func Instructions(h models.Hazard) (string, bool) {
	s, ok := instructions[h]
	return s, ok
}

// Detailed returns copies of records with the hazard's instruction block appended
// to the description. Records of hazards without instructions are copied unchanged.
func Detailed(records []models.AlertRecord) []models.AlertRecord {
	if records == nil {
		return nil
	}
	out := make([]models.AlertRecord, len(records))
	for i, r := range records {
		if extra, ok := instructions[r.Hazard]; ok {
			r.Description += extra
		}
		out[i] = r
	}
	return out
}
