package alerts

import (
	"sort"

	"github.com/mzansi-solutions/farm-alert-service/internal/models"
)

// SortBySeverity returns a copy of records ordered HIGH first. Records of equal
// severity keep their rule-evaluation order.
func SortBySeverity(records []models.AlertRecord) []models.AlertRecord {
	out := make([]models.AlertRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out
}

// Count tallies records by severity.
func Count(records []models.AlertRecord) map[models.Severity]int {
	out := make(map[models.Severity]int, 3)
	for _, r := range records {
		out[r.Severity]++
	}
	return out
}
