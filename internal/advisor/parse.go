package advisor

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mzansi-solutions/farm-alert-service/internal/models"
)

// leading list markers: "1.", "2)", "-", "*", "•", "**" and runs of them. Digits
// count only when closed by "." or ")".
var listMarker = regexp.MustCompile(`^(?:\d+[.)]|[\*\-•#]+)\s*`)

const minItemLen = 6

// SplitItems breaks generated text into list items: one per non-empty line, with
// numbering, bullets and markdown emphasis stripped. Lines shorter than six
// characters after stripping are dropped. Never fails; empty input yields nil.
func SplitItems(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		item := strings.TrimSpace(line)
		for {
			stripped := strings.TrimSpace(listMarker.ReplaceAllString(item, ""))
			if stripped == item {
				break
			}
			item = stripped
		}
		item = strings.TrimSpace(strings.ReplaceAll(item, "**", ""))
		if len([]rune(item)) < minItemLen {
			continue
		}
		out = append(out, item)
	}
	return out
}

// ParseSafetyTips turns a numbered safety list into tips. A "Title: detail" item is
// split on the first colon; otherwise the whole item is the description and the
// title is its leading words. Unparseable input yields nil.
func ParseSafetyTips(text, disasterType, severity string, now time.Time) []models.SafetyTip {
	items := SplitItems(text)
	if len(items) == 0 {
		return nil
	}
	tips := make([]models.SafetyTip, 0, len(items))
	for i, item := range items {
		title, desc := splitTitle(item)
		tips = append(tips, models.SafetyTip{
			ID:          fmt.Sprintf("%s_tip_%d_%d", strings.ToLower(disasterType), now.UnixMilli(), i+1),
			Title:       title,
			Description: desc,
			Category:    disasterType,
			Severity:    severity,
			Timestamp:   now,
			Generated:   true,
		})
	}
	return tips
}

// ParseFarmingTips turns generated farming advice into tips, categorised by keyword.
func ParseFarmingTips(text string) []models.FarmingTip {
	items := SplitItems(text)
	tips := make([]models.FarmingTip, 0, len(items))
	for _, item := range items {
		title, desc := splitTitle(item)
		tips = append(tips, models.FarmingTip{
			Title:       title,
			Description: desc,
			Category:    tipCategory(item),
			Priority:    3,
		})
	}
	return tips
}

func splitTitle(item string) (string, string) {
	if i := strings.Index(item, ":"); i > 0 && i < 80 {
		title := strings.TrimSpace(item[:i])
		desc := strings.TrimSpace(item[i+1:])
		if desc != "" {
			return title, desc
		}
	}
	words := strings.Fields(item)
	if len(words) > 6 {
		words = words[:6]
	}
	return strings.TrimRight(strings.Join(words, " "), ".,;"), item
}

var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"irrigation", []string{"irrigat", "water", "drought", "dry"}},
	{"pest_control", []string{"pest", "spray", "disease", "fung", "insect"}},
	{"planting", []string{"plant", "sow", "seed"}},
	{"harvest", []string{"harvest"}},
	{"weather", []string{"frost", "heat", "wind", "storm", "rain"}},
}

func tipCategory(item string) string {
	lower := strings.ToLower(item)
	for _, c := range categoryKeywords {
		for _, w := range c.words {
			if strings.Contains(lower, w) {
				return c.category
			}
		}
	}
	return "general"
}
