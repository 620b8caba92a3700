package advisor

import (
	"reflect"
	"testing"
	"time"
)

func TestSplitItems(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace", "  \n\t\n", nil},
		{
			name: "numbered",
			in:   "1. Seek shelter in a sturdy building\n2) Avoid open fields\n\n3.Stay away from windows",
			want: []string{"Seek shelter in a sturdy building", "Avoid open fields", "Stay away from windows"},
		},
		{
			name: "bullets and emphasis",
			in:   "- **Base layer**: cotton shirt\n* Outer layer: rain jacket\n• Boots: waterproof",
			want: []string{"Base layer: cotton shirt", "Outer layer: rain jacket", "Boots: waterproof"},
		},
		{
			name: "short lines dropped",
			in:   "Tips:\n1.\n- ok\nDrink plenty of water",
			want: []string{"Drink plenty of water"},
		},
		{
			name: "leading quantities kept",
			in:   "40mm of rain expected by Friday\n1. Water early\n2) Mulch the beds\n- 25 kg bags of lime",
			want: []string{"40mm of rain expected by Friday", "Water early", "Mulch the beds", "25 kg bags of lime"},
		},
		{
			name: "markdown heading",
			in:   "## Week ahead\nCheck drainage channels",
			want: []string{"Week ahead", "Check drainage channels"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitItems(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitItems() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestParseSafetyTips verifies titles are split on the first colon and that every
// tip carries the disaster metadata.
func TestParseSafetyTips(t *testing.T) {
	now := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	text := "1. Move livestock: Take animals to higher ground before the river rises.\n" +
		"2. Keep a battery radio on hand for official updates and warnings"

	tips := ParseSafetyTips(text, "flooding", "HIGH", now)
	if len(tips) != 2 {
		t.Fatalf("len(tips) = %d, want 2", len(tips))
	}
	if tips[0].Title != "Move livestock" || tips[0].Description != "Take animals to higher ground before the river rises." {
		t.Errorf("tip 0 = %+v", tips[0])
	}
	if tips[1].Title != "Keep a battery radio on hand" {
		t.Errorf("tip 1 title = %q", tips[1].Title)
	}
	for i, tip := range tips {
		if tip.Category != "flooding" || tip.Severity != "HIGH" || !tip.Generated || !tip.Timestamp.Equal(now) {
			t.Errorf("tip %d metadata = %+v", i, tip)
		}
	}
	if tips[0].ID == tips[1].ID {
		t.Error("tip ids should be unique")
	}
}

func TestParseSafetyTips_Malformed(t *testing.T) {
	for _, in := range []string{"", "\n\n", "1.\n2.\n-"} {
		if got := ParseSafetyTips(in, "storm", "HIGH", time.Now()); got != nil {
			t.Errorf("ParseSafetyTips(%q) = %v, want nil", in, got)
		}
	}
}

func TestParseFarmingTips_Categories(t *testing.T) {
	text := "1. Irrigation: water early in the morning\n" +
		"2. Spraying: avoid pesticide spraying in wind\n" +
		"3. Harvest timing: maize is close to maturity\n" +
		"4. Keep records of field activities"
	tips := ParseFarmingTips(text)
	want := []string{"irrigation", "pest_control", "harvest", "general"}
	if len(tips) != len(want) {
		t.Fatalf("len(tips) = %d, want %d", len(tips), len(want))
	}
	for i, w := range want {
		if tips[i].Category != w {
			t.Errorf("tip %d category = %q, want %q", i, tips[i].Category, w)
		}
	}
}
