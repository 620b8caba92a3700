package models

import "time"

// CropStatus is the lifecycle stage of a tracked crop.
type CropStatus string

const (
	CropPlanted   CropStatus = "planted"
	CropGrowing   CropStatus = "growing"
	CropReady     CropStatus = "ready"
	CropHarvested CropStatus = "harvested"
)

// Valid reports whether s is a known status.
func (s CropStatus) Valid() bool {
	switch s {
	case CropPlanted, CropGrowing, CropReady, CropHarvested:
		return true
	}
	return false
}

// Crop is a planting tracked by a farmer.
type Crop struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Variety             string     `json:"variety,omitempty"`
	PlantingDate        *time.Time `json:"plantingDate,omitempty"`
	ExpectedHarvestDate *time.Time `json:"expectedHarvestDate,omitempty"`
	Status              CropStatus `json:"status"`
	AreaSize            float64    `json:"areaSize"` // hectares
	Notes               string     `json:"notes,omitempty"`
	GrowingDays         int        `json:"growingDays"`
}

const day = 24 * time.Hour

// DaysUntilHarvest returns whole days from now to the expected harvest, or -1 when unknown.
func (c Crop) DaysUntilHarvest(now time.Time) int {
	if c.ExpectedHarvestDate == nil {
		return -1
	}
	return int(c.ExpectedHarvestDate.Sub(now) / day)
}

// DaysSincePlanting returns whole days since planting, or 0 when unknown.
func (c Crop) DaysSincePlanting(now time.Time) int {
	if c.PlantingDate == nil {
		return 0
	}
	return int(now.Sub(*c.PlantingDate) / day)
}

// GrowthProgress returns percent of the growing period elapsed.
func (c Crop) GrowthProgress(now time.Time) int {
	if c.GrowingDays == 0 {
		return 0
	}
	return c.DaysSincePlanting(now) * 100 / c.GrowingDays
}

// Active reports whether the crop is still in the ground.
func (c Crop) Active() bool {
	return c.Status == CropPlanted || c.Status == CropGrowing
}

// ReadyForHarvest reports whether the crop is marked ready or has a known harvest
// date at most seven days away. Harvested crops are never ready.
func (c Crop) ReadyForHarvest(now time.Time) bool {
	if c.Status == CropHarvested {
		return false
	}
	if c.Status == CropReady {
		return true
	}
	d := c.DaysUntilHarvest(now)
	return c.ExpectedHarvestDate != nil && d <= 7
}
