package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresentAndValue(t *testing.T) {
	assert.False(t, Present(nil))
	assert.False(t, Present(Float(math.NaN())))
	assert.False(t, Present(Float(math.Inf(1))))
	assert.True(t, Present(Float(0)))

	assert.Equal(t, 0.0, Value(nil))
	assert.Equal(t, 0.0, Value(Float(math.NaN())))
	assert.Equal(t, 12.5, Value(Float(12.5)))
}

func forecastWith(temps, rain []float64) Forecast {
	f := Forecast{Location: "Pretoria"}
	for i := range temps {
		d := Observation{Temperature: Float(temps[i])}
		if i < len(rain) {
			d.Precipitation = Float(rain[i])
		}
		f.Days = append(f.Days, d)
	}
	return f
}

func TestForecast_WeeklyRain(t *testing.T) {
	f := forecastWith(
		[]float64{20, 20, 20, 20, 20, 20, 20, 20},
		[]float64{1, 2, 3, 0, 6, 10, 0, 100},
	)

	assert.Equal(t, 22.0, f.WeeklyRain(), "eighth day excluded")
	assert.Equal(t, 2, f.RainyDays())
}

func TestForecast_MissingPrecipitation(t *testing.T) {
	f := forecastWith([]float64{20, 20}, nil)

	assert.Equal(t, 0.0, f.WeeklyRain())
	assert.Equal(t, 0, f.RainyDays())
}

func TestForecast_GoodPlantingWindow(t *testing.T) {
	tests := []struct {
		name  string
		temps []float64
		rain  []float64
		want  bool
	}{
		{"mild and dry", []float64{18, 20, 22, 24, 21}, []float64{0, 2, 0, 5, 1}, true},
		{"hot day", []float64{18, 20, 31, 24, 21}, nil, false},
		{"cold day", []float64{9, 20, 22, 24, 21}, nil, false},
		{"downpour", []float64{18, 20, 22, 24, 21}, []float64{0, 0, 25, 0, 0}, false},
		{"sixth day ignored", []float64{18, 20, 22, 24, 21, 40}, nil, true},
		{"no days", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, forecastWith(tt.temps, tt.rain).GoodPlantingWindow())
		})
	}
}
