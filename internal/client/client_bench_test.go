package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// BenchmarkClient_BuildRequest benchmarks HTTP request construction for a city label.
func BenchmarkClient_BuildRequest(b *testing.B) {
	client, _ := NewWeatherbitClient("test-api-key-12345", "https://api.weatherbit.io/v2.0", 2*time.Second)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = client.buildRequest(ctx, "forecast/daily", "Polokwane", nil)
	}
}

// BenchmarkClient_ParseForecast benchmarks decoding and mapping a forecast payload.
func BenchmarkClient_ParseForecast(b *testing.B) {
	raw := []byte(forecastBody)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var resp forecastResponse
		_ = json.Unmarshal(raw, &resp)
		for _, d := range resp.Data {
			_ = mapDay(d, "polokwane", "m/s")
		}
	}
}

// BenchmarkClient_GetCurrent benchmarks a full round trip against a local server.
func BenchmarkClient_GetCurrent(b *testing.B) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(currentBody))
	}))
	defer server.Close()

	client, _ := NewWeatherbitClient("test-api-key-12345", server.URL, 2*time.Second)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = client.GetCurrent(ctx, "Pretoria")
	}
}
