//go:build integration
// +build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/mzansi-solutions/farm-alert-service/internal/models"
)

// TestMemcachedCache_GetSet_Integration verifies round trips and stale reads
// against a local memcached.
func TestMemcachedCache_GetSet_Integration(t *testing.T) {
	client := NewMemcachedClient("localhost:11211", 500*time.Millisecond, 2)
	defer client.Close()
	c := NewMemcachedCache[models.Observation](client, "current", time.Hour)

	ctx := context.Background()
	val := testObservation("durban")
	if err := c.Set(ctx, "durban", val, time.Minute); err != nil {
		t.Skipf("Set failed (memcached may not be running): %v", err)
	}

	got, ok, err := c.Get(ctx, "durban")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Location != val.Location || models.Value(got.Temperature) != 24.5 {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}

	stale, ok, err := c.GetStale(ctx, "durban", time.Hour)
	if err != nil || !ok {
		t.Fatalf("GetStale() = ok %v err %v", ok, err)
	}
	if stale.Location != "durban" {
		t.Errorf("GetStale() location = %q", stale.Location)
	}
}

// TestMemcachedCache_Get_Miss_Integration verifies a miss for an unknown key.
func TestMemcachedCache_Get_Miss_Integration(t *testing.T) {
	client := NewMemcachedClient("localhost:11211", 500*time.Millisecond, 2)
	defer client.Close()
	c := NewMemcachedCache[models.Forecast](client, "forecast", time.Hour)

	_, ok, err := c.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Skipf("Get failed (memcached may not be running): %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}
