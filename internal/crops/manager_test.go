package crops

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzansi-solutions/farm-alert-service/internal/models"
	"github.com/mzansi-solutions/farm-alert-service/internal/store"
)

var now = time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)

func newTestManager() (*Manager, *store.MemoryStore) {
	clock := clockwork.NewFakeClockAt(now)
	st := store.NewMemoryStore(clock)
	return NewManager(st, clock), st
}

func daysFromNow(d int) *time.Time {
	t := now.AddDate(0, 0, d)
	return &t
}

// failingStore returns err from every call.
type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, f.err }
func (f failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return f.err
}
func (f failingStore) Delete(context.Context, string) error { return f.err }
func (f failingStore) Ping(context.Context) error           { return f.err }

func TestAdd_AssignsIDAndDefaults(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	c, err := m.Add(ctx, "u1", models.Crop{Name: "  Maize ", AreaSize: 2.5})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Maize", c.Name)
	assert.Equal(t, models.CropPlanted, c.Status)

	all, err := m.All(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, c, all[0])
}

func TestAdd_KeepsCallerID(t *testing.T) {
	m, _ := newTestManager()
	c, err := m.Add(context.Background(), "u1", models.Crop{ID: "crop-1", Name: "Sorghum"})
	require.NoError(t, err)
	assert.Equal(t, "crop-1", c.ID)

	_, err = m.Add(context.Background(), "u1", models.Crop{ID: "crop-1", Name: "Beans"})
	assert.ErrorIs(t, err, ErrInvalidCrop)
}

func TestAdd_DerivesHarvestDate(t *testing.T) {
	m, _ := newTestManager()
	c, err := m.Add(context.Background(), "u1", models.Crop{
		Name:         "Tomatoes",
		PlantingDate: daysFromNow(-10),
		GrowingDays:  80,
	})
	require.NoError(t, err)
	require.NotNil(t, c.ExpectedHarvestDate)
	assert.Equal(t, now.AddDate(0, 0, 70), *c.ExpectedHarvestDate)
	assert.Equal(t, 70, c.DaysUntilHarvest(now))
}

func TestAdd_Validation(t *testing.T) {
	tests := []struct {
		name string
		crop models.Crop
	}{
		{"empty name", models.Crop{Name: "   "}},
		{"unknown status", models.Crop{Name: "Maize", Status: "sprouting"}},
		{"negative area", models.Crop{Name: "Maize", AreaSize: -1}},
		{"negative growing days", models.Crop{Name: "Maize", GrowingDays: -5}},
		{"harvest before planting", models.Crop{Name: "Maize", PlantingDate: daysFromNow(0), ExpectedHarvestDate: daysFromNow(-3)}},
	}
	m, _ := newTestManager()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Add(context.Background(), "u1", tt.crop)
			assert.ErrorIs(t, err, ErrInvalidCrop)
		})
	}

	all, err := m.All(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMissingUser(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	_, err := m.Add(ctx, "", models.Crop{Name: "Maize"})
	assert.ErrorIs(t, err, ErrMissingUser)
	_, err = m.All(ctx, "")
	assert.ErrorIs(t, err, ErrMissingUser)
	assert.ErrorIs(t, m.Delete(ctx, "", "x"), ErrMissingUser)
	assert.ErrorIs(t, m.Clear(ctx, ""), ErrMissingUser)
}

func TestListsArePerUser(t *testing.T) {
	m, st := newTestManager()
	ctx := context.Background()

	_, err := m.Add(ctx, "u1", models.Crop{Name: "Maize"})
	require.NoError(t, err)
	_, err = m.Add(ctx, "u2", models.Crop{Name: "Wheat"})
	require.NoError(t, err)

	u1, _ := m.All(ctx, "u1")
	u2, _ := m.All(ctx, "u2")
	require.Len(t, u1, 1)
	require.Len(t, u2, 1)
	assert.Equal(t, "Maize", u1[0].Name)
	assert.Equal(t, "Wheat", u2[0].Name)

	raw, ok, err := st.Get(ctx, "crops:u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(raw), `"name":"Maize"`)
}

func TestActiveReadyAndArea(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	seed := []models.Crop{
		{Name: "Maize", Status: models.CropGrowing, AreaSize: 3, ExpectedHarvestDate: daysFromNow(30)},
		{Name: "Beans", Status: models.CropPlanted, AreaSize: 1.5, ExpectedHarvestDate: daysFromNow(5)},
		{Name: "Spinach", Status: models.CropReady, AreaSize: 0.5},
		{Name: "Wheat", Status: models.CropHarvested, AreaSize: 4, ExpectedHarvestDate: daysFromNow(-2)},
		{Name: "Pumpkin", Status: models.CropGrowing, AreaSize: 1},
	}
	for _, c := range seed {
		_, err := m.Add(ctx, "u1", c)
		require.NoError(t, err)
	}

	active, err := m.Active(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Maize", "Beans", "Pumpkin"}, names(active))

	ready, err := m.ReadyForHarvest(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Beans", "Spinach"}, names(ready))

	area, err := m.TotalArea(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 5.5, area, 1e-9)

	sum, err := m.Summarize(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Total)
	assert.Equal(t, 3, sum.Active)
	assert.Equal(t, 2, sum.ReadyCount)
	assert.InDelta(t, 5.5, sum.ActiveArea, 1e-9)
	assert.Equal(t, 2, sum.ByStatus["growing"])
	assert.Equal(t, now, sum.GeneratedAt)
}

func TestUpdate(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	c, err := m.Add(ctx, "u1", models.Crop{Name: "Maize"})
	require.NoError(t, err)

	c.Status = models.CropHarvested
	c.Notes = "good yield"
	_, err = m.Update(ctx, "u1", c)
	require.NoError(t, err)

	all, _ := m.All(ctx, "u1")
	require.Len(t, all, 1)
	assert.Equal(t, models.CropHarvested, all[0].Status)
	assert.Equal(t, "good yield", all[0].Notes)

	_, err = m.Update(ctx, "u1", models.Crop{ID: "missing", Name: "Maize"})
	assert.ErrorIs(t, err, ErrCropNotFound)
	_, err = m.Update(ctx, "u1", models.Crop{Name: "Maize"})
	assert.ErrorIs(t, err, ErrCropNotFound)
}

func TestDeleteAndClear(t *testing.T) {
	m, st := newTestManager()
	ctx := context.Background()

	a, _ := m.Add(ctx, "u1", models.Crop{Name: "Maize"})
	_, _ = m.Add(ctx, "u1", models.Crop{Name: "Beans"})

	require.NoError(t, m.Delete(ctx, "u1", a.ID))
	assert.ErrorIs(t, m.Delete(ctx, "u1", a.ID), ErrCropNotFound)

	all, _ := m.All(ctx, "u1")
	assert.Equal(t, []string{"Beans"}, names(all))

	require.NoError(t, m.Clear(ctx, "u1"))
	all, err := m.All(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 0, st.Len())
}

func TestStoreErrorsAreWrapped(t *testing.T) {
	m := NewManager(failingStore{err: store.ErrUnavailable}, clockwork.NewFakeClockAt(now))
	ctx := context.Background()

	_, err := m.All(ctx, "u1")
	assert.ErrorIs(t, err, store.ErrUnavailable)
	_, err = m.Add(ctx, "u1", models.Crop{Name: "Maize"})
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.ErrorIs(t, m.Clear(ctx, "u1"), store.ErrUnavailable)
}

func TestCorruptListIsReported(t *testing.T) {
	m, st := newTestManager()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "crops:u1", []byte("{not json"), 0))

	_, err := m.All(ctx, "u1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCropNotFound))
}

// Concurrent adds for one user must all land in the stored list.
func TestConcurrentAddsDoNotLoseWrites(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Add(ctx, "u1", models.Crop{Name: fmt.Sprintf("crop-%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all, err := m.All(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, n)
}

func names(list []models.Crop) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.Name)
	}
	return out
}
