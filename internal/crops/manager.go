// Package crops keeps each farmer's crop list in the key-value store.
package crops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mzansi-solutions/farm-alert-service/internal/models"
	"github.com/mzansi-solutions/farm-alert-service/internal/observability"
	"github.com/mzansi-solutions/farm-alert-service/internal/store"
)

var (
	ErrCropNotFound = errors.New("crop not found")
	ErrInvalidCrop  = errors.New("invalid crop")
	ErrMissingUser  = errors.New("user id is required")
)

const keyPrefix = "crops:"

// Manager stores one JSON list per user. Writes for the same user are serialized
// so concurrent read-modify-write cycles do not lose updates.
type Manager struct {
	store store.Store
	clock clockwork.Clock
	locks sync.Map // userID -> *sync.Mutex
}

// NewManager creates a Manager. A nil clock uses the real clock.
func NewManager(st store.Store, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{store: st, clock: clock}
}

// Add validates c and appends it. An empty ID is replaced with a new uuid and an
// empty status defaults to planted. When the planting date and growing period are
// known but the harvest date is not, the harvest date is derived from them.
func (m *Manager) Add(ctx context.Context, userID string, c models.Crop) (added models.Crop, err error) {
	defer func() { record("add", err) }()

	c, err = normalize(c)
	if err != nil {
		return models.Crop{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	unlock, err := m.lock(userID)
	if err != nil {
		return models.Crop{}, err
	}
	defer unlock()

	list, err := m.load(ctx, userID)
	if err != nil {
		return models.Crop{}, err
	}
	for _, existing := range list {
		if existing.ID == c.ID {
			return models.Crop{}, fmt.Errorf("%w: duplicate id %q", ErrInvalidCrop, c.ID)
		}
	}
	list = append(list, c)
	if err := m.save(ctx, userID, list); err != nil {
		return models.Crop{}, err
	}
	return c, nil
}

// All returns every crop in insertion order. A user with no list gets an empty slice.
func (m *Manager) All(ctx context.Context, userID string) (list []models.Crop, err error) {
	defer func() { record("list", err) }()
	if userID == "" {
		return nil, ErrMissingUser
	}
	return m.load(ctx, userID)
}

// Active returns crops still in the ground (planted or growing).
func (m *Manager) Active(ctx context.Context, userID string) ([]models.Crop, error) {
	return m.filter(ctx, userID, func(c models.Crop) bool { return c.Active() })
}

// ReadyForHarvest returns crops marked ready or due within seven days.
func (m *Manager) ReadyForHarvest(ctx context.Context, userID string) ([]models.Crop, error) {
	now := m.clock.Now()
	return m.filter(ctx, userID, func(c models.Crop) bool { return c.ReadyForHarvest(now) })
}

// Update replaces the crop with the same ID.
func (m *Manager) Update(ctx context.Context, userID string, c models.Crop) (updated models.Crop, err error) {
	defer func() { record("update", err) }()
	if c.ID == "" {
		return models.Crop{}, ErrCropNotFound
	}
	c, err = normalize(c)
	if err != nil {
		return models.Crop{}, err
	}

	unlock, err := m.lock(userID)
	if err != nil {
		return models.Crop{}, err
	}
	defer unlock()

	list, err := m.load(ctx, userID)
	if err != nil {
		return models.Crop{}, err
	}
	i := indexOf(list, c.ID)
	if i < 0 {
		return models.Crop{}, ErrCropNotFound
	}
	list[i] = c
	if err := m.save(ctx, userID, list); err != nil {
		return models.Crop{}, err
	}
	return c, nil
}

// Delete removes the crop with the given ID.
func (m *Manager) Delete(ctx context.Context, userID, id string) (err error) {
	defer func() { record("delete", err) }()

	unlock, err := m.lock(userID)
	if err != nil {
		return err
	}
	defer unlock()

	list, err := m.load(ctx, userID)
	if err != nil {
		return err
	}
	i := indexOf(list, id)
	if i < 0 {
		return ErrCropNotFound
	}
	list = append(list[:i], list[i+1:]...)
	return m.save(ctx, userID, list)
}

// Clear drops the user's whole list.
func (m *Manager) Clear(ctx context.Context, userID string) (err error) {
	defer func() { record("clear", err) }()

	unlock, err := m.lock(userID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := m.store.Delete(ctx, keyPrefix+userID); err != nil {
		return fmt.Errorf("clear crops: %w", err)
	}
	return nil
}

// TotalArea sums the area of active crops in hectares.
func (m *Manager) TotalArea(ctx context.Context, userID string) (float64, error) {
	active, err := m.Active(ctx, userID)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, c := range active {
		total += c.AreaSize
	}
	return total, nil
}

// Summary is the per-user overview served by the crop summary endpoint.
type Summary struct {
	Total       int            `json:"total"`
	Active      int            `json:"active"`
	ReadyCount  int            `json:"readyForHarvest"`
	ActiveArea  float64        `json:"activeAreaHectares"`
	ByStatus    map[string]int `json:"byStatus"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// Summarize counts the user's crops by status from a single read of the list.
func (m *Manager) Summarize(ctx context.Context, userID string) (Summary, error) {
	list, err := m.All(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	now := m.clock.Now()
	s := Summary{Total: len(list), ByStatus: map[string]int{}, GeneratedAt: now}
	for _, c := range list {
		s.ByStatus[string(c.Status)]++
		if c.Active() {
			s.Active++
			s.ActiveArea += c.AreaSize
		}
		if c.ReadyForHarvest(now) {
			s.ReadyCount++
		}
	}
	return s, nil
}

func (m *Manager) filter(ctx context.Context, userID string, keep func(models.Crop) bool) ([]models.Crop, error) {
	list, err := m.All(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Crop, 0, len(list))
	for _, c := range list {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Manager) lock(userID string) (func(), error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	v, _ := m.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock, nil
}

func (m *Manager) load(ctx context.Context, userID string) ([]models.Crop, error) {
	raw, ok, err := m.store.Get(ctx, keyPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("load crops: %w", err)
	}
	if !ok || len(raw) == 0 {
		return []models.Crop{}, nil
	}
	var list []models.Crop
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode crops: %w", err)
	}
	if list == nil {
		list = []models.Crop{}
	}
	return list, nil
}

func (m *Manager) save(ctx context.Context, userID string, list []models.Crop) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode crops: %w", err)
	}
	if err := m.store.Set(ctx, keyPrefix+userID, raw, 0); err != nil {
		return fmt.Errorf("save crops: %w", err)
	}
	return nil
}

func normalize(c models.Crop) (models.Crop, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return c, fmt.Errorf("%w: name is required", ErrInvalidCrop)
	}
	if c.Status == "" {
		c.Status = models.CropPlanted
	}
	if !c.Status.Valid() {
		return c, fmt.Errorf("%w: unknown status %q", ErrInvalidCrop, c.Status)
	}
	if c.AreaSize < 0 {
		return c, fmt.Errorf("%w: area must not be negative", ErrInvalidCrop)
	}
	if c.GrowingDays < 0 {
		return c, fmt.Errorf("%w: growing days must not be negative", ErrInvalidCrop)
	}
	if c.ExpectedHarvestDate == nil && c.PlantingDate != nil && c.GrowingDays > 0 {
		h := c.PlantingDate.AddDate(0, 0, c.GrowingDays)
		c.ExpectedHarvestDate = &h
	}
	if c.PlantingDate != nil && c.ExpectedHarvestDate != nil && c.ExpectedHarvestDate.Before(*c.PlantingDate) {
		return c, fmt.Errorf("%w: harvest date before planting date", ErrInvalidCrop)
	}
	return c, nil
}

func indexOf(list []models.Crop, id string) int {
	for i, c := range list {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func record(op string, err error) {
	observability.CropOperationsTotal.WithLabelValues(op, observability.ResultLabel(err)).Inc()
}
