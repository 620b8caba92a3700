package alerts

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mzansi-solutions/farm-alert-service/internal/models"
)

// Snapshot is the alert set currently visible for a location in one mode.
type Snapshot struct {
	Location    string               `json:"location"`
	Mode        string               `json:"mode"`
	Records     []models.AlertRecord `json:"alerts"`
	PublishedAt time.Time            `json:"publishedAt"`
}

type boardEntry struct {
	issued    uint64
	published uint64 // ticket of the visible set; 0 = nothing published
	snap      Snapshot
}

type boardKey struct {
	location string
	mode     string
}

func keyFor(location, mode string) boardKey {
	return boardKey{location: strings.ToLower(strings.TrimSpace(location)), mode: mode}
}

// Board holds the latest published alert set per location and mode. A caller takes
// a ticket before fetching weather and publishes under it once classification is
// done; a result is accepted only if no newer ticket was issued for the same
// location and mode in the meantime. Superseded results are dropped. Current and
// forecast passes never supersede each other.
type Board struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	next    uint64
	entries map[boardKey]*boardEntry
}

// NewBoard creates an empty board.
func NewBoard(clock clockwork.Clock) *Board {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Board{
		clock:   clock,
		entries: make(map[boardKey]*boardEntry),
	}
}

// Begin issues a ticket for location in mode. Any earlier outstanding ticket for
// the same pair becomes stale.
func (b *Board) Begin(location, mode string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	key := keyFor(location, mode)
	e, ok := b.entries[key]
	if !ok {
		e = &boardEntry{}
		b.entries[key] = e
	}
	e.issued = b.next
	return b.next
}

// Publish replaces the visible set for location and mode when ticket is the most
// recently issued one for that pair. Returns false when the result was superseded.
func (b *Board) Publish(location, mode string, ticket uint64, records []models.AlertRecord) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[keyFor(location, mode)]
	if !ok || e.issued != ticket {
		return false
	}
	cp := make([]models.AlertRecord, len(records))
	copy(cp, records)
	e.snap = Snapshot{
		Location:    location,
		Mode:        mode,
		Records:     cp,
		PublishedAt: b.clock.Now(),
	}
	e.published = ticket
	return true
}

// Latest returns the visible set for location in mode. An empty mode returns
// whichever mode was published most recently.
func (b *Board) Latest(location, mode string) (Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var e *boardEntry
	if mode != "" {
		e = b.entries[keyFor(location, mode)]
	} else {
		for _, m := range []string{models.ModeCurrent, models.ModeForecast} {
			if c := b.entries[keyFor(location, m)]; c != nil && (e == nil || c.published > e.published) {
				e = c
			}
		}
	}
	if e == nil || e.published == 0 {
		return Snapshot{}, false
	}
	snap := e.snap
	snap.Records = make([]models.AlertRecord, len(e.snap.Records))
	copy(snap.Records, e.snap.Records)
	return snap, true
}

// Locations returns the locations with at least one published set.
func (b *Board) Locations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for k, e := range b.entries {
		if e.published == 0 || seen[k.location] {
			continue
		}
		seen[k.location] = true
		out = append(out, e.snap.Location)
	}
	return out
}
