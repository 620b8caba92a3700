package degraded

import (
	"time"

	"github.com/mzansi-solutions/farm-alert-service/internal/traffic"
)

// Monitor decides whether the weather provider path is degraded from the error
// rate observed by the traffic tracker.
type Monitor struct {
	tracker  *traffic.Tracker
	window   time.Duration
	errorPct int
}

// NewMonitor returns a monitor. A zero window or errorPct disables the check.
func NewMonitor(tracker *traffic.Tracker, window time.Duration, errorPct int) *Monitor {
	return &Monitor{tracker: tracker, window: window, errorPct: errorPct}
}

// Degraded reports whether the error rate in the window is at or above the
// threshold, along with the observed percentage.
func (m *Monitor) Degraded() (bool, float64) {
	if m == nil || m.tracker == nil || m.window <= 0 || m.errorPct <= 0 {
		return false, 0
	}
	errors, total := m.tracker.ErrorRate(m.window)
	if total == 0 {
		return false, 0
	}
	pct := float64(errors) * 100 / float64(total)
	return pct >= float64(m.errorPct), pct
}

// Clear forgets recorded errors so the next evaluation starts fresh.
func (m *Monitor) Clear() {
	if m != nil && m.tracker != nil {
		m.tracker.ResetErrors()
	}
}
