package traffic

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// TestRequestCount_Empty verifies a fresh tracker reports no requests.
func TestRequestCount_Empty(t *testing.T) {
	tr := NewTracker(nil)
	if n := tr.RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}

// TestRecordDenied_AndCounts verifies denials count toward both DenialCount and RequestCount.
func TestRecordDenied_AndCounts(t *testing.T) {
	tr := NewTracker(nil)
	tr.RecordDenied()
	tr.RecordDenied()
	tr.RecordSuccess()
	if n := tr.DenialCount(time.Minute); n != 2 {
		t.Errorf("DenialCount() = %d, want 2", n)
	}
	if n := tr.RequestCount(time.Minute); n != 3 {
		t.Errorf("RequestCount() = %d, want 3", n)
	}
}

// TestErrorRate_DeniedExcluded verifies denials do not dilute the error rate.
func TestErrorRate_DeniedExcluded(t *testing.T) {
	tr := NewTracker(nil)
	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordDenied()
	errors, total := tr.ErrorRate(time.Minute)
	if errors != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", errors, total)
	}
}

// TestWindow_SlidesWithClock verifies outcomes leave the window as time advances.
func TestWindow_SlidesWithClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock)

	tr.RecordError()
	clock.Advance(40 * time.Second)
	tr.RecordSuccess()

	if errs, total := tr.ErrorRate(time.Minute); errs != 1 || total != 2 {
		t.Errorf("ErrorRate(1m) = (%d, %d), want (1, 2)", errs, total)
	}

	clock.Advance(30 * time.Second)
	if errs, total := tr.ErrorRate(time.Minute); errs != 0 || total != 1 {
		t.Errorf("ErrorRate(1m) after slide = (%d, %d), want (0, 1)", errs, total)
	}
}

// TestPrune_DropsBeyondRetention verifies old outcomes are discarded on the next write.
func TestPrune_DropsBeyondRetention(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock)

	tr.RecordSuccess()
	clock.Advance(retention + time.Minute)
	tr.RecordSuccess()

	if n := len(tr.successTimes); n != 1 {
		t.Errorf("retained successes = %d, want 1", n)
	}
}

func TestResetErrors_KeepsSuccesses(t *testing.T) {
	tr := NewTracker(nil)
	tr.RecordSuccess()
	tr.RecordError()
	tr.ResetErrors()

	if errs, total := tr.ErrorRate(time.Minute); errs != 0 || total != 1 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 1)", errs, total)
	}
	tr.Reset()
	if n := tr.RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() after Reset = %d, want 0", n)
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); tr.RecordSuccess() }()
		go func() { defer wg.Done(); tr.RecordError() }()
		go func() { defer wg.Done(); tr.RecordDenied() }()
	}
	wg.Wait()
	if n := tr.RequestCount(time.Minute); n != 150 {
		t.Errorf("RequestCount() = %d, want 150", n)
	}
}
