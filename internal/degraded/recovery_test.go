package degraded

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// TestFibDelays verifies the Fibonacci schedule up to max.
func TestFibDelays(t *testing.T) {
	delays := fibDelays(time.Minute, 13*time.Minute)
	want := []time.Duration{1, 2, 3, 5, 8, 13}
	if len(delays) != len(want) {
		t.Fatalf("len(delays) = %d, want %d (%v)", len(delays), len(want), delays)
	}
	for i, w := range want {
		if delays[i] != w*time.Minute {
			t.Errorf("delays[%d] = %v, want %v", i, delays[i], w*time.Minute)
		}
	}
}

// TestFibDelays_CapsAtMax verifies the last delay is max when the sequence skips past it.
func TestFibDelays_CapsAtMax(t *testing.T) {
	delays := fibDelays(time.Minute, 6*time.Minute)
	last := delays[len(delays)-1]
	if last != 6*time.Minute {
		t.Errorf("last delay = %v, want 6m (%v)", last, delays)
	}
	if fibDelays(0, time.Minute) != nil || fibDelays(time.Minute, time.Second) != nil {
		t.Error("invalid bounds should yield no delays")
	}
}

// TestRecovery_Run_Recovers verifies Run stops at the first successful probe.
func TestRecovery_Run_Recovers(t *testing.T) {
	var attempts atomic.Int32
	var recovered, exhausted atomic.Bool
	r := NewRecovery(RecoveryConfig{
		Validate: func(ctx context.Context) error {
			if attempts.Add(1) >= 2 {
				return nil
			}
			return errors.New("fail")
		},
		Initial:     5 * time.Millisecond,
		Max:         100 * time.Millisecond,
		OnRecovered: func() { recovered.Store(true) },
		OnExhausted: func() { exhausted.Store(true) },
	})

	if !r.Run(context.Background()) {
		t.Fatal("Run() = false, want true")
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
	if !recovered.Load() || exhausted.Load() {
		t.Errorf("recovered=%v exhausted=%v, want true/false", recovered.Load(), exhausted.Load())
	}
}

// TestRecovery_Run_Exhausted verifies OnExhausted runs after the final failed attempt.
func TestRecovery_Run_Exhausted(t *testing.T) {
	var exhausted atomic.Bool
	r := NewRecovery(RecoveryConfig{
		Validate:    func(ctx context.Context) error { return errors.New("always fail") },
		Initial:     2 * time.Millisecond,
		Max:         10 * time.Millisecond,
		OnExhausted: func() { exhausted.Store(true) },
	})

	if r.Run(context.Background()) {
		t.Error("Run() = true, want false")
	}
	if !exhausted.Load() {
		t.Error("OnExhausted should have been called")
	}
}

// TestRecovery_Notify_NoListener verifies Notify never blocks without a listener.
func TestRecovery_Notify_NoListener(t *testing.T) {
	r := NewRecovery(RecoveryConfig{})
	r.Notify()
	r.Notify()
	var nilRecovery *Recovery
	nilRecovery.Notify()
}

// TestRecovery_Start_NotifyTriggersRun verifies Notify starts a recovery loop.
func TestRecovery_Start_NotifyTriggersRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	r := NewRecovery(RecoveryConfig{
		Validate:    func(ctx context.Context) error { return nil },
		Initial:     time.Millisecond,
		Max:         10 * time.Millisecond,
		OnRecovered: func() { close(done) },
	})
	r.Start(ctx)
	r.Notify()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("recovery did not run after Notify")
	}
}

// TestRecovery_Start_ContextCancel verifies a cancelled context stops the listener.
func TestRecovery_Start_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var called atomic.Bool
	r := NewRecovery(RecoveryConfig{
		Validate: func(ctx context.Context) error { called.Store(true); return nil },
		Initial:  time.Minute,
		Max:      13 * time.Minute,
	})
	r.Start(ctx)
	r.Notify()
	time.Sleep(20 * time.Millisecond)

	if called.Load() {
		t.Error("cancelled context should not run recovery")
	}
}
