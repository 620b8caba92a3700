package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mzansi-solutions/farm-alert-service/internal/models"
)

func TestRequestCoalescer_GetOrDo_ConcurrentRequests(t *testing.T) {
	coalescer := newRequestCoalescer[models.Observation](5 * time.Second)
	var calls int32
	release := make(chan struct{})

	fn := func(context.Context) (models.Observation, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return models.Observation{Location: "pretoria", Temperature: models.Float(28)}, nil
	}

	var wg sync.WaitGroup
	results := make([]models.Observation, 10)
	shared := make([]bool, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], shared[idx], errs[idx] = coalescer.GetOrDo(context.Background(), "pretoria", fn)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	leaders := 0
	for i, result := range results {
		if errs[i] != nil {
			t.Errorf("Request %d error = %v, want nil", i, errs[i])
		}
		if result.Location != "pretoria" {
			t.Errorf("Request %d location = %q, want pretoria", i, result.Location)
		}
		if !shared[i] {
			leaders++
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fn call count = %d, want 1", got)
	}
	if leaders != 1 {
		t.Errorf("callers that started the fetch = %d, want 1", leaders)
	}
	if n := coalescer.pending(); n != 0 {
		t.Errorf("pending() = %d after completion, want 0", n)
	}
}

func TestRequestCoalescer_GetOrDo_ErrorPropagation(t *testing.T) {
	coalescer := newRequestCoalescer[models.Forecast](5 * time.Second)
	wantErr := errors.New("api failure")
	release := make(chan struct{})

	fn := func(context.Context) (models.Forecast, error) {
		<-release
		return models.Forecast{}, wantErr
	}

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, _, errs[idx] = coalescer.GetOrDo(context.Background(), "polokwane", fn)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, wantErr) {
			t.Errorf("Request %d error = %v, want %v", i, err, wantErr)
		}
	}
}

func TestRequestCoalescer_GetOrDo_DifferentKeys(t *testing.T) {
	coalescer := newRequestCoalescer[models.Observation](5 * time.Second)
	var calls int32

	fn := func(context.Context) (models.Observation, error) {
		atomic.AddInt32(&calls, 1)
		return models.Observation{}, nil
	}

	for _, key := range []string{"pretoria", "durban", "gh:ke7fwq"} {
		if _, shared, err := coalescer.GetOrDo(context.Background(), key, fn); err != nil || shared {
			t.Errorf("GetOrDo(%q) shared=%v err=%v, want false, nil", key, shared, err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("fn call count = %d, want 3", got)
	}
}

// A caller that gives up must not cancel the fetch others are waiting on.
func TestRequestCoalescer_GetOrDo_LeaderCancelDoesNotAbortFetch(t *testing.T) {
	coalescer := newRequestCoalescer[models.Observation](5 * time.Second)
	release := make(chan struct{})

	fn := func(ctx context.Context) (models.Observation, error) {
		select {
		case <-release:
			return models.Observation{Location: "tzaneen"}, nil
		case <-ctx.Done():
			return models.Observation{}, ctx.Err()
		}
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := coalescer.GetOrDo(leaderCtx, "tzaneen", fn)
		leaderErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	followerDone := make(chan error, 1)
	var got models.Observation
	go func() {
		var err error
		got, _, err = coalescer.GetOrDo(context.Background(), "tzaneen", fn)
		followerDone <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("leader error = %v, want context.Canceled", err)
	}
	close(release)
	if err := <-followerDone; err != nil {
		t.Fatalf("follower error = %v, want nil", err)
	}
	if got.Location != "tzaneen" {
		t.Errorf("follower location = %q, want tzaneen", got.Location)
	}
}

func TestRequestCoalescer_GetOrDo_Timeout(t *testing.T) {
	coalescer := newRequestCoalescer[models.Observation](30 * time.Millisecond)

	fn := func(ctx context.Context) (models.Observation, error) {
		<-ctx.Done()
		return models.Observation{}, ctx.Err()
	}

	start := time.Now()
	_, _, err := coalescer.GetOrDo(context.Background(), "slow", fn)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetOrDo() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("GetOrDo() took %v, want about 30ms", elapsed)
	}
}
