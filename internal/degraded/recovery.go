package degraded

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ValidateFunc probes the upstream (API key check). Returns nil when it is usable again.
type ValidateFunc func(ctx context.Context) error

// RecoveryConfig configures a Recovery loop.
type RecoveryConfig struct {
	Validate ValidateFunc
	Initial  time.Duration // first delay; later delays follow the Fibonacci sequence
	Max      time.Duration // no delay exceeds this
	Timeout  time.Duration // per attempt
	// OnRecovered runs after a successful probe, typically Monitor.Clear.
	OnRecovered func()
	// OnExhausted runs when the last attempt fails.
	OnExhausted func()
	Clock       clockwork.Clock
	Logger      *zap.Logger
}

// Recovery re-validates a degraded upstream on a Fibonacci backoff. At most one
// loop runs at a time; Notify while running is a no-op.
type Recovery struct {
	cfg     RecoveryConfig
	notify  chan struct{}
	running atomic.Bool
}

// NewRecovery returns an idle Recovery. Call Start to begin listening.
func NewRecovery(cfg RecoveryConfig) *Recovery {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.OnRecovered == nil {
		cfg.OnRecovered = func() {}
	}
	if cfg.OnExhausted == nil {
		cfg.OnExhausted = func() {}
	}
	return &Recovery{cfg: cfg, notify: make(chan struct{}, 1)}
}

// Notify signals that the service looks degraded. Non-blocking; safe from handlers.
func (r *Recovery) Notify() {
	if r == nil {
		return
	}
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Running reports whether a recovery loop is in progress.
func (r *Recovery) Running() bool {
	return r != nil && r.running.Load()
}

// Start listens for Notify until ctx is done.
func (r *Recovery) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.notify:
				if r.running.Swap(true) {
					continue
				}
				go func() {
					defer r.running.Store(false)
					r.Run(ctx)
				}()
			}
		}
	}()
}

// Run waits through the backoff schedule, probing after each delay. Returns true
// once a probe succeeds.
func (r *Recovery) Run(ctx context.Context) bool {
	delays := fibDelays(r.cfg.Initial, r.cfg.Max)
	if len(delays) == 0 || r.cfg.Validate == nil {
		return false
	}
	for i, d := range delays {
		select {
		case <-ctx.Done():
			return false
		case <-r.cfg.Clock.After(d):
		}
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		err := r.cfg.Validate(attemptCtx)
		cancel()
		if err == nil {
			r.cfg.Logger.Info("upstream recovered", zap.Int("attempt", i+1))
			r.cfg.OnRecovered()
			return true
		}
		r.cfg.Logger.Warn("recovery attempt failed",
			zap.Int("attempt", i+1),
			zap.Duration("delay", d),
			zap.Error(err),
		)
	}
	r.cfg.OnExhausted()
	return false
}

// fibDelays returns initial×1, ×2, ×3, ×5, ... up to max. When the sequence
// would skip past max, max itself is the final delay.
func fibDelays(initial, max time.Duration) []time.Duration {
	if initial <= 0 || max < initial {
		return nil
	}
	var out []time.Duration
	a, b := time.Duration(1), time.Duration(2)
	for {
		d := initial * a
		if d > max {
			if len(out) > 0 && out[len(out)-1] < max {
				out = append(out, max)
			}
			break
		}
		out = append(out, d)
		a, b = b, a+b
	}
	return out
}
