package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a failing notifier is paused.
var ErrCircuitOpen = errors.New("notifier paused after repeated failures")

// Health is a snapshot of a notifier's delivery health.
type Health struct {
	// Available indicates if the notifier is currently used.
	Available bool `json:"available"`

	// LastSuccess is the time of the last successful delivery.
	LastSuccess time.Time `json:"last_success,omitzero"`

	// LastFailure is the time of the last failed delivery.
	LastFailure time.Time `json:"last_failure,omitzero"`

	// FailureCount is the number of consecutive failures.
	FailureCount int `json:"failure_count"`

	// CircuitOpen indicates if the breaker has tripped.
	CircuitOpen bool `json:"circuit_open"`

	// CircuitOpenedAt is when the circuit was opened.
	CircuitOpenedAt time.Time `json:"circuit_opened_at,omitzero"`
}

// BreakerConfig configures when a failing notifier is paused.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens. Zero disables the breaker.
	FailureThreshold int

	// RecoveryTimeout is how long to skip the notifier before trying again.
	RecoveryTimeout time.Duration
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}
}

// Breaker pauses a notifier after consecutive failures so a dead endpoint
// does not slow every submission down. After RecoveryTimeout one trial
// delivery is let through (half-open); its outcome closes or re-opens the
// circuit.
type Breaker struct {
	name   string
	next   Notifier
	config BreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	health Health
	trial  bool
}

// NewBreaker wraps next. A non-positive threshold returns next unchanged.
func NewBreaker(name string, next Notifier, cfg BreakerConfig, logger *slog.Logger) Notifier {
	if cfg.FailureThreshold <= 0 {
		return next
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		name:   name,
		next:   next,
		config: cfg,
		logger: logger,
		now:    time.Now,
		health: Health{Available: true},
	}
}

// Notify implements Notifier.
func (b *Breaker) Notify(ctx context.Context, in Inquiry) error {
	if !b.allow() {
		return ErrCircuitOpen
	}

	err := b.next.Notify(ctx, in)
	if err != nil {
		b.markFailure()
		return err
	}
	b.markSuccess()
	return nil
}

// allow reports whether a delivery may be attempted, claiming the single
// half-open trial when the recovery timeout has passed.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.health.CircuitOpen {
		return true
	}
	if b.trial || b.now().Sub(b.health.CircuitOpenedAt) < b.config.RecoveryTimeout {
		return false
	}
	b.trial = true
	return true
}

func (b *Breaker) markSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.health.CircuitOpen {
		b.logger.Info("Notifier recovered", "notifier", b.name)
	}
	b.health.LastSuccess = b.now()
	b.health.FailureCount = 0
	b.health.Available = true
	b.health.CircuitOpen = false
	b.trial = false
}

func (b *Breaker) markFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.health.LastFailure = now
	b.health.FailureCount++
	b.trial = false

	if b.health.FailureCount >= b.config.FailureThreshold {
		if !b.health.CircuitOpen {
			b.logger.Warn("Notifier paused",
				"notifier", b.name,
				"failures", b.health.FailureCount,
				"recovery_timeout", b.config.RecoveryTimeout)
		}
		b.health.CircuitOpen = true
		b.health.CircuitOpenedAt = now
		b.health.Available = false
	}
}

// Health returns a copy of the current health.
func (b *Breaker) Health() Health {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.health
}

// Name returns the name the breaker reports its health under.
func (b *Breaker) Name() string { return b.name }

// Close implements Notifier.
func (b *Breaker) Close() error {
	return b.next.Close()
}

// HealthReporter is a notifier that tracks its delivery health.
type HealthReporter interface {
	Name() string
	Health() Health
}

// Healths collects the health of every reporting notifier in n, keyed by
// name. It returns nil when none reports.
func Healths(n Notifier) map[string]Health {
	var out map[string]Health
	visit := func(n Notifier) {
		r, ok := n.(HealthReporter)
		if !ok {
			return
		}
		if out == nil {
			out = make(map[string]Health)
		}
		out[r.Name()] = r.Health()
	}
	if m, ok := n.(Multi); ok {
		for _, child := range m {
			visit(child)
		}
	} else {
		visit(n)
	}
	return out
}
