package errors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reasoner/internal/logging"
)

// BreakerState is the position of a Breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a Breaker. Zero values take the defaults.
type BreakerConfig struct {
	Threshold int           // consecutive failures that open it, default 5
	Probes    int           // half-open successes that close it, default 2
	Cooldown  time.Duration // time open before probing, default 30s
	Logger    logging.Logger
	Now       func() time.Time
}

// Breaker stops calls to a backend after repeated failures and lets a few
// probes through once its cooldown passes.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	logger logging.Logger

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewBreaker returns a closed breaker for the backend called name.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{name: name, cfg: cfg, logger: logging.WithComponent(cfg.Logger, "breaker")}
}

// Allow returns an Unavailable error while the breaker is open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerOpen {
		return nil
	}
	if b.cfg.Now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.state = BreakerHalfOpen
		b.successes = 0
		b.logger.Info("%s: probing after cooldown", b.name)
		return nil
	}
	return Unavailable(fmt.Errorf("circuit open for %s", b.name),
		fmt.Sprintf("%s is paused after repeated failures.", b.name))
}

// Record feeds one call outcome into the breaker. Cancellation by the caller
// says nothing about the backend and is ignored.
func (b *Breaker) Record(err error) {
	if err != nil && errors.Is(err, context.Canceled) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		if b.state == BreakerHalfOpen {
			b.successes++
			if b.successes >= b.cfg.Probes {
				b.state = BreakerClosed
				b.logger.Info("%s: recovered", b.name)
			}
		}
		return
	}

	switch b.state {
	case BreakerHalfOpen:
		b.trip("probe failed")
	case BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.Threshold {
			b.trip(fmt.Sprintf("%d consecutive failures", b.failures))
		}
	}
}

func (b *Breaker) trip(reason string) {
	b.state = BreakerOpen
	b.openedAt = b.cfg.Now()
	b.failures = 0
	b.successes = 0
	b.logger.Warn("%s: circuit opened, %s", b.name, reason)
}

// State returns the current position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Guard runs fn when b allows it and records the outcome.
func Guard[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	result, err := fn(ctx)
	b.Record(err)
	return result, err
}
