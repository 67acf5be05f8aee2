package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/basekick-labs/sarpivot/internal/circuitbreaker"
	"github.com/rs/zerolog"
)

// ResilientConfig configures retries and the circuit breaker of a
// ResilientBackend.
type ResilientConfig struct {
	MaxRetries    int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
	Breaker       *circuitbreaker.Config
}

// DefaultResilientConfig returns the retry policy used for remote sinks.
func DefaultResilientConfig() *ResilientConfig {
	return &ResilientConfig{
		MaxRetries:    3,
		RetryDelay:    200 * time.Millisecond,
		RetryMaxDelay: 5 * time.Second,
		Breaker:       circuitbreaker.DefaultConfig("storage"),
	}
}

// ResilientBackend retries failed writes with exponential backoff. Once the
// sink has failed repeatedly the circuit breaker opens and writes fail fast
// instead of stalling every remaining metric.
type ResilientBackend struct {
	backend Backend
	cb      *circuitbreaker.CircuitBreaker
	logger  zerolog.Logger

	maxRetries    int
	retryDelay    time.Duration
	retryMaxDelay time.Duration
	sleep         func(context.Context, time.Duration) error
}

// NewResilientBackend wraps backend. A nil cfg selects DefaultResilientConfig.
func NewResilientBackend(backend Backend, cfg *ResilientConfig, logger zerolog.Logger) *ResilientBackend {
	if cfg == nil {
		cfg = DefaultResilientConfig()
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = circuitbreaker.DefaultConfig(backend.Type())
	}
	return &ResilientBackend{
		backend:       backend,
		cb:            circuitbreaker.New(breaker, logger),
		logger:        logger.With().Str("component", "resilient-storage").Str("backend", backend.Type()).Logger(),
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		retryMaxDelay: cfg.RetryMaxDelay,
		sleep:         sleepCtx,
	}
}

// Write writes through the wrapped backend, retrying up to MaxRetries times.
func (r *ResilientBackend) Write(ctx context.Context, path string, data []byte) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err := r.cb.Execute(ctx, func(ctx context.Context) error {
			return r.backend.Write(ctx, path, data)
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			r.logger.Warn().Str("path", path).Msg("Write rejected, circuit breaker open")
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrPermanent) || attempt == r.maxRetries {
			break
		}

		delay := r.backoff(attempt)
		r.logger.Warn().
			Err(err).
			Str("path", path).
			Int("attempt", attempt+1).
			Int("max_retries", r.maxRetries).
			Dur("retry_delay", delay).
			Msg("Write failed, retrying")
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("write %s failed after %d attempts: %w", path, r.maxRetries+1, lastErr)
}

func (r *ResilientBackend) backoff(attempt int) time.Duration {
	delay := r.retryDelay << uint(attempt)
	if delay > r.retryMaxDelay || delay <= 0 {
		delay = r.retryMaxDelay
	}
	return delay
}

// Close closes the wrapped backend.
func (r *ResilientBackend) Close() error {
	return r.backend.Close()
}

// Type returns the wrapped backend's type.
func (r *ResilientBackend) Type() string {
	return r.backend.Type()
}

// Unwrap returns the wrapped backend.
func (r *ResilientBackend) Unwrap() Backend {
	return r.backend
}

// Breaker returns the breaker's current counters.
func (r *ResilientBackend) Breaker() circuitbreaker.Snapshot {
	return r.cb.Snapshot()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
