// Package circuitbreaker stops calling a failing sink after repeated errors
// and probes it again once a cooldown has passed.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling the protected function while the
// breaker is open, or when half-open probes are exhausted.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config configures a breaker.
type Config struct {
	Name string

	// MaxFailures consecutive failures open the breaker.
	MaxFailures int

	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration

	// HalfOpenProbes is both the number of calls let through while half-open
	// and the number of successes needed to close again.
	HalfOpenProbes int

	// OnStateChange is called with the breaker lock held; it must not call
	// back into the breaker.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns the configuration used for output sinks.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:           name,
		MaxFailures:    5,
		Cooldown:       30 * time.Second,
		HalfOpenProbes: 1,
	}
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name        string
	State       State
	Failures    int
	Rejected    int64
	LastFailure time.Time
}

// CircuitBreaker guards calls to an unreliable dependency.
type CircuitBreaker struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	inFlight    int
	rejected    int64
	lastFailure time.Time
}

// New creates a closed breaker. A nil cfg selects DefaultConfig("default").
func New(cfg *Config, logger zerolog.Logger) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultConfig("default")
	}
	c := *cfg
	if c.MaxFailures <= 0 {
		c.MaxFailures = 1
	}
	if c.HalfOpenProbes <= 0 {
		c.HalfOpenProbes = 1
	}
	return &CircuitBreaker{
		cfg:    c,
		logger: logger.With().Str("component", "circuit-breaker").Str("name", c.Name).Logger(),
		now:    time.Now,
		state:  StateClosed,
	}
}

// Execute calls fn unless the breaker is open. Errors caused by ctx ending
// are returned but not counted as failures: a cancelled run says nothing
// about the health of the sink.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.acquire() {
		return ErrCircuitOpen
	}

	err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}
	switch {
	case err == nil:
		cb.onSuccess()
	case ctx.Err() != nil:
		// not the sink's fault
	default:
		cb.onFailure()
	}
	return err
}

func (cb *CircuitBreaker) acquire() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) >= cb.cfg.Cooldown {
		cb.transition(StateHalfOpen)
	}

	switch cb.state {
	case StateOpen:
		cb.rejected++
		return false
	case StateHalfOpen:
		if cb.inFlight >= cb.cfg.HalfOpenProbes {
			cb.rejected++
			return false
		}
		cb.inFlight++
	}
	return true
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenProbes {
			cb.transition(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.lastFailure = cb.now()
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	cb.inFlight = 0

	ev := cb.logger.Info()
	if to == StateOpen {
		ev = cb.logger.Warn()
	}
	ev.Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")

	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State returns the current state without advancing an expired cooldown.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns the breaker's counters.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		Name:        cb.cfg.Name,
		State:       cb.state,
		Failures:    cb.failures,
		Rejected:    cb.rejected,
		LastFailure: cb.lastFailure,
	}
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
	cb.failures = 0
	cb.rejected = 0
}
