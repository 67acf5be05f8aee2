// Package shutdown ties a run to SIGINT/SIGTERM and closes registered
// components in priority order once the run is over.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Closer is implemented by components released at shutdown.
type Closer interface {
	Close() error
}

// Func is a cleanup step that may honour a deadline.
type Func func(ctx context.Context) error

// Priorities, lowest closed first.
const (
	PriorityPipeline = 10 // stop launching extractors
	PriorityWriter   = 50 // release encoders
	PriorityStorage  = 80 // flush and disconnect sinks
)

// Coordinator cancels the run on a signal and runs cleanup steps.
type Coordinator struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu    sync.Mutex
	steps []step

	once     sync.Once
	received os.Signal
	sigMu    sync.Mutex
}

type step struct {
	name     string
	fn       Func
	priority int
}

// New creates a coordinator whose Shutdown gives up after timeout.
func New(timeout time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		timeout: timeout,
		logger:  logger.With().Str("component", "shutdown").Logger(),
	}
}

// Register closes component at shutdown.
func (c *Coordinator) Register(name string, component Closer, priority int) {
	c.RegisterHook(name, func(context.Context) error { return component.Close() }, priority)
}

// RegisterHook runs fn at shutdown. Steps with equal priority run in
// registration order.
func (c *Coordinator) RegisterHook(name string, fn Func, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, step{name: name, fn: fn, priority: priority})

	c.logger.Debug().
		Str("name", name).
		Int("priority", priority).
		Msg("Registered shutdown step")
}

// NotifyContext returns a context cancelled on SIGINT or SIGTERM. The
// returned stop function detaches the signal handler.
func (c *Coordinator) NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			c.sigMu.Lock()
			c.received = sig
			c.sigMu.Unlock()
			c.logger.Warn().
				Str("signal", sig.String()).
				Msg("Received signal, cancelling run")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// Signal returns the signal that cancelled the run, or nil.
func (c *Coordinator) Signal() os.Signal {
	c.sigMu.Lock()
	defer c.sigMu.Unlock()
	return c.received
}

// Shutdown runs every registered step once, lowest priority first. A failing
// step does not stop the others; all errors are returned joined. Steps not
// started before the timeout are skipped.
func (c *Coordinator) Shutdown() error {
	var err error
	c.once.Do(func() {
		err = c.run()
	})
	return err
}

func (c *Coordinator) run() error {
	c.mu.Lock()
	steps := append([]step(nil), c.steps...)
	c.mu.Unlock()
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].priority < steps[j].priority })

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := time.Now()
	var errs []error
	for i, s := range steps {
		if ctx.Err() != nil {
			c.logger.Warn().
				Int("skipped", len(steps)-i).
				Msg("Shutdown timeout reached, skipping remaining steps")
			errs = append(errs, ctx.Err())
			break
		}
		if err := s.fn(ctx); err != nil {
			c.logger.Error().Err(err).Str("name", s.name).Msg("Shutdown step failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}

	c.logger.Debug().
		Int("steps", len(steps)).
		Dur("duration", time.Since(start)).
		Msg("Shutdown complete")
	return errors.Join(errs...)
}
