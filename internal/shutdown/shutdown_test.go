package shutdown

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type mockCloser struct {
	name  string
	order *[]string
	err   error
}

func (m *mockCloser) Close() error {
	*m.order = append(*m.order, m.name)
	return m.err
}

func TestShutdown_PriorityOrder(t *testing.T) {
	c := New(5*time.Second, zerolog.Nop())
	var order []string

	c.Register("storage", &mockCloser{name: "storage", order: &order}, PriorityStorage)
	c.Register("writer", &mockCloser{name: "writer", order: &order}, PriorityWriter)
	c.RegisterHook("pipeline", func(ctx context.Context) error {
		order = append(order, "pipeline")
		return nil
	}, PriorityPipeline)
	c.Register("storage-2", &mockCloser{name: "storage-2", order: &order}, PriorityStorage)

	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	want := []string{"pipeline", "writer", "storage", "storage-2"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestShutdown_ErrorsDoNotStopOtherSteps(t *testing.T) {
	c := New(5*time.Second, zerolog.Nop())
	var order []string
	errS3 := errors.New("s3 flush failed")

	c.Register("s3", &mockCloser{name: "s3", order: &order, err: errS3}, PriorityStorage)
	c.Register("mqtt", &mockCloser{name: "mqtt", order: &order}, PriorityStorage+1)

	err := c.Shutdown()
	if !errors.Is(err, errS3) {
		t.Errorf("expected joined error to contain s3 error, got %v", err)
	}
	if len(order) != 2 {
		t.Errorf("expected both steps to run, got %v", order)
	}
}

func TestShutdown_Once(t *testing.T) {
	c := New(5*time.Second, zerolog.Nop())
	var order []string
	c.Register("storage", &mockCloser{name: "storage", order: &order}, PriorityStorage)

	c.Shutdown()
	c.Shutdown()
	if len(order) != 1 {
		t.Errorf("expected one close, got %d", len(order))
	}
}

func TestShutdown_Timeout(t *testing.T) {
	c := New(20*time.Millisecond, zerolog.Nop())
	ran := false

	c.RegisterHook("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, PriorityPipeline)
	c.RegisterHook("late", func(ctx context.Context) error {
		ran = true
		return nil
	}, PriorityStorage)

	err := c.Shutdown()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	if ran {
		t.Error("step after the deadline should be skipped")
	}
}

func TestNotifyContext_Signal(t *testing.T) {
	c := New(time.Second, zerolog.Nop())
	ctx, stop := c.NotifyContext(context.Background())
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by SIGTERM")
	}
	if c.Signal() != syscall.SIGTERM {
		t.Errorf("Signal() = %v, want SIGTERM", c.Signal())
	}
}

func TestNotifyContext_Stop(t *testing.T) {
	c := New(time.Second, zerolog.Nop())
	ctx, stop := c.NotifyContext(context.Background())
	stop()

	select {
	case <-ctx.Done():
	default:
		t.Fatal("stop should cancel the context")
	}
	if c.Signal() != nil {
		t.Errorf("Signal() = %v, want nil", c.Signal())
	}
}
