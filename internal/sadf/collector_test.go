package sadf

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/basekick-labs/sarpivot/internal/catalog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner answers extractor invocations from a function.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	fn    func(ctx context.Context, args []string) ([]byte, []byte, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	return f.fn(ctx, args)
}

var diskDef = catalog.MetricDefinition{Label: "disk", Selector: []string{"-d"}}

func newCollector(t *testing.T, runner Runner, timeout time.Duration) *Collector {
	t.Helper()
	c, err := NewCollector(&Config{Binary: "sadf", Format: "csv", Timeout: timeout, MaxConcurrent: 2}, runner, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestFormatFlag(t *testing.T) {
	for format, want := range map[string]string{"csv": "-d", "json": "-j", "xml": "-x"} {
		got, err := FormatFlag(format)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := FormatFlag("yaml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestNewCollector_Invalid(t *testing.T) {
	_, err := NewCollector(&Config{Binary: "sadf", Format: "html", Timeout: time.Second}, nil, zerolog.Nop())
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = NewCollector(&Config{Binary: "sadf", Format: "csv"}, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestCollect_Args(t *testing.T) {
	runner := &fakeRunner{fn: func(context.Context, []string) ([]byte, []byte, error) { return nil, nil, nil }}
	c := newCollector(t, runner, time.Second)

	def := catalog.MetricDefinition{Label: "network_dev", Selector: []string{"-n", "DEV"}}
	c.Collect(context.Background(), def, "/var/log/sa/sa01")

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"sadf", "-d", "/var/log/sa/sa01", "--", "-n", "DEV"}, runner.calls[0])
}

func TestCollect_OK(t *testing.T) {
	runner := &fakeRunner{fn: func(context.Context, []string) ([]byte, []byte, error) {
		return []byte("# a;timestamp\n1;T1\n"), []byte("Requested activities not available in file\n"), nil
	}}
	chunk := newCollector(t, runner, time.Second).Collect(context.Background(), diskDef, "sa01")

	assert.Equal(t, StatusOK, chunk.Status)
	assert.NoError(t, chunk.Err)
	assert.True(t, chunk.Usable())
	assert.Equal(t, "# a;timestamp\n1;T1\n", string(chunk.Text))
	assert.Contains(t, chunk.Diagnostics, "not available")
	assert.Equal(t, "sa01", chunk.Source)
}

func TestCollect_TimeoutKeepsPartialOutput(t *testing.T) {
	runner := &fakeRunner{fn: func(ctx context.Context, _ []string) ([]byte, []byte, error) {
		<-ctx.Done()
		return []byte("# a;timestamp\n1;T1\n"), nil, errors.New("signal: killed")
	}}
	chunk := newCollector(t, runner, 20*time.Millisecond).Collect(context.Background(), diskDef, "sa02")

	assert.Equal(t, StatusPartialTimeout, chunk.Status)
	assert.ErrorIs(t, chunk.Err, ErrTimeout)
	assert.True(t, chunk.Usable())
	assert.Equal(t, "# a;timestamp\n1;T1\n", string(chunk.Text))
}

func TestCollect_FailureDropsText(t *testing.T) {
	runner := &fakeRunner{fn: func(context.Context, []string) ([]byte, []byte, error) {
		return []byte("garbage"), []byte("Invalid system activity file: sa03\n"), errors.New("exit status 2")
	}}
	chunk := newCollector(t, runner, time.Second).Collect(context.Background(), diskDef, "sa03")

	assert.Equal(t, StatusFailed, chunk.Status)
	assert.ErrorIs(t, chunk.Err, ErrExtractFailed)
	assert.False(t, chunk.Usable())
	assert.Nil(t, chunk.Text)
	assert.Contains(t, chunk.Diagnostics, "Invalid system activity file")
}

func TestCollect_CancelledDiscardsOutput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{fn: func(runCtx context.Context, _ []string) ([]byte, []byte, error) {
		cancel()
		<-runCtx.Done()
		return []byte("partial"), nil, errors.New("signal: killed")
	}}
	chunk := newCollector(t, runner, time.Minute).Collect(ctx, diskDef, "sa01")

	assert.Equal(t, StatusFailed, chunk.Status)
	assert.ErrorIs(t, chunk.Err, context.Canceled)
	assert.Nil(t, chunk.Text)

	// Already cancelled: the extractor is never started
	chunk = newCollector(t, runner, time.Minute).Collect(ctx, diskDef, "sa02")
	assert.Equal(t, StatusFailed, chunk.Status)
	assert.ErrorIs(t, chunk.Err, context.Canceled)
}

func TestCollect_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	runner := &fakeRunner{fn: func(context.Context, []string) ([]byte, []byte, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return nil, nil, nil
	}}
	c := newCollector(t, runner, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Collect(context.Background(), diskDef, "sa01")
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Len(t, runner.calls, 8)
}

func TestExecRunner_PartialOutputOnTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	stdout, _, err := ExecRunner{WaitDelay: 100 * time.Millisecond}.Run(ctx, "sh", "-c", "echo partial; exec sleep 5")
	require.Error(t, err)
	assert.Equal(t, "partial\n", string(stdout))
}

func TestExecRunner_SeparatesStreams(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	stdout, stderr, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo out; echo err >&2")
	require.NoError(t, err)
	assert.Equal(t, "out\n", string(stdout))
	assert.Equal(t, "err\n", string(stderr))
}

func TestPreflight(t *testing.T) {
	_, err := Preflight("sarpivot-no-such-extractor")
	assert.ErrorIs(t, err, ErrMissingDependency)

	if runtime.GOOS != "windows" {
		path, err := Preflight("sh")
		require.NoError(t, err)
		assert.NotEmpty(t, path)
	}
}

func TestReportDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	chunk := RawChunk{
		Source: "sa01",
		Status: StatusOK,
		Diagnostics: "Requested activities not available in file sa01\n" +
			"\n" +
			"NO DATA AVAILABLE\n" +
			"Invalid system activity file: sa01\n",
	}
	warned := ReportDiagnostics(logger, "disk", chunk)
	assert.Equal(t, 1, warned)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"level":"debug"`)
	assert.Contains(t, lines[1], `"level":"debug"`)
	assert.Contains(t, lines[2], `"level":"warn"`)
	assert.Contains(t, lines[2], `"metric":"disk"`)
	assert.Contains(t, lines[2], "Invalid system activity file")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "partial_timeout", StatusPartialTimeout.String())
	assert.Equal(t, "failed", StatusFailed.String())
}
