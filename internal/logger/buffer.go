package logger

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// LevelCounts is a snapshot of how many entries were logged per level.
type LevelCounts struct {
	Warnings int64
	Errors   int64
}

// CountingWriter forwards log output and counts warning and error entries.
// The run summary reports these so a clean-looking exit still tells the user
// that some files or metrics were skipped.
type CountingWriter struct {
	out      io.Writer
	warnings atomic.Int64
	errors   atomic.Int64
}

var (
	globalCounter *CountingWriter
	counterMu     sync.Mutex
)

// NewCountingWriter creates a counting writer and registers it as the global
// counter read by Counts.
func NewCountingWriter(out io.Writer) *CountingWriter {
	w := &CountingWriter{out: out}
	counterMu.Lock()
	globalCounter = w
	counterMu.Unlock()
	return w
}

// Write implements io.Writer for entries written without a level.
func (w *CountingWriter) Write(p []byte) (int, error) {
	return w.out.Write(p)
}

// WriteLevel implements zerolog.LevelWriter.
func (w *CountingWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	switch {
	case level == zerolog.WarnLevel:
		w.warnings.Add(1)
	case level >= zerolog.ErrorLevel && level <= zerolog.PanicLevel:
		w.errors.Add(1)
	}
	return w.out.Write(p)
}

// Counts returns the current counters.
func (w *CountingWriter) Counts() LevelCounts {
	return LevelCounts{
		Warnings: w.warnings.Load(),
		Errors:   w.errors.Load(),
	}
}

// Counts returns the counters of the writer installed by the last Setup call.
func Counts() LevelCounts {
	counterMu.Lock()
	defer counterMu.Unlock()
	if globalCounter == nil {
		return LevelCounts{}
	}
	return globalCounter.Counts()
}
