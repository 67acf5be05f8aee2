package sadf

import (
	"strings"

	"github.com/rs/zerolog"
)

// expectedDiagnostics are stderr fragments sadf prints for recordings that
// simply lack an activity. They are not worth a warning.
var expectedDiagnostics = []string{
	"no data available",
	"activity not available",
	"requested activities not available",
}

// IsExpected reports whether a diagnostic line is a known, non-actionable
// notice. Matching is case-insensitive.
func IsExpected(line string) bool {
	lower := strings.ToLower(line)
	for _, d := range expectedDiagnostics {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}

// ReportDiagnostics logs the chunk's stderr one line at a time: expected
// notices at debug level, everything else at warn level. It returns the
// number of lines logged as warnings.
func ReportDiagnostics(logger zerolog.Logger, metric string, chunk RawChunk) int {
	warned := 0
	for _, line := range strings.Split(strings.TrimSpace(chunk.Diagnostics), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ev := logger.Warn()
		if IsExpected(line) {
			ev = logger.Debug()
		} else {
			warned++
		}
		ev.Str("metric", metric).
			Str("source", chunk.Source).
			Str("status", chunk.Status.String()).
			Msg(line)
	}
	return warned
}
