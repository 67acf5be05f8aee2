package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestSetupWriter_CountsWarningsAndErrors(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "json")
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Info().Msg("hello")
	log.Warn().Msg("careful")
	log.Warn().Msg("careful again")
	log.Error().Msg("broken")

	counts := Counts()
	assert.Equal(t, int64(2), counts.Warnings)
	assert.Equal(t, int64(1), counts.Errors)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}

func TestGet_AddsComponent(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "info", "json")

	l := Get("merge")
	l.Info().Msg("merged")

	assert.Contains(t, buf.String(), `"component":"merge"`)
}
