package pipeline

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// ResolveSources keeps the paths naming existing regular files, in the order
// given. Other paths are excluded with a warning; an empty result is an
// ErrInvalidInput.
func ResolveSources(paths []string, logger zerolog.Logger) ([]string, error) {
	usable := make([]string, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			logger.Warn().Err(err).Str("source", p).Msg("Source excluded")
			continue
		}
		if !info.Mode().IsRegular() {
			logger.Warn().
				Str("source", p).
				Str("mode", info.Mode().Type().String()).
				Msg("Source excluded, not a regular file")
			continue
		}
		usable = append(usable, p)
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("%w: no usable source files among %d given", ErrInvalidInput, len(paths))
	}
	return usable, nil
}
