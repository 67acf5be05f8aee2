package catalog

import (
	"fmt"

	"github.com/spf13/viper"
)

// fileSchema is the on-disk layout of a catalog file:
//
//	[[metrics]]
//	label = "disk"
//	selector = ["-d"]
//	[metrics.pivot]
//	index = ["timestamp"]
//	entity = ["DEV"]
//	skip = ["hostname", "interval"]
type fileSchema struct {
	Metrics []MetricDefinition `mapstructure:"metrics"`
}

// Load reads a catalog file. The format (toml, yaml, json) is taken from the
// file extension.
func Load(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	var schema fileSchema
	if err := v.Unmarshal(&schema); err != nil {
		return nil, fmt.Errorf("failed to decode catalog %s: %w", path, err)
	}

	c, err := New(schema.Metrics...)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}
