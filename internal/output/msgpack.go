package output

import (
	"errors"
	"fmt"

	"github.com/basekick-labs/sarpivot/internal/table"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNoTimestamps is returned when a table cannot be encoded for a time
// series store because its time column is missing or unparseable.
var ErrNoTimestamps = errors.New("time column missing or not parseable")

// columnarPayload is Arc's columnar MessagePack write format:
// {m: "disk_tps", columns: {time: [...], sda: [...]}}.
type columnarPayload struct {
	Measurement string                   `msgpack:"m"`
	Columns     map[string][]interface{} `msgpack:"columns"`
}

type msgpackEncoder struct {
	timeColumn string
}

func (e *msgpackEncoder) encode(name string, t *table.Table) ([]byte, error) {
	cols := typeColumns(t, e.timeColumn)

	payload := columnarPayload{
		Measurement: name,
		Columns:     make(map[string][]interface{}, len(cols)),
	}
	hasTime := false
	for _, c := range cols {
		values := make([]interface{}, len(c.valid))
		key := c.name
		for i, ok := range c.valid {
			if !ok {
				continue
			}
			switch c.kind {
			case kindTime:
				values[i] = c.times[i] / 1000
			case kindFloat:
				values[i] = c.floats[i]
			default:
				values[i] = c.strings[i]
			}
		}
		if c.kind == kindTime && !hasTime {
			key = "time"
			hasTime = true
		}
		payload.Columns[key] = values
	}
	if !hasTime {
		return nil, fmt.Errorf("%s: %w (%q)", name, ErrNoTimestamps, e.timeColumn)
	}

	data, err := msgpack.Marshal(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return data, nil
}
