package merge

import (
	"bytes"
	"errors"

	json "github.com/goccy/go-json"
)

// JSON merges JSON object chunks. Objects present on both sides merge
// recursively, arrays concatenate and any other value is replaced by the
// newer chunk.
type JSON struct {
	doc map[string]any
}

// NewJSON creates an empty JSON merger.
func NewJSON() *JSON {
	return &JSON{}
}

// Merge decodes chunk and folds it into the accumulated object.
func (m *JSON) Merge(chunk []byte) error {
	if len(bytes.TrimSpace(chunk)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(chunk))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return malformed("json", err)
	}
	if dec.More() {
		return malformed("json", errors.New("trailing data after top-level value"))
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return malformed("json", errors.New("top-level value is not an object"))
	}

	if m.doc == nil {
		m.doc = obj
		return nil
	}
	mergeObjects(m.doc, obj)
	return nil
}

// Empty reports whether no object has been merged.
func (m *JSON) Empty() bool {
	return m.doc == nil
}

// Object returns the accumulated object.
func (m *JSON) Object() map[string]any {
	return m.doc
}

// Bytes encodes the accumulated object.
func (m *JSON) Bytes() ([]byte, error) {
	if m.doc == nil {
		return nil, nil
	}
	return json.Marshal(m.doc)
}

func mergeObjects(dst, src map[string]any) {
	for key, sv := range src {
		switch s := sv.(type) {
		case map[string]any:
			if d, ok := dst[key].(map[string]any); ok {
				mergeObjects(d, s)
				continue
			}
		case []any:
			if d, ok := dst[key].([]any); ok {
				dst[key] = append(d, s...)
				continue
			}
		}
		dst[key] = sv
	}
}
