package state

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotSerializable is returned when a value cannot be represented as JSON.
var ErrNotSerializable = errors.New("value is not JSON serializable")

// deepMerge copies patch into dst. Maps merge key-wise, everything else
// (scalars, slices, nil) replaces the existing value. Keys absent from
// patch are left alone.
func deepMerge(dst, patch map[string]any) {
	for k, v := range patch {
		pm, patchIsMap := v.(map[string]any)
		dm, dstIsMap := dst[k].(map[string]any)
		if patchIsMap && dstIsMap {
			deepMerge(dm, pm)
			continue
		}
		dst[k] = cloneValue(v)
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// normalize converts any JSON-serializable value into the generic form
// produced by encoding/json (map[string]any, []any, float64, string, bool, nil).
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	return out, nil
}

// decode converts a generic value into a typed one.
func decode(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
