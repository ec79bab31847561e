package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Fields serializes an entity into a field map ready for Write. Unset fields
// (JSON null) are stripped at every nesting level; the store never persists
// nulls.
func Fields(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode fields: %w", err)
	}
	out, err := decodeMap(raw)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeMap(fields map[string]any) (map[string]any, error) {
	if fields == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode fields: %w", err)
	}
	return decodeMap(raw)
}

func decodeMap(raw []byte) (map[string]any, error) {
	var out map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("docstore: fields must encode to a JSON object: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	stripNulls(out)
	return out, nil
}

func normalizeValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode value: %w", err)
	}
	var out any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("docstore: decode value: %w", err)
	}
	return out, nil
}

func stripNulls(m map[string]any) {
	for k, v := range m {
		switch typed := v.(type) {
		case nil:
			delete(m, k)
		case map[string]any:
			stripNulls(typed)
		case []any:
			for _, item := range typed {
				if nested, ok := item.(map[string]any); ok {
					stripNulls(nested)
				}
			}
		}
	}
}

// mergeMaps writes patch into dst. Nested objects merge key by key; every
// other value, arrays included, replaces what was there.
func mergeMaps(dst, patch map[string]any) map[string]any {
	for k, v := range patch {
		incoming, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		if existing, ok := dst[k].(map[string]any); ok {
			dst[k] = mergeMaps(existing, incoming)
			continue
		}
		dst[k] = incoming
	}
	return dst
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func cloneDocument(d *Document) Document {
	return Document{
		ID:        d.ID,
		Data:      cloneMap(d.Data),
		Revision:  d.Revision,
		UpdatedAt: d.UpdatedAt,
	}
}

func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
