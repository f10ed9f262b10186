package models

import (
	"fmt"
	"time"
)

// Document is an open JSON document: a map of string keys to a closed
// set of JSON-compatible values (string, float64, bool, nil, []any of
// those, nested Document). Used for technical_details and
// processing_metadata columns so that serialization stays well-defined.
type Document map[string]any

// NormalizeDocument coerces an arbitrary map into a Document. Numeric
// kinds become float64, timestamps become RFC 3339 strings, nested maps
// and slices are normalized recursively, and anything else is rendered
// with fmt.Sprint.
func NormalizeDocument(m map[string]any) Document {
	if m == nil {
		return nil
	}
	out := make(Document, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case bool:
		return x
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint64:
		return float64(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case Document:
		return NormalizeDocument(x)
	case map[string]any:
		return NormalizeDocument(x)
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return fmt.Sprint(x)
	}
}
