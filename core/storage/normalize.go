package storage

import (
	"encoding/json"
	"fmt"
)

// Normalize converts a record to the JSON data model (string, float64,
// bool, nil, []any, map[string]any) and returns a deep copy. Adapters store
// and return normalized records so callers never share memory with the
// backend.
func Normalize(rec Record) (Record, error) {
	if rec == nil {
		return Record{}, nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("normalize record: %w", err)
	}
	var out Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize record: %w", err)
	}
	return out, nil
}

// NewRecord normalizes an insert payload and stamps it with id. Any
// identifier in the payload is replaced.
func NewRecord(payload Record, id string) (Record, error) {
	rec, err := Normalize(payload)
	if err != nil {
		return nil, err
	}
	rec[IDField] = id
	return rec, nil
}

// Clone deep-copies records that are already normalized.
func Clone(rec Record) Record {
	if rec == nil {
		return nil
	}
	return cloneValue(rec).(map[string]any)
}

// CloneAll clones each record.
func CloneAll(records []Record) []Record {
	out := make([]Record, len(records))
	for i, rec := range records {
		out[i] = Clone(rec)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
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

// normalizeValue brings a single query or mutation operand to the JSON data
// model so it compares equal to stored values.
func normalizeValue(v any) any {
	switch v.(type) {
	case nil, string, bool, float64:
		return v
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
