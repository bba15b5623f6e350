package store

import (
	"context"
	"reflect"
	"strings"

	"github.com/hyperdb/hyperdb/internal/schema"
)

// SearchRecords returns the records matching every criterion (conjunction).
// When both the criterion value and the stored value are text the match is
// a case-insensitive substring test; otherwise the values must be equal,
// with numbers compared by value so that an in-process int matches the
// float64 the same payload becomes after a persistence round-trip. A record
// missing a criterion key does not match. Empty criteria match everything.
func (s *RecordStore) SearchRecords(ctx context.Context, modelName string, criteria map[string]any) ([]*Record, error) {
	records, err := s.ListRecords(ctx, modelName)
	if err != nil {
		return nil, err
	}
	if len(criteria) == 0 {
		return records, nil
	}

	var out []*Record
	for _, rec := range records {
		if matchesAll(rec.Data, criteria) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func matchesAll(data, criteria map[string]any) bool {
	for key, want := range criteria {
		stored, ok := data[key]
		if !ok {
			return false
		}
		if !matchValue(stored, want) {
			return false
		}
	}
	return true
}

func matchValue(stored, want any) bool {
	if ws, ok := want.(string); ok {
		if ss, ok := stored.(string); ok {
			return strings.Contains(strings.ToLower(ss), strings.ToLower(ws))
		}
	}
	if wn, ok := schema.AsNumber(want); ok {
		if sn, ok := schema.AsNumber(stored); ok {
			return wn == sn
		}
		return false
	}
	return reflect.DeepEqual(stored, want)
}
