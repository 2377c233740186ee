package record_repo

import (
	"fmt"
	"time"

	enginesync "shopmirror/internal/sync"
)

// Field set accessors for building records from pulled payloads. Values
// arrive as the adapter's FromRemote produced them: strings, bools, numbers
// and nils.

func fsString(fields enginesync.FieldSet, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func fsStringPtr(fields enginesync.FieldSet, key string) *string {
	if v, ok := fields[key].(string); ok && v != "" {
		return &v
	}
	return nil
}

func fsBool(fields enginesync.FieldSet, key string) bool {
	v, _ := fields[key].(bool)
	return v
}

func fsInt(fields enginesync.FieldSet, key string) int {
	switch v := fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func fsTime(fields enginesync.FieldSet, key string) (time.Time, error) {
	switch v := fields[key].(type) {
	case time.Time:
		return v, nil
	case string:
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse %s: %w", key, err)
		}
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("field %s carries no timestamp", key)
}
