// Package audit computes field-level diffs and records immutable history
// entries for entity mutations.
package audit

import (
	"reflect"
	"time"
)

// Snapshot is the flat field map of an entity taken before or after a change.
type Snapshot map[string]any

// Changes is the payload of an "edited" entry. Edited values are
// [old, new] pairs.
type Changes struct {
	Added   map[string]any    `json:"added"`
	Edited  map[string][2]any `json:"edited"`
	Deleted map[string]any    `json:"deleted"`
}

func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Edited) == 0 && len(c.Deleted) == 0
}

// Diff compares two snapshots. Fields equal on both sides are ignored. A
// field missing or falsy afterwards counts as deleted. A field truthy on both
// sides counts as edited. A field falsy before and truthy after counts as
// added, as does any field only present afterwards. Inputs are not modified.
func Diff(before Snapshot, after Snapshot) Changes {
	changes := Changes{
		Added:   map[string]any{},
		Edited:  map[string][2]any{},
		Deleted: map[string]any{},
	}

	remaining := make(map[string]any, len(after))
	for k, v := range after {
		remaining[k] = v
	}

	for k, old := range before {
		cur, present := remaining[k]
		switch {
		case present && reflect.DeepEqual(old, cur):
			delete(remaining, k)
		case !present:
			changes.Deleted[k] = old
		case !Truthy(cur):
			changes.Deleted[k] = old
			delete(remaining, k)
		case Truthy(old):
			changes.Edited[k] = [2]any{old, cur}
			delete(remaining, k)
		}
	}

	for k, v := range remaining {
		changes.Added[k] = v
	}
	return changes
}

// Truthy reports whether v counts as a set value: not nil, false, zero,
// empty string, empty collection or zero time.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	if t, ok := v.(time.Time); ok {
		return !t.IsZero()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	default:
		return true
	}
}
