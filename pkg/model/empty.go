package model

import (
	"strings"
)

// IsEmpty reports whether a normalised value counts as unset. Strings are
// trimmed, collections are empty by length, locations need both coordinates
// and dates need a day.
func IsEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case *float64:
		return v == nil
	case bool:
		return !v
	case int:
		return v == 0
	case []string:
		return len(v) == 0
	case []int:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case []FileRef:
		return len(v) == 0
	case []RowSeed:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	case Location:
		return v.Lat == nil || v.Lng == nil
	case DateValue:
		return strings.TrimSpace(v.Date) == ""
	case WorkHours:
		for _, day := range v {
			if strings.TrimSpace(day.Status) != "" {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// SubValue resolves a single-level sub-property of a normalised value, the
// "prop" half of a "field.prop" condition source. Collections and strings
// expose "length"/"count".
func SubValue(value any, prop string) (any, bool) {
	prop = strings.TrimSpace(prop)
	if prop == "" {
		return value, true
	}
	if prop == "length" || prop == "count" {
		switch v := value.(type) {
		case nil:
			return 0, true
		case string:
			return len([]rune(v)), true
		case []string:
			return len(v), true
		case []int:
			return len(v), true
		case []any:
			return len(v), true
		case []FileRef:
			return len(v), true
		case int:
			return v, true
		}
	}

	switch v := value.(type) {
	case nil:
		return nil, true
	case Location:
		switch prop {
		case "address":
			return v.Address, true
		case "lat":
			return v.Lat, true
		case "lng":
			return v.Lng, true
		}
	case DateValue:
		switch prop {
		case "date":
			return v.Date, true
		case "time":
			return v.Time, true
		}
	case WorkHours:
		return v[prop].Status, true
	case map[string]any:
		return v[prop], true
	}
	return nil, false
}
