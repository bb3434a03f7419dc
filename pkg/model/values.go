package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// File reference sources.
const (
	FileSourceExisting  = "existing"
	FileSourceNewUpload = "new_upload"
)

// ErrInvalidValue is returned when a value cannot be normalised for a type.
var ErrInvalidValue = errors.New("model: invalid value")

// Location is the value of a location field.
type Location struct {
	Address string   `json:"address,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

// DateValue is the value of a date field. Time is only used when the field
// enables time selection.
type DateValue struct {
	Date string `json:"date,omitempty"`
	Time string `json:"time,omitempty"`
}

// Work hour statuses.
const (
	DayClosed      = "closed"
	DayOpen        = "open"
	DayAllDay      = "all_day"
	DayAppointment = "appointment"
)

// Weekdays lists work-hours keys in display order.
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// TimeSlot is an opening range expressed as HH:MM strings.
type TimeSlot struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// DayHours is the schedule for a single day.
type DayHours struct {
	Status string     `json:"status,omitempty"`
	Slots  []TimeSlot `json:"slots,omitempty"`
}

// WorkHours maps weekday keys to their schedule.
type WorkHours map[string]DayHours

// Days returns the configured day keys, weekdays first in display order.
func (w WorkHours) Days() []string {
	out := make([]string, 0, len(w))
	seen := make(map[string]struct{}, len(w))
	for _, day := range Weekdays {
		if _, ok := w[day]; ok {
			out = append(out, day)
			seen[day] = struct{}{}
		}
	}
	var extra []string
	for day := range w {
		if _, ok := seen[day]; !ok {
			extra = append(extra, day)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// FileRef points at a file owned elsewhere: either a persisted attachment
// (Source existing, ID) or an entry in the session file cache (Source
// new_upload, SessionID). Name/Type/Size describe persisted files when the
// server supplied them.
type FileRef struct {
	Source    string `json:"source"`
	ID        int    `json:"id,omitempty"`
	SessionID string `json:"_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Type      string `json:"type,omitempty"`
	Size      int64  `json:"size,omitempty"`
}

// Existing builds a reference to a persisted file.
func Existing(id int) FileRef {
	return FileRef{Source: FileSourceExisting, ID: id}
}

// NewUpload builds a reference to a session cache entry.
func NewUpload(sessionID string) FileRef {
	return FileRef{Source: FileSourceNewUpload, SessionID: sessionID}
}

// Validate checks that exactly one reference shape is present.
func (r FileRef) Validate() error {
	switch r.Source {
	case FileSourceExisting:
		if r.ID <= 0 || r.SessionID != "" {
			return fmt.Errorf("%w: existing file requires a numeric id only", ErrInvalidValue)
		}
	case FileSourceNewUpload:
		if r.SessionID == "" || r.ID != 0 {
			return fmt.Errorf("%w: new upload requires a session id only", ErrInvalidValue)
		}
	default:
		return fmt.Errorf("%w: unknown file source %q", ErrInvalidValue, r.Source)
	}
	return nil
}

// RowSeed is the raw sub-field value map used to create a repeater row.
type RowSeed map[string]any

// Normalize converts raw into the typed value for field type t. A nil raw
// value stays nil (unset).
func Normalize(t FieldType, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch t {
	case FieldTypeNumber:
		if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
			return nil, nil
		}
		if ptr, ok := raw.(*float64); ok {
			if ptr == nil {
				return nil, nil
			}
			v := *ptr
			return &v, nil
		}
		n, ok := CoerceNumber(raw)
		if !ok {
			return nil, fmt.Errorf("%w: %v is not numeric", ErrInvalidValue, raw)
		}
		return &n, nil
	case FieldTypeSwitcher:
		b, _ := CoerceBool(raw)
		return b, nil
	case FieldTypeMultiSelect:
		return normalizeStrings(raw)
	case FieldTypeTaxonomy:
		return normalizeIDs(raw)
	case FieldTypeFile, FieldTypeImage:
		return normalizeFiles(raw)
	case FieldTypeLocation:
		var loc Location
		if err := decodeInto(raw, &loc); err != nil {
			return nil, err
		}
		return loc, nil
	case FieldTypeDate:
		if s, ok := raw.(string); ok {
			date, clock, _ := strings.Cut(strings.TrimSpace(s), " ")
			return DateValue{Date: date, Time: strings.TrimSpace(clock)}, nil
		}
		var date DateValue
		if err := decodeInto(raw, &date); err != nil {
			return nil, err
		}
		return date, nil
	case FieldTypeWorkHours:
		var hours WorkHours
		if err := decodeInto(raw, &hours); err != nil {
			return nil, err
		}
		return hours, nil
	case FieldTypeRepeater:
		return normalizeSeeds(raw)
	default:
		return CoerceString(raw), nil
	}
}

func normalizeStrings(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return []string{}, nil
		}
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, CoerceString(item))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected a list of strings, got %T", ErrInvalidValue, raw)
	}
}

func normalizeIDs(raw any) ([]int, error) {
	var items []any
	switch v := raw.(type) {
	case []int:
		items = make([]any, len(v))
		for i, id := range v {
			items[i] = id
		}
	case []any:
		items = v
	default:
		items = []any{v}
	}

	out := make([]int, 0, len(items))
	seen := make(map[int]struct{}, len(items))
	for _, item := range items {
		n, ok := CoerceNumber(item)
		if !ok {
			return nil, fmt.Errorf("%w: term id %v is not numeric", ErrInvalidValue, item)
		}
		id := int(n)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func normalizeFiles(raw any) ([]FileRef, error) {
	var refs []FileRef
	switch v := raw.(type) {
	case []FileRef:
		refs = append([]FileRef(nil), v...)
	case FileRef:
		refs = []FileRef{v}
	case []any:
		refs = make([]FileRef, 0, len(v))
		for _, item := range v {
			if n, ok := CoerceNumber(item); ok {
				refs = append(refs, Existing(int(n)))
				continue
			}
			var ref FileRef
			if err := decodeInto(item, &ref); err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
	default:
		if n, ok := CoerceNumber(raw); ok {
			refs = []FileRef{Existing(int(n))}
			break
		}
		return nil, fmt.Errorf("%w: expected file references, got %T", ErrInvalidValue, raw)
	}
	for _, ref := range refs {
		if err := ref.Validate(); err != nil {
			return nil, err
		}
	}
	return refs, nil
}

func normalizeSeeds(raw any) ([]RowSeed, error) {
	switch v := raw.(type) {
	case []RowSeed:
		return append([]RowSeed(nil), v...), nil
	case []map[string]any:
		out := make([]RowSeed, len(v))
		for i, row := range v {
			out[i] = RowSeed(row)
		}
		return out, nil
	case []any:
		out := make([]RowSeed, 0, len(v))
		for _, item := range v {
			row, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: repeater row must be an object, got %T", ErrInvalidValue, item)
			}
			out = append(out, RowSeed(row))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected repeater rows, got %T", ErrInvalidValue, raw)
	}
}

// decodeInto maps loosely typed payloads (maps decoded from JSON or YAML)
// onto a typed struct through their JSON tags.
func decodeInto(raw any, dst any) error {
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return nil
}

// CoerceNumber converts numeric-looking values into float64.
func CoerceNumber(value any) (float64, bool) {
	if value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return v, true
	case *float64:
		if v == nil {
			return 0, false
		}
		return *v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// CoerceBool converts bool-like values. Non-empty unparseable strings are
// truthy.
func CoerceBool(value any) (bool, bool) {
	if value == nil {
		return false, false
	}
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err == nil {
			return parsed, true
		}
		return strings.TrimSpace(v) != "", true
	default:
		if n, ok := CoerceNumber(value); ok {
			return n != 0, true
		}
		return !IsEmpty(value), true
	}
}

// CoerceString renders scalar values as strings.
func CoerceString(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case *float64:
		if v == nil {
			return ""
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(value)
	}
}
