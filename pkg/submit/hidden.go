package submit

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// StatusField carries the requested publication status.
	StatusField = "status"
	// StatusDraft marks a submission saved without required checks.
	StatusDraft = "draft"
	// StatusPublish is what servers assume when no status is sent.
	StatusPublish = "publish"
)

// HiddenField is a plain text part written before the values part: the
// request action from settings.hidden, a nonce, or the draft status.
type HiddenField struct {
	Name  string
	Value string
}

// Hidden returns a HiddenField for an arbitrary name/value pair.
func Hidden(name string, value any) HiddenField {
	return HiddenField{
		Name:  strings.TrimSpace(name),
		Value: fmt.Sprint(value),
	}
}

// Nonce returns the request token field the endpoint checks.
func Nonce(name, token string) HiddenField {
	return Hidden(name, token)
}

// Draft returns the status field marking a draft save.
func Draft() HiddenField {
	return Hidden(StatusField, StatusDraft)
}

// reservedName reports names that would shadow the values part or a binary
// file part.
func reservedName(name string) bool {
	return name == ValuesPart || strings.HasPrefix(name, "files[")
}

// MergeHiddenFields returns a copy of base with fields applied. Empty and
// reserved names are dropped; later fields win on name collisions.
func MergeHiddenFields(base map[string]string, fields ...HiddenField) map[string]string {
	if len(base) == 0 && len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(fields))
	set := func(name, value string) {
		name = strings.TrimSpace(name)
		if name == "" || reservedName(name) {
			return
		}
		out[name] = value
	}
	for key, value := range base {
		set(key, value)
	}
	for _, field := range fields {
		set(field.Name, field.Value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SortedHiddenFields returns fields in the order Encode writes them: by
// name, with empty and reserved names dropped.
func SortedHiddenFields(fields map[string]string) []HiddenField {
	clean := MergeHiddenFields(fields)
	if len(clean) == 0 {
		return nil
	}
	names := make([]string, 0, len(clean))
	for name := range clean {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]HiddenField, 0, len(names))
	for _, name := range names {
		out = append(out, HiddenField{Name: name, Value: clean[name]})
	}
	return out
}
