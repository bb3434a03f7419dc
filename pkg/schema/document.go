// Package schema loads form schema documents written in JSON or YAML.
//
// The fields object is read through yaml.v3 nodes so declaration order
// survives decoding; field order drives validation, submission and the
// order steps are walked in. A document may also list fields as a sequence
// of objects carrying their own keys.
package schema

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-formengine/pkg/model"
)

// Settings carries document-wide options.
type Settings struct {
	Title           string            `yaml:"title"`
	SubmitLabel     string            `yaml:"submit_label"`
	SearchThreshold int               `yaml:"search_threshold"`
	Hidden          map[string]string `yaml:"hidden"`
}

// Document is a parsed form schema.
type Document struct {
	Source   Source
	Fields   []model.Field
	Steps    []string
	Errors   map[string]string
	Settings Settings
	Issues   []Issue
}

// Issue is a non-fatal schema problem with its location.
type Issue struct {
	Path    string `json:"path,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// Valid reports whether the document parsed without issues.
func (d *Document) Valid() bool {
	return d != nil && len(d.Issues) == 0
}

// Field returns the top-level field declared under key.
func (d *Document) Field(key string) (model.Field, bool) {
	if d == nil {
		return model.Field{}, false
	}
	for _, f := range d.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return model.Field{}, false
}

// Location returns the origin identifier.
func (d *Document) Location() string {
	if d == nil || d.Source == nil {
		return ""
	}
	return d.Source.Location()
}

func (d *Document) issue(path, field, format string, args ...any) {
	d.Issues = append(d.Issues, Issue{
		Path:    path,
		Field:   field,
		Message: strings.TrimSpace(fmt.Sprintf(format, args...)),
	})
}
