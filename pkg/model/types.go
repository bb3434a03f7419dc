package model

import (
	"strings"

	"github.com/goliatone/go-formengine/pkg/taxonomy"
)

// FieldType is the closed set of field kinds the engine understands.
type FieldType string

const (
	FieldTypeTitle       FieldType = "title"
	FieldTypeText        FieldType = "text"
	FieldTypeTextarea    FieldType = "textarea"
	FieldTypeTextEditor  FieldType = "texteditor"
	FieldTypePassword    FieldType = "password"
	FieldTypeNumber      FieldType = "number"
	FieldTypeEmail       FieldType = "email"
	FieldTypeURL         FieldType = "url"
	FieldTypeFile        FieldType = "file"
	FieldTypeImage       FieldType = "image"
	FieldTypeLocation    FieldType = "location"
	FieldTypeTaxonomy    FieldType = "taxonomy"
	FieldTypeSwitcher    FieldType = "switcher"
	FieldTypeSelect      FieldType = "select"
	FieldTypeMultiSelect FieldType = "multiselect"
	FieldTypeWorkHours   FieldType = "work-hours"
	FieldTypeRepeater    FieldType = "repeater"
	FieldTypeDate        FieldType = "date"
	FieldTypeStep        FieldType = "ui-step"
	FieldTypeHeading     FieldType = "ui-heading"
	FieldTypeHTML        FieldType = "ui-html"
)

var knownTypes = map[FieldType]struct{}{
	FieldTypeTitle: {}, FieldTypeText: {}, FieldTypeTextarea: {}, FieldTypeTextEditor: {},
	FieldTypePassword: {}, FieldTypeNumber: {}, FieldTypeEmail: {}, FieldTypeURL: {},
	FieldTypeFile: {}, FieldTypeImage: {}, FieldTypeLocation: {}, FieldTypeTaxonomy: {},
	FieldTypeSwitcher: {}, FieldTypeSelect: {}, FieldTypeMultiSelect: {}, FieldTypeWorkHours: {},
	FieldTypeRepeater: {}, FieldTypeDate: {}, FieldTypeStep: {}, FieldTypeHeading: {},
	FieldTypeHTML: {},
}

// Known reports whether t belongs to the closed field type vocabulary.
func (t FieldType) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// IsUI reports whether the type is a UI-only pseudo field.
func (t FieldType) IsUI() bool {
	return strings.HasPrefix(string(t), "ui-")
}

// IsFile reports whether the type owns binary content.
func (t FieldType) IsFile() bool {
	return t == FieldTypeFile || t == FieldTypeImage
}

// Family groups types sharing error templates and predicates. Image fields
// share the file family, text-like inputs share the text family.
func (t FieldType) Family() FieldType {
	switch t {
	case FieldTypeImage:
		return FieldTypeFile
	case FieldTypeTitle, FieldTypeTextarea, FieldTypeTextEditor, FieldTypePassword, FieldTypeEmail, FieldTypeURL:
		return FieldTypeText
	default:
		return t
	}
}

// Behavior controls how the OR-of-ANDs condition result is applied.
type Behavior string

const (
	BehaviorShow Behavior = "show"
	BehaviorHide Behavior = "hide"
)

// Condition is a single predicate over one source field. Source is either
// "fieldKey" or "fieldKey.subProperty".
type Condition struct {
	Type   string `json:"type" yaml:"type"`
	Source string `json:"source" yaml:"source"`
	Value  any    `json:"value,omitempty" yaml:"value"`
}

// ConditionGroup is an AND-combination of conditions. Groups are OR-combined.
type ConditionGroup []Condition

// Choice is a selectable option for select/multiselect fields.
type Choice struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label,omitempty" yaml:"label"`
}

// Props carries type-specific configuration. Min/Max double as row counts for
// repeaters, leaf-term counts for taxonomies and selection counts for
// multiselects.
type Props struct {
	MinLength *int     `json:"min_length,omitempty" yaml:"min_length"`
	MaxLength *int     `json:"max_length,omitempty" yaml:"max_length"`
	Pattern   string   `json:"pattern,omitempty" yaml:"pattern"`
	Min       *float64 `json:"min,omitempty" yaml:"min"`
	Max       *float64 `json:"max,omitempty" yaml:"max"`
	Precision *int     `json:"precision,omitempty" yaml:"precision"`

	Choices  []Choice `json:"choices,omitempty" yaml:"choices"`
	Multiple bool     `json:"multiple,omitempty" yaml:"multiple"`

	MaxCount     int      `json:"max_count,omitempty" yaml:"max_count"`
	AllowedTypes []string `json:"allowed_types,omitempty" yaml:"allowed_types"`
	MaxSize      int64    `json:"max_size,omitempty" yaml:"max_size"`

	EnableTime bool `json:"enable_time,omitempty" yaml:"enable_time"`

	Terms           []taxonomy.Term `json:"terms,omitempty" yaml:"terms"`
	Taxonomy        string          `json:"taxonomy,omitempty" yaml:"taxonomy"`
	SearchThreshold int             `json:"search_threshold,omitempty" yaml:"search_threshold"`

	Fields        []Field `json:"fields,omitempty" yaml:"-"`
	RowLabelField string  `json:"row_label_field,omitempty" yaml:"row_label_field"`
	RowLabel      string  `json:"row_label,omitempty" yaml:"row_label"`

	Tree *taxonomy.Tree `json:"-" yaml:"-"`
}

// Field is a single typed unit of the schema. Value holds the raw initial
// value as delivered by the schema; live values are owned by the store.
type Field struct {
	Key                string           `json:"key" yaml:"key"`
	Type               FieldType        `json:"type" yaml:"type"`
	Label              string           `json:"label,omitempty" yaml:"label"`
	Required           bool             `json:"required,omitempty" yaml:"required"`
	Step               string           `json:"step,omitempty" yaml:"step"`
	IsUI               bool             `json:"is_ui,omitempty" yaml:"is_ui"`
	Props              Props            `json:"props" yaml:"-"`
	Value              any              `json:"value,omitempty" yaml:"value"`
	Conditions         []ConditionGroup `json:"conditions,omitempty" yaml:"conditions"`
	ConditionsBehavior Behavior         `json:"conditions_behavior,omitempty" yaml:"conditions_behavior"`
}

// Prepare fills derived schema state: ui flags, taxonomy trees and the same
// for repeater sub-schemas. It is idempotent.
func (f *Field) Prepare() {
	if f == nil {
		return
	}
	f.Key = strings.TrimSpace(f.Key)
	if f.Type.IsUI() {
		f.IsUI = true
	}
	if f.ConditionsBehavior == "" {
		f.ConditionsBehavior = BehaviorShow
	}
	if f.Type == FieldTypeTaxonomy && f.Props.Tree == nil {
		f.Props.Tree = taxonomy.NewTree(f.Props.Terms)
	}
	for i := range f.Props.Fields {
		f.Props.Fields[i].Prepare()
	}
}

// Hidden reports whether the field inverts its conditions.
func (f *Field) Hidden() bool {
	return f != nil && f.ConditionsBehavior == BehaviorHide
}

// HasChoice reports whether value is one of the declared choices. Fields
// without choices accept any value.
func (p Props) HasChoice(value string) bool {
	if len(p.Choices) == 0 {
		return true
	}
	for _, choice := range p.Choices {
		if choice.Value == value {
			return true
		}
	}
	return false
}

// Bound converts an optional float bound into an int count.
func Bound(value *float64) (int, bool) {
	if value == nil {
		return 0, false
	}
	return int(*value), true
}
