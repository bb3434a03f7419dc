package schema

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formengine/pkg/condition"
	"github.com/goliatone/go-formengine/pkg/model"
)

// Parse decodes a JSON or YAML schema. Structural problems (unreadable
// input, a non-object root, missing fields) are errors; problems confined to
// one field or condition are recorded as Issues and the rest of the document
// is kept.
func Parse(src Source, raw []byte) (*Document, error) {
	if src == nil {
		src = SourceInline("")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("schema: document is empty")
	}

	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("schema: parse %s: %w", src.Location(), err)
	}
	body := &root
	if body.Kind == yaml.DocumentNode && len(body.Content) > 0 {
		body = body.Content[0]
	}
	if body.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("schema: %s: document root must be an object", src.Location())
	}

	doc := &Document{Source: src, Errors: make(map[string]string)}
	var (
		fieldsNode    *yaml.Node
		stepsDeclared bool
	)
	for i := 0; i+1 < len(body.Content); i += 2 {
		key, value := body.Content[i].Value, body.Content[i+1]
		switch key {
		case "fields":
			fieldsNode = value
		case "steps":
			stepsDeclared = true
			if err := value.Decode(&doc.Steps); err != nil {
				doc.issue("steps", "", "steps must be a list of keys: %v", err)
			}
		case "errors":
			if err := value.Decode(&doc.Errors); err != nil {
				doc.issue("errors", "", "errors must map keys to templates: %v", err)
			}
		case "settings":
			if err := value.Decode(&doc.Settings); err != nil {
				doc.issue("settings", "", "invalid settings: %v", err)
			}
		}
	}
	if fieldsNode == nil {
		return nil, fmt.Errorf("schema: %s: fields are required", src.Location())
	}

	doc.Fields = doc.decodeFields(fieldsNode, "fields")
	doc.resolveSteps(stepsDeclared)
	applyThreshold(doc.Fields, doc.Settings.SearchThreshold)
	doc.check(doc.Fields, "fields", nil)
	return doc, nil
}

func (d *Document) decodeFields(node *yaml.Node, path string) []model.Field {
	var (
		out  []model.Field
		seen = make(map[string]struct{})
	)
	add := func(f model.Field, at string) {
		if _, dup := seen[f.Key]; dup {
			d.issue(at, f.Key, "duplicate field key %q", f.Key)
			return
		}
		seen[f.Key] = struct{}{}
		out = append(out, f)
	}

	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := strings.TrimSpace(node.Content[i].Value)
			at := path + "." + key
			if f, ok := d.decodeField(node.Content[i+1], at, key); ok {
				add(f, at)
			}
		}
	case yaml.SequenceNode:
		for i, item := range node.Content {
			at := fmt.Sprintf("%s[%d]", path, i)
			if f, ok := d.decodeField(item, at, ""); ok {
				add(f, at)
			}
		}
	default:
		d.issue(path, "", "fields must be an object or a list")
	}
	return out
}

func (d *Document) decodeField(node *yaml.Node, path, key string) (model.Field, bool) {
	if node.Kind != yaml.MappingNode {
		d.issue(path, key, "field must be an object")
		return model.Field{}, false
	}

	var f model.Field
	if err := without(node, "props", "conditions").Decode(&f); err != nil {
		d.issue(path, key, "invalid field: %v", err)
		return model.Field{}, false
	}
	f.Key = strings.TrimSpace(f.Key)
	if key != "" {
		if f.Key != "" && f.Key != key {
			d.issue(path, key, "declared key %q differs from its map key", f.Key)
		}
		f.Key = key
	}
	if f.Key == "" {
		d.issue(path, "", "field has no key")
		return model.Field{}, false
	}
	f.Type = model.FieldType(strings.ToLower(strings.TrimSpace(string(f.Type))))
	if !f.Type.Known() {
		d.issue(path, f.Key, "unknown field type %q", f.Type)
		return model.Field{}, false
	}

	if props := child(node, "props"); props != nil {
		d.decodeProps(props, path+".props", &f)
	}
	if f.Type == model.FieldTypeRepeater && len(f.Props.Fields) == 0 {
		d.issue(path, f.Key, "repeater declares no sub-fields")
	}
	if conds := child(node, "conditions"); conds != nil {
		f.Conditions = d.decodeConditions(conds, path+".conditions", f.Key)
	}
	if f.ConditionsBehavior != "" && f.ConditionsBehavior != model.BehaviorShow && f.ConditionsBehavior != model.BehaviorHide {
		d.issue(path, f.Key, "unknown conditions behavior %q", f.ConditionsBehavior)
		f.ConditionsBehavior = model.BehaviorShow
	}
	if f.Type != model.FieldTypeRepeater {
		if _, err := model.Normalize(f.Type, f.Value); err != nil {
			d.issue(path+".value", f.Key, "initial value dropped: %v", err)
			f.Value = nil
		}
	}

	f.Prepare()
	return f, true
}

func (d *Document) decodeProps(node *yaml.Node, path string, f *model.Field) {
	if node.Kind != yaml.MappingNode {
		d.issue(path, f.Key, "props must be an object")
		return
	}
	if err := without(node, "fields").Decode(&f.Props); err != nil {
		d.issue(path, f.Key, "invalid props: %v", err)
	}
	sub := child(node, "fields")
	if sub == nil {
		return
	}
	if f.Type != model.FieldTypeRepeater {
		d.issue(path+".fields", f.Key, "sub-fields are only read on repeaters")
		return
	}
	f.Props.Fields = d.decodeFields(sub, path+".fields")
}

// decodeConditions accepts a list of groups or, as shorthand, one flat group.
func (d *Document) decodeConditions(node *yaml.Node, path, key string) []model.ConditionGroup {
	if node.Kind != yaml.SequenceNode {
		d.issue(path, key, "conditions must be a list")
		return nil
	}
	if len(node.Content) == 0 {
		return nil
	}
	if node.Content[0].Kind == yaml.MappingNode {
		var group model.ConditionGroup
		if err := node.Decode(&group); err != nil {
			d.issue(path, key, "invalid conditions: %v", err)
			return nil
		}
		return []model.ConditionGroup{group}
	}
	var groups []model.ConditionGroup
	if err := node.Decode(&groups); err != nil {
		d.issue(path, key, "invalid conditions: %v", err)
		return nil
	}
	return groups
}

// resolveSteps derives the step list from ui-step fields when none is
// declared, and synthesizes step fields for declared steps that lack one.
func (d *Document) resolveSteps(declared bool) {
	stepFields := make(map[string]struct{})
	var derived []string
	for _, f := range d.Fields {
		if f.Type == model.FieldTypeStep {
			stepFields[f.Key] = struct{}{}
			derived = append(derived, f.Key)
		}
	}
	if !declared {
		d.Steps = derived
		return
	}

	seen := make(map[string]struct{}, len(d.Steps))
	steps := make([]string, 0, len(d.Steps))
	for _, key := range d.Steps {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			d.issue("steps", key, "duplicate step %q", key)
			continue
		}
		seen[key] = struct{}{}
		steps = append(steps, key)
		if _, ok := stepFields[key]; !ok {
			d.insertStep(key)
		}
	}
	for _, key := range derived {
		if _, ok := seen[key]; !ok {
			d.issue("fields."+key, key, "step field is not listed in steps")
			steps = append(steps, key)
		}
	}
	d.Steps = steps
}

func (d *Document) insertStep(key string) {
	field := model.Field{Key: key, Type: model.FieldTypeStep, Label: key}
	field.Prepare()
	at := len(d.Fields)
	for i, f := range d.Fields {
		if f.Step == key {
			at = i
			break
		}
	}
	d.Fields = append(d.Fields, model.Field{})
	copy(d.Fields[at+1:], d.Fields[at:])
	d.Fields[at] = field
}

func applyThreshold(fields []model.Field, threshold int) {
	if threshold <= 0 {
		return
	}
	for i := range fields {
		if fields[i].Type == model.FieldTypeTaxonomy && fields[i].Props.SearchThreshold == 0 {
			fields[i].Props.SearchThreshold = threshold
		}
		applyThreshold(fields[i].Props.Fields, threshold)
	}
}

// check reports references that cannot resolve at runtime. scope holds the
// field keys visible from enclosing repeaters, innermost last.
func (d *Document) check(fields []model.Field, path string, scope []map[string]struct{}) {
	local := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		local[f.Key] = struct{}{}
	}
	scope = append(scope, local)

	steps := make(map[string]struct{}, len(d.Steps))
	for _, s := range d.Steps {
		steps[s] = struct{}{}
	}

	for _, f := range fields {
		at := path + "." + f.Key
		if f.Step != "" && len(scope) == 1 {
			if _, ok := steps[f.Step]; !ok {
				d.issue(at, f.Key, "unknown step %q", f.Step)
			}
		}
		if f.Props.Pattern != "" {
			if _, err := regexp.Compile("^(?:" + f.Props.Pattern + ")$"); err != nil {
				d.issue(at+".props.pattern", f.Key, "invalid pattern: %v", err)
			}
		}
		for g, group := range f.Conditions {
			for c, cond := range group {
				condPath := fmt.Sprintf("%s.conditions[%d][%d]", at, g, c)
				source, _, ok := condition.ParseSource(cond.Source)
				if !ok {
					d.issue(condPath, f.Key, "malformed condition source %q", cond.Source)
				} else if !inScope(scope, source) {
					d.issue(condPath, f.Key, "condition source %q not found", cond.Source)
				}
				if _, ok := condition.Lookup(cond.Type); !ok {
					d.issue(condPath, f.Key, "unknown condition type %q", cond.Type)
				}
			}
		}
		if len(f.Props.Fields) > 0 {
			d.check(f.Props.Fields, at+".props.fields", scope)
		}
	}
}

func inScope(scope []map[string]struct{}, key string) bool {
	for i := len(scope) - 1; i >= 0; i-- {
		if _, ok := scope[i][key]; ok {
			return true
		}
	}
	return false
}

func child(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// without returns a shallow copy of a mapping node minus the named keys.
func without(node *yaml.Node, keys ...string) *yaml.Node {
	clone := *node
	clone.Content = make([]*yaml.Node, 0, len(node.Content))
	for i := 0; i+1 < len(node.Content); i += 2 {
		skip := false
		for _, k := range keys {
			if node.Content[i].Value == k {
				skip = true
				break
			}
		}
		if !skip {
			clone.Content = append(clone.Content, node.Content[i], node.Content[i+1])
		}
	}
	return &clone
}
