package validate

import (
	"regexp"
	"sort"
	"sync"

	"github.com/goliatone/go-formengine/pkg/model"
)

// Validator checks a non-empty value and returns user-facing messages. It
// never records errors itself; the runner owns the store.
type Validator func(ctx *Context, field *model.Field, value any) []string

// Registry maps field types to validators. Lookups fall back to the type
// family, so image fields reuse the file validator unless overridden.
type Registry struct {
	mu         sync.RWMutex
	validators map[model.FieldType]Validator

	patternMu sync.Mutex
	patterns  map[string]compiled
}

type compiled struct {
	re  *regexp.Regexp
	err error
}

// NewRegistry returns a registry with the built-in validators registered.
func NewRegistry() *Registry {
	reg := &Registry{
		validators: make(map[model.FieldType]Validator),
		patterns:   make(map[string]compiled),
	}
	reg.registerBuiltins()
	return reg
}

// Register installs fn for t, replacing any previous validator.
func (r *Registry) Register(t model.FieldType, fn Validator) {
	if r == nil || fn == nil || t == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[t] = fn
}

// Lookup returns the validator for t or its family.
func (r *Registry) Lookup(t model.FieldType) (Validator, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.validators[t]; ok {
		return fn, true
	}
	fn, ok := r.validators[t.Family()]
	return fn, ok
}

// Types lists the registered field types, sorted.
func (r *Registry) Types() []model.FieldType {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.FieldType, 0, len(r.validators))
	for t := range r.validators {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// pattern compiles p anchored to the whole value and caches the outcome,
// including failures.
func (r *Registry) pattern(p string) (*regexp.Regexp, error) {
	r.patternMu.Lock()
	defer r.patternMu.Unlock()
	if c, ok := r.patterns[p]; ok {
		return c.re, c.err
	}
	re, err := regexp.Compile(`^(?:` + p + `)$`)
	r.patterns[p] = compiled{re: re, err: err}
	return re, err
}

func (r *Registry) registerBuiltins() {
	r.Register(model.FieldTypeText, validateText)
	r.Register(model.FieldTypeEmail, validateText)
	r.Register(model.FieldTypeURL, validateText)
	r.Register(model.FieldTypeNumber, validateNumber)
	r.Register(model.FieldTypeFile, validateFiles)
	r.Register(model.FieldTypeLocation, validateLocation)
	r.Register(model.FieldTypeDate, validateDate)
	r.Register(model.FieldTypeWorkHours, validateWorkHours)
	r.Register(model.FieldTypeSelect, validateSelect)
	r.Register(model.FieldTypeMultiSelect, validateMultiSelect)
	r.Register(model.FieldTypeTaxonomy, validateTaxonomy)
	r.Register(model.FieldTypeRepeater, validateRepeater)
}
