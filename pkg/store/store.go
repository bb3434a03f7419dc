// Package store owns the field schema, the live values, and the per-field
// validation errors of a form. Every mutation is synchronous: watchers run
// before the mutating call returns, so any visibility or validation read in
// the same turn observes consistent state.
package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/goliatone/go-formengine/pkg/model"
)

var (
	// ErrUnknownField is returned (or panicked with, see MustField) when a
	// key is not part of the schema. It is a programmer error.
	ErrUnknownField = errors.New("store: unknown field")
	// ErrDuplicateField is returned when a schema declares a key twice.
	ErrDuplicateField = errors.New("store: duplicate field")
	// ErrNotRepeater is returned by row operations on non-repeater fields.
	ErrNotRepeater = errors.New("store: field is not a repeater")
	// ErrMaxRows is returned when a repeater already holds its maximum rows.
	ErrMaxRows = errors.New("store: repeater row limit reached")
	// ErrUnknownRow is returned when a row id does not exist.
	ErrUnknownRow = errors.New("store: unknown row")
)

// WatchFunc observes a value change. It receives the previous and the new
// value of the watched key.
type WatchFunc func(old, new any)

type watcher struct {
	id int
	fn WatchFunc
}

// Store holds fields in declaration order together with their values and
// errors. Row stores created for repeater rows share the root's row counter.
type Store struct {
	fields   []*model.Field
	index    map[string]int
	values   map[string]any
	errors   map[string][]string
	watchers map[string][]watcher
	watchSeq int

	counter *int
	parent  *Store
}

// New builds a root store. Fields are prepared (see model.Field.Prepare)
// and initial values normalised.
func New(fields []model.Field) (*Store, error) {
	counter := 0
	return newStore(fields, nil, &counter, nil)
}

func newStore(fields []model.Field, seed model.RowSeed, counter *int, parent *Store) (*Store, error) {
	s := &Store{
		index:    make(map[string]int, len(fields)),
		values:   make(map[string]any, len(fields)),
		errors:   make(map[string][]string),
		watchers: make(map[string][]watcher),
		counter:  counter,
		parent:   parent,
	}

	for i := range fields {
		field := fields[i]
		field.Prepare()
		if field.Key == "" {
			return nil, fmt.Errorf("store: field at position %d has no key", i)
		}
		if !field.Type.Known() {
			return nil, fmt.Errorf("store: field %q has unknown type %q", field.Key, field.Type)
		}
		if _, exists := s.index[field.Key]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateField, field.Key)
		}
		s.index[field.Key] = len(s.fields)
		s.fields = append(s.fields, &field)

		raw := field.Value
		if seed != nil {
			if v, ok := seed[field.Key]; ok {
				raw = v
			}
		}
		value, err := s.normalize(&field, raw)
		if err != nil {
			return nil, fmt.Errorf("store: field %q: %w", field.Key, err)
		}
		s.values[field.Key] = value
	}
	return s, nil
}

// Parent returns the store owning the repeater row this store belongs to, or
// nil for the root store.
func (s *Store) Parent() *Store {
	if s == nil {
		return nil
	}
	return s.parent
}

// Has reports whether key belongs to this store.
func (s *Store) Has(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[key]
	return ok
}

// Field returns the schema for key.
func (s *Store) Field(key string) (*model.Field, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, key)
	}
	idx, ok := s.index[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, key)
	}
	return s.fields[idx], nil
}

// MustField is Field for keys the caller knows exist. Unknown keys panic.
func (s *Store) MustField(key string) *model.Field {
	field, err := s.Field(key)
	if err != nil {
		panic(err)
	}
	return field
}

// Fields returns the schema in declaration order.
func (s *Store) Fields() []*model.Field {
	if s == nil {
		return nil
	}
	return append([]*model.Field(nil), s.fields...)
}

// Keys returns field keys in declaration order.
func (s *Store) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, len(s.fields))
	for i, field := range s.fields {
		keys[i] = field.Key
	}
	return keys
}

// Value returns the current value for key (nil when unset or unknown).
func (s *Store) Value(key string) any {
	if s == nil {
		return nil
	}
	return s.values[key]
}

// SetValue normalises value for the field type, stores it, and notifies the
// key's watchers before returning. Repeater fields accept row seeds (which
// rebuild every row) or []*Row.
func (s *Store) SetValue(key string, value any) error {
	field, err := s.Field(key)
	if err != nil {
		return err
	}
	normalized, err := s.normalize(field, value)
	if err != nil {
		return fmt.Errorf("store: set %q: %w", key, err)
	}
	s.set(key, normalized)
	return nil
}

func (s *Store) set(key string, value any) {
	old := s.values[key]
	s.values[key] = value
	s.notify(key, old, value)
}

func (s *Store) normalize(field *model.Field, raw any) (any, error) {
	if field.Type != model.FieldTypeRepeater {
		return model.Normalize(field.Type, raw)
	}
	if rows, ok := raw.([]*Row); ok {
		return append([]*Row(nil), rows...), nil
	}
	seeds, err := model.Normalize(field.Type, raw)
	if err != nil || seeds == nil {
		return nil, err
	}
	typed := seeds.([]model.RowSeed)
	rows := make([]*Row, 0, len(typed))
	for _, seed := range typed {
		row, err := s.newRow(field, seed)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Errors returns a copy of the validation errors recorded for key.
func (s *Store) Errors(key string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.errors[key]...)
}

// Invalid reports whether key currently holds validation errors.
func (s *Store) Invalid(key string) bool {
	return s != nil && len(s.errors[key]) > 0
}

// SetErrors replaces the validation errors for key.
func (s *Store) SetErrors(key string, errs []string) error {
	if !s.Has(key) {
		return fmt.Errorf("%w: %q", ErrUnknownField, key)
	}
	if len(errs) == 0 {
		delete(s.errors, key)
		return nil
	}
	s.errors[key] = append([]string(nil), errs...)
	return nil
}

// ClearErrors drops the validation errors for key.
func (s *Store) ClearErrors(key string) {
	if s == nil {
		return
	}
	delete(s.errors, key)
}

// AllErrors returns every non-empty error list keyed by field key.
func (s *Store) AllErrors() map[string][]string {
	if s == nil || len(s.errors) == 0 {
		return nil
	}
	out := make(map[string][]string, len(s.errors))
	for key, errs := range s.errors {
		out[key] = append([]string(nil), errs...)
	}
	return out
}

// Watch registers fn for changes of key and returns a cancel function.
// Watchers run in registration order.
func (s *Store) Watch(key string, fn WatchFunc) (func(), error) {
	if !s.Has(key) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, key)
	}
	if fn == nil {
		return func() {}, nil
	}
	s.watchSeq++
	id := s.watchSeq
	s.watchers[key] = append(s.watchers[key], watcher{id: id, fn: fn})

	return func() {
		list := s.watchers[key]
		for i, w := range list {
			if w.id == id {
				s.watchers[key] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}, nil
}

// WatcherCount reports the number of watchers registered for key.
func (s *Store) WatcherCount(key string) int {
	if s == nil {
		return 0
	}
	return len(s.watchers[key])
}

func (s *Store) notify(key string, old, value any) {
	list := append([]watcher(nil), s.watchers[key]...)
	sort.SliceStable(list, func(i, j int) bool { return list[i].id < list[j].id })
	for _, w := range list {
		w.fn(old, value)
	}
}
