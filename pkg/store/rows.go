package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-formengine/pkg/model"
)

// Row is one instance of a repeater sub-schema. ID comes from a counter
// shared by the whole form, so it never collides with a removed row and stays
// stable while sibling rows come and go.
type Row struct {
	ID       int
	Store    *Store
	repeater *model.Field
}

// Label derives the display label for the row at position index (zero
// based). The configured label field wins when it holds text.
func (r *Row) Label(index int) string {
	if r == nil {
		return ""
	}
	if key := r.repeater.Props.RowLabelField; key != "" {
		if label := strings.TrimSpace(model.CoerceString(r.Store.Value(key))); label != "" {
			return label
		}
	}
	base := strings.TrimSpace(r.repeater.Props.RowLabel)
	if base == "" {
		base = strings.TrimSpace(r.repeater.Label)
	}
	if base == "" {
		base = r.repeater.Key
	}
	return base + " #" + strconv.Itoa(index+1)
}

// Repeater returns the key of the repeater owning the row.
func (r *Row) Repeater() string {
	if r == nil || r.repeater == nil {
		return ""
	}
	return r.repeater.Key
}

func (s *Store) newRow(field *model.Field, seed model.RowSeed) (*Row, error) {
	*s.counter++
	child, err := newStore(field.Props.Fields, seed, s.counter, s)
	if err != nil {
		return nil, fmt.Errorf("store: repeater %q row: %w", field.Key, err)
	}
	return &Row{ID: *s.counter, Store: child, repeater: field}, nil
}

func (s *Store) repeaterField(key string) (*model.Field, error) {
	field, err := s.Field(key)
	if err != nil {
		return nil, err
	}
	if field.Type != model.FieldTypeRepeater {
		return nil, fmt.Errorf("%w: %q", ErrNotRepeater, key)
	}
	return field, nil
}

// Rows returns the rows of a repeater in display order.
func (s *Store) Rows(key string) []*Row {
	rows, _ := s.Value(key).([]*Row)
	return append([]*Row(nil), rows...)
}

// Row returns a row by id.
func (s *Store) Row(key string, id int) (*Row, error) {
	if _, err := s.repeaterField(key); err != nil {
		return nil, err
	}
	for _, row := range s.Rows(key) {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, fmt.Errorf("%w: %q #%d", ErrUnknownRow, key, id)
}

// AddRow appends an empty row built from the repeater sub-schema.
func (s *Store) AddRow(key string) (*Row, error) {
	return s.AddRowWith(key, nil)
}

// AddRowWith appends a row seeded with sub-field values.
func (s *Store) AddRowWith(key string, seed model.RowSeed) (*Row, error) {
	field, err := s.repeaterField(key)
	if err != nil {
		return nil, err
	}
	rows := s.Rows(key)
	if max, ok := model.Bound(field.Props.Max); ok && max > 0 && len(rows) >= max {
		return nil, fmt.Errorf("%w: %q allows %d", ErrMaxRows, key, max)
	}
	row, err := s.newRow(field, seed)
	if err != nil {
		return nil, err
	}
	s.set(key, append(rows, row))
	return row, nil
}

// RemoveRow removes a row by id and returns it.
func (s *Store) RemoveRow(key string, id int) (*Row, error) {
	if _, err := s.repeaterField(key); err != nil {
		return nil, err
	}
	rows := s.Rows(key)
	for i, row := range rows {
		if row.ID != id {
			continue
		}
		next := append(rows[:i:i], rows[i+1:]...)
		s.set(key, next)
		return row, nil
	}
	return nil, fmt.Errorf("%w: %q #%d", ErrUnknownRow, key, id)
}

// MoveRow moves the row with id to position to. Row ids are unaffected.
func (s *Store) MoveRow(key string, id, to int) error {
	if _, err := s.repeaterField(key); err != nil {
		return err
	}
	rows := s.Rows(key)
	from := -1
	for i, row := range rows {
		if row.ID == id {
			from = i
			break
		}
	}
	if from < 0 {
		return fmt.Errorf("%w: %q #%d", ErrUnknownRow, key, id)
	}
	if to < 0 || to >= len(rows) {
		return fmt.Errorf("store: move %q #%d: position %d out of range", key, id, to)
	}
	row := rows[from]
	rows = append(rows[:from], rows[from+1:]...)
	rows = append(rows[:to], append([]*Row{row}, rows[to:]...)...)
	s.set(key, rows)
	return nil
}
