package formengine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/files"
	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/store"
	"github.com/goliatone/go-formengine/pkg/termsearch"
	"github.com/goliatone/go-formengine/pkg/validate"
	"github.com/goliatone/go-formengine/pkg/visibility"
)

// Scope reads and writes the fields of one store: the root store or a
// repeater row. Every mutation keeps session file ownership in step with the
// values that reference cached uploads.
type Scope struct {
	form  *Form
	store *store.Store
	gate  visibility.Gate
	row   *store.Row
	path  string
}

// Store exposes the scope's field store.
func (s *Scope) Store() *store.Store { return s.store }

// RowID returns the id of the row the scope belongs to, or zero at the root.
func (s *Scope) RowID() int {
	if s.row == nil {
		return 0
	}
	return s.row.ID
}

// Keys returns the scope's field keys in declaration order.
func (s *Scope) Keys() []string { return s.store.Keys() }

// Field returns the declaration of key.
func (s *Scope) Field(key string) (*model.Field, error) { return s.store.Field(key) }

// Value returns the current value of key.
func (s *Scope) Value(key string) any { return s.store.Value(key) }

// Errors returns the recorded validation errors of key.
func (s *Scope) Errors(key string) []string { return s.store.Errors(key) }

// Passes reports whether key is visible in this scope.
func (s *Scope) Passes(key string) bool { return s.gate.Passes(key) }

// SetValue normalises and stores value. File fields reject references to
// uploads the session cache does not hold.
func (s *Scope) SetValue(key string, value any) error {
	if s.form.closed {
		return ErrClosed
	}
	field, err := s.store.Field(key)
	if err != nil {
		return err
	}
	if field.Type.IsFile() {
		normalized, err := model.Normalize(field.Type, value)
		if err != nil {
			return fmt.Errorf("formengine: set %q: %w", key, err)
		}
		refs, _ := normalized.([]model.FileRef)
		for _, ref := range refs {
			if ref.Source != model.FileSourceNewUpload {
				continue
			}
			if _, ok := s.form.files.Get(ref.SessionID); !ok {
				return fmt.Errorf("formengine: set %q: %w: %q", key, files.ErrUnknownFile, ref.SessionID)
			}
		}
		value = refs
	}
	if err := s.store.SetValue(key, value); err != nil {
		return err
	}
	s.form.reconcile()
	return nil
}

// Rows returns scopes for each row of repeater key, in display order.
func (s *Scope) Rows(key string) []*Scope {
	rows := s.store.Rows(key)
	out := make([]*Scope, 0, len(rows))
	for _, row := range rows {
		out = append(out, s.child(key, row))
	}
	return out
}

// Row returns the scope of row id in repeater key.
func (s *Scope) Row(key string, id int) (*Scope, error) {
	row, err := s.store.Row(key, id)
	if err != nil {
		return nil, err
	}
	return s.child(key, row), nil
}

// RowLabel returns the display label of row id.
func (s *Scope) RowLabel(key string, id int) string {
	for i, row := range s.store.Rows(key) {
		if row.ID == id {
			return row.Label(i)
		}
	}
	return ""
}

func (s *Scope) child(key string, row *store.Row) *Scope {
	return &Scope{
		form:  s.form,
		store: row.Store,
		gate:  s.gate.Row(row),
		row:   row,
		path:  s.path + key + "#" + strconv.Itoa(row.ID) + ".",
	}
}

// AddRow appends an empty row to repeater key.
func (s *Scope) AddRow(key string) (*Scope, error) {
	return s.AddRowWith(key, nil)
}

// AddRowWith appends a row seeded with sub-field values.
func (s *Scope) AddRowWith(key string, seed model.RowSeed) (*Scope, error) {
	if s.form.closed {
		return nil, ErrClosed
	}
	row, err := s.store.AddRowWith(key, seed)
	if err != nil {
		return nil, err
	}
	s.form.reconcile()
	return s.child(key, row), nil
}

// RemoveRow removes row id from repeater key and releases the uploads its
// fields referenced.
func (s *Scope) RemoveRow(key string, id int) error {
	if s.form.closed {
		return ErrClosed
	}
	if _, err := s.store.RemoveRow(key, id); err != nil {
		return err
	}
	s.form.reconcile()
	return nil
}

// MoveRow moves row id to position to.
func (s *Scope) MoveRow(key string, id, to int) error {
	if s.form.closed {
		return ErrClosed
	}
	return s.store.MoveRow(key, id, to)
}

func (s *Scope) fileField(key string) (*model.Field, []model.FileRef, error) {
	field, err := s.store.Field(key)
	if err != nil {
		return nil, nil, err
	}
	if !field.Type.IsFile() {
		return nil, nil, fmt.Errorf("formengine: %q is not a file field", key)
	}
	refs, _ := s.store.Value(key).([]model.FileRef)
	return field, append([]model.FileRef(nil), refs...), nil
}

// AddFile caches in and references it from file field key. Single-file
// fields replace their current file; picking the same file twice keeps one
// reference.
func (s *Scope) AddFile(key string, in files.Input) (string, error) {
	field, refs, err := s.fileField(key)
	if err != nil {
		return "", err
	}
	id, err := s.form.files.Add(in)
	if err != nil {
		return "", err
	}
	for _, ref := range refs {
		if ref.SessionID == id {
			return id, nil
		}
	}
	ref := model.NewUpload(id)
	if field.Props.MaxCount == 1 {
		refs = []model.FileRef{ref}
	} else {
		refs = append(refs, ref)
	}
	return id, s.SetValue(key, refs)
}

// AttachFile references a persisted attachment picked from the media
// browser.
func (s *Scope) AttachFile(key string, file model.FileRef) error {
	field, refs, err := s.fileField(key)
	if err != nil {
		return err
	}
	if file.Source == "" {
		file.Source = model.FileSourceExisting
	}
	if err := file.Validate(); err != nil {
		return fmt.Errorf("formengine: attach to %q: %w", key, err)
	}
	for _, ref := range refs {
		if ref.Source == file.Source && ref.ID == file.ID && ref.SessionID == file.SessionID {
			return nil
		}
	}
	if field.Props.MaxCount == 1 {
		refs = []model.FileRef{file}
	} else {
		refs = append(refs, file)
	}
	return s.SetValue(key, refs)
}

// RemoveFile drops the reference at index from file field key.
func (s *Scope) RemoveFile(key string, index int) error {
	_, refs, err := s.fileField(key)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(refs) {
		return fmt.Errorf("formengine: remove file %d of %q: index out of range", index, key)
	}
	refs = append(refs[:index], refs[index+1:]...)
	return s.SetValue(key, refs)
}

func (s *Scope) taxonomyField(key string) (*model.Field, []int, error) {
	field, err := s.store.Field(key)
	if err != nil {
		return nil, nil, err
	}
	if field.Type != model.FieldTypeTaxonomy {
		return nil, nil, fmt.Errorf("formengine: %q is not a taxonomy field", key)
	}
	selected, _ := s.store.Value(key).([]int)
	return field, selected, nil
}

// SelectTerm selects term id together with its ancestors.
func (s *Scope) SelectTerm(key string, id int) error {
	field, selected, err := s.taxonomyField(key)
	if err != nil {
		return err
	}
	return s.SetValue(key, field.Props.Tree.Select(selected, id))
}

// DeselectTerm removes term id and its descendants, and ancestors left with
// no selected descendant.
func (s *Scope) DeselectTerm(key string, id int) error {
	field, selected, err := s.taxonomyField(key)
	if err != nil {
		return err
	}
	return s.SetValue(key, field.Props.Tree.Deselect(selected, id))
}

// LeafCount returns the number of selected terms with no selected
// descendant.
func (s *Scope) LeafCount(key string) int {
	field, selected, err := s.taxonomyField(key)
	if err != nil {
		return 0
	}
	return field.Props.Tree.LeafCount(selected)
}

// SearchTerms searches the taxonomy of field key. Results of superseded
// searches return termsearch.ErrSuperseded.
func (s *Scope) SearchTerms(ctx context.Context, key, query string, page int) (termsearch.Result, error) {
	field, _, err := s.taxonomyField(key)
	if err != nil {
		return termsearch.Result{}, err
	}
	return s.form.searcher(field).Search(ctx, query, page)
}

// SearchTermsAsync runs SearchTerms in the background and calls fn with the
// outcome unless a newer search superseded it.
func (s *Scope) SearchTermsAsync(ctx context.Context, key, query string, page int, fn func(termsearch.Result, error)) error {
	field, _, err := s.taxonomyField(key)
	if err != nil {
		return err
	}
	s.form.searcher(field).Go(ctx, query, page, fn)
	return nil
}

// ValidateField validates key in this scope.
func (s *Scope) ValidateField(key string) bool {
	ctx := s.form.context(false)
	ctx.Gate = s.gate
	return validate.Field(ctx, s.store, key)
}

// ValidateFields validates keys in order and returns the first invalid one.
func (s *Scope) ValidateFields(keys []string) (string, bool) {
	ctx := s.form.context(false)
	ctx.Gate = s.gate
	return validate.Fields(ctx, s.store, keys)
}

// HasInvalidRows reports whether any row of repeater key, at any depth,
// holds errors.
func (s *Scope) HasInvalidRows(key string) bool {
	return validate.HasInvalidRows(s.store, key)
}

type owned struct {
	owner string
	id    string
}

// reconcile retains every upload referenced by the form and releases
// references that disappeared, including those of removed rows.
func (f *Form) reconcile() {
	current := make(map[owned]struct{})
	collect(f.store, "", current)

	for ref := range current {
		if _, ok := f.retained[ref]; ok {
			continue
		}
		if err := f.files.Retain(ref.id, ref.owner); err != nil {
			f.logger.Warn("retain upload", zap.String("owner", ref.owner), zap.String("id", ref.id), zap.Error(err))
			continue
		}
		f.retained[ref] = struct{}{}
	}
	for ref := range f.retained {
		if _, ok := current[ref]; ok {
			continue
		}
		delete(f.retained, ref)
		if err := f.files.Release(ref.id, ref.owner); err != nil && !errors.Is(err, files.ErrUnknownFile) {
			f.logger.Warn("release upload", zap.String("owner", ref.owner), zap.String("id", ref.id), zap.Error(err))
		}
	}
}

func collect(st *store.Store, path string, out map[owned]struct{}) {
	for _, field := range st.Fields() {
		switch {
		case field.Type.IsFile():
			refs, _ := st.Value(field.Key).([]model.FileRef)
			for _, ref := range refs {
				if ref.Source == model.FileSourceNewUpload {
					out[owned{owner: path + field.Key, id: ref.SessionID}] = struct{}{}
				}
			}
		case field.Type == model.FieldTypeRepeater:
			for _, row := range st.Rows(field.Key) {
				collect(row.Store, path+field.Key+"#"+strconv.Itoa(row.ID)+".", out)
			}
		}
	}
}
