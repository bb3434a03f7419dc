// Package submit turns the visible form state into the submission wire
// format: one JSON part holding the values and one binary part per newly
// picked file.
//
// File fields serialise as marker arrays. Persisted files keep their numeric
// id; every new upload becomes the Marker token, and the n-th token of a
// field corresponds to the n-th binary part sent under that field's part
// name. Nil values are omitted so the server can tell "unset" from "empty".
package submit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/goliatone/go-formengine/pkg/files"
	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/store"
	"github.com/goliatone/go-formengine/pkg/visibility"
)

const (
	// Marker stands in for a binary part inside the JSON values.
	Marker = "__upload__"
	// ValuesPart is the multipart field name carrying the JSON values.
	ValuesPart = "values"
)

// Part is one binary file part.
type Part struct {
	Name        string
	Filename    string
	ContentType string
	Size        int64
	SessionID   string
	Open        func() (io.ReadCloser, error)
}

// Request is an assembled submission.
type Request struct {
	Values *Object
	Parts  []Part
	Hidden map[string]string
}

// FileSource resolves session file ids.
type FileSource interface {
	Get(id string) (files.Entry, bool)
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithFiles sets the session file source used to resolve new uploads.
func WithFiles(src FileSource) Option {
	return func(a *Assembler) {
		a.files = src
	}
}

// WithHidden adds hidden fields to every request.
func WithHidden(fields ...HiddenField) Option {
	return func(a *Assembler) {
		a.hidden = MergeHiddenFields(a.hidden, fields...)
	}
}

// Assembler builds requests from a store.
type Assembler struct {
	files  FileSource
	hidden map[string]string
}

// New constructs an assembler.
func New(opts ...Option) *Assembler {
	a := &Assembler{}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// FieldID joins the keys leading to a field, outermost repeater first, into
// the id used in part names.
func FieldID(keys ...string) string {
	return strings.Join(keys, ".")
}

// PartName returns the binary part name for a file field. id is the field's
// FieldID and path holds the zero-based row positions of the enclosing
// repeaters, outermost first.
func PartName(id string, path []int) string {
	if len(path) == 0 {
		return "files[" + id + "][]"
	}
	segments := make([]string, len(path))
	for i, pos := range path {
		segments[i] = strconv.Itoa(pos)
	}
	return "files[" + id + "::row-" + strings.Join(segments, ".") + "][]"
}

// Build walks st in declaration order, skipping UI fields and fields gate
// hides.
func (a *Assembler) Build(st *store.Store, gate visibility.Gate) (*Request, error) {
	if gate == nil {
		gate = visibility.Always()
	}
	values, parts, err := a.build(st, gate, nil, nil)
	if err != nil {
		return nil, err
	}
	return &Request{
		Values: values,
		Parts:  parts,
		Hidden: MergeHiddenFields(a.hidden),
	}, nil
}

func (a *Assembler) build(st *store.Store, gate visibility.Gate, keys []string, path []int) (*Object, []Part, error) {
	obj := NewObject()
	var parts []Part

	for _, field := range st.Fields() {
		if field.IsUI || !gate.Passes(field.Key) {
			continue
		}
		value := st.Value(field.Key)
		if value == nil {
			continue
		}

		switch {
		case field.Type.IsFile():
			refs, _ := value.([]model.FileRef)
			id := FieldID(append(append([]string(nil), keys...), field.Key)...)
			markers, fileParts, err := a.fileMarkers(id, refs, path)
			if err != nil {
				return nil, nil, err
			}
			obj.Set(field.Key, markers)
			parts = append(parts, fileParts...)

		case field.Type == model.FieldTypeRepeater:
			rows, _ := value.([]*store.Row)
			out := make([]any, 0, len(rows))
			rowKeys := append(append([]string(nil), keys...), field.Key)
			for i, row := range rows {
				rowPath := append(append([]int(nil), path...), i)
				rowObj, rowParts, err := a.build(row.Store, gate.Row(row), rowKeys, rowPath)
				if err != nil {
					return nil, nil, err
				}
				out = append(out, rowObj)
				parts = append(parts, rowParts...)
			}
			obj.Set(field.Key, out)

		default:
			if ptr, ok := value.(*float64); ok {
				if ptr == nil {
					continue
				}
				obj.Set(field.Key, *ptr)
				continue
			}
			obj.Set(field.Key, value)
		}
	}
	return obj, parts, nil
}

func (a *Assembler) fileMarkers(key string, refs []model.FileRef, path []int) ([]any, []Part, error) {
	markers := make([]any, 0, len(refs))
	var parts []Part
	for _, ref := range refs {
		if ref.Source == model.FileSourceExisting {
			markers = append(markers, ref.ID)
			continue
		}
		if a.files == nil {
			return nil, nil, fmt.Errorf("submit: field %q references upload %q but no file source is configured", key, ref.SessionID)
		}
		entry, ok := a.files.Get(ref.SessionID)
		if !ok {
			return nil, nil, fmt.Errorf("submit: field %q: %w: %q", key, files.ErrUnknownFile, ref.SessionID)
		}
		markers = append(markers, Marker)
		parts = append(parts, Part{
			Name:        PartName(key, path),
			Filename:    entry.Name,
			ContentType: entry.Type,
			Size:        entry.Size,
			SessionID:   entry.ID,
			Open:        entry.Open,
		})
	}
	return markers, parts, nil
}

// JSON returns the serialised values.
func (r *Request) JSON() ([]byte, error) {
	if r == nil || r.Values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Values)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Encode writes the multipart body to w and returns its content type.
// Hidden fields come first, then the values part, then binary parts in
// marker order.
func (r *Request) Encode(w io.Writer) (string, error) {
	mw := multipart.NewWriter(w)
	for _, field := range SortedHiddenFields(r.Hidden) {
		if err := mw.WriteField(field.Name, field.Value); err != nil {
			return "", fmt.Errorf("submit: write %q: %w", field.Name, err)
		}
	}

	payload, err := r.JSON()
	if err != nil {
		return "", fmt.Errorf("submit: encode values: %w", err)
	}
	if err := mw.WriteField(ValuesPart, string(payload)); err != nil {
		return "", fmt.Errorf("submit: write values: %w", err)
	}

	for _, part := range r.Parts {
		if err := writePart(mw, part); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("submit: close multipart: %w", err)
	}
	return mw.FormDataContentType(), nil
}

func writePart(mw *multipart.Writer, part Part) error {
	if part.Open == nil {
		return fmt.Errorf("submit: part %q (%s) has no content", part.Name, part.Filename)
	}
	contentType := part.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(part.Name), quoteEscaper.Replace(part.Filename)))
	header.Set("Content-Type", contentType)

	dst, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("submit: create part %q: %w", part.Name, err)
	}
	src, err := part.Open()
	if err != nil {
		return fmt.Errorf("submit: open %q: %w", part.Filename, err)
	}
	_, copyErr := io.Copy(dst, src)
	closeErr := src.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return fmt.Errorf("submit: copy %q: %w", part.Filename, err)
	}
	return nil
}
