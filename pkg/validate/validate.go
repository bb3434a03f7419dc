// Package validate runs per-type field validators over a store.
//
// Every validation overwrites the field's error list. An empty required field
// yields exactly one "required" error and skips format checks; hidden fields
// have their errors cleared and are never checked.
package validate

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/files"
	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/store"
	"github.com/goliatone/go-formengine/pkg/visibility"
)

// FileLookup resolves session file ids to cached entries.
type FileLookup interface {
	Get(id string) (files.Entry, bool)
}

// Context carries everything validators need besides the field itself.
type Context struct {
	Messages Messages
	// SkipRequired suppresses "required" errors (draft saves).
	SkipRequired bool
	Files        FileLookup
	Gate         visibility.Gate
	Registry     *Registry
	Logger       *zap.Logger
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	strictPolicy    = bluemonday.StrictPolicy()
)

// DefaultRegistry returns the shared registry used when a Context carries
// none. It is built on first use.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

func (c *Context) registry() *Registry {
	if c.Registry != nil {
		return c.Registry
	}
	return DefaultRegistry()
}

func (c *Context) gate() visibility.Gate {
	if c.Gate != nil {
		return c.Gate
	}
	return visibility.Always()
}

func (c *Context) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

// forRow returns a copy of c whose gate is scoped to row.
func (c *Context) forRow(row *store.Row) *Context {
	scoped := *c
	scoped.Gate = c.gate().Row(row)
	return &scoped
}

// Message formats the message for rule on field f. The field label is always
// available as "@label".
func (c *Context) Message(f *model.Field, rule string, tokens Tokens) string {
	merged := Tokens{"label": f.Label}
	if merged["label"] == "" {
		merged["label"] = f.Key
	}
	for k, v := range tokens {
		merged[k] = v
	}
	return c.Messages.Format(f.Type, rule, merged)
}

// Field validates key, records its errors, and reports whether it is valid.
// UI fields and hidden fields are always valid. Unknown keys panic.
func Field(ctx *Context, st *store.Store, key string) bool {
	if ctx == nil {
		ctx = &Context{}
	}
	field := st.MustField(key)
	if field.IsUI {
		return true
	}
	if !ctx.gate().Passes(key) {
		st.ClearErrors(key)
		return true
	}
	errs := ctx.check(field, st.Value(key))
	_ = st.SetErrors(key, errs)
	return len(errs) == 0
}

// Fields validates keys in order and returns the first invalid key. Every key
// is validated even after a failure so all errors surface at once.
func Fields(ctx *Context, st *store.Store, keys []string) (string, bool) {
	first := ""
	for _, key := range keys {
		if !Field(ctx, st, key) && first == "" {
			first = key
		}
	}
	return first, first == ""
}

// All validates every field of st in declaration order.
func All(ctx *Context, st *store.Store) (string, bool) {
	return Fields(ctx, st, st.Keys())
}

func (c *Context) check(field *model.Field, value any) []string {
	if Empty(field, value) {
		if field.Required && !c.SkipRequired {
			return []string{c.Message(field, RuleRequired, nil)}
		}
		return nil
	}
	fn, ok := c.registry().Lookup(field.Type)
	if !ok {
		return nil
	}
	return fn(c, field, value)
}

// Empty reports whether value counts as unset for field. Rich text is
// measured on its plain text and repeaters on their row count.
func Empty(field *model.Field, value any) bool {
	switch field.Type {
	case model.FieldTypeTextEditor:
		return strings.TrimSpace(PlainText(model.CoerceString(value))) == ""
	case model.FieldTypeRepeater:
		rows, _ := value.([]*store.Row)
		return len(rows) == 0
	default:
		return model.IsEmpty(value)
	}
}

// PlainText strips markup from rich text.
func PlainText(s string) string {
	return html.UnescapeString(strictPolicy.Sanitize(s))
}

// HasInvalidRows reports whether any row of repeater key holds an invalid
// sub-field, at any depth.
func HasInvalidRows(st *store.Store, key string) bool {
	for _, row := range st.Rows(key) {
		for _, field := range row.Store.Fields() {
			if row.Store.Invalid(field.Key) {
				return true
			}
			if field.Type == model.FieldTypeRepeater && HasInvalidRows(row.Store, field.Key) {
				return true
			}
		}
	}
	return false
}
