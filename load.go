package formengine

import (
	"context"

	"github.com/goliatone/go-formengine/pkg/schema"
)

// NewLoader constructs a schema loader for files, fs.FS entries, or URLs.
func NewLoader(options ...schema.LoaderOption) *schema.Loader {
	return schema.NewLoader(options...)
}

// Open loads the schema at src and builds a Form from it.
func Open(ctx context.Context, loader *schema.Loader, src schema.Source, options ...Option) (*Form, error) {
	if loader == nil {
		loader = schema.NewLoader()
	}
	doc, err := loader.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	return New(doc, options...)
}

// OpenFile loads the schema file at path and builds a Form from it.
func OpenFile(path string, options ...Option) (*Form, error) {
	return Open(context.Background(), nil, schema.SourceFromFile(path), options...)
}
