// Package testsupport holds fixture and golden-file helpers shared by tests.
package testsupport

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formengine/pkg/schema"
)

// LoadSchema reads a schema fixture and fails the test on structural errors
// or recorded issues.
func LoadSchema(t *testing.T, path string) *schema.Document {
	t.Helper()

	doc, err := LoadSchemaFromPath(path)
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	if !doc.Valid() {
		t.Fatalf("schema %s has issues: %v", path, doc.Issues)
	}
	return doc
}

// LoadSchemaFromPath returns a Document without requiring testing.T.
func LoadSchemaFromPath(path string) (*schema.Document, error) {
	if path == "" {
		return nil, errors.New("testsupport: schema path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("testsupport: read %s: %w", path, err)
	}
	return schema.Parse(schema.SourceFromFile(path), data)
}

// ParseSchema parses an inline schema and fails the test when it is not
// clean.
func ParseSchema(t *testing.T, name, raw string) *schema.Document {
	t.Helper()

	doc, err := schema.Parse(schema.SourceInline(name), []byte(raw))
	if err != nil {
		t.Fatalf("parse schema %s: %v", name, err)
	}
	if !doc.Valid() {
		t.Fatalf("schema %s has issues: %v", name, doc.Issues)
	}
	return doc
}

// WriteGolden overwrites path with data when UPDATE_GOLDENS is set.
func WriteGolden(t *testing.T, path string, data []byte) bool {
	t.Helper()
	if os.Getenv("UPDATE_GOLDENS") == "" {
		return false
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir golden dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write golden: %v", err)
	}
	return true
}

// MustReadGolden reads a golden file.
func MustReadGolden(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	return data
}

// CompareGoldenJSON decodes the golden file at path and got, and returns
// their cmp.Diff. Key order and whitespace do not matter.
func CompareGoldenJSON(t *testing.T, path string, got []byte) string {
	t.Helper()

	if WriteGolden(t, path, got) {
		return ""
	}
	var want, have any
	if err := json.Unmarshal(MustReadGolden(t, path), &want); err != nil {
		t.Fatalf("decode golden %s: %v", path, err)
	}
	if err := json.Unmarshal(got, &have); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return cmp.Diff(want, have)
}
