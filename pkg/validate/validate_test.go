package validate_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/goliatone/go-formengine/pkg/condition"
	"github.com/goliatone/go-formengine/pkg/files"
	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/store"
	"github.com/goliatone/go-formengine/pkg/taxonomy"
	"github.com/goliatone/go-formengine/pkg/validate"
)

var messages = validate.Messages{
	"required":              "@label is required",
	"text:min_length":       "At least @min_length characters",
	"text:pattern":          "Does not match the expected format",
	"taxonomy:min":          "Select at least @min terms",
	"file:type":             "@filename has a type that is not allowed (@types)",
	"file:size":             "@filename is larger than @max",
	"file:max_count":        "At most @max files",
	"work-hours:incomplete": "Add opening hours for @day",
	"repeater:rows":         "Some rows need attention",
	"number:max":            "At most @max",
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func newStore(t *testing.T, fields ...model.Field) *store.Store {
	t.Helper()
	st, err := store.New(fields)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return st
}

func set(t *testing.T, st *store.Store, key string, value any) {
	t.Helper()
	if err := st.SetValue(key, value); err != nil {
		t.Fatalf("SetValue(%q): %v", key, err)
	}
}

func TestCountryZipScenario(t *testing.T) {
	t.Parallel()

	st := newStore(t,
		model.Field{Key: "country", Type: model.FieldTypeSelect, Props: model.Props{Choices: []model.Choice{{Value: "us"}, {Value: "uk"}}}},
		model.Field{Key: "zip", Label: "ZIP", Type: model.FieldTypeText, Required: true, Conditions: []model.ConditionGroup{{
			{Type: "select:equals", Source: "country", Value: "us"},
		}}},
	)
	graph := condition.Build(st)
	defer graph.Close()
	ctx := &validate.Context{Messages: messages, Gate: graph}

	set(t, st, "country", "uk")
	if _, ok := validate.All(ctx, st); !ok {
		t.Fatalf("hidden zip must not block validation: %v", st.AllErrors())
	}
	if len(st.Errors("zip")) != 0 {
		t.Fatalf("expected no zip errors, got %v", st.Errors("zip"))
	}

	set(t, st, "country", "us")
	first, ok := validate.All(ctx, st)
	if ok || first != "zip" {
		t.Fatalf("expected zip to be the first invalid field, got %q (%v)", first, ok)
	}
	if diff := cmp.Diff([]string{"ZIP is required"}, st.Errors("zip")); diff != "" {
		t.Fatalf("zip errors mismatch (-want +got):\n%s", diff)
	}

	set(t, st, "country", "uk")
	validate.Field(ctx, st, "zip")
	if st.Invalid("zip") {
		t.Fatalf("errors must clear once zip is hidden")
	}
}

func TestRequiredWinsOverFormatChecks(t *testing.T) {
	t.Parallel()

	st := newStore(t, model.Field{
		Key:      "code",
		Label:    "Code",
		Type:     model.FieldTypeText,
		Required: true,
		Props:    model.Props{MinLength: intPtr(4), Pattern: "[A-Z]+"},
	})
	ctx := &validate.Context{Messages: messages}

	validate.Field(ctx, st, "code")
	if diff := cmp.Diff([]string{"Code is required"}, st.Errors("code")); diff != "" {
		t.Fatalf("empty errors mismatch (-want +got):\n%s", diff)
	}

	set(t, st, "code", "ab")
	validate.Field(ctx, st, "code")
	want := []string{"At least 4 characters", "Does not match the expected format"}
	if diff := cmp.Diff(want, st.Errors("code")); diff != "" {
		t.Fatalf("format errors mismatch (-want +got):\n%s", diff)
	}

	set(t, st, "code", "ABCD")
	if !validate.Field(ctx, st, "code") || st.Invalid("code") {
		t.Fatalf("expected valid code, got %v", st.Errors("code"))
	}
}

func TestDraftSkipsRequired(t *testing.T) {
	t.Parallel()

	st := newStore(t, model.Field{Key: "title", Type: model.FieldTypeTitle, Required: true})
	if !validate.Field(&validate.Context{SkipRequired: true}, st, "title") {
		t.Fatalf("draft validation must not require fields")
	}
}

func TestRichTextIsMeasuredAsPlainText(t *testing.T) {
	t.Parallel()

	st := newStore(t, model.Field{
		Key: "body", Type: model.FieldTypeTextEditor, Required: true,
		Props: model.Props{MaxLength: intPtr(5)},
		Value: "<p> &nbsp;</p>",
	})
	ctx := &validate.Context{Messages: messages}
	validate.Field(ctx, st, "body")
	if diff := cmp.Diff([]string{"body is required"}, st.Errors("body")); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}

	set(t, st, "body", "<strong>Hello</strong>")
	if !validate.Field(ctx, st, "body") {
		t.Fatalf("markup must not count towards length: %v", st.Errors("body"))
	}
}

func TestTaxonomyCountsLeafTerms(t *testing.T) {
	t.Parallel()

	st := newStore(t, model.Field{
		Key:  "cuisine",
		Type: model.FieldTypeTaxonomy,
		Props: model.Props{
			Min: floatPtr(2),
			Terms: []taxonomy.Term{
				{ID: 1, Label: "Food", Children: []taxonomy.Term{
					{ID: 2, Label: "Italian"},
					{ID: 3, Label: "Thai"},
				}},
			},
		},
	})
	ctx := &validate.Context{Messages: messages}

	set(t, st, "cuisine", []int{1, 2})
	validate.Field(ctx, st, "cuisine")
	if diff := cmp.Diff([]string{"Select at least 2 terms"}, st.Errors("cuisine")); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}

	set(t, st, "cuisine", []int{3, 1, 2})
	if !validate.Field(ctx, st, "cuisine") {
		t.Fatalf("two leaves must satisfy min 2: %v", st.Errors("cuisine"))
	}
}

func TestRepeaterRecursion(t *testing.T) {
	t.Parallel()

	st := newStore(t, model.Field{
		Key:  "menu",
		Type: model.FieldTypeRepeater,
		Props: model.Props{Fields: []model.Field{
			{Key: "section", Type: model.FieldTypeText},
			{Key: "dishes", Type: model.FieldTypeRepeater, Props: model.Props{Fields: []model.Field{
				{Key: "name", Type: model.FieldTypeText, Required: true},
				{Key: "spicy_note", Type: model.FieldTypeText, Required: true, Conditions: []model.ConditionGroup{{
					{Type: "switcher:checked", Source: "spicy"},
				}}},
				{Key: "spicy", Type: model.FieldTypeSwitcher},
			}}},
		}},
	})
	graph := condition.Build(st)
	defer graph.Close()
	ctx := &validate.Context{Messages: messages, Gate: graph}

	section, err := st.AddRow("menu")
	if err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	dish, err := section.Store.AddRow("dishes")
	if err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	set(t, dish.Store, "name", "Curry")

	if !validate.Field(ctx, st, "menu") {
		t.Fatalf("hidden spicy_note must not fail: %v", dish.Store.AllErrors())
	}

	set(t, dish.Store, "spicy", true)
	if validate.Field(ctx, st, "menu") {
		t.Fatalf("visible empty spicy_note must fail the outer repeater")
	}
	if diff := cmp.Diff([]string{"Some rows need attention"}, st.Errors("menu")); diff != "" {
		t.Fatalf("menu errors mismatch (-want +got):\n%s", diff)
	}
	if !section.Store.Invalid("dishes") {
		t.Fatalf("nested repeater must be invalid")
	}
	if !validate.HasInvalidRows(st, "menu") || !validate.HasInvalidRows(section.Store, "dishes") {
		t.Fatalf("invalid rows must be visible at every level")
	}

	set(t, dish.Store, "spicy_note", "very")
	if !validate.Field(ctx, st, "menu") || validate.HasInvalidRows(st, "menu") {
		t.Fatalf("expected the repeater to recover")
	}
}

func TestFileChecks(t *testing.T) {
	t.Parallel()

	cache := files.NewCache()
	defer cache.Close()
	id, err := cache.Add(files.Input{Name: "report.pdf", Type: "application/pdf", Size: 4096})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	st := newStore(t, model.Field{
		Key:  "photos",
		Type: model.FieldTypeImage,
		Props: model.Props{
			MaxCount:     1,
			AllowedTypes: []string{"image/*", ".heic"},
			MaxSize:      1024,
		},
	})
	set(t, st, "photos", []model.FileRef{model.NewUpload(id), {Source: model.FileSourceExisting, ID: 4, Name: "shot.heic", Size: 10}})

	ctx := &validate.Context{Messages: messages, Files: cache}
	validate.Field(ctx, st, "photos")
	want := []string{
		"At most 1 files",
		"report.pdf has a type that is not allowed (image/*, .heic)",
		"report.pdf is larger than 1.0 kB",
	}
	if diff := cmp.Diff(want, st.Errors("photos")); diff != "" {
		t.Fatalf("file errors mismatch (-want +got):\n%s", diff)
	}
}

func TestNumberPrecisionRoundsBeforeBounds(t *testing.T) {
	t.Parallel()

	st := newStore(t, model.Field{
		Key: "rating", Type: model.FieldTypeNumber,
		Props: model.Props{Max: floatPtr(10), Precision: intPtr(1)},
		Value: 10.04,
	})
	ctx := &validate.Context{Messages: messages}
	if !validate.Field(ctx, st, "rating") {
		t.Fatalf("10.04 rounds to 10.0: %v", st.Errors("rating"))
	}
	set(t, st, "rating", 10.06)
	if validate.Field(ctx, st, "rating") {
		t.Fatalf("10.06 rounds to 10.1 and exceeds the maximum")
	}
	if diff := cmp.Diff([]string{"At most 10"}, st.Errors("rating")); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestWorkHoursNeedCompleteSlots(t *testing.T) {
	t.Parallel()

	st := newStore(t, model.Field{Key: "hours", Type: model.FieldTypeWorkHours, Value: model.WorkHours{
		"monday":  {Status: model.DayOpen},
		"tuesday": {Status: model.DayClosed},
	}})
	validate.Field(&validate.Context{Messages: messages}, st, "hours")
	if diff := cmp.Diff([]string{"Add opening hours for monday"}, st.Errors("hours")); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidPatternIsLoggedAndSkipped(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	st := newStore(t, model.Field{Key: "code", Type: model.FieldTypeText, Value: "x", Props: model.Props{Pattern: "[a-"}})
	ctx := &validate.Context{Logger: zap.New(core), Registry: validate.NewRegistry()}

	if !validate.Field(ctx, st, "code") {
		t.Fatalf("invalid patterns must be skipped")
	}
	if logs.FilterMessage("invalid field pattern").Len() != 1 {
		t.Fatalf("expected the invalid pattern to be logged")
	}
}

func TestMessageFallbacks(t *testing.T) {
	t.Parallel()

	m := validate.Messages{
		"text:min_length": "text @min",
		"min":             "generic @min",
	}
	cases := []struct {
		typ  model.FieldType
		rule string
		want string
	}{
		{typ: model.FieldTypeTextarea, rule: validate.RuleMinLength, want: "text 3"},
		{typ: model.FieldTypeNumber, rule: validate.RuleMin, want: "generic 3"},
		{typ: model.FieldTypeDate, rule: validate.RuleInvalid, want: "date:invalid"},
	}
	for _, tc := range cases {
		if got := m.Format(tc.typ, tc.rule, validate.Tokens{"min": "3"}); got != tc.want {
			t.Fatalf("Format(%s, %s) = %q, want %q", tc.typ, tc.rule, got, tc.want)
		}
	}

	got := validate.Substitute("@min_length/@min", validate.Tokens{"min": "1", "min_length": "2"})
	if got != "2/1" {
		t.Fatalf("longer tokens must win, got %q", got)
	}
}

func TestDefaultRegistryIsBuiltOnce(t *testing.T) {
	t.Parallel()

	reg := validate.DefaultRegistry()
	if reg != validate.DefaultRegistry() {
		t.Fatalf("expected the same registry on every call")
	}
	if _, ok := reg.Lookup(model.FieldTypeRepeater); !ok {
		t.Fatalf("expected the repeater validator to be registered")
	}

	st := newStore(t, model.Field{
		Key:  "dishes",
		Type: model.FieldTypeRepeater,
		Props: model.Props{Fields: []model.Field{
			{Key: "name", Type: model.FieldTypeText, Required: true},
		}},
	})
	if _, err := st.AddRow("dishes"); err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	if validate.Field(&validate.Context{Messages: messages}, st, "dishes") {
		t.Fatalf("expected the empty row to fail through the default registry")
	}
}
