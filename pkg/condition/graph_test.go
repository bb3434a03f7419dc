package condition_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/goliatone/go-formengine/pkg/condition"
	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/store"
)

func when(typ, source string, value any) []model.ConditionGroup {
	return []model.ConditionGroup{{{Type: typ, Source: source, Value: value}}}
}

func build(t *testing.T, fields []model.Field, opts ...condition.Option) (*store.Store, *condition.Graph) {
	t.Helper()
	st, err := store.New(fields)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	g := condition.Build(st, opts...)
	t.Cleanup(g.Close)
	return st, g
}

func set(t *testing.T, st *store.Store, key string, value any) {
	t.Helper()
	if err := st.SetValue(key, value); err != nil {
		t.Fatalf("SetValue(%q): %v", key, err)
	}
}

func TestCountryZipScenario(t *testing.T) {
	t.Parallel()

	st, g := build(t, []model.Field{
		{Key: "country", Type: model.FieldTypeSelect, Props: model.Props{Choices: []model.Choice{{Value: "us"}, {Value: "uk"}}}},
		{Key: "zip", Type: model.FieldTypeText, Required: true, Conditions: when("select:equals", "country", "us")},
	})

	if g.Passes("zip") {
		t.Fatalf("zip must be hidden while country is unset")
	}
	set(t, st, "country", "us")
	if !g.Passes("zip") {
		t.Fatalf("zip must show for us")
	}
	set(t, st, "country", "uk")
	if g.Passes("zip") {
		t.Fatalf("zip must hide for uk")
	}
}

func TestStepGatingWinsOverOwnConditions(t *testing.T) {
	t.Parallel()

	st, g := build(t, []model.Field{
		{Key: "wants_extra", Type: model.FieldTypeSwitcher},
		{Key: "extra", Type: model.FieldTypeStep, Conditions: when("switcher:checked", "wants_extra", nil)},
		{Key: "notes", Type: model.FieldTypeText, Step: "extra"},
		{Key: "always", Type: model.FieldTypeText, Step: "extra", ConditionsBehavior: model.BehaviorHide, Conditions: when("text:not_empty", "notes", nil)},
		{Key: "orphan", Type: model.FieldTypeText, Step: "missing-step"},
	})

	if g.Passes("notes") || g.Passes("always") {
		t.Fatalf("fields in a hidden step must not pass")
	}
	if !g.Passes("orphan") {
		t.Fatalf("a step that is not declared does not gate")
	}

	set(t, st, "wants_extra", true)
	if !g.Passes("notes") || !g.Passes("always") {
		t.Fatalf("fields must show once the step is visible")
	}
}

func TestHideBehaviourInverts(t *testing.T) {
	t.Parallel()

	st, g := build(t, []model.Field{
		{Key: "price", Type: model.FieldTypeNumber},
		{Key: "free_note", Type: model.FieldTypeText, ConditionsBehavior: model.BehaviorHide, Conditions: when("number:greater_than", "price", 0)},
	})

	if !g.Passes("free_note") {
		t.Fatalf("hide behaviour must show the field while the condition fails")
	}
	set(t, st, "price", 10)
	if g.Passes("free_note") {
		t.Fatalf("hide behaviour must hide the field once the condition holds")
	}
}

func TestConfigurationErrorsFailClosed(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	_, g := build(t, []model.Field{
		{Key: "a", Type: model.FieldTypeText, Value: "x"},
		{Key: "missing", Type: model.FieldTypeText, Conditions: when("text:not_empty", "nope", nil)},
		{Key: "deep", Type: model.FieldTypeText, Conditions: when("text:not_empty", "a.b.c", nil)},
		{Key: "blank", Type: model.FieldTypeText, Conditions: when("text:not_empty", "a.", nil)},
		{Key: "unknown", Type: model.FieldTypeText, Conditions: when("text:sounds_like", "a", nil)},
	}, condition.WithLogger(zap.New(core)))

	for _, key := range []string{"missing", "deep", "blank", "unknown"} {
		if g.Passes(key) {
			t.Fatalf("%s must fail closed", key)
		}
	}
	if g.Passes("not-a-field") {
		t.Fatalf("unknown keys must fail closed")
	}

	if got := len(g.Issues()); got != 4 {
		t.Fatalf("expected 4 issues, got %d: %v", got, g.Issues())
	}
	if logs.FilterMessage("condition source not found").Len() != 1 {
		t.Fatalf("expected missing source to be logged")
	}
	if logs.FilterMessage("malformed condition source").Len() != 2 {
		t.Fatalf("expected malformed sources to be logged")
	}
}

func TestVisibilityChainsReadSourceVisibilityLive(t *testing.T) {
	t.Parallel()

	st, g := build(t, []model.Field{
		{Key: "a", Type: model.FieldTypeText},
		{Key: "b", Type: model.FieldTypeText, Conditions: when("text:not_empty", "a", nil)},
		{Key: "c", Type: model.FieldTypeText, Conditions: when("text:not_empty", "b", nil)},
	})

	set(t, st, "b", "filled")
	if g.Passes("c") {
		t.Fatalf("c depends on b which is hidden")
	}
	set(t, st, "a", "on")
	if !g.Passes("c") {
		t.Fatalf("c must show once its source becomes visible")
	}
	set(t, st, "a", "")
	if g.Passes("c") {
		t.Fatalf("c must hide again in the same turn")
	}
}

func TestConditionCyclesFailClosed(t *testing.T) {
	t.Parallel()

	st, g := build(t, []model.Field{
		{Key: "a", Type: model.FieldTypeText, Value: "x", Conditions: when("text:not_empty", "b", nil)},
		{Key: "b", Type: model.FieldTypeText, Value: "y", Conditions: when("text:not_empty", "a", nil)},
	})

	if g.Passes("a") || g.Passes("b") {
		t.Fatalf("cyclic conditions must fail closed")
	}
	set(t, st, "a", "z")
	if g.Passes("a") {
		t.Fatalf("cycle must stay closed after updates")
	}
}

func TestOrOfAndGroups(t *testing.T) {
	t.Parallel()

	st, g := build(t, []model.Field{
		{Key: "kind", Type: model.FieldTypeSelect},
		{Key: "tags", Type: model.FieldTypeMultiSelect},
		{Key: "target", Type: model.FieldTypeText, Conditions: []model.ConditionGroup{
			{
				{Type: "select:equals", Source: "kind", Value: "event"},
				{Type: "number:greater_than", Source: "tags.length", Value: 1},
			},
			{
				{Type: "multiselect:contains", Source: "tags", Value: "vip"},
			},
		}},
	})

	set(t, st, "kind", "event")
	set(t, st, "tags", []string{"a"})
	if g.Passes("target") {
		t.Fatalf("first group needs two tags")
	}
	set(t, st, "tags", []string{"a", "b"})
	if !g.Passes("target") {
		t.Fatalf("first group must pass with two tags")
	}
	set(t, st, "kind", "venue")
	set(t, st, "tags", []string{"vip"})
	if !g.Passes("target") {
		t.Fatalf("second group must pass on its own")
	}
}

func TestRowGraphsResolveOutwardAndPrune(t *testing.T) {
	t.Parallel()

	st, g := build(t, []model.Field{
		{Key: "mode", Type: model.FieldTypeSelect, Value: "detailed"},
		{Key: "items", Type: model.FieldTypeRepeater, Props: model.Props{Fields: []model.Field{
			{Key: "kind", Type: model.FieldTypeSelect},
			{Key: "detail", Type: model.FieldTypeText, Conditions: []model.ConditionGroup{{
				{Type: "select:equals", Source: "kind", Value: "custom"},
				{Type: "select:equals", Source: "mode", Value: "detailed"},
			}}},
		}}},
	})

	baseline := st.WatcherCount("mode")
	first, err := st.AddRow("items")
	if err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	second, err := st.AddRow("items")
	if err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	set(t, first.Store, "kind", "custom")

	got := []bool{g.Row(first).Passes("detail"), g.Row(second).Passes("detail")}
	if diff := cmp.Diff([]bool{true, false}, got); diff != "" {
		t.Fatalf("row visibility mismatch (-want +got):\n%s", diff)
	}

	set(t, st, "mode", "simple")
	if g.Row(first).Passes("detail") {
		t.Fatalf("row condition on an outer field must update")
	}

	if _, err := st.RemoveRow("items", first.ID); err != nil {
		t.Fatalf("RemoveRow: %v", err)
	}
	if g.RowGraphs() != 1 {
		t.Fatalf("expected removed row graph to be released, have %d", g.RowGraphs())
	}
	if got := st.WatcherCount("mode"); got != baseline+1 {
		t.Fatalf("expected one remaining outer watcher, got %d (baseline %d)", got, baseline)
	}
}

func TestRepeaterSourcesObserveRowCount(t *testing.T) {
	t.Parallel()

	st, g := build(t, []model.Field{
		{Key: "items", Type: model.FieldTypeRepeater, Props: model.Props{Fields: []model.Field{
			{Key: "name", Type: model.FieldTypeText},
		}}},
		{Key: "summary", Type: model.FieldTypeTextarea, Conditions: when("repeater:count_greater_than", "items", 1)},
	})

	for i := 0; i < 2; i++ {
		if _, err := st.AddRow("items"); err != nil {
			t.Fatalf("AddRow: %v", err)
		}
	}
	if !g.Passes("summary") {
		t.Fatalf("summary must show with two rows")
	}
}
