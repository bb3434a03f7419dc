package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/google/go-cmp/cmp"

	formengine "github.com/goliatone/go-formengine"
	"github.com/goliatone/go-formengine/pkg/files"
	"github.com/goliatone/go-formengine/pkg/submit"
	"github.com/goliatone/go-formengine/pkg/testsupport"
	"github.com/goliatone/go-formengine/pkg/transport"
)

const listing = `
steps: [basics, extras]
errors:
  required: "@label is required"
settings:
  submit_label: Publish
fields:
  title: {type: text, label: Name, required: true, step: basics}
  delivery: {type: switcher, label: Delivery, step: basics}
  radius:
    type: number
    label: Radius
    step: basics
    conditions: [{type: "switcher:checked", source: delivery}]
  kind:
    type: select
    label: Kind
    step: basics
    props: {choices: [{value: cafe, label: Cafe}, {value: bar, label: Bar}]}
  cuisine:
    type: taxonomy
    label: Cuisine
    step: extras
    props:
      terms:
        - {id: 1, label: Italian, children: [{id: 2, label: Pizza}]}
        - {id: 4, label: Japanese}
  cover: {type: image, label: Cover, step: extras, props: {max_count: 1}}
  dishes:
    type: repeater
    label: Dishes
    step: extras
    props:
      max: 2
      fields:
        name: {type: text, label: Dish, required: true}
`

type stubDriver struct {
	texts      []string
	choices    [][]int
	confirm    []bool
	printed    []string
	kinds      []TextKind
	textPos    int
	choicePos  int
	confirmPos int
}

func (s *stubDriver) Text(_ context.Context, p TextPrompt) (string, error) {
	if s.textPos >= len(s.texts) {
		return "", errors.New("no text scripted")
	}
	s.kinds = append(s.kinds, p.Kind)
	val := s.texts[s.textPos]
	s.textPos++
	return val, nil
}

func (s *stubDriver) Confirm(_ context.Context, _ ConfirmPrompt) (bool, error) {
	if s.confirmPos >= len(s.confirm) {
		return false, errors.New("no confirm scripted")
	}
	val := s.confirm[s.confirmPos]
	s.confirmPos++
	return val, nil
}

func (s *stubDriver) Choose(_ context.Context, _ ChoicePrompt) ([]int, error) {
	if s.choicePos >= len(s.choices) {
		return nil, errors.New("no choice scripted")
	}
	val := s.choices[s.choicePos]
	s.choicePos++
	return val, nil
}

func (s *stubDriver) Print(_ context.Context, msg string) error {
	s.printed = append(s.printed, msg)
	return nil
}

type recorder struct {
	calls int
	req   *submit.Request
	resp  transport.Response
}

func (r *recorder) Submit(_ context.Context, req *submit.Request) (transport.Response, error) {
	r.calls++
	r.req = req
	return r.resp, nil
}

func fakeOpen(path string) (files.Input, error) {
	if strings.HasPrefix(path, "missing") {
		return files.Input{}, errors.New("no such file")
	}
	return files.Input{
		Name: path,
		Type: "image/png",
		Size: int64(len(path)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(path)), nil
		},
	}, nil
}

func newForm(t *testing.T, rec *recorder) *formengine.Form {
	t.Helper()
	doc := testsupport.ParseSchema(t, "listing.yaml", listing)
	form, err := formengine.New(doc, formengine.WithTransport(rec))
	if err != nil {
		t.Fatalf("formengine.New: %v", err)
	}
	t.Cleanup(form.Close)
	return form
}

// filled scripts a complete session: an empty name is rejected once,
// delivery reveals radius, and one dish row is added.
func filled() *stubDriver {
	return &stubDriver{
		texts:   []string{"", "Trattoria", "2.5", "missing.png", "cover.png", "Carbonara"},
		choices: [][]int{{1}, {1}},
		confirm: []bool{true, true, false, true},
	}
}

func payload(t *testing.T, req *submit.Request) map[string]any {
	t.Helper()
	raw, err := req.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return out
}

func TestRunFillsStepsAndSubmits(t *testing.T) {
	t.Parallel()

	rec := &recorder{resp: transport.Response{Success: true, Message: "Saved", ViewLink: "/p/7"}}
	form := newForm(t, rec)
	driver := filled()

	w := New(WithPromptDriver(driver), WithOpener(fakeOpen), WithConfirm(true))
	resp, err := w.Run(context.Background(), form)
	if err != nil {
		t.Fatalf("Run: %v (printed %v)", err, driver.printed)
	}
	if !resp.Success || rec.calls != 1 {
		t.Fatalf("expected one successful submission, got %+v after %d calls", resp, rec.calls)
	}

	want := map[string]any{
		"title":    "Trattoria",
		"delivery": true,
		"radius":   2.5,
		"kind":     "bar",
		"cuisine":  []any{1.0, 2.0},
		"cover":    []any{submit.Marker},
		"dishes":   []any{map[string]any{"name": "Carbonara"}},
	}
	if diff := cmp.Diff(want, payload(t, rec.req)); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
	if len(rec.req.Parts) != 1 || rec.req.Parts[0].Filename != "cover.png" {
		t.Fatalf("expected the cover upload part, got %+v", rec.req.Parts)
	}

	wantInfo := []string{
		"==> basics",
		"! Name: Name is required",
		"==> extras",
		"! no such file",
		"cover.png attached (9 B)",
		"==> Dishes #1",
		"Saved",
		"View: /p/7",
	}
	if diff := cmp.Diff(wantInfo, driver.printed); diff != "" {
		t.Fatalf("printed mismatch (-want +got):\n%s", diff)
	}
	wantKinds := []TextKind{TextLine, TextLine, TextLine, TextPath, TextPath, TextLine}
	if diff := cmp.Diff(wantKinds, driver.kinds); diff != "" {
		t.Fatalf("text kinds mismatch (-want +got):\n%s", diff)
	}
	if driver.textPos != len(driver.texts) || driver.confirmPos != len(driver.confirm) || driver.choicePos != len(driver.choices) {
		t.Fatalf("script not fully consumed: texts %d/%d confirms %d/%d choices %d/%d",
			driver.textPos, len(driver.texts), driver.confirmPos, len(driver.confirm), driver.choicePos, len(driver.choices))
	}
}

func TestRunDraftSkipsHiddenFieldsAndRequired(t *testing.T) {
	t.Parallel()

	rec := &recorder{resp: transport.Response{Success: true}}
	form := newForm(t, rec)
	driver := &stubDriver{
		texts:   []string{"", ""},
		choices: [][]int{{0}, {}},
		confirm: []bool{false, false},
	}

	w := New(WithPromptDriver(driver), WithOpener(fakeOpen), WithDraft(true))
	if _, err := w.Run(context.Background(), form); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.req.Hidden["status"] != "draft" {
		t.Fatalf("expected draft status, got %v", rec.req.Hidden)
	}
	got := payload(t, rec.req)
	if _, ok := got["radius"]; ok {
		t.Fatalf("radius is hidden while delivery is off: %v", got)
	}
	if got["kind"] != "cafe" {
		t.Fatalf("unexpected kind %v", got["kind"])
	}
	if driver.textPos != 2 {
		t.Fatalf("expected two text answers (title, cover), got %d", driver.textPos)
	}
}

func TestRunAbortsWhenSubmitDeclined(t *testing.T) {
	t.Parallel()

	rec := &recorder{resp: transport.Response{Success: true}}
	form := newForm(t, rec)
	driver := filled()
	driver.confirm[len(driver.confirm)-1] = false

	w := New(WithPromptDriver(driver), WithOpener(fakeOpen), WithConfirm(true))
	if _, err := w.Run(context.Background(), form); !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if rec.calls != 0 {
		t.Fatalf("declined submission must not reach the transport")
	}
}

func TestRunReportsRejectedSubmission(t *testing.T) {
	t.Parallel()

	rec := &recorder{resp: transport.Response{Success: false, Message: "Title taken"}}
	form := newForm(t, rec)
	driver := filled()
	driver.confirm = driver.confirm[:len(driver.confirm)-1]

	w := New(WithPromptDriver(driver), WithOpener(fakeOpen))
	_, err := w.Run(context.Background(), form)
	var notice *formengine.Notice
	if !errors.As(err, &notice) {
		t.Fatalf("expected Notice, got %v", err)
	}
	last := driver.printed[len(driver.printed)-1]
	if last != "! Title taken" {
		t.Fatalf("expected the rejection to be printed, got %q", last)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	form := newForm(t, &recorder{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := New(WithPromptDriver(&stubDriver{}))
	if _, err := w.Run(ctx, form); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTranslateSurveyErr(t *testing.T) {
	t.Parallel()

	if err := translateSurveyErr(terminal.InterruptErr); !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	other := errors.New("boom")
	if err := translateSurveyErr(other); err != other {
		t.Fatalf("expected passthrough, got %v", err)
	}
}

func TestSelectionHelpers(t *testing.T) {
	t.Parallel()

	options := []string{"Cafe", "Bar", "Bistro"}
	if got := indexOf(options, "Bar"); got != 1 {
		t.Fatalf("indexOf = %d", got)
	}
	if diff := cmp.Diff([]int{0, 2}, indicesOf(options, []string{"Bistro", "Cafe"})); diff != "" {
		t.Fatalf("indicesOf mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Bar"}, defaultsFromIndices(options, []int{1, 7})); diff != "" {
		t.Fatalf("defaultsFromIndices mismatch (-want +got):\n%s", diff)
	}
}

func TestRunSearchesEmptyTaxonomies(t *testing.T) {
	t.Parallel()

	doc := testsupport.ParseSchema(t, "tags.yaml", `
fields:
  tags: {type: taxonomy, label: Tags}
`)
	rec := &recorder{resp: transport.Response{Success: true}}
	form, err := formengine.New(doc, formengine.WithTransport(rec))
	if err != nil {
		t.Fatalf("formengine.New: %v", err)
	}
	t.Cleanup(form.Close)

	driver := &stubDriver{texts: []string{"  "}}
	if _, err := New(WithPromptDriver(driver)).Run(context.Background(), form); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]TextKind{TextQuery}, driver.kinds); diff != "" {
		t.Fatalf("text kinds mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Tags: no terms available"}, driver.printed[:1]); diff != "" {
		t.Fatalf("printed mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchLabelIgnoresIndentation(t *testing.T) {
	t.Parallel()

	if !matchLabel("piz", "    Pizza", 0) {
		t.Fatalf("expected an indented label to match")
	}
	if matchLabel("  piz", "Pizza", 0) {
		t.Fatalf("leading spaces in the filter are significant")
	}
	if matchLabel("sushi", "  Pizza", 0) {
		t.Fatalf("unexpected match")
	}
}

func TestCompletePathMarksDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "covers"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cover.png"), []byte("png"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	want := []string{
		filepath.Join(dir, "cover.png"),
		filepath.Join(dir, "covers") + string(filepath.Separator),
	}
	if diff := cmp.Diff(want, completePath(filepath.Join(dir, "cov"))); diff != "" {
		t.Fatalf("suggestions mismatch (-want +got):\n%s", diff)
	}
}
