// Package wizard fills a form interactively, one step at a time, through a
// PromptDriver. The default driver renders survey prompts in the terminal.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	formengine "github.com/goliatone/go-formengine"
	"github.com/goliatone/go-formengine/pkg/files"
	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/steps"
	"github.com/goliatone/go-formengine/pkg/taxonomy"
	"github.com/goliatone/go-formengine/pkg/transport"
	"github.com/goliatone/go-formengine/pkg/validate"
)

// Opener turns a path typed by the user into an upload.
type Opener func(path string) (files.Input, error)

// OpenFile stats path and opens it lazily when the upload is read.
func OpenFile(path string) (files.Input, error) {
	info, err := os.Stat(path)
	if err != nil {
		return files.Input{}, fmt.Errorf("wizard: open %q: %w", path, err)
	}
	if info.IsDir() {
		return files.Input{}, fmt.Errorf("wizard: %q is a directory", path)
	}
	return files.Input{
		Name:         filepath.Base(path),
		Type:         mime.TypeByExtension(filepath.Ext(path)),
		Size:         info.Size(),
		LastModified: info.ModTime(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// Wizard prompts for the visible fields of each active step and submits the
// form after the last one.
type Wizard struct {
	driver  PromptDriver
	theme   Theme
	logger  *zap.Logger
	draft   bool
	confirm bool
	open    Opener
}

// New constructs a Wizard with the survey driver unless one is supplied.
func New(options ...Option) *Wizard {
	w := &Wizard{
		theme:  DefaultTheme,
		logger: zap.NewNop(),
		open:   OpenFile,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(w)
	}
	if w.driver == nil {
		w.driver = NewSurveyDriver(nil)
	}
	return w
}

// Run walks form from its current step to the end and submits it. A step
// blocked by validation is reported and prompted again.
func (w *Wizard) Run(ctx context.Context, form *formengine.Form) (transport.Response, error) {
	if ctx == nil {
		return transport.Response{}, errors.New("wizard: context is required")
	}
	if form == nil {
		return transport.Response{}, errors.New("wizard: form is nil")
	}

	for {
		if err := ctx.Err(); err != nil {
			return transport.Response{}, err
		}
		step, ok := form.Steps().Current()
		keys := form.Store().Keys()
		if ok {
			if err := w.info(ctx, w.theme.StepPrefix+stepTitle(form, step)); err != nil {
				return transport.Response{}, err
			}
			keys = form.StepFields(step)
		}
		if err := w.promptScope(ctx, form.Scope(), keys); err != nil {
			return transport.Response{}, err
		}
		if !ok {
			break
		}

		var res steps.Result
		if w.draft {
			res = form.Steps().Next(nil)
		} else {
			res = form.Next()
		}
		if res.Invalid != "" {
			w.logger.Debug("step blocked", zap.String("step", res.Step), zap.String("field", res.Invalid))
			if err := w.reportErrors(ctx, form.Scope(), res.Invalid); err != nil {
				return transport.Response{}, err
			}
			continue
		}
		if res.Done {
			break
		}
	}

	if w.confirm {
		label := form.Document().Settings.SubmitLabel
		if label == "" {
			label = "Submit"
		}
		ok, err := w.driver.Confirm(ctx, ConfirmPrompt{Message: label + "?", Default: true})
		if err != nil {
			return transport.Response{}, err
		}
		if !ok {
			return transport.Response{}, ErrAborted
		}
	}
	return w.submit(ctx, form)
}

func (w *Wizard) submit(ctx context.Context, form *formengine.Form) (transport.Response, error) {
	resp, err := form.Submit(ctx, formengine.SubmitOptions{Draft: w.draft})

	var notice *formengine.Notice
	var invalid *formengine.InvalidFieldError
	switch {
	case errors.As(err, &notice):
		for _, msg := range notice.Messages {
			if infoErr := w.info(ctx, w.theme.ErrorPrefix+msg); infoErr != nil {
				return resp, infoErr
			}
		}
		return resp, err
	case errors.As(err, &invalid):
		if infoErr := w.reportErrors(ctx, form.Scope(), invalid.Key); infoErr != nil {
			return resp, infoErr
		}
		return resp, err
	case err != nil:
		return resp, err
	}

	msg := resp.Message
	if msg == "" {
		msg = "Submitted"
	}
	if err := w.info(ctx, w.theme.InfoPrefix+msg); err != nil {
		return resp, err
	}
	if resp.ViewLink != "" {
		if err := w.info(ctx, w.theme.InfoPrefix+"View: "+resp.ViewLink); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func (w *Wizard) promptScope(ctx context.Context, scope *formengine.Scope, keys []string) error {
	for _, key := range keys {
		// Visibility is read per field so answers earlier in the step
		// reveal or hide the fields after them.
		if !scope.Passes(key) {
			continue
		}
		field, err := scope.Field(key)
		if err != nil {
			return err
		}
		if err := w.promptField(ctx, scope, field); err != nil {
			return err
		}
	}
	return nil
}

func (w *Wizard) promptField(ctx context.Context, scope *formengine.Scope, field *model.Field) error {
	switch {
	case field.Type == model.FieldTypeStep:
		return nil
	case field.IsUI:
		if text := strings.TrimSpace(validate.PlainText(field.Label)); text != "" {
			return w.info(ctx, w.theme.InfoPrefix+text)
		}
		return nil
	case field.Type == model.FieldTypeRepeater:
		return w.promptRows(ctx, scope, field)
	case field.Type.IsFile():
		return w.promptFiles(ctx, scope, field)
	case field.Type == model.FieldTypeTaxonomy:
		return w.promptTerms(ctx, scope, field)
	case field.Type == model.FieldTypeWorkHours:
		w.logger.Debug("field skipped", zap.String("field", field.Key), zap.String("type", string(field.Type)))
		return w.info(ctx, w.theme.InfoPrefix+label(field)+": not editable in the terminal")
	}

	for {
		value, err := w.ask(ctx, scope, field)
		if err != nil {
			return err
		}
		if err := scope.SetValue(field.Key, value); err != nil {
			if !errors.Is(err, model.ErrInvalidValue) {
				return err
			}
			if err := w.info(ctx, w.theme.ErrorPrefix+label(field)+": "+err.Error()); err != nil {
				return err
			}
			continue
		}
		ok, err := w.valid(ctx, scope, field.Key)
		if err != nil || ok {
			return err
		}
	}
}

func (w *Wizard) ask(ctx context.Context, scope *formengine.Scope, field *model.Field) (any, error) {
	message := label(field)
	current := scope.Value(field.Key)

	switch field.Type {
	case model.FieldTypePassword:
		return w.driver.Text(ctx, TextPrompt{Kind: TextSecret, Message: message})
	case model.FieldTypeTextarea, model.FieldTypeTextEditor:
		return w.driver.Text(ctx, TextPrompt{Kind: TextMultiline, Message: message, Default: model.CoerceString(current)})
	case model.FieldTypeSwitcher:
		def, _ := model.CoerceBool(current)
		return w.driver.Confirm(ctx, ConfirmPrompt{Message: message, Default: def})
	case model.FieldTypeSelect:
		return w.askChoice(ctx, field, current)
	case model.FieldTypeMultiSelect:
		return w.askChoices(ctx, field, current)
	case model.FieldTypeDate:
		format := "YYYY-MM-DD"
		if field.Props.EnableTime {
			format += " HH:MM"
		}
		def := ""
		if date, ok := current.(model.DateValue); ok {
			def = strings.TrimSpace(date.Date + " " + date.Time)
		}
		return w.driver.Text(ctx, TextPrompt{Message: message, Default: def, Help: format})
	case model.FieldTypeLocation:
		loc, _ := current.(model.Location)
		address, err := w.driver.Text(ctx, TextPrompt{Message: message, Default: loc.Address, Help: "address"})
		if err != nil {
			return nil, err
		}
		if address != loc.Address {
			loc = model.Location{Address: address}
		}
		return loc, nil
	case model.FieldTypeNumber:
		def := ""
		if n, ok := model.CoerceNumber(current); ok {
			def = strconv.FormatFloat(n, 'f', -1, 64)
		}
		return w.driver.Text(ctx, TextPrompt{Message: message, Default: def})
	default:
		return w.driver.Text(ctx, TextPrompt{Message: message, Default: model.CoerceString(current)})
	}
}

func (w *Wizard) askChoice(ctx context.Context, field *model.Field, current any) (any, error) {
	options := choiceLabels(field.Props.Choices)
	def := -1
	if s := model.CoerceString(current); s != "" {
		def = choiceIndex(field.Props.Choices, s)
	}
	var selected []int
	if def >= 0 {
		selected = []int{def}
	}
	picked, err := w.driver.Choose(ctx, ChoicePrompt{Message: label(field), Options: options, Selected: selected})
	if err != nil {
		return nil, err
	}
	if len(picked) == 0 || picked[0] < 0 || picked[0] >= len(field.Props.Choices) {
		return nil, nil
	}
	return field.Props.Choices[picked[0]].Value, nil
}

func (w *Wizard) askChoices(ctx context.Context, field *model.Field, current any) (any, error) {
	var defaults []int
	picked, _ := current.([]string)
	for _, value := range picked {
		if i := choiceIndex(field.Props.Choices, value); i >= 0 {
			defaults = append(defaults, i)
		}
	}
	indices, err := w.driver.Choose(ctx, ChoicePrompt{
		Message:  label(field),
		Options:  choiceLabels(field.Props.Choices),
		Selected: defaults,
		Multi:    true,
	})
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(field.Props.Choices) {
			values = append(values, field.Props.Choices[idx].Value)
		}
	}
	return values, nil
}

func (w *Wizard) promptTerms(ctx context.Context, scope *formengine.Scope, field *model.Field) error {
	tree := field.Props.Tree
	if tree.Len() == 0 {
		query, err := w.driver.Text(ctx, TextPrompt{Kind: TextQuery, Message: "Search " + label(field)})
		if err != nil {
			return err
		}
		if query = strings.TrimSpace(query); query != "" {
			if _, err := scope.SearchTerms(ctx, field.Key, query, 1); err != nil {
				w.logger.Warn("term search failed", zap.String("field", field.Key), zap.Error(err))
				if err := w.info(ctx, w.theme.ErrorPrefix+err.Error()); err != nil {
					return err
				}
			}
		}
	}

	var ids []int
	var options []string
	tree.Walk(func(term taxonomy.Term, depth int) bool {
		ids = append(ids, term.ID)
		options = append(options, strings.Repeat("  ", depth)+term.Label)
		return true
	})
	if len(options) == 0 {
		return w.info(ctx, w.theme.InfoPrefix+label(field)+": no terms available")
	}

	for {
		current, _ := scope.Value(field.Key).([]int)
		selected := make(map[int]struct{}, len(current))
		for _, id := range current {
			selected[id] = struct{}{}
		}
		var defaults []int
		for i, id := range ids {
			if _, ok := selected[id]; ok {
				defaults = append(defaults, i)
			}
		}

		indices, err := w.driver.Choose(ctx, ChoicePrompt{Message: label(field), Options: options, Selected: defaults, Multi: true})
		if err != nil {
			return err
		}
		var picked []int
		for _, idx := range indices {
			if idx >= 0 && idx < len(ids) {
				picked = tree.Select(picked, ids[idx])
			}
		}
		if err := scope.SetValue(field.Key, picked); err != nil {
			return err
		}
		ok, err := w.valid(ctx, scope, field.Key)
		if err != nil || ok {
			return err
		}
	}
}

func (w *Wizard) promptFiles(ctx context.Context, scope *formengine.Scope, field *model.Field) error {
	limit := field.Props.MaxCount
	for {
		for {
			refs, _ := scope.Value(field.Key).([]model.FileRef)
			if limit > 1 && len(refs) >= limit {
				break
			}
			path, err := w.driver.Text(ctx, TextPrompt{Kind: TextPath, Message: label(field), Help: "path to a file, blank to continue"})
			if err != nil {
				return err
			}
			path = strings.TrimSpace(path)
			if path == "" {
				break
			}
			in, err := w.open(path)
			if err == nil {
				_, err = scope.AddFile(field.Key, in)
			}
			if err != nil {
				if err := w.info(ctx, w.theme.ErrorPrefix+err.Error()); err != nil {
					return err
				}
				continue
			}
			msg := fmt.Sprintf("%s attached (%s)", in.Name, humanize.Bytes(uint64(in.Size)))
			if err := w.info(ctx, w.theme.InfoPrefix+msg); err != nil {
				return err
			}
			if limit == 1 {
				break
			}
		}
		ok, err := w.valid(ctx, scope, field.Key)
		if err != nil || ok {
			return err
		}
	}
}

func (w *Wizard) promptRows(ctx context.Context, scope *formengine.Scope, field *model.Field) error {
	for _, row := range scope.Rows(field.Key) {
		if err := w.promptRow(ctx, scope, field.Key, row); err != nil {
			return err
		}
	}

	minRows, _ := model.Bound(field.Props.Min)
	maxRows, hasMax := model.Bound(field.Props.Max)
	for {
		for {
			n := len(scope.Rows(field.Key))
			if hasMax && n >= maxRows {
				break
			}
			add, err := w.driver.Confirm(ctx, ConfirmPrompt{
				Message: fmt.Sprintf("Add a row to %s?", label(field)),
				Default: n < minRows,
			})
			if err != nil {
				return err
			}
			if !add {
				break
			}
			row, err := scope.AddRow(field.Key)
			if err != nil {
				return err
			}
			if err := w.promptRow(ctx, scope, field.Key, row); err != nil {
				return err
			}
		}
		ok, err := w.valid(ctx, scope, field.Key)
		if err != nil || ok {
			return err
		}
	}
}

func (w *Wizard) promptRow(ctx context.Context, parent *formengine.Scope, key string, row *formengine.Scope) error {
	if err := w.info(ctx, w.theme.StepPrefix+parent.RowLabel(key, row.RowID())); err != nil {
		return err
	}
	return w.promptScope(ctx, row, row.Keys())
}

// valid validates key and prints its errors. Drafts skip validation.
func (w *Wizard) valid(ctx context.Context, scope *formengine.Scope, key string) (bool, error) {
	if w.draft || scope.ValidateField(key) {
		return true, nil
	}
	return false, w.reportErrors(ctx, scope, key)
}

func (w *Wizard) reportErrors(ctx context.Context, scope *formengine.Scope, key string) error {
	name := key
	if field, err := scope.Field(key); err == nil {
		name = label(field)
	}
	for _, msg := range scope.Errors(key) {
		if err := w.info(ctx, w.theme.ErrorPrefix+name+": "+msg); err != nil {
			return err
		}
	}
	return nil
}

func (w *Wizard) info(ctx context.Context, msg string) error {
	return w.driver.Print(ctx, msg)
}

func stepTitle(form *formengine.Form, step string) string {
	if field, err := form.Store().Field(step); err == nil && field.Label != "" {
		return field.Label
	}
	return step
}

func label(field *model.Field) string {
	if field.Label != "" {
		return validate.PlainText(field.Label)
	}
	return field.Key
}

func choiceLabels(choices []model.Choice) []string {
	out := make([]string, 0, len(choices))
	for _, choice := range choices {
		if choice.Label != "" {
			out = append(out, choice.Label)
			continue
		}
		out = append(out, choice.Value)
	}
	return out
}

func choiceIndex(choices []model.Choice, value string) int {
	for i, choice := range choices {
		if choice.Value == value {
			return i
		}
	}
	return -1
}
