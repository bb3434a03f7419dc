package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// TextKind selects how a free-text answer is collected.
type TextKind int

const (
	// TextLine is a single line of plain text.
	TextLine TextKind = iota
	// TextSecret hides the answer while it is typed.
	TextSecret
	// TextMultiline collects several lines, for textarea and rich text.
	TextMultiline
	// TextPath asks for a local file to upload, with path completion.
	TextPath
	// TextQuery asks for a term search query. Blank skips the search.
	TextQuery
)

// TextPrompt asks for a free-text answer.
type TextPrompt struct {
	Kind    TextKind
	Message string
	Default string
	Help    string
}

// ConfirmPrompt asks a yes/no question.
type ConfirmPrompt struct {
	Message string
	Default bool
}

// ChoicePrompt asks the user to pick among labelled options. Labels may be
// indented to show a hierarchy; filtering ignores the indentation.
type ChoicePrompt struct {
	Message  string
	Options  []string
	Selected []int
	Multi    bool
	PageSize int
}

// PromptDriver collects answers for the wizard. Choose returns indices into
// ChoicePrompt.Options; a single choice returns at most one index.
type PromptDriver interface {
	Text(ctx context.Context, p TextPrompt) (string, error)
	Confirm(ctx context.Context, p ConfirmPrompt) (bool, error)
	Choose(ctx context.Context, p ChoicePrompt) ([]int, error)
	Print(ctx context.Context, msg string) error
}

type surveyDriver struct {
	out io.Writer
}

// NewSurveyDriver returns the interactive driver backed by survey. Printed
// messages go to out, or stdout when out is nil.
func NewSurveyDriver(out io.Writer) PromptDriver {
	if out == nil {
		out = os.Stdout
	}
	return &surveyDriver{out: out}
}

func (d *surveyDriver) Text(ctx context.Context, p TextPrompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var prompt survey.Prompt
	switch p.Kind {
	case TextSecret:
		prompt = &survey.Password{Message: p.Message, Help: p.Help}
	case TextMultiline:
		prompt = &survey.Multiline{Message: p.Message, Default: p.Default, Help: p.Help}
	case TextPath:
		prompt = &survey.Input{Message: p.Message, Default: p.Default, Help: p.Help, Suggest: completePath}
	case TextQuery:
		help := p.Help
		if help == "" {
			help = "blank to skip the search"
		}
		prompt = &survey.Input{Message: p.Message, Default: p.Default, Help: help}
	default:
		prompt = &survey.Input{Message: p.Message, Default: p.Default, Help: p.Help}
	}

	var out string
	if err := survey.AskOne(prompt, &out); err != nil {
		return "", translateSurveyErr(err)
	}
	return out, nil
}

func (d *surveyDriver) Confirm(ctx context.Context, p ConfirmPrompt) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var out bool
	if err := survey.AskOne(&survey.Confirm{Message: p.Message, Default: p.Default}, &out); err != nil {
		return false, translateSurveyErr(err)
	}
	return out, nil
}

func (d *surveyDriver) Choose(ctx context.Context, p ChoicePrompt) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(p.Options) == 0 {
		return nil, nil
	}
	opts := []survey.AskOpt{survey.WithFilter(matchLabel)}
	if p.PageSize > 0 {
		opts = append(opts, survey.WithPageSize(p.PageSize))
	}

	if p.Multi {
		var out []string
		prompt := &survey.MultiSelect{Message: p.Message, Options: p.Options}
		if defaults := defaultsFromIndices(p.Options, p.Selected); len(defaults) > 0 {
			prompt.Default = defaults
		}
		if err := survey.AskOne(prompt, &out, opts...); err != nil {
			return nil, translateSurveyErr(err)
		}
		return indicesOf(p.Options, out), nil
	}

	var out string
	prompt := &survey.Select{Message: p.Message, Options: p.Options}
	if defaults := defaultsFromIndices(p.Options, p.Selected); len(defaults) > 0 {
		prompt.Default = defaults[0]
	}
	if err := survey.AskOne(prompt, &out, opts...); err != nil {
		return nil, translateSurveyErr(err)
	}
	if idx := indexOf(p.Options, out); idx >= 0 {
		return []int{idx}, nil
	}
	return nil, nil
}

func (d *surveyDriver) Print(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(d.out, msg)
	return err
}

// matchLabel filters options case-insensitively, ignoring hierarchy
// indentation.
func matchLabel(filter, value string, _ int) bool {
	return strings.Contains(strings.ToLower(strings.TrimSpace(value)), strings.ToLower(filter))
}

// completePath suggests files and directories starting with toComplete.
// Directories end with a separator so completion can continue into them.
func completePath(toComplete string) []string {
	matches, err := filepath.Glob(toComplete + "*")
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		if info, err := os.Stat(match); err == nil && info.IsDir() {
			match += string(filepath.Separator)
		}
		out = append(out, match)
	}
	sort.Strings(out)
	return out
}

func translateSurveyErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return ErrAborted
	}
	return err
}

func indexOf(options []string, value string) int {
	for i, option := range options {
		if option == value {
			return i
		}
	}
	return -1
}

func indicesOf(options, values []string) []int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	var out []int
	for i, option := range options {
		if _, ok := seen[option]; ok {
			out = append(out, i)
		}
	}
	return out
}

func defaultsFromIndices(options []string, indices []int) []string {
	var out []string
	for _, idx := range indices {
		if idx >= 0 && idx < len(options) {
			out = append(out, options[idx])
		}
	}
	return out
}
