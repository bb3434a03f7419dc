package wizard

import (
	"go.uber.org/zap"
)

// Theme captures optional prefixes applied to printed messages.
type Theme struct {
	StepPrefix  string
	InfoPrefix  string
	ErrorPrefix string
}

// DefaultTheme is used when no theme is configured.
var DefaultTheme = Theme{StepPrefix: "==> ", InfoPrefix: "", ErrorPrefix: "! "}

// Option configures a Wizard.
type Option func(*Wizard)

// WithPromptDriver overrides the prompt driver.
func WithPromptDriver(driver PromptDriver) Option {
	return func(w *Wizard) {
		if driver != nil {
			w.driver = driver
		}
	}
}

// WithTheme applies message prefixes.
func WithTheme(theme Theme) Option {
	return func(w *Wizard) {
		w.theme = theme
	}
}

// WithLogger sets the wizard logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Wizard) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDraft submits the form as a draft: required checks are skipped.
func WithDraft(draft bool) Option {
	return func(w *Wizard) {
		w.draft = draft
	}
}

// WithOpener replaces how file paths typed by the user become uploads.
func WithOpener(open Opener) Option {
	return func(w *Wizard) {
		if open != nil {
			w.open = open
		}
	}
}

// WithConfirm asks for confirmation before submitting.
func WithConfirm(confirm bool) Option {
	return func(w *Wizard) {
		w.confirm = confirm
	}
}
