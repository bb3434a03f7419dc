package formengine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalid is wrapped by InvalidFieldError when validation blocks a
	// submission.
	ErrInvalid = errors.New("formengine: form is invalid")
	// ErrClosed is returned by operations on a closed Form.
	ErrClosed = errors.New("formengine: form is closed")
	// ErrNoTransport is returned by Submit when no transport is configured.
	ErrNoTransport = errors.New("formengine: no transport configured")
)

// InvalidFieldError names the first invalid field found during submission.
type InvalidFieldError struct {
	Key    string
	Errors []string
}

func (e *InvalidFieldError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("formengine: field %q is invalid", e.Key)
	}
	return fmt.Sprintf("formengine: field %q is invalid: %s", e.Key, strings.Join(e.Errors, "; "))
}

func (e *InvalidFieldError) Unwrap() error {
	return ErrInvalid
}

// Notice is a user-facing submission failure. Messages are trimmed and
// de-duplicated in order.
type Notice struct {
	Messages []string
	Status   string
	Err      error
}

func newNotice(err error, messages ...string) *Notice {
	normalized := normalizeMessages(messages)
	if len(normalized) == 0 && err != nil {
		normalized = []string{err.Error()}
	}
	if len(normalized) == 0 {
		normalized = []string{"Submission failed"}
	}
	return &Notice{Messages: normalized, Err: err}
}

func (n *Notice) Error() string {
	return strings.Join(n.Messages, "\n")
}

func (n *Notice) Unwrap() error {
	return n.Err
}

func normalizeMessages(messages []string) []string {
	if len(messages) == 0 {
		return nil
	}

	out := make([]string, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))

	for _, message := range messages {
		trimmed := strings.TrimSpace(message)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
