// Package steps tracks the current position in a multi-step form. The active
// step list is derived on every read from the visibility gate, so a step that
// becomes hidden disappears without any explicit bookkeeping.
package steps

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/visibility"
)

// ErrStepOutOfRange is returned by SetStep for indexes outside the active list.
var ErrStepOutOfRange = errors.New("steps: step index out of range")

// Navigator persists the current step outside the form, the way a page keeps
// it in its address. Requested returns the step to open first.
type Navigator interface {
	Requested() string
	Record(step string)
}

// MemoryNavigator keeps the requested step and the recorded history in memory.
type MemoryNavigator struct {
	Initial string
	History []string
}

// Requested returns Initial.
func (n *MemoryNavigator) Requested() string {
	if n == nil {
		return ""
	}
	return n.Initial
}

// Record appends step to History.
func (n *MemoryNavigator) Record(step string) {
	if n == nil {
		return
	}
	n.History = append(n.History, step)
}

// ValidateFunc validates the fields of step and returns the first invalid
// field key.
type ValidateFunc func(step string) (invalid string, ok bool)

// Result describes the outcome of Next.
type Result struct {
	// Advanced is true when the controller moved to Step.
	Advanced bool
	// Step is the new current step, or the step that blocked navigation.
	Step string
	// Invalid is the first invalid field when validation blocked navigation.
	Invalid string
	// Done is true when Next was called on the last active step and it
	// validated cleanly.
	Done bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithNavigator sets the collaborator that records step changes.
func WithNavigator(nav Navigator) Option {
	return func(c *Controller) {
		c.nav = nav
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Controller tracks the current step index over the active steps.
type Controller struct {
	keys   []string
	gate   visibility.Gate
	index  int
	nav    Navigator
	logger *zap.Logger
}

// New builds a controller over the declared step keys.
func New(keys []string, gate visibility.Gate, opts ...Option) *Controller {
	if gate == nil {
		gate = visibility.Always()
	}
	c := &Controller{
		keys:   append([]string(nil), keys...),
		gate:   gate,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Keys returns every declared step, visible or not.
func (c *Controller) Keys() []string {
	return append([]string(nil), c.keys...)
}

// Active returns the visible steps in declaration order.
func (c *Controller) Active() []string {
	out := make([]string, 0, len(c.keys))
	for _, key := range c.keys {
		if c.gate.Passes(key) {
			out = append(out, key)
		}
	}
	return out
}

// Resolve selects the initial step: the navigator's requested step when it
// is active, the first active step otherwise.
func (c *Controller) Resolve() string {
	active := c.Active()
	c.index = 0
	if c.nav != nil {
		if requested := c.nav.Requested(); requested != "" {
			for i, key := range active {
				if key == requested {
					c.index = i
					break
				}
			}
		}
	}
	if len(active) == 0 {
		return ""
	}
	c.record(active[c.index])
	return active[c.index]
}

// Index returns the current index clamped to the active list.
func (c *Controller) Index() int {
	n := len(c.Active())
	if c.index >= n {
		c.index = n - 1
	}
	if c.index < 0 {
		c.index = 0
	}
	return c.index
}

// Current returns the current step key.
func (c *Controller) Current() (string, bool) {
	active := c.Active()
	if len(active) == 0 {
		return "", false
	}
	return active[c.Index()], true
}

// IsFirst reports whether the current step is the first active step.
func (c *Controller) IsFirst() bool {
	return c.Index() == 0
}

// IsLast reports whether the current step is the last active step.
func (c *Controller) IsLast() bool {
	return c.Index() >= len(c.Active())-1
}

// Next validates the current step when validate is non-nil and moves
// forward. Navigation is blocked on the first invalid field.
func (c *Controller) Next(validate ValidateFunc) Result {
	active := c.Active()
	if len(active) == 0 {
		return Result{Done: true}
	}
	i := c.Index()
	current := active[i]
	if validate != nil {
		if invalid, ok := validate(current); !ok {
			c.logger.Debug("step blocked", zap.String("step", current), zap.String("field", invalid))
			return Result{Step: current, Invalid: invalid}
		}
	}
	if i == len(active)-1 {
		return Result{Step: current, Done: true}
	}
	c.index = i + 1
	c.record(active[c.index])
	return Result{Advanced: true, Step: active[c.index]}
}

// Prev moves back one step without validation.
func (c *Controller) Prev() (string, bool) {
	active := c.Active()
	i := c.Index()
	if len(active) == 0 || i == 0 {
		return "", false
	}
	c.index = i - 1
	c.record(active[c.index])
	return active[c.index], true
}

// SetStep jumps to the active step at index i without validation.
func (c *Controller) SetStep(i int) error {
	active := c.Active()
	if i < 0 || i >= len(active) {
		return fmt.Errorf("%w: %d of %d", ErrStepOutOfRange, i, len(active))
	}
	c.index = i
	c.record(active[i])
	return nil
}

func (c *Controller) record(step string) {
	if c.nav != nil {
		c.nav.Record(step)
	}
}
