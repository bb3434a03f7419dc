package visibility

import "github.com/goliatone/go-formengine/pkg/store"

// Gate answers whether a field is currently visible. Validators, the step
// controller and the submission assembler only ever see fields through a
// Gate, so hidden fields are neither validated nor submitted.
type Gate interface {
	Passes(key string) bool
	// Row returns the gate scoped to a repeater row. Sub-field conditions
	// resolve inside the row first and fall back to enclosing scopes.
	Row(row *store.Row) Gate
}

// GateFunc adapts a function into a Gate whose rows share the same function.
type GateFunc func(key string) bool

// Passes delegates to the underlying function.
func (fn GateFunc) Passes(key string) bool {
	if fn == nil {
		return true
	}
	return fn(key)
}

// Row returns fn unchanged.
func (fn GateFunc) Row(*store.Row) Gate {
	return fn
}

// Always is a Gate under which every field is visible.
func Always() Gate {
	return GateFunc(func(string) bool { return true })
}
