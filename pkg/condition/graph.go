// Package condition evaluates declared field conditions against live store
// values. Each condition watches its own source and recomputes its predicate
// when the observed sub-value changes; source visibility is read live, so a
// chain of conditions stays consistent without a global recompute order.
package condition

import (
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/store"
	"github.com/goliatone/go-formengine/pkg/visibility"
)

// Option configures a Graph.
type Option func(*Graph)

// WithLogger routes configuration warnings (missing sources, malformed
// sources, unknown predicates, cycles) to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.shared.logger = logger
		}
	}
}

type cond struct {
	decl   model.Condition
	pred   Predicate
	source *Graph
	key    string
	prop   string
	broken bool

	matched bool
}

type shared struct {
	logger *zap.Logger
	seen   map[string]bool
	issues []string
}

// Graph holds the evaluated conditions of one store. Row graphs are children
// of the graph owning the repeater and resolve sources through their parents.
type Graph struct {
	store    *store.Store
	parent   *Graph
	repeater string
	shared   *shared

	conds      map[string][][]*cond
	rows       map[int]*Graph
	pruned     map[string]bool
	cancels    []func()
	evaluating map[string]bool
}

var _ visibility.Gate = (*Graph)(nil)

// Build wires every declared condition of st and evaluates it once.
func Build(st *store.Store, opts ...Option) *Graph {
	g := &Graph{shared: &shared{logger: zap.NewNop(), seen: map[string]bool{}}}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	g.init(st, nil)
	return g
}

func (g *Graph) init(st *store.Store, parent *Graph) {
	g.store = st
	g.parent = parent
	g.conds = make(map[string][][]*cond)
	g.rows = make(map[int]*Graph)
	g.pruned = make(map[string]bool)
	g.evaluating = make(map[string]bool)

	for _, field := range st.Fields() {
		if len(field.Conditions) == 0 {
			continue
		}
		groups := make([][]*cond, 0, len(field.Conditions))
		for _, group := range field.Conditions {
			built := make([]*cond, 0, len(group))
			for _, decl := range group {
				built = append(built, g.wire(field.Key, decl))
			}
			groups = append(groups, built)
		}
		g.conds[field.Key] = groups
	}
}

func (g *Graph) wire(target string, decl model.Condition) *cond {
	c := &cond{decl: decl}

	key, prop, ok := ParseSource(decl.Source)
	if !ok {
		c.broken = true
		g.warnOnce("malformed condition source", "source:"+target+"|"+decl.Source, target, decl)
		return c
	}
	c.key, c.prop = key, prop

	c.source = g.resolve(key)
	if c.source == nil {
		c.broken = true
		g.warnOnce("condition source not found", "missing:"+target+"|"+decl.Source, target, decl)
		return c
	}

	pred, ok := Lookup(decl.Type)
	if !ok {
		c.broken = true
		g.warnOnce("unknown condition type", "type:"+decl.Type, target, decl)
		return c
	}
	c.pred = pred
	c.matched = c.evaluate(c.source.store.Value(key))

	cancel, err := c.source.store.Watch(key, func(old, value any) {
		if reflect.DeepEqual(c.observe(old), c.observe(value)) {
			return
		}
		c.matched = c.evaluate(value)
	})
	if err == nil {
		g.cancels = append(g.cancels, cancel)
	}
	return c
}

// ParseSource splits "key" or "key.prop". Deeper paths and empty segments
// are rejected.
func ParseSource(source string) (key, prop string, ok bool) {
	parts := strings.Split(strings.TrimSpace(source), ".")
	if len(parts) > 2 {
		return "", "", false
	}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return "", "", false
		}
	}
	key = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		prop = strings.TrimSpace(parts[1])
	}
	return key, prop, true
}

func (c *cond) observe(value any) any {
	if rows, ok := value.([]*store.Row); ok {
		value = len(rows)
	}
	if c.prop == "" {
		return value
	}
	sub, ok := model.SubValue(value, c.prop)
	if !ok {
		return nil
	}
	return sub
}

func (c *cond) evaluate(value any) bool {
	return c.pred(c.observe(value), c.decl.Value)
}

func (g *Graph) resolve(key string) *Graph {
	for cur := g; cur != nil; cur = cur.parent {
		if cur.store.Has(key) {
			return cur
		}
	}
	return nil
}

func (g *Graph) root() *Graph {
	cur := g
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Passes reports whether key is visible. Step gating is checked first, then
// the OR of AND groups, inverted for hide behaviour. Unknown keys and
// condition cycles fail closed.
func (g *Graph) Passes(key string) bool {
	if g == nil {
		return true
	}
	field, err := g.store.Field(key)
	if err != nil {
		g.shared.logger.Warn("visibility requested for unknown field", zap.String("field", key))
		return false
	}
	if g.evaluating[key] {
		g.warnOnce("condition cycle", "cycle:"+key, key, model.Condition{})
		return false
	}
	g.evaluating[key] = true
	defer delete(g.evaluating, key)

	if field.Step != "" && field.Type != model.FieldTypeStep {
		if root := g.root(); root.store.Has(field.Step) && !root.Passes(field.Step) {
			return false
		}
	}

	if len(field.Conditions) == 0 {
		return true
	}

	result := false
	for _, group := range g.conds[key] {
		if g.groupPasses(group) {
			result = true
			break
		}
	}
	if field.Hidden() {
		return !result
	}
	return result
}

func (g *Graph) groupPasses(group []*cond) bool {
	for _, c := range group {
		if c.broken || !c.matched {
			return false
		}
		if !c.source.Passes(c.key) {
			return false
		}
	}
	return true
}

// Row returns the graph scoped to a repeater row, building it on first use.
// Row graphs are closed when their row leaves the repeater.
func (g *Graph) Row(row *store.Row) visibility.Gate {
	if g == nil || row == nil {
		return g
	}
	if child, ok := g.rows[row.ID]; ok {
		return child
	}
	child := &Graph{shared: g.shared, repeater: row.Repeater()}
	child.init(row.Store, g)
	g.rows[row.ID] = child
	g.prune(row.Repeater())
	return child
}

func (g *Graph) prune(repeater string) {
	if repeater == "" || g.pruned[repeater] {
		return
	}
	cancel, err := g.store.Watch(repeater, func(_, value any) {
		live := make(map[int]bool)
		rows, _ := value.([]*store.Row)
		for _, row := range rows {
			live[row.ID] = true
		}
		for id, child := range g.rows {
			if child.repeater == repeater && !live[id] {
				child.Close()
				delete(g.rows, id)
			}
		}
	})
	if err != nil {
		return
	}
	g.pruned[repeater] = true
	g.cancels = append(g.cancels, cancel)
}

// RowGraphs reports how many row graphs are currently alive under g.
func (g *Graph) RowGraphs() int {
	if g == nil {
		return 0
	}
	return len(g.rows)
}

// Issues lists configuration problems found while wiring conditions.
func (g *Graph) Issues() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.shared.issues...)
}

// Close cancels every watcher registered by g and its row graphs.
func (g *Graph) Close() {
	if g == nil {
		return
	}
	for _, child := range g.rows {
		child.Close()
	}
	g.rows = make(map[int]*Graph)
	for _, cancel := range g.cancels {
		cancel()
	}
	g.cancels = nil
	g.pruned = make(map[string]bool)
}

func (g *Graph) warn(msg, target string, decl model.Condition) {
	g.shared.logger.Warn(msg,
		zap.String("field", target),
		zap.String("source", decl.Source),
		zap.String("type", decl.Type),
	)
	g.shared.issues = append(g.shared.issues, fmt.Sprintf("%s: field %q (source %q, type %q)", msg, target, decl.Source, decl.Type))
}

func (g *Graph) warnOnce(msg, key, target string, decl model.Condition) {
	if g.shared.seen[key] {
		return
	}
	g.shared.seen[key] = true
	g.warn(msg, target, decl)
}
