package condition

import (
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-formengine/pkg/model"
)

// Version identifies the predicate vocabulary. Adding predicates is an
// additive change and keeps the version.
const Version = "1"

// Predicate compares an observed source value against the condition value.
type Predicate func(value, expected any) bool

var predicates = map[string]Predicate{}

func register(domain string, ops map[string]Predicate) {
	for op, fn := range ops {
		predicates[domain+":"+op] = fn
	}
}

func init() {
	emptiness := map[string]Predicate{
		"empty":     func(v, _ any) bool { return model.IsEmpty(v) },
		"not_empty": func(v, _ any) bool { return !model.IsEmpty(v) },
	}

	register("text", emptiness)
	register("text", map[string]Predicate{
		"equals":       func(v, e any) bool { return text(v) == text(e) },
		"not_equals":   func(v, e any) bool { return text(v) != text(e) },
		"contains":     func(v, e any) bool { return strings.Contains(lower(v), lower(e)) },
		"not_contains": func(v, e any) bool { return !strings.Contains(lower(v), lower(e)) },
		"starts_with":  func(v, e any) bool { return strings.HasPrefix(lower(v), lower(e)) },
		"ends_with":    func(v, e any) bool { return strings.HasSuffix(lower(v), lower(e)) },
	})

	register("number", emptiness)
	register("number", map[string]Predicate{
		"equals":                numeric(func(a, b float64) bool { return a == b }),
		"not_equals":            func(v, e any) bool { return !numeric(func(a, b float64) bool { return a == b })(v, e) },
		"greater_than":          numeric(func(a, b float64) bool { return a > b }),
		"greater_than_or_equal": numeric(func(a, b float64) bool { return a >= b }),
		"less_than":             numeric(func(a, b float64) bool { return a < b }),
		"less_than_or_equal":    numeric(func(a, b float64) bool { return a <= b }),
	})

	register("select", emptiness)
	register("select", map[string]Predicate{
		"equals":     func(v, e any) bool { return text(v) == text(e) },
		"not_equals": func(v, e any) bool { return text(v) != text(e) },
		"any_of":     func(v, e any) bool { return containsString(list(e), text(v)) },
		"none_of":    func(v, e any) bool { return !containsString(list(e), text(v)) },
	})

	sets := map[string]Predicate{
		"contains":     func(v, e any) bool { return containsString(list(v), text(e)) },
		"not_contains": func(v, e any) bool { return !containsString(list(v), text(e)) },
		"any_of":       func(v, e any) bool { return intersects(list(v), list(e)) },
		"all_of":       func(v, e any) bool { return superset(list(v), list(e)) },
		"none_of":      func(v, e any) bool { return !intersects(list(v), list(e)) },
	}
	register("multiselect", emptiness)
	register("multiselect", sets)
	register("taxonomy", emptiness)
	register("taxonomy", sets)

	register("switcher", map[string]Predicate{
		"checked":   func(v, _ any) bool { b, _ := model.CoerceBool(v); return b },
		"unchecked": func(v, _ any) bool { b, _ := model.CoerceBool(v); return !b },
	})

	register("file", emptiness)
	register("location", emptiness)

	register("date", emptiness)
	register("date", map[string]Predicate{
		"equals": dates(func(a, b time.Time) bool { return a.Equal(b) }),
		"before": dates(func(a, b time.Time) bool { return a.Before(b) }),
		"after":  dates(func(a, b time.Time) bool { return a.After(b) }),
	})

	register("repeater", map[string]Predicate{
		"empty":              func(v, _ any) bool { return count(v) == 0 },
		"not_empty":          func(v, _ any) bool { return count(v) > 0 },
		"count_greater_than": func(v, e any) bool { n, ok := model.CoerceNumber(e); return ok && float64(count(v)) > n },
		"count_less_than":    func(v, e any) bool { n, ok := model.CoerceNumber(e); return ok && float64(count(v)) < n },
	})
}

// Lookup returns the predicate registered for "{domain}:{operator}".
func Lookup(kind string) (Predicate, bool) {
	fn, ok := predicates[strings.TrimSpace(kind)]
	return fn, ok
}

// Types returns the predicate vocabulary, sorted.
func Types() []string {
	out := make([]string, 0, len(predicates))
	for kind := range predicates {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}

func text(v any) string {
	return strings.TrimSpace(model.CoerceString(v))
}

func lower(v any) string {
	return strings.ToLower(text(v))
}

func numeric(cmp func(a, b float64) bool) Predicate {
	return func(v, e any) bool {
		a, ok := model.CoerceNumber(v)
		if !ok {
			return false
		}
		b, ok := model.CoerceNumber(e)
		if !ok {
			return false
		}
		return cmp(a, b)
	}
}

func dates(cmp func(a, b time.Time) bool) Predicate {
	return func(v, e any) bool {
		a, ok := parseDate(v)
		if !ok {
			return false
		}
		b, ok := parseDate(e)
		if !ok {
			return false
		}
		return cmp(a, b)
	}
}

func parseDate(v any) (time.Time, bool) {
	var raw string
	switch d := v.(type) {
	case model.DateValue:
		raw = d.Date
	default:
		raw = text(v)
	}
	if raw == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse("2006-01-02", raw)
	return parsed, err == nil
}

// list renders collection values (and scalars) as a string slice so
// taxonomy ids and multiselect values compare uniformly.
func list(v any) []string {
	switch typed := v.(type) {
	case nil:
		return nil
	case []string:
		return typed
	case []int:
		out := make([]string, len(typed))
		for i, id := range typed {
			out[i] = model.CoerceString(id)
		}
		return out
	case []any:
		out := make([]string, len(typed))
		for i, item := range typed {
			out[i] = text(item)
		}
		return out
	default:
		if s := text(v); s != "" {
			return []string{s}
		}
		return nil
	}
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, v := range a {
		if containsString(b, v) {
			return true
		}
	}
	return false
}

func superset(have, want []string) bool {
	if len(want) == 0 {
		return false
	}
	for _, v := range want {
		if !containsString(have, v) {
			return false
		}
	}
	return true
}

func count(v any) int {
	switch typed := v.(type) {
	case int:
		return typed
	case nil:
		return 0
	default:
		n, _ := model.SubValue(v, "count")
		c, _ := n.(int)
		return c
	}
}
