package validate

import (
	"sort"
	"strings"

	"github.com/goliatone/go-formengine/pkg/model"
)

// Rule names used in message keys ("{type}:{rule}").
const (
	RuleRequired   = "required"
	RuleMinLength  = "min_length"
	RuleMaxLength  = "max_length"
	RulePattern    = "pattern"
	RuleInvalid    = "invalid"
	RuleMin        = "min"
	RuleMax        = "max"
	RuleMaxCount   = "max_count"
	RuleFileType   = "type"
	RuleFileSize   = "size"
	RuleRange      = "range"
	RuleIncomplete = "incomplete"
	RuleRows       = "rows"
)

// Tokens are substituted into templates as "@name".
type Tokens map[string]string

// Messages maps "{type}:{rule}" keys to message templates supplied by the
// server.
type Messages map[string]string

// Template returns the template for rule on type t. The lookup falls back to
// the type family, then to the bare rule, and finally to the key itself.
func (m Messages) Template(t model.FieldType, rule string) string {
	key := string(t) + ":" + rule
	candidates := []string{key}
	if family := t.Family(); family != t {
		candidates = append(candidates, string(family)+":"+rule)
	}
	candidates = append(candidates, rule)
	for _, candidate := range candidates {
		if tpl, ok := m[candidate]; ok && strings.TrimSpace(tpl) != "" {
			return tpl
		}
	}
	return key
}

// Format renders the message for rule with tokens substituted.
func (m Messages) Format(t model.FieldType, rule string, tokens Tokens) string {
	return Substitute(m.Template(t, rule), tokens)
}

// Substitute replaces "@name" occurrences with their token values. Longer
// names are replaced first so "@min_length" is not clobbered by "@min".
func Substitute(template string, tokens Tokens) string {
	if len(tokens) == 0 || !strings.Contains(template, "@") {
		return template
	}
	names := make([]string, 0, len(tokens))
	for name := range tokens {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) == len(names[j]) {
			return names[i] < names[j]
		}
		return len(names[i]) > len(names[j])
	})
	pairs := make([]string, 0, len(names)*2)
	for _, name := range names {
		pairs = append(pairs, "@"+strings.TrimPrefix(name, "@"), tokens[name])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
