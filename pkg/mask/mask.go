package mask

import (
	"strings"
	"unicode"
)

// Kind selects the masking strategy for a rule.
type Kind string

const (
	// FullMask replaces every character, preserving length.
	FullMask Kind = "full"
	// PartialMask keeps the first and last character of values longer than
	// two characters and masks everything between.
	PartialMask Kind = "partial"
	// FixedValue replaces the value unconditionally with the rule pattern.
	FixedValue Kind = "fixed"
	// CustomPattern walks the value against the pattern: '#' keeps digits,
	// 'X' keeps letters, '*' always masks, anything else is written
	// literally.
	CustomPattern Kind = "pattern"
)

const maskRune = '*'

// Rule is a per-column masking rule. Table and column match
// case-insensitively; Pattern carries the fixed value or custom pattern
// where the kind needs one.
type Rule struct {
	Table   string `yaml:"table"`
	Column  string `yaml:"column"`
	Kind    Kind   `yaml:"kind"`
	Pattern string `yaml:"pattern,omitempty"`
}

// Apply transforms a value according to the rule. It is pure and total:
// unknown kinds return the value unchanged.
func Apply(value string, r Rule) string {
	switch r.Kind {
	case FullMask:
		return strings.Repeat(string(maskRune), len([]rune(value)))
	case PartialMask:
		return partial(value)
	case FixedValue:
		return r.Pattern
	case CustomPattern:
		return pattern(value, r.Pattern)
	default:
		return value
	}
}

func partial(value string) string {
	runes := []rune(value)
	if len(runes) <= 2 {
		return strings.Repeat(string(maskRune), len(runes))
	}
	out := make([]rune, len(runes))
	out[0] = runes[0]
	out[len(out)-1] = runes[len(runes)-1]
	for i := 1; i < len(out)-1; i++ {
		out[i] = maskRune
	}
	return string(out)
}

func pattern(value, pat string) string {
	if pat == "" {
		return strings.Repeat(string(maskRune), len([]rune(value)))
	}
	pr := []rune(pat)
	consuming := false
	for _, p := range pr {
		if p == '#' || p == 'X' || p == '*' {
			consuming = true
			break
		}
	}
	// A pattern of pure literals would never consume the value.
	if !consuming {
		return strings.Repeat(string(maskRune), len([]rune(value)))
	}

	var b strings.Builder
	pi := 0
	for _, v := range value {
		// Literal pattern characters are written as-is without consuming
		// a value character.
		for pr[pi%len(pr)] != '#' && pr[pi%len(pr)] != 'X' && pr[pi%len(pr)] != '*' {
			b.WriteRune(pr[pi%len(pr)])
			pi++
		}
		switch pr[pi%len(pr)] {
		case '#':
			if unicode.IsDigit(v) {
				b.WriteRune(v)
			} else {
				b.WriteRune(maskRune)
			}
		case 'X':
			if unicode.IsLetter(v) {
				b.WriteRune(v)
			} else {
				b.WriteRune(maskRune)
			}
		case '*':
			b.WriteRune(maskRune)
		}
		pi++
	}
	return b.String()
}

// RuleSet indexes rules by (table, column) for case-insensitive exact
// lookup.
type RuleSet struct {
	rules map[string]Rule
}

// NewRuleSet builds a rule set; later rules win on duplicate keys.
func NewRuleSet(rules []Rule) *RuleSet {
	rs := &RuleSet{rules: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		rs.rules[key(r.Table, r.Column)] = r
	}
	return rs
}

// Lookup returns the rule for a table column, if any.
func (rs *RuleSet) Lookup(table, column string) (Rule, bool) {
	if rs == nil {
		return Rule{}, false
	}
	r, ok := rs.rules[key(table, column)]
	return r, ok
}

// ForTable returns the subset of rules that apply to one table.
func (rs *RuleSet) ForTable(table string) *RuleSet {
	if rs == nil {
		return nil
	}
	sub := &RuleSet{rules: map[string]Rule{}}
	for k, r := range rs.rules {
		if strings.EqualFold(r.Table, table) {
			sub.rules[k] = r
		}
	}
	return sub
}

// Len reports the number of rules in the set.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

func key(table, column string) string {
	return strings.ToLower(table) + "." + strings.ToLower(column)
}
