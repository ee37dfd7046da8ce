package config

import "strings"

// MatchTable applies the include/exclude filter to a table name. The
// exclude list is checked first and always wins. An empty include list
// admits every non-excluded table; otherwise at least one include pattern
// must match.
func MatchTable(name string, include, exclude []string) bool {
	for _, p := range exclude {
		if matchPattern(name, p) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, p := range include {
		if matchPattern(name, p) {
			return true
		}
	}
	return false
}

// FilterTables returns the subset of names admitted by the filter,
// preserving order.
func FilterTables(names, include, exclude []string) []string {
	var out []string
	for _, n := range names {
		if MatchTable(n, include, exclude) {
			out = append(out, n)
		}
	}
	return out
}

// matchPattern matches the whole name case-insensitively. '*' expands to
// zero or more characters; a pattern without '*' is an exact match.
func matchPattern(name, pattern string) bool {
	name = strings.ToLower(name)
	pattern = strings.ToLower(pattern)
	if !strings.Contains(pattern, "*") {
		return name == pattern
	}
	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(name, parts[0]) {
		return false
	}
	name = name[len(parts[0]):]
	last := parts[len(parts)-1]
	if !strings.HasSuffix(name, last) {
		return false
	}
	name = name[:len(name)-len(last)]
	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		i := strings.Index(name, part)
		if i < 0 {
			return false
		}
		name = name[i+len(part):]
	}
	return true
}
