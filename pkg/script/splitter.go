package script

import "strings"

// DefaultTerminator is the statement terminator active at the start of
// every script.
const DefaultTerminator = ";"

// delimiterKeyword switches the active terminator when it appears at the
// start of a line outside strings and comments.
const delimiterKeyword = "delimiter"

// Statement is one executable unit produced by Split. Text is trimmed of
// surrounding whitespace and includes the terminator that completed it;
// Terminator records which terminator was active so callers can strip it
// before execution.
type Statement struct {
	Text       string
	Terminator string
}

// Executable returns the statement text with its trailing terminator
// removed.
func (s Statement) Executable() string {
	return strings.TrimSpace(strings.TrimSuffix(s.Text, s.Terminator))
}

// Split tokenizes a SQL script into individually executable statements with
// the default terminator initially active.
func Split(script string) []Statement {
	return SplitWith(script, DefaultTerminator)
}

// SplitWith scans the script left to right, honouring single-quoted strings,
// "--" line comments and terminator-change directives. The directive text is
// consumed and never emitted as part of any statement. Empty and
// comment-only statements are not filtered here; callers drop them before
// execution.
func SplitWith(script, initialTerminator string) []Statement {
	var (
		stmts      []Statement
		buf        strings.Builder
		terminator = initialTerminator
		inString   bool
		inComment  bool
	)
	if terminator == "" {
		terminator = DefaultTerminator
	}

	flush := func() {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		if text == "" || text == terminator {
			return
		}
		stmts = append(stmts, Statement{Text: text, Terminator: terminator})
	}

	i := 0
	for i < len(script) {
		c := script[i]

		if inComment {
			buf.WriteByte(c)
			if c == '\n' {
				inComment = false
			}
			i++
			continue
		}

		if inString {
			if c == '\\' && i+1 < len(script) {
				buf.WriteByte(c)
				buf.WriteByte(script[i+1])
				i += 2
				continue
			}
			if c == '\'' {
				if i+1 < len(script) && script[i+1] == '\'' {
					buf.WriteString("''")
					i += 2
					continue
				}
				inString = false
			}
			buf.WriteByte(c)
			i++
			continue
		}

		if c == '\'' {
			inString = true
			buf.WriteByte(c)
			i++
			continue
		}
		if c == '-' && i+1 < len(script) && script[i+1] == '-' {
			inComment = true
			buf.WriteString("--")
			i += 2
			continue
		}

		if atLineStart(script, i) && matchesKeyword(script[i:], delimiterKeyword) {
			rest := script[i+len(delimiterKeyword):]
			token, consumed := parseDelimiterToken(rest)
			if token != "" {
				flush()
				terminator = token
				i += len(delimiterKeyword) + consumed
				continue
			}
		}

		if strings.HasPrefix(script[i:], terminator) {
			buf.WriteString(terminator)
			flush()
			i += len(terminator)
			continue
		}

		buf.WriteByte(c)
		i++
	}

	// Trailing unterminated statement.
	flush()
	return stmts
}

// atLineStart reports whether only whitespace precedes position i on its
// line.
func atLineStart(s string, i int) bool {
	for j := i - 1; j >= 0; j-- {
		switch s[j] {
		case '\n':
			return true
		case ' ', '\t', '\r':
			continue
		default:
			return false
		}
	}
	return true
}

// matchesKeyword reports a case-insensitive keyword match followed by a
// space or tab.
func matchesKeyword(s, kw string) bool {
	if len(s) <= len(kw) {
		return false
	}
	if !strings.EqualFold(s[:len(kw)], kw) {
		return false
	}
	return s[len(kw)] == ' ' || s[len(kw)] == '\t'
}

// parseDelimiterToken reads the new terminator token and consumes the rest
// of the directive line, returning the token and the number of bytes
// consumed after the keyword.
func parseDelimiterToken(rest string) (string, int) {
	i := 0
	for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t') {
		i++
	}
	start := i
	for i < len(rest) && rest[i] != ' ' && rest[i] != '\t' && rest[i] != '\r' && rest[i] != '\n' {
		i++
	}
	token := rest[start:i]
	for i < len(rest) && rest[i] != '\n' {
		i++
	}
	if i < len(rest) {
		i++ // the newline itself
	}
	return token, i
}
