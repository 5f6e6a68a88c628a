// Package wire implements the quoting and framing scheme of the
// editing-server protocol.
//
// Requests are newline-delimited and arguments are space-delimited, so
// argument text must never contain a literal newline or space.  Four
// characters are quoted with a two-character escape: space becomes
// "&_", newline becomes "&n", "&" becomes "&&", and a leading "-"
// becomes "&-" (only a leading dash could be mistaken for a new
// argument's flag marker).
package wire

import "strings"

// Quote escapes s so it can travel as a single protocol argument.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '&':
			b.WriteString("&&")
		case c == ' ':
			b.WriteString("&_")
		case c == '\n':
			b.WriteString("&n")
		case c == '-' && i == 0:
			b.WriteString("&-")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Unquote reverses Quote.  An "&" followed by any character outside
// the known escape set maps to a single space; that covers "&_" and
// doubles as the forward-compatibility default for escapes this
// implementation does not know about.  A trailing lone "&" gets the
// same treatment.
func Unquote(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '&' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			b.WriteByte(' ')
			break
		}
		switch s[i] {
		case '&':
			b.WriteByte('&')
		case '-':
			b.WriteByte('-')
		case 'n':
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// SplitTokens breaks one request line into its raw (still quoted)
// tokens.  Runs of separator spaces produce no empty tokens.
func SplitTokens(line string) []string {
	fields := strings.Split(line, " ")
	tokens := fields[:0]
	for _, f := range fields {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
