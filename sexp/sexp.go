// Package sexp reads and prints the small s-expression literal subset
// used on the wire: integers, floats, strings, symbols, and lists.
package sexp

import (
	"fmt"
	"strconv"
	"strings"
)

// Symbol is a bare lisp identifier such as t or my-var.
type Symbol string

// Nil is represented as untyped nil; lists as []any.

// Parse reads exactly one literal from s.  Trailing non-whitespace
// input is an error.
func Parse(s string) (any, error) {
	r := &reader{src: s}
	v, err := r.value()
	if err != nil {
		return nil, err
	}
	r.skipSpace()
	if r.pos < len(r.src) {
		return nil, fmt.Errorf("trailing input at %d: %q", r.pos, r.src[r.pos:])
	}
	return v, nil
}

// Print renders v back into its literal form.
func Print(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case Symbol:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return quoteString(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = Print(e)
		}
		return "(" + strings.Join(parts, " ") + ")"
	default:
		return fmt.Sprintf("%v", x)
	}
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// ── reader ───────────────────────────────────────────────────────────

type reader struct {
	src string
	pos int
}

func (r *reader) skipSpace() {
	for r.pos < len(r.src) {
		switch r.src[r.pos] {
		case ' ', '\t', '\n', '\r':
			r.pos++
		default:
			return
		}
	}
}

func (r *reader) value() (any, error) {
	r.skipSpace()
	if r.pos >= len(r.src) {
		return nil, fmt.Errorf("unexpected end of input")
	}
	switch c := r.src[r.pos]; {
	case c == '(':
		return r.list()
	case c == ')':
		return nil, fmt.Errorf("unbalanced ) at %d", r.pos)
	case c == '"':
		return r.string()
	case c == '\'':
		r.pos++
		v, err := r.value()
		if err != nil {
			return nil, err
		}
		return []any{Symbol("quote"), v}, nil
	default:
		return r.atom()
	}
}

func (r *reader) list() (any, error) {
	r.pos++ // consume '('
	var out []any
	for {
		r.skipSpace()
		if r.pos >= len(r.src) {
			return nil, fmt.Errorf("unterminated list")
		}
		if r.src[r.pos] == ')' {
			r.pos++
			if out == nil {
				return nil, nil // () is nil
			}
			return out, nil
		}
		v, err := r.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

func (r *reader) string() (any, error) {
	r.pos++ // consume opening quote
	var b strings.Builder
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		switch c {
		case '"':
			r.pos++
			return b.String(), nil
		case '\\':
			r.pos++
			if r.pos >= len(r.src) {
				return nil, fmt.Errorf("unterminated escape in string")
			}
			switch e := r.src[r.pos]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(e)
			}
			r.pos++
		default:
			b.WriteByte(c)
			r.pos++
		}
	}
	return nil, fmt.Errorf("unterminated string")
}

func (r *reader) atom() (any, error) {
	start := r.pos
	for r.pos < len(r.src) {
		switch r.src[r.pos] {
		case ' ', '\t', '\n', '\r', '(', ')', '"':
			goto done
		}
		r.pos++
	}
done:
	tok := r.src[start:r.pos]
	if tok == "" {
		return nil, fmt.Errorf("empty atom at %d", start)
	}
	if tok == "nil" {
		return nil, nil
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f, nil
	}
	return Symbol(tok), nil
}
