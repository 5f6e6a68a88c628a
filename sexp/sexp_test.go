package sexp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAtoms(t *testing.T) {
	cases := []struct {
		in   string
		want any
	}{
		{"2", int64(2)},
		{"-17", int64(-17)},
		{"3.5", 3.5},
		{"nil", nil},
		{"t", Symbol("t")},
		{"foo-bar", Symbol("foo-bar")},
		{`"hi there"`, "hi there"},
		{`"a\"b\\c"`, `a"b\c`},
		{`"line\nbreak"`, "line\nbreak"},
		{"()", nil},
		{"  42  ", int64(42)},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		require.NoError(t, err, "Parse(%q)", c.in)
		assert.Equal(t, c.want, got, "Parse(%q)", c.in)
	}
}

func TestParseLists(t *testing.T) {
	got, err := Parse(`(+ 1 (/ 4 2) "s")`)
	require.NoError(t, err)
	assert.Equal(t, []any{Symbol("+"), int64(1), []any{Symbol("/"), int64(4), int64(2)}, "s"}, got)

	got, err = Parse("'foo")
	require.NoError(t, err)
	assert.Equal(t, []any{Symbol("quote"), Symbol("foo")}, got)
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "(1 2", `"open`, "1 2", ")", `"esc\`} {
		_, err := Parse(in)
		assert.Error(t, err, "Parse(%q)", in)
	}
}

func TestPrint(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, "nil"},
		{int64(2), "2"},
		{2.5, "2.5"},
		{Symbol("t"), "t"},
		{"a\"b", `"a\"b"`},
		{"nl\n", `"nl\n"`},
		{[]any{int64(1), Symbol("x")}, "(1 x)"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Print(c.in))
	}
}

func TestPrintParseRoundTrip(t *testing.T) {
	values := []any{
		int64(0),
		int64(-99),
		"quoted \"string\" with \\ and\nnewline",
		Symbol("sym"),
		[]any{int64(1), []any{Symbol("a"), "b"}, nil},
	}
	for _, v := range values {
		got, err := Parse(Print(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}
