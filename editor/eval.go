package editor

import (
	"context"
	"fmt"

	"github.com/aeronwang/emacsfork/sexp"
)

// Eval evaluates a small lisp subset: self-evaluating literals, quote,
// and the functions +, -, *, concat, length.  The printed result comes
// back in literal form, ready for framing.
func (h *Headless) Eval(_ context.Context, expr string) (string, error) {
	v, err := sexp.Parse(expr)
	if err != nil {
		return "", fmt.Errorf("invalid expression: %w", err)
	}
	out, err := evalValue(v)
	if err != nil {
		return "", err
	}
	return sexp.Print(out), nil
}

func evalValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, int64, float64, string:
		return x, nil
	case sexp.Symbol:
		if x == "t" {
			return x, nil
		}
		return nil, fmt.Errorf("void-variable %s", x)
	case []any:
		return evalCall(x)
	default:
		return nil, fmt.Errorf("cannot evaluate %v", v)
	}
}

func evalCall(form []any) (any, error) {
	head, ok := form[0].(sexp.Symbol)
	if !ok {
		return nil, fmt.Errorf("invalid function %v", form[0])
	}
	if head == "quote" {
		if len(form) != 2 {
			return nil, fmt.Errorf("quote wants one argument")
		}
		return form[1], nil
	}

	args := make([]any, 0, len(form)-1)
	for _, a := range form[1:] {
		v, err := evalValue(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	switch head {
	case "+":
		return arith(args, 0, func(a, b int64) int64 { return a + b })
	case "*":
		return arith(args, 1, func(a, b int64) int64 { return a * b })
	case "-":
		if len(args) == 0 {
			return nil, fmt.Errorf("- wants at least one argument")
		}
		first, ok := args[0].(int64)
		if !ok {
			return nil, fmt.Errorf("wrong-type-argument %v", args[0])
		}
		if len(args) == 1 {
			return -first, nil
		}
		rest, err := arith(args[1:], 0, func(a, b int64) int64 { return a + b })
		if err != nil {
			return nil, err
		}
		return first - rest.(int64), nil
	case "concat":
		out := ""
		for _, a := range args {
			s, ok := a.(string)
			if !ok {
				return nil, fmt.Errorf("wrong-type-argument %v", a)
			}
			out += s
		}
		return out, nil
	case "length":
		if len(args) != 1 {
			return nil, fmt.Errorf("length wants one argument")
		}
		switch s := args[0].(type) {
		case string:
			return int64(len(s)), nil
		case []any:
			return int64(len(s)), nil
		case nil:
			return int64(0), nil
		default:
			return nil, fmt.Errorf("wrong-type-argument %v", args[0])
		}
	default:
		return nil, fmt.Errorf("void-function %s", head)
	}
}

func arith(args []any, unit int64, op func(a, b int64) int64) (any, error) {
	acc := unit
	for _, a := range args {
		n, ok := a.(int64)
		if !ok {
			return nil, fmt.Errorf("wrong-type-argument %v", a)
		}
		acc = op(acc, n)
	}
	return acc, nil
}
