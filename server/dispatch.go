package server

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aeronwang/emacsfork/editor"
	errs "github.com/aeronwang/emacsfork/internal/errors"
	"github.com/aeronwang/emacsfork/wire"
)

// ActionKind names a scheduled side effect carried by a request.
type ActionKind int

const (
	ActionSuspend ActionKind = iota
	ActionResume
	ActionIgnore
)

// Action is one side effect to run in parse order.
type Action struct {
	Kind    ActionKind
	Comment string // -ignore payload
}

// FileArg pairs a file path with its optional seek position.
type FileArg struct {
	Path string
	Pos  *editor.Position
}

// Plan is everything one request line asks for.  It is derived from
// exactly one line and immutable once built.
type Plan struct {
	Tokens []string // decoded arguments, for diagnostics

	NoWait      bool
	CurrentOnly bool
	KeepAlive   bool

	WindowSystem bool
	Display      string
	ParentID     string
	TTYDevice    string
	TTYType      string
	FrameAttr    string
	Dir          string

	Env     []editor.EnvVar
	Files   []FileArg
	Exprs   []string
	Actions []Action
}

// wantsSurface reports whether any token asked for a display surface.
func (p *Plan) wantsSurface() bool {
	return p.CurrentOnly || p.WindowSystem || p.Display != "" ||
		p.ParentID != "" || p.TTYDevice != ""
}

// tail derives the sub-plan that remains when execution was suspended
// before visiting Files[idx].  Accumulating commands (env, dir, flags)
// and the surface request have already been applied to the session and
// are not repeated; only the unvisited files and the expressions carry
// over.
func (p *Plan) tail(idx int) *Plan {
	q := *p
	q.Files = p.Files[idx:]
	q.Env = nil
	q.Dir = ""
	q.CurrentOnly = false
	q.WindowSystem = false
	q.Display = ""
	q.ParentID = ""
	q.TTYDevice = ""
	q.TTYType = ""
	q.FrameAttr = ""
	return &q
}

// positionRe matches +LINE and +LINE:COL.
var positionRe = regexp.MustCompile(`^\+([0-9]+)(?::([0-9]+))?$`)

// BuildPlan tokenizes one complete, authenticated request line and
// walks the command vocabulary left to right.  A -position attaches to
// the next -file only.  Unrecognized leading tokens are fatal for the
// whole request; nothing on the line executes.
func BuildPlan(line string) (*Plan, error) {
	raw := wire.SplitTokens(line)
	tokens := make([]string, len(raw))
	for i, t := range raw {
		tokens[i] = wire.Unquote(t)
	}

	p := &Plan{Tokens: tokens}
	var pos *editor.Position

	need := func(i int, cmd string) (string, error) {
		if i >= len(tokens) {
			return "", &errs.ParseError{Token: cmd, Message: "missing argument"}
		}
		return tokens[i], nil
	}

	for i := 0; i < len(tokens); i++ {
		switch cmd := tokens[i]; cmd {
		case "-auth":
			// The handshake consumed the real -auth prefix already; a
			// stray repeat is tolerated and skipped with its argument.
			i++

		case "-env":
			arg, err := need(i+1, cmd)
			if err != nil {
				return nil, err
			}
			i++
			name, value, ok := strings.Cut(arg, "=")
			if !ok || name == "" {
				return nil, &errs.ParseError{Token: arg, Message: "-env wants NAME=VALUE"}
			}
			p.Env = append(p.Env, editor.EnvVar{Name: name, Value: value})

		case "-dir":
			arg, err := need(i+1, cmd)
			if err != nil {
				return nil, err
			}
			i++
			p.Dir = arg

		case "-current-frame":
			p.CurrentOnly = true

		case "-frame-parameters":
			arg, err := need(i+1, cmd)
			if err != nil {
				return nil, err
			}
			i++
			p.FrameAttr = arg

		case "-nowait":
			p.NoWait = true

		case "-display":
			arg, err := need(i+1, cmd)
			if err != nil {
				return nil, err
			}
			i++
			p.Display = arg

		case "-parent-id":
			arg, err := need(i+1, cmd)
			if err != nil {
				return nil, err
			}
			i++
			p.ParentID = arg

		case "-position":
			arg, err := need(i+1, cmd)
			if err != nil {
				return nil, err
			}
			i++
			m := positionRe.FindStringSubmatch(arg)
			if m == nil {
				return nil, &errs.ParseError{Token: arg, Message: "-position wants +LINE[:COL]"}
			}
			ln, _ := strconv.Atoi(m[1])
			if ln < 1 {
				return nil, &errs.ParseError{Token: arg, Message: "-position line must be positive"}
			}
			col := 0
			if m[2] != "" {
				col, _ = strconv.Atoi(m[2])
			}
			pos = &editor.Position{Line: ln, Col: col}

		case "-file":
			arg, err := need(i+1, cmd)
			if err != nil {
				return nil, err
			}
			i++
			p.Files = append(p.Files, FileArg{Path: arg, Pos: pos})
			pos = nil

		case "-eval":
			arg, err := need(i+1, cmd)
			if err != nil {
				return nil, err
			}
			i++
			p.Exprs = append(p.Exprs, arg)

		case "-window-system":
			p.WindowSystem = true

		case "-tty":
			dev, err := need(i+1, cmd)
			if err != nil {
				return nil, err
			}
			typ, err := need(i+2, cmd)
			if err != nil {
				return nil, err
			}
			i += 2
			p.TTYDevice, p.TTYType = dev, typ

		case "-suspend":
			p.Actions = append(p.Actions, Action{Kind: ActionSuspend})
			p.KeepAlive = true

		case "-resume":
			p.Actions = append(p.Actions, Action{Kind: ActionResume})
			p.KeepAlive = true

		case "-ignore":
			arg, err := need(i+1, cmd)
			if err != nil {
				return nil, err
			}
			i++
			p.Actions = append(p.Actions, Action{Kind: ActionIgnore, Comment: arg})
			p.KeepAlive = true

		default:
			return nil, &errs.ParseError{Token: cmd, Message: "unknown command"}
		}
	}

	return p, nil
}
