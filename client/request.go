package client

import (
	"fmt"
	"strings"

	"github.com/aeronwang/emacsfork/wire"
)

// Request accumulates the tokens of one protocol line.  Builder
// methods append in call order, which is the order the server honors.
type Request struct {
	tokens []string
}

// NewRequest starts an empty request line.
func NewRequest() *Request { return &Request{} }

func (r *Request) add(tok ...string) *Request {
	r.tokens = append(r.tokens, tok...)
	return r
}

// NoWait asks the server to close the session as soon as the request
// has been carried out.
func (r *Request) NoWait() *Request { return r.add("-nowait") }

// CurrentFrame prefers the server's existing display surface over
// creating one.
func (r *Request) CurrentFrame() *Request { return r.add("-current-frame") }

// WindowSystem asks for a graphical surface on the server's platform
// default display.
func (r *Request) WindowSystem() *Request { return r.add("-window-system") }

// Env forwards one NAME=VALUE pair into the session environment.
func (r *Request) Env(name, value string) *Request {
	return r.add("-env", wire.Quote(name+"="+value))
}

// Dir sets the directory file paths are resolved against.
func (r *Request) Dir(path string) *Request {
	return r.add("-dir", wire.Quote(path))
}

// Display requests a graphical surface on the named display.
func (r *Request) Display(name string) *Request {
	return r.add("-display", wire.Quote(name))
}

// ParentID embeds the graphical surface under an existing window.
func (r *Request) ParentID(id string) *Request {
	return r.add("-parent-id", wire.Quote(id))
}

// TTY requests a text surface on the given device.
func (r *Request) TTY(device, termType string) *Request {
	return r.add("-tty", wire.Quote(device), wire.Quote(termType))
}

// FrameParameters passes a literal alist of surface attributes.
func (r *Request) FrameParameters(alist string) *Request {
	return r.add("-frame-parameters", wire.Quote(alist))
}

// Position marks the cursor position for the next File.
func (r *Request) Position(line, col int) *Request {
	if col > 0 {
		return r.add("-position", fmt.Sprintf("+%d:%d", line, col))
	}
	return r.add("-position", fmt.Sprintf("+%d", line))
}

// File asks the server to visit one file.
func (r *Request) File(path string) *Request {
	return r.add("-file", wire.Quote(path))
}

// Eval schedules one expression for evaluation.
func (r *Request) Eval(expr string) *Request {
	return r.add("-eval", wire.Quote(expr))
}

// Suspend schedules suspension of the session's text surface.
func (r *Request) Suspend() *Request { return r.add("-suspend") }

// Resume schedules resumption of the session's text surface.
func (r *Request) Resume() *Request { return r.add("-resume") }

// Ignore sends a no-op the server acknowledges by staying alive.
func (r *Request) Ignore(comment string) *Request {
	return r.add("-ignore", wire.Quote(comment))
}

// Empty reports whether nothing has been added yet.
func (r *Request) Empty() bool { return len(r.tokens) == 0 }

// Line renders the request as the protocol line it will be sent as,
// without the trailing newline.
func (r *Request) Line() string { return strings.Join(r.tokens, " ") }
