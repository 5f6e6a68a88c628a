// Package editor defines the collaborator boundary between the
// protocol engine and the host editor: documents a session may wait
// on, display surfaces its output may target, and expression
// evaluation.  The engine only sees opaque handles; how a document is
// rendered or a surface composed is entirely the host's business.
package editor

import (
	"context"
	"errors"
)

// Position is an optional line/column to land on when visiting a file.
// Col zero means beginning of line.
type Position struct {
	Line int
	Col  int
}

// Document is an opaque handle to an open, editable unit of content.
type Document interface {
	ID() string
	Path() string
}

// Surface is an opaque handle to an editor-visible display target.
type Surface interface {
	ID() string
}

// EnvVar is one client-side environment entry.  Repeated names are all
// kept; the host resolves precedence.
type EnvVar struct {
	Name  string
	Value string
}

// SurfaceParams carries everything a surface constructor may need.
// Text constructors read Device/TermType, graphical ones read
// Display/ParentID; the rest applies to both.
type SurfaceParams struct {
	Device    string
	TermType  string
	Display   string
	ParentID  string
	FrameAttr string // literal alist, uninterpreted by the engine
	Dir       string
	Env       []EnvVar
}

// DumbTerminal is the non-interactive terminal type that demands the
// minimal surface constructor instead of a full text surface.
const DumbTerminal = "dumb"

// ErrBusy is returned by VisitFile when the editor cannot switch
// context synchronously (a modal interaction must be unwound first).
// The engine arms a continuation and retries once the host is ready.
var ErrBusy = errors.New("editor busy: cannot switch context now")

// DoneFunc is invoked by the host once it is finished with a document
// (the user released the underlying buffer).
type DoneFunc func(doc Document)

// Editor is the full collaborator interface consumed by the engine.
type Editor interface {
	// VisitFile opens path, seeking to pos when non-nil, and returns
	// the document handle the calling session becomes responsible for.
	VisitFile(ctx context.Context, path string, pos *Position) (Document, error)

	// Eval evaluates one expression and returns its printed result.
	Eval(ctx context.Context, expr string) (string, error)

	// CurrentSurface returns the currently active surface.
	CurrentSurface() Surface

	// CanCreateSurface reports whether a new surface can be created
	// safely right now.
	CanCreateSurface() bool

	NewTextSurface(p SurfaceParams) (Surface, error)
	NewGraphicalSurface(p SurfaceParams) (Surface, error)
	NewMinimalSurface(p SurfaceParams) (Surface, error)

	// DeleteSurface releases a surface created for a session.  Unknown
	// or already-deleted surfaces are ignored.
	DeleteSurface(s Surface)

	// SuspendTTY and ResumeTTY signal the terminal behind a text
	// surface.  A nil surface refers to the current one.
	SuspendTTY(s Surface) error
	ResumeTTY(s Surface) error

	// OnDocumentDone registers the single callback the engine uses to
	// learn that a document has been released.
	OnDocumentDone(fn DoneFunc)
}
