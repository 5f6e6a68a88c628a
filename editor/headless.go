package editor

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Headless is a minimal in-process Editor: documents are tracked in
// memory, evaluation covers a small lisp subset, text surfaces wrap a
// real tty device, and there is no window system at all (graphical
// requests fail, which exercises the engine's degrade path).
type Headless struct {
	log zerolog.Logger

	mu       sync.Mutex
	docs     map[string]*headlessDoc
	nextID   int
	current  *headlessSurface
	surfaces map[string]*headlessSurface
	done     DoneFunc
}

// NewHeadless returns a Headless editor with one pre-existing current
// surface, mirroring a host that always has an active display.
func NewHeadless(log zerolog.Logger) *Headless {
	h := &Headless{
		log:      log,
		docs:     make(map[string]*headlessDoc),
		surfaces: make(map[string]*headlessSurface),
	}
	h.current = &headlessSurface{id: "surface-0", termType: DumbTerminal}
	h.surfaces[h.current.id] = h.current
	return h
}

// ── documents ────────────────────────────────────────────────────────

type headlessDoc struct {
	id   string
	path string
}

func (d *headlessDoc) ID() string   { return d.id }
func (d *headlessDoc) Path() string { return d.path }

// VisitFile records the path as an open document.  Revisiting a path
// returns the existing handle.  The file itself need not exist yet:
// editing a new file is a normal request.
func (h *Headless) VisitFile(_ context.Context, path string, pos *Position) (Document, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if d, ok := h.docs[path]; ok {
		return d, nil
	}
	h.nextID++
	d := &headlessDoc{id: fmt.Sprintf("doc-%d", h.nextID), path: path}
	h.docs[path] = d

	ev := h.log.Debug().Str("path", path)
	if pos != nil {
		ev = ev.Int("line", pos.Line).Int("col", pos.Col)
	}
	ev.Msg("visit file")
	return d, nil
}

// FinishDocument marks the document for path as released and fires the
// registered done callback, the way a host editor reports that the
// user is finished with a buffer.
func (h *Headless) FinishDocument(path string) bool {
	h.mu.Lock()
	d, ok := h.docs[path]
	if ok {
		delete(h.docs, path)
	}
	done := h.done
	h.mu.Unlock()

	if ok && done != nil {
		done(d)
	}
	return ok
}

// OnDocumentDone registers the engine's completion callback.
func (h *Headless) OnDocumentDone(fn DoneFunc) {
	h.mu.Lock()
	h.done = fn
	h.mu.Unlock()
}

// OpenDocuments reports how many documents are currently open.
func (h *Headless) OpenDocuments() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.docs)
}

// ── surfaces ─────────────────────────────────────────────────────────

type headlessSurface struct {
	id        string
	device    string
	termType  string
	tty       *os.File
	suspended bool
}

func (s *headlessSurface) ID() string { return s.id }

func (h *Headless) CurrentSurface() Surface {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *Headless) CanCreateSurface() bool { return true }

// NewTextSurface attaches to the client's terminal device.  The device
// must be an actual tty; handing the engine a pipe or file is a client
// bug worth rejecting early.
func (h *Headless) NewTextSurface(p SurfaceParams) (Surface, error) {
	if p.Device == "" {
		return nil, fmt.Errorf("text surface: no device given")
	}
	f, err := os.OpenFile(p.Device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("text surface: open %s: %w", p.Device, err)
	}
	if !term.IsTerminal(int(f.Fd())) {
		f.Close()
		return nil, fmt.Errorf("text surface: %s is not a terminal", p.Device)
	}
	s := &headlessSurface{device: p.Device, termType: p.TermType, tty: f}
	h.addSurface(s)
	h.log.Info().Str("device", p.Device).Str("type", p.TermType).Msg("text surface created")
	return s, nil
}

// NewGraphicalSurface always fails: a headless host has no window
// system.  The engine degrades to -window-system-unsupported.
func (h *Headless) NewGraphicalSurface(p SurfaceParams) (Surface, error) {
	return nil, fmt.Errorf("graphical surface: no window system (display %q)", p.Display)
}

// NewMinimalSurface builds the dumb-terminal fallback surface.
func (h *Headless) NewMinimalSurface(p SurfaceParams) (Surface, error) {
	s := &headlessSurface{device: p.Device, termType: DumbTerminal}
	h.addSurface(s)
	return s, nil
}

func (h *Headless) addSurface(s *headlessSurface) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s.id = fmt.Sprintf("surface-%d", h.nextID)
	h.surfaces[s.id] = s
	h.current = s
}

func (h *Headless) DeleteSurface(s Surface) {
	if s == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	hs, ok := h.surfaces[s.ID()]
	if !ok {
		return
	}
	delete(h.surfaces, s.ID())
	if hs.tty != nil {
		hs.tty.Close()
	}
	if h.current == hs {
		h.current = h.surfaces["surface-0"]
	}
}

// ── tty signalling ───────────────────────────────────────────────────

func (h *Headless) SuspendTTY(s Surface) error { return h.setSuspended(s, true) }
func (h *Headless) ResumeTTY(s Surface) error  { return h.setSuspended(s, false) }

func (h *Headless) setSuspended(s Surface, v bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	hs := h.current
	if s != nil {
		var ok bool
		if hs, ok = h.surfaces[s.ID()]; !ok {
			return fmt.Errorf("tty: unknown surface %s", s.ID())
		}
	}
	if hs == nil {
		return fmt.Errorf("tty: no surface")
	}
	hs.suspended = v
	return nil
}

// Suspended reports the suspend state of the current surface.
func (h *Headless) Suspended() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil && h.current.suspended
}
