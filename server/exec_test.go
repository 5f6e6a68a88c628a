package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeronwang/emacsfork/config"
	"github.com/aeronwang/emacsfork/editor"
	"github.com/aeronwang/emacsfork/util"
	"github.com/aeronwang/emacsfork/wire"
)

// ── fake editor collaborator ─────────────────────────────────────────

type fakeDoc struct{ id, path string }

func (d *fakeDoc) ID() string   { return d.id }
func (d *fakeDoc) Path() string { return d.path }

type fakeSurface struct{ id string }

func (s *fakeSurface) ID() string { return s.id }

// fakeEditor records every collaborator call in order and can be
// primed to fail or stall specific operations.
type fakeEditor struct {
	mu        sync.Mutex
	events    []string
	evalErr   map[string]error
	busyPaths map[string]int // remaining ErrBusy returns per path
	canCreate bool
	noGUI     bool
	nextDoc   int
	done      editor.DoneFunc
	deleted   []string
}

func newFakeEditor() *fakeEditor {
	return &fakeEditor{
		evalErr:   map[string]error{},
		busyPaths: map[string]int{},
		canCreate: true,
	}
}

func (f *fakeEditor) record(ev string) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

func (f *fakeEditor) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeEditor) VisitFile(_ context.Context, path string, pos *editor.Position) (editor.Document, error) {
	f.mu.Lock()
	if n := f.busyPaths[path]; n > 0 {
		f.busyPaths[path] = n - 1
		f.mu.Unlock()
		return nil, editor.ErrBusy
	}
	f.nextDoc++
	d := &fakeDoc{id: fmt.Sprintf("doc-%d", f.nextDoc), path: path}
	f.mu.Unlock()

	if pos != nil {
		f.record(fmt.Sprintf("visit %s +%d:%d", path, pos.Line, pos.Col))
	} else {
		f.record("visit " + path)
	}
	return d, nil
}

func (f *fakeEditor) Eval(_ context.Context, expr string) (string, error) {
	f.record("eval " + expr)
	f.mu.Lock()
	err := f.evalErr[expr]
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	if expr == "(+ 1 1)" {
		return "2", nil
	}
	return "nil", nil
}

func (f *fakeEditor) CurrentSurface() editor.Surface { return &fakeSurface{id: "current"} }
func (f *fakeEditor) CanCreateSurface() bool         { return f.canCreate }

func (f *fakeEditor) NewTextSurface(p editor.SurfaceParams) (editor.Surface, error) {
	f.record("text-surface " + p.Device)
	return &fakeSurface{id: "text:" + p.Device}, nil
}

func (f *fakeEditor) NewGraphicalSurface(p editor.SurfaceParams) (editor.Surface, error) {
	if f.noGUI {
		return nil, fmt.Errorf("no window system")
	}
	f.record("graphical-surface " + p.Display)
	return &fakeSurface{id: "gui:" + p.Display}, nil
}

func (f *fakeEditor) NewMinimalSurface(p editor.SurfaceParams) (editor.Surface, error) {
	f.record("minimal-surface")
	return &fakeSurface{id: "minimal"}, nil
}

func (f *fakeEditor) DeleteSurface(s editor.Surface) {
	f.mu.Lock()
	f.deleted = append(f.deleted, s.ID())
	f.mu.Unlock()
}

func (f *fakeEditor) SuspendTTY(editor.Surface) error { f.record("suspend"); return nil }
func (f *fakeEditor) ResumeTTY(editor.Surface) error  { f.record("resume"); return nil }

func (f *fakeEditor) OnDocumentDone(fn editor.DoneFunc) { f.done = fn }

// finish fires the completion event for a visited document.
func (f *fakeEditor) finish(doc editor.Document) { f.done(doc) }

// ── harness ──────────────────────────────────────────────────────────

func newTestServer(t *testing.T, ed editor.Editor) *Server {
	t.Helper()
	cfg := &config.Config{
		Daemon:     true,
		SocketPath: "unused",
		GraceDelay: 5 * time.Millisecond,
	}
	s, err := New(cfg, ed, util.NewLogger(0))
	require.NoError(t, err)
	return s
}

// dialPipe starts serveConn on one end of an in-memory pipe and
// returns the client end.
func dialPipe(t *testing.T, s *Server, preAuth bool) (net.Conn, chan struct{}) {
	t.Helper()
	server, client := net.Pipe()
	served := make(chan struct{})
	go func() {
		defer close(served)
		s.serveConn(context.Background(), server, "local", preAuth)
	}()
	t.Cleanup(func() { client.Close() })
	return client, served
}

// converse sends one request line and collects every reply line until
// the server closes the connection.
func converse(t *testing.T, s *Server, preAuth bool, request string) []string {
	t.Helper()
	client, served := dialPipe(t, s, preAuth)

	lines := make(chan []string, 1)
	go func() {
		var got []string
		sc := bufio.NewScanner(client)
		for sc.Scan() {
			got = append(got, sc.Text())
		}
		lines <- got
	}()

	_, err := client.Write([]byte(request + "\n"))
	require.NoError(t, err)

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close")
	}
	client.Close()

	select {
	case got := <-lines:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not finish")
		return nil
	}
}

func requirePIDLine(t *testing.T, lines []string) []string {
	t.Helper()
	require.NotEmpty(t, lines)
	require.True(t, strings.HasPrefix(lines[0], wire.PrefixPID+" "),
		"first line must announce the pid, got %q", lines[0])
	return lines[1:]
}

// ── tests ────────────────────────────────────────────────────────────

func TestExecuteOrdering(t *testing.T) {
	ed := newFakeEditor()
	s := newTestServer(t, ed)

	lines := converse(t, s, true, "-file a -position +5:2 -file b -eval (+&_1&_1) -nowait")
	replies := requirePIDLine(t, lines)
	assert.Equal(t, []string{"-print 2"}, replies)

	assert.Equal(t, []string{
		"visit a",
		"visit b +5:2",
		"eval (+ 1 1)",
	}, ed.Events(), "position attaches to the next file only; evals run last")
}

func TestEmptySessionClosesImmediately(t *testing.T) {
	ed := newFakeEditor()
	s := newTestServer(t, ed)

	lines := converse(t, s, true, "-nowait")
	replies := requirePIDLine(t, lines)
	assert.Empty(t, replies)
	assert.Zero(t, s.Registry().Len())
}

func TestEvalOnlySessionClosesAfterReply(t *testing.T) {
	ed := newFakeEditor()
	s := newTestServer(t, ed)

	lines := converse(t, s, true, "-eval (+&_1&_1)")
	replies := requirePIDLine(t, lines)
	assert.Equal(t, []string{"-print 2"}, replies)
	assert.Zero(t, s.Registry().Len())
}

func TestUnknownCommandSingleError(t *testing.T) {
	ed := newFakeEditor()
	s := newTestServer(t, ed)

	lines := converse(t, s, true, "-bogus foo")
	replies := requirePIDLine(t, lines)
	require.Len(t, replies, 1)
	assert.True(t, strings.HasPrefix(replies[0], "-error "), "got %q", replies[0])
	assert.Empty(t, ed.Events(), "no partial execution of the bad line")
}

func TestEvalErrorReportedIndividually(t *testing.T) {
	ed := newFakeEditor()
	ed.evalErr["(boom)"] = fmt.Errorf("void-function boom")
	s := newTestServer(t, ed)

	lines := converse(t, s, true, "-eval (boom) -eval (+&_1&_1)")
	replies := requirePIDLine(t, lines)
	require.Len(t, replies, 2)
	assert.Equal(t, "-error void-function&_boom", replies[0])
	assert.Equal(t, "-print 2", replies[1], "later expressions still run")
	assert.Zero(t, s.Registry().Len(), "eval failure is terminal for the session")
}

func TestSessionWaitsForDocumentDone(t *testing.T) {
	ed := newFakeEditor()
	s := newTestServer(t, ed)

	client, served := dialPipe(t, s, true)
	go func() {
		sc := bufio.NewScanner(client)
		for sc.Scan() {
		}
	}()
	_, err := client.Write([]byte("-file waited.txt\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(ed.Events()) == 1
	}, time.Second, 5*time.Millisecond)

	// Session stays open: the document is not done yet.
	assert.Equal(t, 1, s.Registry().Len())
	select {
	case <-served:
		t.Fatal("session closed before its document was done")
	case <-time.After(50 * time.Millisecond):
	}

	ed.finish(&fakeDoc{id: "doc-1", path: "waited.txt"})
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close after document done")
	}
	assert.Zero(t, s.Registry().Len())
}

func TestSurfaceDecisionCurrentFrame(t *testing.T) {
	ed := newFakeEditor()
	s := newTestServer(t, ed)

	converse(t, s, true, "-current-frame -eval 1 -nowait")
	assert.NotContains(t, ed.Events(), "minimal-surface")
	// The current surface is reused, not constructed, so only the eval
	// shows up.
	assert.Equal(t, []string{"eval 1"}, ed.Events())
}

func TestSurfaceDecisionGraphicalDegrades(t *testing.T) {
	ed := newFakeEditor()
	ed.noGUI = true
	s := newTestServer(t, ed)

	lines := converse(t, s, true, "-window-system -eval (+&_1&_1)")
	replies := requirePIDLine(t, lines)
	require.Len(t, replies, 2)
	assert.Equal(t, wire.NoticeNoWindowSys, replies[0])
	assert.Equal(t, "-print 2", replies[1], "request proceeds without a surface")
}

func TestSurfaceDecisionGraphical(t *testing.T) {
	ed := newFakeEditor()
	s := newTestServer(t, ed)

	client, served := dialPipe(t, s, true)
	go func() {
		sc := bufio.NewScanner(client)
		for sc.Scan() {
		}
	}()
	_, err := client.Write([]byte("-display :0\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		evs := ed.Events()
		return len(evs) == 1 && evs[0] == "graphical-surface :0"
	}, time.Second, 5*time.Millisecond)

	// A surface keeps the session open; disconnecting releases it.
	assert.Equal(t, 1, s.Registry().Len())
	client.Close()
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not notice disconnect")
	}
	assert.Equal(t, []string{"gui::0"}, func() []string {
		ed.mu.Lock()
		defer ed.mu.Unlock()
		return append([]string(nil), ed.deleted...)
	}())
}

func TestSurfaceDecisionDumbTTY(t *testing.T) {
	ed := newFakeEditor()
	s := newTestServer(t, ed)

	converse(t, s, true, "-tty /dev/pts/9 dumb -nowait")
	assert.Contains(t, ed.Events(), "minimal-surface")
}

func TestSurfaceDecisionTextTTY(t *testing.T) {
	ed := newFakeEditor()
	s := newTestServer(t, ed)

	converse(t, s, true, "-tty /dev/pts/9 xterm -nowait")
	assert.Contains(t, ed.Events(), "text-surface /dev/pts/9")
}

func TestSuspendResumeActions(t *testing.T) {
	ed := newFakeEditor()
	s := newTestServer(t, ed)

	converse(t, s, true, "-suspend -resume -nowait")
	assert.Equal(t, []string{"suspend", "resume"}, ed.Events())
}

func TestContinuationArmedAndFlushed(t *testing.T) {
	ed := newFakeEditor()
	ed.busyPaths["modal.txt"] = 1
	s := newTestServer(t, ed)

	client, served := dialPipe(t, s, true)
	go func() {
		sc := bufio.NewScanner(client)
		for sc.Scan() {
		}
	}()
	_, err := client.Write([]byte("-file modal.txt\n"))
	require.NoError(t, err)

	// The visit hit ErrBusy: nothing recorded, session open, action armed.
	require.Eventually(t, func() bool {
		sess, ok := firstSession(s)
		return ok && func() bool { sess.mu.Lock(); defer sess.mu.Unlock(); return sess.continuation != nil }()
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, ed.Events())

	s.FlushContinuations()

	require.Equal(t, []string{"visit modal.txt"}, ed.Events())
	// Second flush finds nothing: the continuation ran exactly once.
	s.FlushContinuations()
	require.Equal(t, []string{"visit modal.txt"}, ed.Events())

	// The visited document now keeps the session open.
	assert.Equal(t, 1, s.Registry().Len())
	ed.finish(&fakeDoc{id: "doc-1", path: "modal.txt"})
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close after document done")
	}
}

// TestContinuationResumesRestOfPlan interrupts a request that also
// carries a surface request and an expression: the resumed half must
// visit the file and run the eval, but never construct the surface a
// second time.
func TestContinuationResumesRestOfPlan(t *testing.T) {
	ed := newFakeEditor()
	ed.busyPaths["modal.txt"] = 1
	s := newTestServer(t, ed)

	client, served := dialPipe(t, s, true)
	var mu sync.Mutex
	var replies []string
	go func() {
		sc := bufio.NewScanner(client)
		for sc.Scan() {
			mu.Lock()
			replies = append(replies, sc.Text())
			mu.Unlock()
		}
	}()
	_, err := client.Write([]byte("-tty /dev/pts/9 xterm -file modal.txt -eval (+&_1&_1)\n"))
	require.NoError(t, err)

	// The surface attached, then the visit hit ErrBusy; the eval waits
	// inside the armed continuation.
	require.Eventually(t, func() bool {
		evs := ed.Events()
		return len(evs) == 1 && evs[0] == "text-surface /dev/pts/9"
	}, time.Second, 5*time.Millisecond)

	s.FlushContinuations()

	require.Equal(t, []string{
		"text-surface /dev/pts/9",
		"visit modal.txt",
		"eval (+ 1 1)",
	}, ed.Events(), "resumed plan must not construct the surface again")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(replies) == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, "-print 2", replies[1])
	mu.Unlock()

	client.Close()
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not notice disconnect")
	}
}

func TestDisconnectDiscardsContinuation(t *testing.T) {
	ed := newFakeEditor()
	ed.busyPaths["modal.txt"] = 1
	s := newTestServer(t, ed)

	client, served := dialPipe(t, s, true)
	go func() {
		sc := bufio.NewScanner(client)
		for sc.Scan() {
		}
	}()
	_, err := client.Write([]byte("-file modal.txt\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		sess, ok := firstSession(s)
		return ok && sess.hasWork()
	}, time.Second, 5*time.Millisecond)

	client.Close()
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not notice disconnect")
	}

	s.FlushContinuations()
	assert.Empty(t, ed.Events(), "discarded continuation must never run")
}

func firstSession(s *Server) (*Session, bool) {
	var sess *Session
	s.reg.ForEach(func(c *Session) {
		if sess == nil {
			sess = c
		}
	})
	return sess, sess != nil
}
