package server

import (
	"context"
	"fmt"

	"github.com/aeronwang/emacsfork/editor"
	errs "github.com/aeronwang/emacsfork/internal/errors"
	"github.com/aeronwang/emacsfork/wire"
)

// errEvalReported marks a plan whose expression failures were already
// sent to the client as individual -error replies; the caller tears
// the session down without composing another one.
var errEvalReported = errs.New("evaluation failure already reported")

// execute runs one plan and applies the teardown policy.  The returned
// bool is true when the session is finished and the read loop should
// stop.
func (s *Server) execute(ctx context.Context, sess *Session, plan *Plan) bool {
	if err := s.runPlan(ctx, sess, plan); err != nil {
		if errs.Is(err, errEvalReported) {
			s.closeAfterGrace(sess)
			return true
		}
		s.failSession(sess, err.Error())
		return true
	}

	// TeardownPolicy: nowait closes unconditionally; otherwise a
	// session with nothing left to wait for (no documents, no surface,
	// no pending continuation) closes unless flagged to stay alive.
	if plan.NoWait {
		return true
	}
	if !sess.isKeepAlive() && !sess.hasWork() {
		return true
	}
	return false
}

// runPlan performs the plan's actions in order: attach a surface,
// visit files, run scheduled side effects, then evaluate expressions
// FIFO.  Effects already applied are never rolled back.
func (s *Server) runPlan(ctx context.Context, sess *Session, plan *Plan) error {
	sess.addEnv(plan.Env)
	if plan.Dir != "" {
		sess.setDir(plan.Dir)
	}
	if plan.KeepAlive {
		sess.markKeepAlive()
	}

	if err := s.attachSurface(sess, plan); err != nil {
		return err
	}

	for i, f := range plan.Files {
		doc, err := s.ed.VisitFile(ctx, f.Path, f.Pos)
		if errs.Is(err, editor.ErrBusy) {
			// The editor must unwind a modal interaction first.  Arm
			// the single-slot continuation with the unfinished rest of
			// the plan and return with the session left open.
			rest := plan.tail(i)
			sess.setContinuation(func() error {
				if done := s.execute(ctx, sess, rest); done {
					s.teardown(sess)
				}
				return nil
			})
			sess.log.Debug().Str("path", f.Path).Msg("editor busy, continuation armed")
			return nil
		}
		if err != nil {
			return fmt.Errorf("visit %s: %w", f.Path, err)
		}
		sess.addDocument(doc)
	}

	for _, a := range plan.Actions {
		if err := s.runAction(sess, a); err != nil {
			return err
		}
	}

	evalFailed := false
	for _, expr := range plan.Exprs {
		res, err := s.ed.Eval(ctx, expr)
		if err != nil {
			// Report this expression individually and keep going with
			// the rest of the request's expressions.
			s.metrics.EvalFailure()
			ee := &errs.EvalError{Expr: expr, Err: err}
			s.metrics.RecordError(ee.Error())
			if _, werr := sess.SendError(err.Error()); werr != nil {
				return fmt.Errorf("report eval failure: %w", werr)
			}
			evalFailed = true
			continue
		}
		n, err := sess.SendPrint(res)
		s.metrics.BytesFramed(int64(n))
		if err != nil {
			return fmt.Errorf("send result: %w", err)
		}
	}
	if evalFailed {
		return errEvalReported
	}
	return nil
}

func (s *Server) runAction(sess *Session, a Action) error {
	switch a.Kind {
	case ActionSuspend:
		return s.ed.SuspendTTY(sess.surfaceRef())
	case ActionResume:
		return s.ed.ResumeTTY(sess.surfaceRef())
	case ActionIgnore:
		sess.log.Debug().Str("comment", a.Comment).Msg("ignored filler command")
		return nil
	default:
		return fmt.Errorf("unknown action %d", a.Kind)
	}
}

// attachSurface resolves which display surface the plan's output
// targets, in precedence order: explicit current-surface demand (or a
// host that cannot safely create one) reuses the current surface; a
// dumb terminal type gets the minimal constructor; graphical requests
// go to the graphical constructor and degrade to a
// -window-system-unsupported notice on failure; a named tty device
// gets a text surface; anything else runs without a surface.
func (s *Server) attachSurface(sess *Session, plan *Plan) error {
	if !plan.wantsSurface() {
		return nil
	}

	if plan.CurrentOnly || !s.ed.CanCreateSurface() {
		sess.setSurface(s.ed.CurrentSurface(), false)
		return nil
	}

	params := editor.SurfaceParams{
		Device:    plan.TTYDevice,
		TermType:  plan.TTYType,
		Display:   plan.Display,
		ParentID:  plan.ParentID,
		FrameAttr: plan.FrameAttr,
		Dir:       sess.getDir(),
		Env:       sess.envCopy(),
	}

	switch {
	case plan.TTYType == editor.DumbTerminal:
		surf, err := s.ed.NewMinimalSurface(params)
		if err != nil {
			return fmt.Errorf("minimal surface: %w", err)
		}
		sess.setSurface(surf, true)

	case plan.WindowSystem || plan.Display != "" || plan.ParentID != "":
		surf, err := s.ed.NewGraphicalSurface(params)
		if err != nil {
			sess.log.Info().Err(err).Msg("no graphical capability, proceeding without surface")
			if _, werr := sess.SendLine(wire.NoticeNoWindowSys); werr != nil {
				return fmt.Errorf("send notice: %w", werr)
			}
			return nil
		}
		sess.setSurface(surf, true)

	case plan.TTYDevice != "":
		surf, err := s.ed.NewTextSurface(params)
		if err != nil {
			return fmt.Errorf("text surface: %w", err)
		}
		sess.setSurface(surf, true)
	}
	return nil
}

// surfaceRef reads the attached surface without clearing it.
func (c *Session) surfaceRef() editor.Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surface
}
