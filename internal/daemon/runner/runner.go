// Package runner supervises live engine runs: one goroutine per running
// session consuming the engine's event stream and forwarding its effects to
// the rest of the daemon through a Sink.
package runner

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/internal/daemon/engine"
	"github.com/grovetools/relay/internal/daemon/permit"
	"github.com/grovetools/relay/pkg/models"
)

// Sink receives the observable effects of a run. The router implements it.
type Sink interface {
	// EmitMessage records and broadcasts one normalized engine event.
	EmitMessage(sessionID string, ev engine.Event)

	// EmitStatus records and broadcasts a session status change. errText
	// carries the failure reason for error transitions, empty otherwise.
	EmitStatus(sessionID string, status models.SessionStatus, errText string)

	// EmitRunnerError broadcasts a non-fatal runner fault to clients.
	EmitRunnerError(sessionID, message string)

	// UpdateSession persists a session change without broadcasting.
	UpdateSession(sessionID string, update models.SessionUpdate)

	// RequestPermission broadcasts a tool approval request to clients.
	RequestPermission(sessionID, toolUseID, toolName string, input map[string]interface{})
}

// Run is one supervised engine run. The aborted flag is monotonic: once set
// it never clears, and every later emission for the run is suppressed.
// abortMu makes the flag check and a terminal status emission one critical
// section against Abort setting the flag: an Abort that has returned can
// never be trailed by a status event.
type Run struct {
	sessionID string
	stream    engine.Stream
	cancel    context.CancelFunc
	aborted   atomic.Bool
	abortMu   sync.Mutex
	done      chan struct{}
}

// Done returns a channel closed when the run's consume loop has exited.
func (r *Run) Done() <-chan struct{} { return r.done }

// Aborted reports whether the run was aborted.
func (r *Run) Aborted() bool { return r.aborted.Load() }

// Supervisor launches and aborts engine runs, at most one per session.
type Supervisor struct {
	eng     engine.Engine
	sink    Sink
	permits *permit.Correlator

	mu   sync.Mutex
	runs map[string]*Run

	bufferBytes int
	logger      *logrus.Entry
}

// New creates a Supervisor. bufferBytes caps the engine's per-line read
// buffer; zero uses the engine default.
func New(eng engine.Engine, sink Sink, permits *permit.Correlator, bufferBytes int, logger *logrus.Entry) *Supervisor {
	return &Supervisor{
		eng:         eng,
		sink:        sink,
		permits:     permits,
		runs:        make(map[string]*Run),
		bufferBytes: bufferBytes,
		logger:      logger,
	}
}

// Launch starts an engine run for the session, aborting any run it already
// has. The session's ResumeID, Cwd and AllowedTools configure the run.
func (s *Supervisor) Launch(sess *models.Session, prompt string) error {
	s.Abort(sess.ID)

	ctx, cancel := context.WithCancel(context.Background())
	run := &Run{
		sessionID: sess.ID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	opts := engine.RunOptions{
		Prompt:          prompt,
		Cwd:             sess.Cwd,
		Resume:          sess.ResumeID,
		AllowedTools:    sess.AllowedTools,
		ScanBufferBytes: s.bufferBytes,
		Approve:         s.approveFunc(ctx, run),
	}

	stream, err := s.eng.Run(ctx, opts)
	if err != nil {
		cancel()
		return errors.EngineFault(sess.ID, err)
	}
	run.stream = stream

	s.mu.Lock()
	s.runs[sess.ID] = run
	s.mu.Unlock()

	go s.consume(run)
	return nil
}

// consume drains the run's event stream, recording messages and reacting to
// init and terminal events. Every outward effect is gated on the aborted
// flag so that trailing events from an interrupted engine never surface.
func (s *Supervisor) consume(run *Run) {
	defer close(run.done)
	defer s.remove(run)

	logger := s.logger.WithField("sessionId", run.sessionID)

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("Run consumer panicked")
			if s.emitFinal(run, models.StatusError, "engine stream failed") {
				s.sink.EmitRunnerError(run.sessionID, "engine stream failed")
			}
		}
	}()

	terminalSeen := false
	for ev := range run.stream.Events() {
		if run.aborted.Load() {
			logger.WithField("eventType", ev.Type).Debug("Dropping post-abort event")
			continue
		}

		if ev.Init() && ev.ResumeID != "" {
			s.sink.UpdateSession(run.sessionID, models.SessionUpdate{
				ResumeID: models.StringPtr(ev.ResumeID),
			})
		}

		s.sink.EmitMessage(run.sessionID, ev)

		if ev.Terminal() {
			terminalSeen = true
			if ev.Success() {
				s.emitFinal(run, models.StatusCompleted, "")
			} else {
				s.emitFinal(run, models.StatusError, ev.Err)
			}
		}
	}

	if !terminalSeen {
		if s.emitFinal(run, models.StatusError, "engine stream ended without a result") {
			logger.Warn("Engine stream ended without a terminal event")
		}
	}
}

// emitFinal emits a terminal status for the run unless an abort has won the
// race. Holding abortMu across the flag check and the emission pairs with
// Abort holding it while setting the flag, so an abort landing during the
// run's last message emission still suppresses the status that would follow.
// Reports whether the status went out.
func (s *Supervisor) emitFinal(run *Run, status models.SessionStatus, errText string) bool {
	run.abortMu.Lock()
	defer run.abortMu.Unlock()

	if run.aborted.Load() {
		return false
	}
	s.sink.EmitStatus(run.sessionID, status, errText)
	return true
}

// approveFunc builds the engine's approval callback for one run. Only the
// question tool needs a round trip to a human; everything else is allowed
// with its input unchanged.
func (s *Supervisor) approveFunc(ctx context.Context, run *Run) engine.ApproveFunc {
	return func(callCtx context.Context, toolName string, input map[string]interface{}) engine.PermissionResult {
		if toolName != engine.AskUserQuestionTool {
			return engine.Allow(input)
		}
		if run.aborted.Load() {
			return engine.Deny("Session aborted")
		}

		toolUseID := uuid.New().String()
		ch := s.permits.Create(run.sessionID, toolUseID)
		s.sink.RequestPermission(run.sessionID, toolUseID, toolName, input)

		select {
		case res := <-ch:
			return res
		case <-ctx.Done():
			s.permits.Cancel(run.sessionID, toolUseID)
			return engine.Deny("Session aborted")
		case <-callCtx.Done():
			s.permits.Cancel(run.sessionID, toolUseID)
			return engine.Deny("Session aborted")
		}
	}
}

// Abort cancels the session's run if one is live. It is idempotent: only the
// first call per run interrupts the engine and denies pending permissions.
// The interrupt is advisory, so its error is logged and swallowed. Returns
// whether a live run existed.
func (s *Supervisor) Abort(sessionID string) bool {
	s.mu.Lock()
	run, ok := s.runs[sessionID]
	s.mu.Unlock()
	if !ok {
		return false
	}

	run.abortMu.Lock()
	first := run.aborted.CompareAndSwap(false, true)
	run.abortMu.Unlock()
	if !first {
		return true
	}

	if err := run.stream.Interrupt(); err != nil {
		s.logger.WithField("sessionId", sessionID).WithError(err).Debug("Engine interrupt failed")
	}
	run.cancel()
	s.permits.AbortSession(sessionID, "Session aborted")
	return true
}

// AbortAll aborts every live run. Used during daemon shutdown.
func (s *Supervisor) AbortAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Abort(id)
	}
}

// Active reports whether the session has a live run.
func (s *Supervisor) Active(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[sessionID]
	return ok
}

func (s *Supervisor) remove(run *Run) {
	s.mu.Lock()
	if s.runs[run.sessionID] == run {
		delete(s.runs, run.sessionID)
	}
	s.mu.Unlock()
}
