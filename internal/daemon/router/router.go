// Package router dispatches client commands to the session machinery and
// broadcasts the resulting events. It owns the side-effect ordering: durable
// events are recorded in the store before any client sees them.
package router

import (
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/internal/daemon/engine"
	"github.com/grovetools/relay/internal/daemon/hub"
	"github.com/grovetools/relay/internal/daemon/permit"
	"github.com/grovetools/relay/internal/daemon/protocol"
	"github.com/grovetools/relay/internal/daemon/registry"
	"github.com/grovetools/relay/internal/daemon/runner"
	"github.com/grovetools/relay/internal/daemon/store"
	"github.com/grovetools/relay/pkg/models"
)

const (
	msgSessionGone = "Session no longer exists."
	msgNoResumeYet = "Session has no resume id yet."
	titleWordLimit = 5
	defaultTitle   = "New Session"
)

// ClientConn is one client websocket. Tests substitute a fake.
type ClientConn interface {
	hub.Conn
	ReadMessage() (messageType int, data []byte, err error)
}

// Router translates inbound commands into session operations and outbound
// broadcasts. It is the runner's Sink, so engine events flow back through
// the same recording and liveness rules as command-triggered events.
type Router struct {
	registry *registry.Registry
	store    *store.Store
	hub      *hub.Hub
	permits  *permit.Correlator
	sup      *runner.Supervisor
	logger   *logrus.Entry
}

// New wires a Router with its own permission correlator and run supervisor.
func New(reg *registry.Registry, st *store.Store, h *hub.Hub, eng engine.Engine, bufferBytes int, logger *logrus.Entry) *Router {
	r := &Router{
		registry: reg,
		store:    st,
		hub:      h,
		logger:   logger,
	}
	r.permits = permit.New(logger)
	r.sup = runner.New(eng, r, r.permits, bufferBytes, logger)
	return r
}

// HandleConnection services one client until its socket closes. Commands
// are processed in arrival order on the connection's read goroutine.
func (r *Router) HandleConnection(conn ClientConn) {
	client := r.hub.Add(conn)
	defer r.hub.Remove(client)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			r.logger.WithError(errors.TransportFault(err)).Debug("Client read ended")
			return
		}
		r.Dispatch(data)
	}
}

// Dispatch decodes and executes one command. Unknown or malformed commands
// are logged and dropped; a bad client must not take the daemon down.
func (r *Router) Dispatch(data []byte) {
	var cmd protocol.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		r.logger.WithError(err).Warn("Dropping malformed command")
		return
	}

	var err error
	switch cmd.Type {
	case protocol.CmdSessionStart:
		err = decodeInto(cmd.Payload, r.handleStart)
	case protocol.CmdSessionContinue:
		err = decodeInto(cmd.Payload, r.handleContinue)
	case protocol.CmdSessionStop:
		err = decodeInto(cmd.Payload, r.handleStop)
	case protocol.CmdSessionDelete:
		err = decodeInto(cmd.Payload, r.handleDelete)
	case protocol.CmdSessionList:
		r.handleList()
	case protocol.CmdSessionHistory:
		err = decodeInto(cmd.Payload, r.handleHistory)
	case protocol.CmdPermissionResponse:
		err = decodeInto(cmd.Payload, r.handlePermissionResponse)
	default:
		r.logger.WithField("commandType", cmd.Type).Warn("Dropping unknown command")
		return
	}
	if err != nil {
		r.logger.WithError(errors.MalformedCommand(cmd.Type, err)).Warn("Dropping malformed payload")
	}
}

// Shutdown aborts every live run. Pending permissions are force-denied as
// part of each abort.
func (r *Router) Shutdown() {
	r.sup.AbortAll()
}

func decodeInto[P any](raw json.RawMessage, handle func(P)) error {
	var payload P
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	handle(payload)
	return nil
}

func (r *Router) handleStart(p protocol.StartPayload) {
	title := p.Title
	if title == "" {
		title = deriveTitle(p.Prompt)
	}

	sess, err := r.registry.Create(store.SessionMeta{
		Title:        title,
		Cwd:          p.Cwd,
		AllowedTools: p.AllowedTools,
		Prompt:       p.Prompt,
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to create session")
		r.EmitRunnerError("", "failed to create session")
		return
	}

	r.launch(sess.ID, p.Prompt)
}

func (r *Router) handleContinue(p protocol.ContinuePayload) {
	sess := r.registry.Get(p.SessionID)
	if sess == nil {
		r.logger.WithError(errors.SessionNotFound(p.SessionID)).Debug("Continue rejected")
		r.broadcast(protocol.EvtSessionDeleted, protocol.DeletedPayload{SessionID: p.SessionID})
		r.EmitRunnerError(p.SessionID, msgSessionGone)
		return
	}
	if sess.ResumeID == "" {
		r.logger.WithError(errors.NoResumeHandle(p.SessionID)).Debug("Continue rejected")
		r.EmitRunnerError(p.SessionID, msgNoResumeYet)
		return
	}

	if _, err := r.registry.ApplyUpdate(p.SessionID, models.SessionUpdate{
		LastPrompt: models.StringPtr(p.Prompt),
	}); err != nil {
		r.logger.WithError(err).Error("Failed to record prompt")
	}
	r.launch(p.SessionID, p.Prompt)
}

// launch transitions the session to running, echoes the accepted prompt, and
// hands the run to the supervisor. Start and continue share this tail.
func (r *Router) launch(sessionID, prompt string) {
	r.EmitStatus(sessionID, models.StatusRunning, "")
	r.emitUserPrompt(sessionID, prompt)

	sess := r.registry.Get(sessionID)
	if sess == nil {
		return
	}
	if err := r.sup.Launch(sess, prompt); err != nil {
		r.logger.WithField("sessionId", sessionID).WithError(err).Error("Failed to launch run")
		r.EmitRunnerError(sessionID, "failed to start engine run")
		r.EmitStatus(sessionID, models.StatusError, "failed to start engine run")
	}
}

func (r *Router) handleStop(p protocol.StopPayload) {
	if !r.registry.Has(p.SessionID) {
		r.broadcast(protocol.EvtSessionDeleted, protocol.DeletedPayload{SessionID: p.SessionID})
		return
	}

	r.sup.Abort(p.SessionID)
	r.EmitStatus(p.SessionID, models.StatusIdle, "")
}

func (r *Router) handleDelete(p protocol.DeletePayload) {
	r.sup.Abort(p.SessionID)

	if _, err := r.registry.Delete(p.SessionID); err != nil {
		r.logger.WithField("sessionId", p.SessionID).WithError(err).Error("Failed to delete session")
	}
	r.broadcast(protocol.EvtSessionDeleted, protocol.DeletedPayload{SessionID: p.SessionID})
}

func (r *Router) handleList() {
	sessions, err := r.store.ListSessions()
	if err != nil {
		r.logger.WithError(err).Error("Failed to list sessions")
		return
	}

	infos := make([]protocol.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sessionInfo(sess))
	}
	r.broadcast(protocol.EvtSessionList, protocol.ListPayload{Sessions: infos})
}

func (r *Router) handleHistory(p protocol.HistoryPayload) {
	sess, messages, err := r.store.GetHistory(p.SessionID)
	if err != nil {
		r.logger.WithField("sessionId", p.SessionID).WithError(err).Error("Failed to load history")
		return
	}
	if sess == nil {
		r.broadcast(protocol.EvtSessionDeleted, protocol.DeletedPayload{SessionID: p.SessionID})
		return
	}

	entries := make([]protocol.HistoryEntry, 0, len(messages))
	for _, msg := range messages {
		entries = append(entries, protocol.HistoryEntry{
			ID:        msg.ID,
			Data:      msg.Data,
			CreatedAt: msg.CreatedAt,
		})
	}
	r.broadcast(protocol.EvtSessionHistory, protocol.HistoryEventPayload{
		SessionID: p.SessionID,
		Status:    string(sess.Status),
		Messages:  entries,
	})
}

func (r *Router) handlePermissionResponse(p protocol.PermissionResponsePayload) {
	if p.Result.Behavior != "allow" && p.Result.Behavior != "deny" {
		r.logger.WithField("behavior", p.Result.Behavior).Warn("Dropping permission response with unknown behavior")
		return
	}
	if !r.registry.Has(p.SessionID) {
		r.logger.WithField("sessionId", p.SessionID).Debug("Dropping permission response for unknown session")
		return
	}

	r.permits.Resolve(p.SessionID, p.ToolUseID, engine.PermissionResult{
		Behavior:     p.Result.Behavior,
		UpdatedInput: p.Result.UpdatedInput,
		Message:      p.Result.Message,
	})
}

// EmitMessage records one engine event and broadcasts it. Events for a
// session deleted mid-run are dropped.
func (r *Router) EmitMessage(sessionID string, ev engine.Event) {
	if !r.registry.Has(sessionID) {
		r.logger.WithField("sessionId", sessionID).Debug("Dropping event for deleted session")
		return
	}

	if err := r.store.AppendMessage(sessionID, ev.ID, ev.EncodeBody()); err != nil {
		r.logger.WithField("sessionId", sessionID).WithError(err).Error("Failed to record engine event")
	}

	r.broadcast(protocol.EvtStreamMessage, protocol.StreamMessagePayload{
		SessionID: sessionID,
		Message:   ev.Body,
	})
}

// EmitStatus transitions the session and broadcasts the new status. errText
// rides along on error transitions so clients can show why a run failed.
// Unknown sessions are dropped.
func (r *Router) EmitStatus(sessionID string, status models.SessionStatus, errText string) {
	sess, err := r.registry.ApplyUpdate(sessionID, models.SessionUpdate{
		Status: models.StatusPtr(status),
	})
	if err != nil {
		r.logger.WithField("sessionId", sessionID).WithError(err).Error("Failed to record status")
		return
	}
	if sess == nil {
		return
	}

	r.broadcast(protocol.EvtSessionStatus, protocol.StatusPayload{
		SessionID: sessionID,
		Status:    string(status),
		Title:     sess.Title,
		Cwd:       sess.Cwd,
		Error:     errText,
	})
}

// EmitRunnerError broadcasts a run-level fault without changing status.
func (r *Router) EmitRunnerError(sessionID, message string) {
	r.broadcast(protocol.EvtRunnerError, protocol.RunnerErrorPayload{
		SessionID: sessionID,
		Message:   message,
	})
}

// UpdateSession persists a session change without broadcasting.
func (r *Router) UpdateSession(sessionID string, update models.SessionUpdate) {
	if _, err := r.registry.ApplyUpdate(sessionID, update); err != nil {
		r.logger.WithField("sessionId", sessionID).WithError(err).Error("Failed to update session")
	}
}

// RequestPermission broadcasts a tool approval request.
func (r *Router) RequestPermission(sessionID, toolUseID, toolName string, input map[string]interface{}) {
	if !r.registry.Has(sessionID) {
		return
	}
	r.broadcast(protocol.EvtPermissionRequest, protocol.PermissionRequestPayload{
		SessionID: sessionID,
		ToolUseID: toolUseID,
		ToolName:  toolName,
		Input:     input,
	})
}

// emitUserPrompt records the accepted prompt in the transcript and echoes it
// to clients.
func (r *Router) emitUserPrompt(sessionID, prompt string) {
	record, err := json.Marshal(map[string]string{"type": "user_prompt", "prompt": prompt})
	if err == nil {
		if err := r.store.AppendMessage(sessionID, "", record); err != nil {
			r.logger.WithField("sessionId", sessionID).WithError(err).Error("Failed to record prompt")
		}
	}

	r.broadcast(protocol.EvtStreamUserPrompt, protocol.UserPromptPayload{
		SessionID: sessionID,
		Prompt:    prompt,
	})
}

func (r *Router) broadcast(eventType string, payload interface{}) {
	data, err := protocol.Encode(eventType, payload)
	if err != nil {
		r.logger.WithField("eventType", eventType).WithError(err).Error("Failed to encode event")
		return
	}
	r.hub.Broadcast(data)
}

func sessionInfo(sess *models.Session) protocol.SessionInfo {
	return protocol.SessionInfo{
		ID:         sess.ID,
		Title:      sess.Title,
		Status:     string(sess.Status),
		ResumeID:   sess.ResumeID,
		Cwd:        sess.Cwd,
		LastPrompt: sess.LastPrompt,
		CreatedAt:  sess.CreatedAt,
		UpdatedAt:  sess.UpdatedAt,
	}
}

// deriveTitle builds a session title from the first words of the prompt. The
// trailing ellipsis only appears when the prompt was actually truncated.
func deriveTitle(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) == 0 {
		return defaultTitle
	}

	title := strings.ToUpper(strings.Join(words[:min(len(words), titleWordLimit)], " "))
	if len(words) > titleWordLimit {
		title += "..."
	}
	return title
}
