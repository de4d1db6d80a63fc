// Package protocol defines the JSON envelopes exchanged with UI clients
// over the websocket: a closed set of inbound commands and the outbound
// events the daemon broadcasts in response.
package protocol

import "encoding/json"

// Inbound command types.
const (
	CmdSessionStart       = "session.start"
	CmdSessionContinue    = "session.continue"
	CmdSessionStop        = "session.stop"
	CmdSessionDelete      = "session.delete"
	CmdSessionList        = "session.list"
	CmdSessionHistory     = "session.history"
	CmdPermissionResponse = "permission.response"
)

// Outbound event types.
const (
	EvtStreamMessage     = "stream.message"
	EvtStreamUserPrompt  = "stream.user_prompt"
	EvtSessionStatus     = "session.status"
	EvtSessionList       = "session.list"
	EvtSessionHistory    = "session.history"
	EvtSessionDeleted    = "session.deleted"
	EvtPermissionRequest = "permission.request"
	EvtRunnerError       = "runner.error"
)

// Command is the envelope of one inbound client message. Payload decoding is
// deferred until the type is known.
type Command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event is the envelope of one outbound broadcast.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Encode marshals an outbound event envelope.
func Encode(eventType string, payload interface{}) ([]byte, error) {
	return json.Marshal(Event{Type: eventType, Payload: payload})
}

// StartPayload begins a new session with a fresh engine run.
type StartPayload struct {
	Prompt       string `json:"prompt"`
	Title        string `json:"title,omitempty"`
	Cwd          string `json:"cwd,omitempty"`
	AllowedTools string `json:"allowedTools,omitempty"`
}

// ContinuePayload resumes an existing session with a follow-up prompt.
type ContinuePayload struct {
	SessionID string `json:"sessionId"`
	Prompt    string `json:"prompt"`
}

// StopPayload interrupts a session's run.
type StopPayload struct {
	SessionID string `json:"sessionId"`
}

// DeletePayload removes a session and its transcript.
type DeletePayload struct {
	SessionID string `json:"sessionId"`
}

// HistoryPayload requests a session's recorded transcript.
type HistoryPayload struct {
	SessionID string `json:"sessionId"`
}

// PermissionResponsePayload answers a pending tool approval request. The
// answer itself is nested under result.
type PermissionResponsePayload struct {
	SessionID string           `json:"sessionId"`
	ToolUseID string           `json:"toolUseId"`
	Result    PermissionAnswer `json:"result"`
}

// PermissionAnswer is the client's verdict on a tool approval request.
type PermissionAnswer struct {
	Behavior     string                 `json:"behavior"`
	UpdatedInput map[string]interface{} `json:"updatedInput,omitempty"`
	Message      string                 `json:"message,omitempty"`
}

// StreamMessagePayload carries one normalized engine event.
type StreamMessagePayload struct {
	SessionID string                 `json:"sessionId"`
	Message   map[string]interface{} `json:"message"`
}

// UserPromptPayload echoes a prompt the daemon accepted for a session.
type UserPromptPayload struct {
	SessionID string `json:"sessionId"`
	Prompt    string `json:"prompt"`
}

// StatusPayload announces a session status change. Title and Cwd let clients
// render a session they have not listed yet; Error carries the failure
// reason when the transition is to error.
type StatusPayload struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Title     string `json:"title,omitempty"`
	Cwd       string `json:"cwd,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SessionInfo is the client-facing view of a session.
type SessionInfo struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	ResumeID   string `json:"resumeId,omitempty"`
	Cwd        string `json:"cwd,omitempty"`
	LastPrompt string `json:"lastPrompt,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// ListPayload carries the full session roster.
type ListPayload struct {
	Sessions []SessionInfo `json:"sessions"`
}

// HistoryEntry is one recorded transcript item.
type HistoryEntry struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"createdAt"`
}

// HistoryEventPayload carries a session's transcript.
type HistoryEventPayload struct {
	SessionID string         `json:"sessionId"`
	Status    string         `json:"status"`
	Messages  []HistoryEntry `json:"messages"`
}

// DeletedPayload announces that a session no longer exists.
type DeletedPayload struct {
	SessionID string `json:"sessionId"`
}

// PermissionRequestPayload asks clients to approve a tool call.
type PermissionRequestPayload struct {
	SessionID string                 `json:"sessionId"`
	ToolUseID string                 `json:"toolUseId"`
	ToolName  string                 `json:"toolName"`
	Input     map[string]interface{} `json:"input,omitempty"`
}

// RunnerErrorPayload reports a run-level fault to clients.
type RunnerErrorPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}
