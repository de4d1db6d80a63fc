// Package engine defines the boundary to the opaque agent-execution engine.
// Given a prompt and a working directory the engine asynchronously produces
// an order-preserving stream of structured events ending in exactly one
// terminal event, and exposes an advisory interrupt. Its internal reasoning
// and tool semantics are not modeled here.
package engine

import "context"

// AskUserQuestionTool is the one tool kind that requires a human approval
// round trip. Every other tool request is answered immediately with an
// allow/unchanged-input outcome.
const AskUserQuestionTool = "AskUserQuestion"

// PermissionResult is the answer to a tool approval request.
type PermissionResult struct {
	Behavior     string                 `json:"behavior"` // "allow" or "deny"
	UpdatedInput map[string]interface{} `json:"updatedInput,omitempty"`
	Message      string                 `json:"message,omitempty"`
}

// Allowed reports whether the result permits the tool call.
func (r PermissionResult) Allowed() bool {
	return r.Behavior == "allow"
}

// Allow returns an allow result that leaves the input unchanged.
func Allow(input map[string]interface{}) PermissionResult {
	return PermissionResult{Behavior: "allow", UpdatedInput: input}
}

// Deny returns a deny result with a human-readable reason.
func Deny(message string) PermissionResult {
	return PermissionResult{Behavior: "deny", Message: message}
}

// ApproveFunc is invoked by the engine when a tool requires approval before
// execution continues. It blocks until an answer is available or ctx is done.
type ApproveFunc func(ctx context.Context, toolName string, input map[string]interface{}) PermissionResult

// RunOptions configures one engine run.
type RunOptions struct {
	Prompt       string
	Cwd          string
	Resume       string // resume handle from a prior run, empty for a fresh conversation
	AllowedTools string
	// ScanBufferBytes caps the per-line read buffer for the engine's event
	// stream. Zero means the engine default.
	ScanBufferBytes int
	Approve         ApproveFunc
}

// Stream is one live engine run.
type Stream interface {
	// Events returns the run's event channel. It is closed after the
	// terminal event (or when the run is torn down).
	Events() <-chan Event

	// Interrupt asks the engine to stop its in-flight work. It is advisory:
	// the run may still produce trailing events, and failures are not fatal.
	Interrupt() error
}

// Engine starts runs against the execution backend.
type Engine interface {
	Run(ctx context.Context, opts RunOptions) (Stream, error)
}
