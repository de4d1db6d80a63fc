package engine

import (
	"context"
	"sync"
)

// MockStep is one scripted step of a MockEngine run: either an event to
// emit, an approval round trip, or a gate that holds the run open until the
// test releases it.
type MockStep struct {
	Event *Event
	// Ask triggers the run's Approve callback with this tool before
	// continuing. The callback's answer is recorded in Answers.
	Ask *MockAsk
	// Gate, when non-nil, blocks the run until the channel is closed.
	Gate chan struct{}
}

// MockAsk describes a scripted approval request.
type MockAsk struct {
	Tool  string
	Input map[string]interface{}
}

// MockEngine is a scripted engine for tests. Each Run plays the script in
// order on a fresh stream.
type MockEngine struct {
	Script []MockStep

	mu         sync.Mutex
	runs       []*MockStream
	answers    []PermissionResult
	runStarted chan struct{}
}

// NewMockEngine creates a mock engine with the given script.
func NewMockEngine(script ...MockStep) *MockEngine {
	return &MockEngine{
		Script:     script,
		runStarted: make(chan struct{}, 16),
	}
}

// Run plays the script asynchronously.
func (m *MockEngine) Run(ctx context.Context, opts RunOptions) (Stream, error) {
	stream := &MockStream{
		events: make(chan Event, 16),
		Opts:   opts,
	}

	m.mu.Lock()
	m.runs = append(m.runs, stream)
	script := m.Script
	m.mu.Unlock()

	select {
	case m.runStarted <- struct{}{}:
	default:
	}

	go func() {
		defer close(stream.events)
		for _, step := range script {
			if step.Gate != nil {
				select {
				case <-step.Gate:
				case <-ctx.Done():
					return
				}
			}
			if step.Ask != nil && opts.Approve != nil {
				answer := opts.Approve(ctx, step.Ask.Tool, step.Ask.Input)
				m.mu.Lock()
				m.answers = append(m.answers, answer)
				m.mu.Unlock()
				if !answer.Allowed() {
					// A denied approval ends the scripted run without
					// emitting the remaining steps.
					return
				}
				continue
			}
			if step.Event != nil {
				select {
				case stream.events <- *step.Event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return stream, nil
}

// WaitForRun blocks until a run has started.
func (m *MockEngine) WaitForRun() {
	<-m.runStarted
}

// Runs returns the streams created so far.
func (m *MockEngine) Runs() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockStream(nil), m.runs...)
}

// Answers returns the approval answers observed so far.
func (m *MockEngine) Answers() []PermissionResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PermissionResult(nil), m.answers...)
}

// MockStream is the stream side of a MockEngine run.
type MockStream struct {
	events chan Event
	Opts   RunOptions

	mu         sync.Mutex
	interrupts int
}

func (s *MockStream) Events() <-chan Event {
	return s.events
}

func (s *MockStream) Interrupt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupts++
	return nil
}

// Interrupts returns how many times Interrupt was called.
func (s *MockStream) Interrupts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupts
}

// InitEvent builds a system init event carrying a resume handle.
func InitEvent(resumeID string) Event {
	return Event{
		Type:     EventSystem,
		Subtype:  subtypeInit,
		ResumeID: resumeID,
		Body: map[string]interface{}{
			"type":       "system",
			"subtype":    "init",
			"session_id": resumeID,
		},
	}
}

// AssistantEvent builds an assistant output event.
func AssistantEvent(id, text string) Event {
	return Event{
		Type: EventAssistant,
		ID:   id,
		Body: map[string]interface{}{
			"type": "assistant",
			"uuid": id,
			"message": map[string]interface{}{
				"content": []interface{}{
					map[string]interface{}{"type": "text", "text": text},
				},
			},
		},
	}
}

// SuccessResult builds a successful terminal event.
func SuccessResult(resumeID string) Event {
	return Event{
		Type:     EventResult,
		Subtype:  subtypeSuccess,
		ResumeID: resumeID,
		Body: map[string]interface{}{
			"type":       "result",
			"subtype":    "success",
			"session_id": resumeID,
		},
	}
}

// FailureResult builds a failed terminal event.
func FailureResult(message string) Event {
	return ErrorResult(message)
}
