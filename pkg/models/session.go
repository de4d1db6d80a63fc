// Package models defines the session and message types shared across Relay.
package models

import "encoding/json"

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusIdle      SessionStatus = "idle"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusError     SessionStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Session represents one conversation thread with the execution engine.
// ResumeID is the opaque handle the engine issues for continuing the
// conversation; it is absent until the engine's first init event and, once
// set, is never cleared.
type Session struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Status       SessionStatus `json:"status"`
	ResumeID     string        `json:"resumeId,omitempty"`
	Cwd          string        `json:"cwd,omitempty"`
	AllowedTools string        `json:"allowedTools,omitempty"`
	LastPrompt   string        `json:"lastPrompt,omitempty"`
	CreatedAt    int64         `json:"createdAt"`
	UpdatedAt    int64         `json:"updatedAt"`
}

// Clone returns a copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	return &c
}

// SessionUpdate is a partial update to a session. Nil fields are unchanged.
type SessionUpdate struct {
	Title        *string
	Status       *SessionStatus
	ResumeID     *string
	Cwd          *string
	AllowedTools *string
	LastPrompt   *string
}

// Empty reports whether the update changes nothing.
func (u SessionUpdate) Empty() bool {
	return u.Title == nil && u.Status == nil && u.ResumeID == nil &&
		u.Cwd == nil && u.AllowedTools == nil && u.LastPrompt == nil
}

// Apply mutates sess with the update's non-nil fields.
func (u SessionUpdate) Apply(sess *Session) {
	if u.Title != nil {
		sess.Title = *u.Title
	}
	if u.Status != nil {
		sess.Status = *u.Status
	}
	if u.ResumeID != nil {
		sess.ResumeID = *u.ResumeID
	}
	if u.Cwd != nil {
		sess.Cwd = *u.Cwd
	}
	if u.AllowedTools != nil {
		sess.AllowedTools = *u.AllowedTools
	}
	if u.LastPrompt != nil {
		sess.LastPrompt = *u.LastPrompt
	}
}

// Message is one recorded transcript item: a user prompt or a normalized
// engine event. Data is the opaque event envelope as JSON.
type Message struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"createdAt"`
}

// StatusPtr returns a pointer to the given status, for SessionUpdate literals.
func StatusPtr(s SessionStatus) *SessionStatus { return &s }

// StringPtr returns a pointer to the given string, for SessionUpdate literals.
func StringPtr(s string) *string { return &s }
