package errors

import "fmt"

// Uninitialized creates a store-used-before-setup error. This is a startup
// ordering bug, not a transient condition, and must never be retried.
func Uninitialized(component string) *RelayError {
	return New(ErrCodeUninitialized, fmt.Sprintf("%s used before initialization", component)).
		WithDetail("component", component)
}

// SessionNotFound creates an unknown-session error
func SessionNotFound(sessionID string) *RelayError {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("session '%s' not found", sessionID)).
		WithDetail("sessionId", sessionID)
}

// NoResumeHandle creates an error for continuing a session the engine never
// issued a resume handle for
func NoResumeHandle(sessionID string) *RelayError {
	return New(ErrCodeNoResumeHandle, "session has no resume id yet").
		WithDetail("sessionId", sessionID)
}

// MalformedCommand creates an undecodable-command error
func MalformedCommand(commandType string, err error) *RelayError {
	return Wrap(err, ErrCodeMalformedCommand, fmt.Sprintf("malformed command payload: %s", commandType)).
		WithDetail("command", commandType)
}

// EngineFault wraps a failure that occurred while driving an engine run
func EngineFault(sessionID string, err error) *RelayError {
	return Wrap(err, ErrCodeEngineFault, "engine run failed").
		WithDetail("sessionId", sessionID)
}

// TransportFault wraps a send failure on one client connection
func TransportFault(err error) *RelayError {
	return Wrap(err, ErrCodeTransportFault, "connection send failed")
}
