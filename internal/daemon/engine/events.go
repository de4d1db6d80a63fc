package engine

import (
	"encoding/json"
	"fmt"
)

// EventType tags the closed set of event shapes the engine emits.
type EventType string

const (
	// EventSystem covers system notifications, including the "init" subtype
	// that carries the engine-assigned resume handle.
	EventSystem EventType = "system"
	// EventAssistant is a block of assistant output.
	EventAssistant EventType = "assistant"
	// EventUser is the engine's echo of user-side content (tool results).
	EventUser EventType = "user"
	// EventResult is the run's terminal event.
	EventResult EventType = "result"
	// EventPartial is a partial streaming fragment.
	EventPartial EventType = "stream_event"
)

const subtypeInit = "init"
const subtypeSuccess = "success"

// Event is the normalized envelope for one engine event: a discriminant tag,
// the fields the broker routes on, and the full body for clients.
type Event struct {
	Type    EventType
	Subtype string
	// ID is the engine-assigned event id, used for idempotent transcript
	// insertion. Empty when the engine did not provide one.
	ID string
	// ResumeID is the engine's conversation handle, present on init and
	// result events.
	ResumeID string
	// Err holds the terminal error text for failed runs.
	Err string
	// Body is the event envelope broadcast to clients and persisted in the
	// transcript. Always includes a "type" discriminant.
	Body map[string]interface{}
}

// Terminal reports whether this is the run's terminal event.
func (e Event) Terminal() bool { return e.Type == EventResult }

// Success reports whether a terminal event signals success.
func (e Event) Success() bool { return e.Type == EventResult && e.Subtype == subtypeSuccess }

// Init reports whether this is the run's init event.
func (e Event) Init() bool { return e.Type == EventSystem && e.Subtype == subtypeInit }

// EncodeBody returns the envelope as JSON for persistence and broadcast.
func (e Event) EncodeBody() json.RawMessage {
	data, err := json.Marshal(e.Body)
	if err != nil {
		// Body came from json.Unmarshal, so this cannot happen for real
		// engine events; keep the transcript well-formed regardless.
		return json.RawMessage(fmt.Sprintf(`{"type":%q}`, e.Type))
	}
	return data
}

// ParseLine parses one line of the engine's stream-json output into a
// normalized Event. Unknown top-level types are preserved as-is with their
// raw type tag so clients see everything the engine said.
func ParseLine(line []byte) (Event, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(line, &body); err != nil {
		return Event{}, fmt.Errorf("parse engine event: %w", err)
	}

	typ, _ := body["type"].(string)
	switch EventType(typ) {
	case EventSystem:
		return normalizeSystem(body), nil
	case EventAssistant:
		return normalizeAssistant(body), nil
	case EventUser:
		return normalizeUser(body), nil
	case EventResult:
		return normalizeResult(body), nil
	case EventPartial:
		return normalizePartial(body), nil
	default:
		return Event{Type: EventType(typ), ID: stringField(body, "uuid"), Body: body}, nil
	}
}

// normalizeSystem handles system events. The init subtype carries the
// session handle the engine assigned for this conversation.
func normalizeSystem(body map[string]interface{}) Event {
	return Event{
		Type:     EventSystem,
		Subtype:  stringField(body, "subtype"),
		ID:       stringField(body, "uuid"),
		ResumeID: stringField(body, "session_id"),
		Body:     body,
	}
}

func normalizeAssistant(body map[string]interface{}) Event {
	return Event{
		Type: EventAssistant,
		ID:   stringField(body, "uuid"),
		Body: body,
	}
}

func normalizeUser(body map[string]interface{}) Event {
	return Event{
		Type: EventUser,
		ID:   stringField(body, "uuid"),
		Body: body,
	}
}

// normalizeResult handles the terminal event. The engine reports failure
// either through a non-success subtype or an is_error flag; the error text
// may live in "error" or in "result".
func normalizeResult(body map[string]interface{}) Event {
	ev := Event{
		Type:     EventResult,
		Subtype:  stringField(body, "subtype"),
		ID:       stringField(body, "uuid"),
		ResumeID: stringField(body, "session_id"),
		Body:     body,
	}

	isError, _ := body["is_error"].(bool)
	if ev.Subtype != subtypeSuccess || isError {
		ev.Err = stringField(body, "error")
		if ev.Err == "" {
			ev.Err = stringField(body, "result")
		}
		if ev.Err == "" {
			ev.Err = fmt.Sprintf("run failed: %s", ev.Subtype)
		}
		if ev.Subtype == subtypeSuccess {
			ev.Subtype = "error"
		}
	}
	return ev
}

func normalizePartial(body map[string]interface{}) Event {
	return Event{
		Type: EventPartial,
		ID:   stringField(body, "uuid"),
		Body: body,
	}
}

// ErrorResult builds a synthetic terminal event for runs that failed without
// the engine producing one (process died, stream cut off).
func ErrorResult(message string) Event {
	return Event{
		Type:    EventResult,
		Subtype: "error_during_execution",
		Err:     message,
		Body: map[string]interface{}{
			"type":     "result",
			"subtype":  "error_during_execution",
			"is_error": true,
			"error":    message,
		},
	}
}

func stringField(body map[string]interface{}, key string) string {
	v, _ := body[key].(string)
	return v
}
