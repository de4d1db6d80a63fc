package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandDecodingDefersPayload(t *testing.T) {
	raw := []byte(`{"type":"session.continue","payload":{"sessionId":"s1","prompt":"go on"}}`)

	var cmd Command
	require.NoError(t, json.Unmarshal(raw, &cmd))
	assert.Equal(t, CmdSessionContinue, cmd.Type)

	var payload ContinuePayload
	require.NoError(t, json.Unmarshal(cmd.Payload, &payload))
	assert.Equal(t, "s1", payload.SessionID)
	assert.Equal(t, "go on", payload.Prompt)
}

func TestPermissionResponseNestsAnswerUnderResult(t *testing.T) {
	raw := []byte(`{
		"sessionId": "s1",
		"toolUseId": "t1",
		"result": {"behavior": "allow", "updatedInput": {"question": "deploy?"}}
	}`)

	var payload PermissionResponsePayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "s1", payload.SessionID)
	assert.Equal(t, "t1", payload.ToolUseID)
	assert.Equal(t, "allow", payload.Result.Behavior)
	assert.Equal(t, "deploy?", payload.Result.UpdatedInput["question"])

	flat := []byte(`{"sessionId":"s1","toolUseId":"t1","behavior":"allow"}`)
	var stray PermissionResponsePayload
	require.NoError(t, json.Unmarshal(flat, &stray))
	assert.Empty(t, stray.Result.Behavior)
}

func TestEncodeStatusEvent(t *testing.T) {
	data, err := Encode(EvtSessionStatus, StatusPayload{SessionID: "s1", Status: "running"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"session.status","payload":{"sessionId":"s1","status":"running"}}`, string(data))
}

func TestEncodePermissionRequestOmitsEmptyInput(t *testing.T) {
	data, err := Encode(EvtPermissionRequest, PermissionRequestPayload{
		SessionID: "s1",
		ToolUseID: "t1",
		ToolName:  "AskUserQuestion",
	})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "input")
}

func TestSessionInfoFieldNames(t *testing.T) {
	data, err := json.Marshal(SessionInfo{
		ID:        "s1",
		Title:     "HELLO WORLD...",
		Status:    "idle",
		ResumeID:  "r1",
		CreatedAt: 1,
		UpdatedAt: 2,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"s1","title":"HELLO WORLD...","status":"idle","resumeId":"r1","createdAt":1,"updatedAt":2}`, string(data))
}
