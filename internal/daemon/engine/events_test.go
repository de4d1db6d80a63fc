package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInitEvent(t *testing.T) {
	line := []byte(`{"type":"system","subtype":"init","session_id":"eng-123","cwd":"/tmp","tools":["Bash"]}`)

	ev, err := ParseLine(line)
	require.NoError(t, err)

	assert.Equal(t, EventSystem, ev.Type)
	assert.True(t, ev.Init())
	assert.Equal(t, "eng-123", ev.ResumeID)
	assert.False(t, ev.Terminal())
	// The full body is preserved for clients.
	assert.Equal(t, "/tmp", ev.Body["cwd"])
}

func TestParseAssistantEvent(t *testing.T) {
	line := []byte(`{"type":"assistant","uuid":"m-1","message":{"content":[{"type":"text","text":"hello"}]}}`)

	ev, err := ParseLine(line)
	require.NoError(t, err)

	assert.Equal(t, EventAssistant, ev.Type)
	assert.Equal(t, "m-1", ev.ID)
	assert.False(t, ev.Terminal())
}

func TestParseSuccessResult(t *testing.T) {
	line := []byte(`{"type":"result","subtype":"success","session_id":"eng-123","result":"done","duration_ms":1200}`)

	ev, err := ParseLine(line)
	require.NoError(t, err)

	assert.True(t, ev.Terminal())
	assert.True(t, ev.Success())
	assert.Empty(t, ev.Err)
	assert.Equal(t, "eng-123", ev.ResumeID)
}

func TestParseErrorResult(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{
			name: "error field",
			line: `{"type":"result","subtype":"error_during_execution","error":"boom"}`,
			want: "boom",
		},
		{
			name: "error text in result field",
			line: `{"type":"result","subtype":"error_max_turns","result":"too many turns"}`,
			want: "too many turns",
		},
		{
			name: "is_error with success subtype",
			line: `{"type":"result","subtype":"success","is_error":true,"result":"failed late"}`,
			want: "failed late",
		},
		{
			name: "no error text at all",
			line: `{"type":"result","subtype":"error_during_execution"}`,
			want: "run failed: error_during_execution",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseLine([]byte(tt.line))
			require.NoError(t, err)
			assert.True(t, ev.Terminal())
			assert.False(t, ev.Success())
			assert.Equal(t, tt.want, ev.Err)
		})
	}
}

func TestParsePartialAndUnknown(t *testing.T) {
	ev, err := ParseLine([]byte(`{"type":"stream_event","uuid":"p-1","event":{"type":"content_block_delta"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventPartial, ev.Type)
	assert.Equal(t, "p-1", ev.ID)

	// Unknown types pass through with their raw tag.
	ev, err = ParseLine([]byte(`{"type":"telemetry","uuid":"t-1"}`))
	require.NoError(t, err)
	assert.Equal(t, EventType("telemetry"), ev.Type)
	assert.Equal(t, "t-1", ev.ID)
}

func TestParseMalformedLine(t *testing.T) {
	_, err := ParseLine([]byte("not json"))
	assert.Error(t, err)
}

func TestErrorResultSynthesis(t *testing.T) {
	ev := ErrorResult("engine exited: signal: killed")

	assert.True(t, ev.Terminal())
	assert.False(t, ev.Success())
	assert.Equal(t, "engine exited: signal: killed", ev.Err)
	assert.Equal(t, true, ev.Body["is_error"])
}

func TestPermissionResultHelpers(t *testing.T) {
	input := map[string]interface{}{"question": "deploy?"}

	allow := Allow(input)
	assert.True(t, allow.Allowed())
	assert.Equal(t, input, allow.UpdatedInput)

	deny := Deny("Session aborted")
	assert.False(t, deny.Allowed())
	assert.Equal(t, "Session aborted", deny.Message)
}

func TestBuildArgs(t *testing.T) {
	args := buildArgs(RunOptions{Prompt: "hi", Resume: "eng-1", AllowedTools: "Bash,Edit"})

	assert.Contains(t, args, "--resume")
	assert.Contains(t, args, "eng-1")
	assert.Contains(t, args, "--allowedTools")
	assert.Contains(t, args, "Bash,Edit")
	assert.Equal(t, []string{"-p", "hi"}, args[:2])

	fresh := buildArgs(RunOptions{Prompt: "hi"})
	assert.NotContains(t, fresh, "--resume")
}
