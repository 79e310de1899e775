package backend

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func feed(t *testing.T, lines ...string) *collector {
	t.Helper()
	col := &collector{}
	for _, l := range lines {
		ev, err := ParseEvent([]byte(l))
		require.NoError(t, err)
		col.add(ev)
	}
	return col
}

func TestCollector_FullStream(t *testing.T) {
	col := feed(t,
		`{"type":"system","subtype":"init","session_id":"sess-1","model":"gpt-5"}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Looking at the bug."}]}}`,
		`{"type":"tool_call","subtype":"started","tool_call":{"shellToolCall":{"args":{"command":"go test"}}}}`,
		`{"type":"tool_call","subtype":"completed","tool_call":{"shellToolCall":{"args":{"command":"go test"}}}}`,
		`{"type":"tool_call","subtype":"completed","tool_call":{"editToolCall":{"args":{"path":"main.go"}}}}`,
		`{"type":"result","subtype":"success","result":"Fixed and reported.","duration_ms":1234,"session_id":"sess-1"}`,
	)

	resp := col.response()
	require.Equal(t, "sess-1", resp.SessionID)
	require.Equal(t, "gpt-5", resp.Model)
	require.Equal(t, "Fixed and reported.", resp.Text)
	require.Equal(t, 2, resp.ToolCalls)
	require.Empty(t, col.failure)
	require.Contains(t, resp.Transcript, "tool: shell")
	require.Contains(t, resp.Transcript, "tool: edit")
	require.Contains(t, resp.Transcript, "done in 1234ms")
}

func TestCollector_FallsBackToAssistantText(t *testing.T) {
	col := feed(t,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"solved: "},{"type":"text","text":"tests pass"}]}}`,
	)
	require.Equal(t, "solved: tests pass", col.response().Text)
}

func TestCollector_ErrorResult(t *testing.T) {
	col := feed(t,
		`{"type":"system","subtype":"init","session_id":"sess-2"}`,
		`{"type":"result","subtype":"error","is_error":true,"result":"rate limited"}`,
	)
	require.Equal(t, "rate limited", col.failure)
	require.Equal(t, "sess-2", col.response().SessionID)
}

func TestEvent_ErrorEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"error","error":{"message":"auth expired"}}`))
	require.NoError(t, err)
	require.True(t, ev.IsFailure())
	require.Equal(t, "auth expired", ev.ErrorMessage())
	require.Equal(t, "error: auth expired", ev.Describe())
}

func TestParseEvent_Invalid(t *testing.T) {
	_, err := ParseEvent([]byte("not json"))
	require.Error(t, err)
}
