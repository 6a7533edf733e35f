package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentrt/agentrt/agent"
)

func userText(text string) *agent.Message {
	return &agent.Message{Role: agent.RoleUser, Content: []agent.ContentBlock{agent.TextBlock{Text: text}}}
}

func assistantToolUse(toolUseID string) *agent.Message {
	return &agent.Message{Role: agent.RoleAssistant, Content: []agent.ContentBlock{
		agent.ToolUseBlock{ToolUseID: toolUseID, Name: "search"},
	}}
}

func userToolResult(toolUseID string) *agent.Message {
	return &agent.Message{Role: agent.RoleUser, Content: []agent.ContentBlock{
		agent.ToolResultBlock{ToolUseID: toolUseID, Status: agent.ToolResultStatusSuccess},
	}}
}

func TestWindowManager_NonPositiveMaxDisablesTrimming(t *testing.T) {
	w := NewWindowManager(0)
	messages := []*agent.Message{userText("a"), userText("b"), userText("c")}
	require.Equal(t, messages, w.Trim(messages))
}

func TestWindowManager_KeepsUnderLimitUnchanged(t *testing.T) {
	w := NewWindowManager(5)
	messages := []*agent.Message{userText("a"), userText("b")}
	require.Equal(t, messages, w.Trim(messages))
}

func TestWindowManager_TrimsToMostRecentMessages(t *testing.T) {
	w := NewWindowManager(2)
	messages := []*agent.Message{userText("a"), userText("b"), userText("c")}
	trimmed := w.Trim(messages)
	require.Len(t, trimmed, 2)
	require.Equal(t, messages[1:], trimmed)
}

func TestWindowManager_MovesBoundaryOutwardToPreserveToolPairing(t *testing.T) {
	w := NewWindowManager(1)
	messages := []*agent.Message{
		userText("a"),
		assistantToolUse("call1"),
		userToolResult("call1"),
	}
	trimmed := w.Trim(messages)
	// Trimming to the last 1 message would split the toolUse/toolResult
	// pair; the boundary must move outward to keep both together.
	require.Len(t, trimmed, 2)
	require.Equal(t, messages[1:], trimmed)
}

func TestWindowManager_BoundaryMovesAllTheWayToStartIfNeeded(t *testing.T) {
	w := NewWindowManager(1)
	messages := []*agent.Message{
		assistantToolUse("call1"),
		userToolResult("call1"),
	}
	trimmed := w.Trim(messages)
	require.Equal(t, messages, trimmed)
}

func TestWindowManager_GetStateReportsConfiguration(t *testing.T) {
	w := NewWindowManager(10)
	state := w.GetState()
	require.Equal(t, map[string]any{"maxMessages": 10}, state)
}

func TestWindowManager_RestoreFromSessionRestoresIntConfig(t *testing.T) {
	w := NewWindowManager(2)
	prepend := w.RestoreFromSession(map[string]any{"maxMessages": 10})
	require.Nil(t, prepend)
	require.Equal(t, 10, w.MaxMessages)
}

func TestWindowManager_RestoreFromSessionHandlesJSONRoundTrippedFloat(t *testing.T) {
	w := NewWindowManager(2)
	// A snapshot loaded back through encoding/json decodes numbers as
	// float64, not int.
	w.RestoreFromSession(map[string]any{"maxMessages": float64(7)})
	require.Equal(t, 7, w.MaxMessages)
}

func TestWindowManager_RestoreFromSessionIgnoresNilState(t *testing.T) {
	w := NewWindowManager(2)
	prepend := w.RestoreFromSession(nil)
	require.Nil(t, prepend)
	require.Equal(t, 2, w.MaxMessages)
}
