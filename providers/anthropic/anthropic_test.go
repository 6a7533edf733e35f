package anthropic

import (
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/agentrt/agent"
)

func TestConvertMessages_TextAndRoles(t *testing.T) {
	msgs := []*agent.Message{
		{Role: agent.RoleUser, Content: []agent.ContentBlock{agent.TextBlock{Text: "hi"}}},
		{Role: agent.RoleAssistant, Content: []agent.ContentBlock{agent.TextBlock{Text: "hello"}}},
	}
	out, err := convertMessages(msgs)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, anthropic.MessageParamRoleUser, out[0].Role)
	require.Equal(t, anthropic.MessageParamRoleAssistant, out[1].Role)
}

func TestConvertMessages_ToolUseAndResult(t *testing.T) {
	msgs := []*agent.Message{
		{
			Role: agent.RoleAssistant,
			Content: []agent.ContentBlock{
				agent.ToolUseBlock{ToolUseID: "t1", Name: "search", Input: map[string]any{"q": "x"}},
			},
		},
		{
			Role: agent.RoleUser,
			Content: []agent.ContentBlock{
				agent.ToolResultBlock{
					ToolUseID: "t1",
					Status:    agent.ToolResultStatusSuccess,
					Content:   []agent.ToolResultContent{agent.TextResultContent{Text: "result"}},
				},
			},
		},
	}
	out, err := convertMessages(msgs)
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestConvertMessages_ReasoningBlockDroppedWithoutSignature(t *testing.T) {
	msgs := []*agent.Message{
		{Role: agent.RoleAssistant, Content: []agent.ContentBlock{agent.ReasoningBlock{Text: "thinking"}}},
	}
	out, err := convertMessages(msgs)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Empty(t, out[0].Content)
}

func TestConvertMessages_ReasoningBlockKeptWithSignature(t *testing.T) {
	msgs := []*agent.Message{
		{Role: agent.RoleAssistant, Content: []agent.ContentBlock{agent.ReasoningBlock{Text: "thinking", Signature: "sig"}}},
	}
	out, err := convertMessages(msgs)
	require.NoError(t, err)
	require.Len(t, out[0].Content, 1)
}

func TestConvertMessages_CachePointIsNoOp(t *testing.T) {
	msgs := []*agent.Message{
		{Role: agent.RoleUser, Content: []agent.ContentBlock{agent.TextBlock{Text: "a"}, agent.CachePointBlock{}}},
	}
	out, err := convertMessages(msgs)
	require.NoError(t, err)
	require.Len(t, out[0].Content, 1)
}

type unsupportedBlock struct{}

func (unsupportedBlock) isContentBlock() {}

func TestConvertMessages_UnsupportedBlockErrors(t *testing.T) {
	msgs := []*agent.Message{
		{Role: agent.RoleUser, Content: []agent.ContentBlock{unsupportedBlock{}}},
	}
	_, err := convertMessages(msgs)
	require.Error(t, err)
}

func TestConvertToolSpecs_SetsNameAndDescription(t *testing.T) {
	specs := []agent.ToolSpec{
		{Name: "search", Description: "search the web", InputSchema: map[string]any{"type": "object"}},
	}
	out, err := convertToolSpecs(specs)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].OfTool)
	require.Equal(t, "search", out[0].OfTool.Name)
}

func TestConvertToolChoice(t *testing.T) {
	auto, err := convertToolChoice(agent.ToolChoice{Mode: agent.ToolChoiceAuto})
	require.NoError(t, err)
	require.NotNil(t, auto.OfAuto)

	any_, err := convertToolChoice(agent.ToolChoice{Mode: agent.ToolChoiceAny})
	require.NoError(t, err)
	require.NotNil(t, any_.OfAny)

	tool, err := convertToolChoice(agent.ToolChoice{Mode: agent.ToolChoiceTool, Name: "search"})
	require.NoError(t, err)
	require.NotNil(t, tool.OfTool)

	_, err = convertToolChoice(agent.ToolChoice{Mode: agent.ToolChoiceTool})
	require.Error(t, err)

	_, err = convertToolChoice(agent.ToolChoice{Mode: "bogus"})
	require.Error(t, err)
}

func TestTranslateDelta(t *testing.T) {
	_, ok := translateDelta(anthropic.RawContentBlockDeltaUnion{Type: "text_delta", Text: "hi"})
	require.True(t, ok)

	_, ok = translateDelta(anthropic.RawContentBlockDeltaUnion{Type: "input_json_delta", PartialJSON: "{}"})
	require.True(t, ok)

	_, ok = translateDelta(anthropic.RawContentBlockDeltaUnion{Type: "thinking_delta", Thinking: "hmm"})
	require.True(t, ok)

	_, ok = translateDelta(anthropic.RawContentBlockDeltaUnion{Type: "signature_delta", Signature: "sig"})
	require.True(t, ok)

	_, ok = translateDelta(anthropic.RawContentBlockDeltaUnion{Type: "unknown"})
	require.False(t, ok)
}

func TestMapStopReason(t *testing.T) {
	cases := map[string]agent.StopReason{
		"end_turn":     agent.StopReasonEndTurn,
		"tool_use":     agent.StopReasonToolUse,
		"max_tokens":   agent.StopReasonMaxTokens,
		"stop_sequence": agent.StopReasonStopSequence,
		"refusal":      agent.StopReasonContentFiltered,
		"pause_turn":   agent.StopReasonEndTurn,
		"something_else": agent.StopReasonEndTurn,
	}
	for in, want := range cases {
		require.Equal(t, want, mapStopReason(in), in)
	}
}

func TestWrapError_NonSDKErrorWrappedGenerically(t *testing.T) {
	err := wrapError(errors.New("boom"), "claude-test")
	require.Error(t, err)
	require.Contains(t, err.Error(), "claude-test")

	var throttled *agent.ModelThrottledError
	require.False(t, errors.As(err, &throttled))
}

func TestWrapError_Nil(t *testing.T) {
	require.NoError(t, wrapError(nil, "model"))
}
