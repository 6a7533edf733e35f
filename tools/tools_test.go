package tools

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentrt/agentrt/agent"
)

func echoTool(name string) Tool {
	return &Func{
		ToolName:        name,
		ToolDescription: "echoes " + name,
		Fn: func(ctx context.Context, tc ToolContext, input any) ([]agent.ToolResultContent, error) {
			return []agent.ToolResultContent{agent.TextResultContent{Text: name}}, nil
		},
	}
}

// drainStream pulls every event off s and returns the final result, mirroring
// how toolloop.runOne consumes a ToolStream.
func drainStream(t *testing.T, s ToolStream) (*agent.ToolResultBlock, error) {
	t.Helper()
	for {
		_, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
	}
	defer s.Close()
	return s.Result()
}

func TestRegistry_ValuesPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.AddAll(echoTool("a"), echoTool("b"), echoTool("c"))

	names := make([]string, 0, 3)
	for _, tool := range r.Values() {
		names = append(names, tool.Name())
	}
	require.Equal(t, []string{"a", "b", "c"}, names)
}

func TestRegistry_AddReplacesExistingButKeepsPosition(t *testing.T) {
	r := NewRegistry()
	r.AddAll(echoTool("a"), echoTool("b"))
	replacement := echoTool("a")
	r.Add(replacement)

	names := make([]string, 0, 2)
	for _, tool := range r.Values() {
		names = append(names, tool.Name())
	}
	require.Equal(t, []string{"a", "b"}, names)

	found, ok := r.Find("a")
	require.True(t, ok)
	require.Same(t, replacement, found)
}

func TestRegistry_RemoveDropsToolFromOrderAndMap(t *testing.T) {
	r := NewRegistry()
	r.AddAll(echoTool("a"), echoTool("b"), echoTool("c"))
	r.Remove("b")

	_, ok := r.Find("b")
	require.False(t, ok)

	names := make([]string, 0, 2)
	for _, tool := range r.Values() {
		names = append(names, tool.Name())
	}
	require.Equal(t, []string{"a", "c"}, names)
}

func TestRegistry_RemoveUnknownNameIsNoOp(t *testing.T) {
	r := NewRegistry()
	r.AddAll(echoTool("a"))
	require.NotPanics(t, func() { r.Remove("missing") })
	require.Len(t, r.Values(), 1)
}

func TestRegistry_SpecsMirrorsRegisteredTools(t *testing.T) {
	r := NewRegistry()
	r.Add(&Func{ToolName: "search", ToolDescription: "searches", Schema: map[string]any{"type": "object"}})

	specs := r.Specs()
	require.Len(t, specs, 1)
	require.Equal(t, "search", specs[0].Name)
	require.Equal(t, "searches", specs[0].Description)
	require.Equal(t, map[string]any{"type": "object"}, specs[0].InputSchema)
}

func TestValidateInput_NilSchemaAlwaysValidates(t *testing.T) {
	require.NoError(t, ValidateInput(nil, map[string]any{"anything": 1}))
}

func TestValidateInput_AcceptsMatchingInput(t *testing.T) {
	schema := map[string]any{
		"type":                 "object",
		"properties":           map[string]any{"q": map[string]any{"type": "string"}},
		"required":             []any{"q"},
		"additionalProperties": false,
	}
	err := ValidateInput(schema, map[string]any{"q": "hello"})
	require.NoError(t, err)
}

func TestValidateInput_RejectsMissingRequiredField(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"q"},
	}
	err := ValidateInput(schema, map[string]any{})
	require.Error(t, err)
}

func TestValidateInput_RejectsWrongType(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"q": map[string]any{"type": "string"}},
	}
	err := ValidateInput(schema, map[string]any{"q": 5})
	require.Error(t, err)
}

func TestStreamFunc_EmitsProgressEventsBeforeResult(t *testing.T) {
	stream := StreamFunc(context.Background(), func(ctx context.Context, emit func(agent.ToolStreamEvent)) (*agent.ToolResultBlock, error) {
		emit(agent.ToolProgressEvent{Message: "step 1"})
		emit(agent.ToolProgressEvent{Message: "step 2"})
		return &agent.ToolResultBlock{ToolUseID: "1", Status: agent.ToolResultStatusSuccess}, nil
	})

	var messages []string
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		progress, ok := ev.(agent.ToolProgressEvent)
		require.True(t, ok)
		messages = append(messages, progress.Message)
	}
	require.Equal(t, []string{"step 1", "step 2"}, messages)

	block, err := stream.Result()
	require.NoError(t, err)
	require.Equal(t, "1", block.ToolUseID)
	require.NoError(t, stream.Close())
}

func TestNewStructuredOutputTool_CapturesValidatedPayload(t *testing.T) {
	var captured any
	schema := map[string]any{"type": "object"}
	tool := NewStructuredOutputTool(schema, &captured)

	require.Equal(t, StructuredOutputToolName(), tool.Name())
	require.Equal(t, schema, tool.InputSchema())

	stream, err := tool.Stream(context.Background(), ToolContext{ToolUse: &agent.ToolUseBlock{ToolUseID: "1"}}, map[string]any{"answer": 42})
	require.NoError(t, err)
	block, err := drainStream(t, stream)
	require.NoError(t, err)
	require.Len(t, block.Content, 1)
	require.Equal(t, map[string]any{"answer": 42}, captured)
}
