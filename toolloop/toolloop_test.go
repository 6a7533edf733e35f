package toolloop

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentrt/agentrt/agent"
	"github.com/agentrt/agentrt/hooks"
	"github.com/agentrt/agentrt/interrupt"
	"github.com/agentrt/agentrt/tools"
)

func toolMessage(calls ...agent.ToolUseBlock) *agent.Message {
	content := make([]agent.ContentBlock, len(calls))
	for i, c := range calls {
		content[i] = c
	}
	return &agent.Message{Role: agent.RoleAssistant, Content: content}
}

func textResultOf(t *testing.T, result *agent.Message, i int) string {
	t.Helper()
	block, ok := result.Content[i].(agent.ToolResultBlock)
	require.True(t, ok)
	text, ok := block.Content[0].(agent.TextResultContent)
	require.True(t, ok)
	return text.Text
}

func TestRun_ExecutesCallsInOrderAndReturnsResults(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Add(&tools.Func{
		ToolName: "add",
		Fn: func(ctx context.Context, tc tools.ToolContext, input any) ([]agent.ToolResultContent, error) {
			return []agent.ToolResultContent{agent.TextResultContent{Text: "ok"}}, nil
		},
	})
	msg := toolMessage(
		agent.ToolUseBlock{ToolUseID: "1", Name: "add"},
		agent.ToolUseBlock{ToolUseID: "2", Name: "add"},
	)

	result, err := Run(context.Background(), msg, registry, hooks.NewRegistry(), interrupt.NewState(), nil, nil)
	require.NoError(t, err)
	require.Nil(t, result.Interrupted)
	require.Len(t, result.Message.Content, 2)
	block0 := result.Message.Content[0].(agent.ToolResultBlock)
	require.Equal(t, "1", block0.ToolUseID)
	require.Equal(t, agent.ToolResultStatusSuccess, block0.Status)
}

func TestRun_UnregisteredToolProducesErrorResult(t *testing.T) {
	registry := tools.NewRegistry()
	msg := toolMessage(agent.ToolUseBlock{ToolUseID: "1", Name: "missing"})

	result, err := Run(context.Background(), msg, registry, hooks.NewRegistry(), interrupt.NewState(), nil, nil)
	require.NoError(t, err)
	block := result.Message.Content[0].(agent.ToolResultBlock)
	require.Equal(t, agent.ToolResultStatusError, block.Status)
}

func TestRun_InvalidInputFailsValidationBeforeInvoke(t *testing.T) {
	invoked := false
	registry := tools.NewRegistry()
	registry.Add(&tools.Func{
		ToolName: "strict",
		Schema: map[string]any{
			"type":     "object",
			"required": []any{"q"},
		},
		Fn: func(ctx context.Context, tc tools.ToolContext, input any) ([]agent.ToolResultContent, error) {
			invoked = true
			return nil, nil
		},
	})
	msg := toolMessage(agent.ToolUseBlock{ToolUseID: "1", Name: "strict", Input: map[string]any{}})

	result, err := Run(context.Background(), msg, registry, hooks.NewRegistry(), interrupt.NewState(), nil, nil)
	require.NoError(t, err)
	require.False(t, invoked)
	block := result.Message.Content[0].(agent.ToolResultBlock)
	require.Equal(t, agent.ToolResultStatusError, block.Status)
}

func TestRun_DuplicateToolUseIDFails(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Add(&tools.Func{ToolName: "a", Fn: func(ctx context.Context, tc tools.ToolContext, input any) ([]agent.ToolResultContent, error) {
		return nil, nil
	}})
	msg := toolMessage(
		agent.ToolUseBlock{ToolUseID: "dup", Name: "a"},
		agent.ToolUseBlock{ToolUseID: "dup", Name: "a"},
	)

	_, err := Run(context.Background(), msg, registry, hooks.NewRegistry(), interrupt.NewState(), nil, nil)
	var protoErr *agent.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestRun_ToolErrorIsRenderedAsErrorResult(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Add(&tools.Func{
		ToolName: "failing",
		Fn: func(ctx context.Context, tc tools.ToolContext, input any) ([]agent.ToolResultContent, error) {
			return nil, errors.New("boom")
		},
	})
	msg := toolMessage(agent.ToolUseBlock{ToolUseID: "1", Name: "failing"})

	result, err := Run(context.Background(), msg, registry, hooks.NewRegistry(), interrupt.NewState(), nil, nil)
	require.NoError(t, err)
	block := result.Message.Content[0].(agent.ToolResultBlock)
	require.Equal(t, agent.ToolResultStatusError, block.Status)
	require.Equal(t, "boom", textResultOf(t, result.Message, 0))
}

func TestRun_InterruptPausesImmediatelyWithoutRunningLaterCalls(t *testing.T) {
	secondCalled := false
	state := interrupt.NewState()
	registry := tools.NewRegistry()
	registry.Add(&tools.Func{
		ToolName: "pausing",
		Fn: func(ctx context.Context, tc tools.ToolContext, input any) ([]agent.ToolResultContent, error) {
			return tc.Interrupt("confirm", "need approval")
		},
	})
	registry.Add(&tools.Func{
		ToolName: "second",
		Fn: func(ctx context.Context, tc tools.ToolContext, input any) ([]agent.ToolResultContent, error) {
			secondCalled = true
			return nil, nil
		},
	})
	msg := toolMessage(
		agent.ToolUseBlock{ToolUseID: "1", Name: "pausing"},
		agent.ToolUseBlock{ToolUseID: "2", Name: "second"},
	)

	result, err := Run(context.Background(), msg, registry, hooks.NewRegistry(), state, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Interrupted)
	require.False(t, secondCalled)
}

func TestRun_InterruptResumesWithStoredResponse(t *testing.T) {
	state := interrupt.NewState()
	registry := tools.NewRegistry()
	registry.Add(&tools.Func{
		ToolName: "pausing",
		Fn: func(ctx context.Context, tc tools.ToolContext, input any) ([]agent.ToolResultContent, error) {
			resp, err := tc.Interrupt("confirm", "need approval")
			if err != nil {
				return nil, err
			}
			return []agent.ToolResultContent{agent.TextResultContent{Text: resp.(string)}}, nil
		},
	})
	msg := toolMessage(agent.ToolUseBlock{ToolUseID: "1", Name: "pausing"})

	// First pass: raises and pauses.
	first, err := Run(context.Background(), msg, registry, hooks.NewRegistry(), state, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, first.Interrupted)

	state.Resume(first.Interrupted.ID, "approved")
	state.Activate()

	second, err := Run(context.Background(), msg, registry, hooks.NewRegistry(), state, nil, nil)
	require.NoError(t, err)
	require.Nil(t, second.Interrupted)
	require.Equal(t, "approved", textResultOf(t, second.Message, 0))
}

type cancellingHook struct{}

func (cancellingHook) OnBeforeToolCall(ctx context.Context, e *hooks.BeforeToolCallEvent) error {
	e.SetCancelTool("blocked")
	return nil
}

func TestRun_BeforeToolCallHookCancelsExecution(t *testing.T) {
	invoked := false
	registry := tools.NewRegistry()
	registry.Add(&tools.Func{
		ToolName: "a",
		Fn: func(ctx context.Context, tc tools.ToolContext, input any) ([]agent.ToolResultContent, error) {
			invoked = true
			return nil, nil
		},
	})
	hookRegistry := hooks.NewRegistry()
	hookRegistry.AddHook(cancellingHook{})

	msg := toolMessage(agent.ToolUseBlock{ToolUseID: "1", Name: "a"})
	result, err := Run(context.Background(), msg, registry, hookRegistry, interrupt.NewState(), nil, nil)
	require.NoError(t, err)
	require.False(t, invoked)
	require.Equal(t, "blocked", textResultOf(t, result.Message, 0))
}

func TestRun_BeforeToolCallEventCarriesResolvedTool(t *testing.T) {
	var seen tools.Tool
	registry := tools.NewRegistry()
	tool := &tools.Func{
		ToolName: "a",
		Fn: func(ctx context.Context, tc tools.ToolContext, input any) ([]agent.ToolResultContent, error) {
			return nil, nil
		},
	}
	registry.Add(tool)
	hookRegistry := hooks.NewRegistry()
	hookRegistry.AddHook(inspectingHook{seen: &seen})

	msg := toolMessage(agent.ToolUseBlock{ToolUseID: "1", Name: "a"})
	_, err := Run(context.Background(), msg, registry, hookRegistry, interrupt.NewState(), nil, nil)
	require.NoError(t, err)
	require.Same(t, tool, seen)
}

type inspectingHook struct{ seen *tools.Tool }

func (h inspectingHook) OnBeforeToolCall(ctx context.Context, e *hooks.BeforeToolCallEvent) error {
	*h.seen = e.Tool
	return nil
}

type retryOnceHook struct{ seen int }

func (h *retryOnceHook) OnAfterToolCall(ctx context.Context, e *hooks.AfterToolCallEvent) error {
	h.seen++
	if h.seen == 1 {
		e.Retry = true
	}
	return nil
}

func TestRun_AfterToolCallHookCanForceRetry(t *testing.T) {
	calls := 0
	registry := tools.NewRegistry()
	registry.Add(&tools.Func{
		ToolName: "a",
		Fn: func(ctx context.Context, tc tools.ToolContext, input any) ([]agent.ToolResultContent, error) {
			calls++
			return []agent.ToolResultContent{agent.TextResultContent{Text: "done"}}, nil
		},
	})
	hookRegistry := hooks.NewRegistry()
	hookRegistry.AddHook(&retryOnceHook{})

	msg := toolMessage(agent.ToolUseBlock{ToolUseID: "1", Name: "a"})
	_, err := Run(context.Background(), msg, registry, hookRegistry, interrupt.NewState(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestRun_FuncToolForwardsNoStreamEvents(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Add(&tools.Func{
		ToolName: "streaming",
		Fn: func(ctx context.Context, tc tools.ToolContext, input any) ([]agent.ToolResultContent, error) {
			return []agent.ToolResultContent{agent.TextResultContent{Text: "done"}}, nil
		},
	})
	msg := toolMessage(agent.ToolUseBlock{ToolUseID: "1", Name: "streaming"})

	var forwarded []agent.StreamEvent
	_, err := Run(context.Background(), msg, registry, hooks.NewRegistry(), interrupt.NewState(), nil, func(e agent.StreamEvent) {
		forwarded = append(forwarded, e)
	})
	require.NoError(t, err)
	require.Empty(t, forwarded)
}
