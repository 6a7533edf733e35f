// Package toolloop implements the tool-execution sub-loop (component C6):
// given an assistant message containing one or more tool calls, it resolves
// each call against a tool registry, runs the before/after hooks around it,
// and assembles the resulting toolResult blocks into the next user message.
// A raised interrupt pauses the loop immediately; the loop never executes
// tool calls concurrently, since result ordering and hook ordering both
// follow call order.
package toolloop

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/agentrt/agentrt/agent"
	"github.com/agentrt/agentrt/hooks"
	"github.com/agentrt/agentrt/interrupt"
	"github.com/agentrt/agentrt/toolerrors"
	"github.com/agentrt/agentrt/tools"
)

// Result is the outcome of running the sub-loop once over a single
// assistant message.
type Result struct {
	// Message carries the toolResult blocks produced for every call that
	// resolved before the loop stopped.
	Message *agent.Message
	// Interrupted is non-nil when the loop stopped early because a tool
	// body raised an interrupt; Message still carries any results
	// produced before that point.
	Interrupted *interrupt.Signal
}

// Run executes every ToolUseBlock in msg in order against registry,
// dispatching BeforeToolCallEvent/AfterToolCallEvent around each call
// through hookRegistry and honoring interrupt.State for human-in-the-loop
// pauses. agentHandle is threaded into each call's ToolContext; forward, if
// non-nil, receives every agent.ToolEvent a tool body emits, so a caller
// streaming the invocation sees tool sub-events alongside model events.
func Run(ctx context.Context, msg *agent.Message, registry *tools.Registry, hookRegistry *hooks.Registry, interruptState *interrupt.State, agentHandle tools.AgentHandle, forward func(agent.StreamEvent)) (*Result, error) {
	calls := msg.ToolUseBlocks()

	if err := hooks.Dispatch(ctx, hookRegistry, &hooks.BeforeToolsEvent{Message: msg}); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(calls))
	results := make([]agent.ContentBlock, 0, len(calls))

	for _, call := range calls {
		if seen[call.ToolUseID] {
			return nil, &agent.ProtocolError{Reason: fmt.Sprintf("duplicate tool use id %q in one message", call.ToolUseID)}
		}
		seen[call.ToolUseID] = true

		result, sig, err := runOne(ctx, call, registry, hookRegistry, interruptState, agentHandle, forward)
		if err != nil {
			return nil, err
		}
		if sig != nil {
			out := &agent.Message{Role: agent.RoleUser, Content: results}
			if err := hooks.Dispatch(ctx, hookRegistry, &hooks.AfterToolsEvent{Message: out}); err != nil {
				return nil, err
			}
			return &Result{Message: out, Interrupted: sig}, nil
		}
		results = append(results, *result)
	}

	out := &agent.Message{Role: agent.RoleUser, Content: results}
	if err := hooks.Dispatch(ctx, hookRegistry, &hooks.AfterToolsEvent{Message: out}); err != nil {
		return nil, err
	}
	return &Result{Message: out}, nil
}

// stateOf returns h's AgentState bag, or nil when h is nil (e.g. a caller
// driving the sub-loop directly, without an owning agent).
func stateOf(h tools.AgentHandle) *agent.StateBag {
	if h == nil {
		return nil
	}
	return h.State()
}

// runOne executes a single tool call, retrying while an AfterToolCallHook
// keeps requesting it, and returns either the finished result block or an
// interrupt signal to propagate up to the caller.
func runOne(ctx context.Context, call *agent.ToolUseBlock, registry *tools.Registry, hookRegistry *hooks.Registry, interruptState *interrupt.State, agentHandle tools.AgentHandle, forward func(agent.StreamEvent)) (*agent.ToolResultBlock, *interrupt.Signal, error) {
	tool, found := registry.Find(call.Name)

	before := &hooks.BeforeToolCallEvent{ToolUse: call, Tool: tool, State: stateOf(agentHandle)}
	if err := hooks.Dispatch(ctx, hookRegistry, before); err != nil {
		return nil, nil, err
	}
	if before.Cancelled() {
		text := fmt.Sprint(before.CancelTool)
		result := agent.NewTextResult(call.ToolUseID, agent.ToolResultStatusError, text)
		if err := hooks.Dispatch(ctx, hookRegistry, &hooks.AfterToolCallEvent{ToolUse: call, Result: result, State: stateOf(agentHandle)}); err != nil {
			return nil, nil, err
		}
		return result, nil, nil
	}

	if !found {
		result := agent.NewTextResult(call.ToolUseID, agent.ToolResultStatusError, fmt.Sprintf("tool %q is not registered", call.Name))
		if err := hooks.Dispatch(ctx, hookRegistry, &hooks.AfterToolCallEvent{ToolUse: call, Result: result, State: stateOf(agentHandle)}); err != nil {
			return nil, nil, err
		}
		return result, nil, nil
	}

	if err := tools.ValidateInput(tool.InputSchema(), call.Input); err != nil {
		inputErr := &agent.InvalidToolInputError{ToolUseID: call.ToolUseID, Err: err}
		result := agent.NewTextResult(call.ToolUseID, agent.ToolResultStatusError, inputErr.Error())
		if dispatchErr := hooks.Dispatch(ctx, hookRegistry, &hooks.AfterToolCallEvent{ToolUse: call, Result: result, Err: inputErr, State: stateOf(agentHandle)}); dispatchErr != nil {
			return nil, nil, dispatchErr
		}
		return result, nil, nil
	}

	callCtx := interrupt.WithToolUseID(ctx, call.ToolUseID)

	for {
		tc := tools.ToolContext{
			ToolUse: call,
			Agent:   agentHandle,
			Interrupt: func(name, reason string) (any, error) {
				return interrupt.Raise(callCtx, interruptState, name, reason)
			},
		}

		ts, streamErr := tool.Stream(callCtx, tc, call.Input)
		if streamErr == nil {
			for {
				ev, err := ts.Recv()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					streamErr = err
					break
				}
				wrapped := agent.ToolEvent{ToolUseID: call.ToolUseID, Event: ev}
				if forward != nil {
					forward(wrapped)
				}
				if dispatchErr := hooks.Dispatch(ctx, hookRegistry, &hooks.ModelStreamEventHookEvent{Event: wrapped}); dispatchErr != nil {
					_ = ts.Close()
					return nil, nil, dispatchErr
				}
			}
		}

		var block *agent.ToolResultBlock
		var resultErr error
		if ts != nil {
			block, resultErr = ts.Result()
			_ = ts.Close()
		}
		if streamErr != nil && resultErr == nil {
			resultErr = streamErr
		}

		var sig *interrupt.Signal
		if errors.As(resultErr, &sig) {
			return nil, sig, nil
		}

		var result *agent.ToolResultBlock
		switch {
		case resultErr != nil:
			toolErr := toolerrors.FromError(resultErr)
			result = &agent.ToolResultBlock{
				ToolUseID: call.ToolUseID,
				Status:    agent.ToolResultStatusError,
				Content:   []agent.ToolResultContent{agent.TextResultContent{Text: toolErr.Error()}},
			}
		case block == nil:
			result = agent.NewTextResult(call.ToolUseID, agent.ToolResultStatusError, fmt.Sprintf("tool %q did not return a result", call.Name))
		default:
			result = block
			result.ToolUseID = call.ToolUseID
			if result.Status == "" {
				result.Status = agent.ToolResultStatusSuccess
			}
		}

		after := &hooks.AfterToolCallEvent{ToolUse: call, Result: result, Err: resultErr, State: stateOf(agentHandle)}
		if dispatchErr := hooks.Dispatch(ctx, hookRegistry, after); dispatchErr != nil {
			return nil, nil, dispatchErr
		}
		if !after.Retry {
			return result, nil, nil
		}
	}
}
