// Package hooks implements the agent runtime's event-dispatch system
// (component C2): lifecycle events fire in registration order to every
// provider that implements the matching callback interface, and a handful
// of events carry mutable signal fields (Retry, CancelTool) a callback can
// set to steer the event loop or tool sub-loop.
//
// Providers register once via Registry.AddHook with any value; Dispatch
// inspects which of the typed callback interfaces below the value
// implements and invokes only those, in registration order, stopping at the
// first error.
package hooks

import (
	"context"
	"sync"

	"github.com/agentrt/agentrt/agent"
	"github.com/agentrt/agentrt/tools"
)

type (
	// BeforeInvocationEvent fires once at the start of Invoke/Stream. State
	// is the invoking agent's AgentState bag, shared with tool bodies.
	BeforeInvocationEvent struct {
		State *agent.StateBag
	}

	// BeforeModelCallEvent fires before each model cycle. A callback may
	// set Retry to force the event loop to re-issue the same cycle after
	// running callbacks again (used to inject last-second context).
	BeforeModelCallEvent struct {
		Retry bool
	}

	// AfterModelCallEvent fires once the stream aggregator has produced a
	// complete assistant Message for a model cycle. A callback may set
	// Retry to force the event loop to discard this cycle and re-issue the
	// model call.
	AfterModelCallEvent struct {
		Message    *agent.Message
		StopReason agent.StopReason
		Retry      bool
	}

	// BeforeToolsEvent fires once per model cycle that produced tool calls,
	// before any of them execute.
	BeforeToolsEvent struct {
		Message *agent.Message
	}

	// BeforeToolCallEvent fires once per tool call immediately before
	// execution, after the call has been resolved against the tool
	// registry: Tool is nil when ToolUse.Name isn't registered. A callback
	// may inspect Tool (its schema, description) before deciding whether to
	// set CancelTool to skip execution: a non-empty string becomes the tool
	// result text (as an error result); any other non-nil value is rendered
	// via fmt.Sprint.
	BeforeToolCallEvent struct {
		ToolUse     *agent.ToolUseBlock
		Tool        tools.Tool
		State       *agent.StateBag
		CancelTool  any
		cancelIsSet bool
	}

	// AfterToolCallEvent fires once per tool call after execution. A
	// callback may set Retry to force the tool sub-loop to re-execute this
	// call. Err is the tool's error, if any, prior to being rendered into
	// Result.
	AfterToolCallEvent struct {
		ToolUse *agent.ToolUseBlock
		Result  *agent.ToolResultBlock
		State   *agent.StateBag
		Err     error
		Retry   bool
	}

	// AfterToolsEvent fires once per model cycle after every tool call in
	// it has resolved (or the cycle paused on an interrupt).
	AfterToolsEvent struct {
		Message *agent.Message
	}

	// MessageAddedEvent fires every time a message is appended to the
	// conversation, whether produced by the model or synthesized from tool
	// results.
	MessageAddedEvent struct {
		Message *agent.Message
	}

	// AfterInvocationEvent fires once at the end of Invoke/Stream,
	// including when the invocation ends on an interrupt. State is the same
	// AgentState bag observed by BeforeInvocationEvent, reflecting whatever
	// mutations tool bodies made during the invocation.
	AfterInvocationEvent struct {
		State *agent.StateBag
	}

	// ModelStreamEventHookEvent fires for every raw StreamEvent the stream
	// aggregator passes through, before aggregation completes a block.
	ModelStreamEventHookEvent struct {
		Event agent.StreamEvent
	}

	// AgentInitializedEvent fires once when an Agent finishes construction.
	AgentInitializedEvent struct{}
)

// SetCancelTool marks a BeforeToolCallEvent as cancelling its tool call,
// with reason rendered into the synthesized tool result.
func (e *BeforeToolCallEvent) SetCancelTool(reason any) {
	e.CancelTool = reason
	e.cancelIsSet = true
}

// Cancelled reports whether a callback called SetCancelTool.
func (e *BeforeToolCallEvent) Cancelled() bool { return e.cancelIsSet }

type (
	// BeforeInvocationHook reacts to BeforeInvocationEvent.
	BeforeInvocationHook interface {
		OnBeforeInvocation(ctx context.Context, e *BeforeInvocationEvent) error
	}
	// BeforeModelCallHook reacts to BeforeModelCallEvent.
	BeforeModelCallHook interface {
		OnBeforeModelCall(ctx context.Context, e *BeforeModelCallEvent) error
	}
	// AfterModelCallHook reacts to AfterModelCallEvent.
	AfterModelCallHook interface {
		OnAfterModelCall(ctx context.Context, e *AfterModelCallEvent) error
	}
	// BeforeToolsHook reacts to BeforeToolsEvent.
	BeforeToolsHook interface {
		OnBeforeTools(ctx context.Context, e *BeforeToolsEvent) error
	}
	// BeforeToolCallHook reacts to BeforeToolCallEvent.
	BeforeToolCallHook interface {
		OnBeforeToolCall(ctx context.Context, e *BeforeToolCallEvent) error
	}
	// AfterToolCallHook reacts to AfterToolCallEvent.
	AfterToolCallHook interface {
		OnAfterToolCall(ctx context.Context, e *AfterToolCallEvent) error
	}
	// AfterToolsHook reacts to AfterToolsEvent.
	AfterToolsHook interface {
		OnAfterTools(ctx context.Context, e *AfterToolsEvent) error
	}
	// MessageAddedHook reacts to MessageAddedEvent.
	MessageAddedHook interface {
		OnMessageAdded(ctx context.Context, e *MessageAddedEvent) error
	}
	// AfterInvocationHook reacts to AfterInvocationEvent.
	AfterInvocationHook interface {
		OnAfterInvocation(ctx context.Context, e *AfterInvocationEvent) error
	}
	// ModelStreamEventHook reacts to ModelStreamEventHookEvent.
	ModelStreamEventHook interface {
		OnModelStreamEvent(ctx context.Context, e *ModelStreamEventHookEvent) error
	}
	// AgentInitializedHook reacts to AgentInitializedEvent.
	AgentInitializedHook interface {
		OnAgentInitialized(ctx context.Context, e *AgentInitializedEvent) error
	}
)

// Registration represents an active AddHook registration. Closing it
// removes the provider from the registry; Close is idempotent.
type Registration interface {
	Close() error
}

type entry struct {
	provider any
}

// Registry holds the providers registered for the lifetime of one Agent.
// Dispatch delivers each event to providers in registration order, stopping
// at the first error, mirroring the fan-out/fail-fast contract used
// elsewhere in the runtime for pub/sub delivery.
type Registry struct {
	mu      sync.RWMutex
	entries []*entry
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddHook registers provider. Any of the typed *Hook interfaces provider
// implements will be invoked by Dispatch for the matching event type.
// Providers implementing none of them are accepted but never called.
func (r *Registry) AddHook(provider any) Registration {
	e := &entry{provider: provider}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	return &registration{reg: r, entry: e}
}

type registration struct {
	reg   *Registry
	entry *entry
	once  sync.Once
}

func (reg *registration) Close() error {
	reg.once.Do(func() {
		reg.reg.mu.Lock()
		defer reg.reg.mu.Unlock()
		out := reg.reg.entries[:0:0]
		for _, e := range reg.reg.entries {
			if e != reg.entry {
				out = append(out, e)
			}
		}
		reg.reg.entries = out
	})
	return nil
}

func (r *Registry) snapshot() []any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]any, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.provider
	}
	return out
}

// Dispatch delivers event to every registered provider implementing the
// callback interface matching event's concrete type, in registration order,
// stopping at the first error a callback returns.
func Dispatch(ctx context.Context, r *Registry, event any) error {
	if r == nil {
		return nil
	}
	providers := r.snapshot()
	switch e := event.(type) {
	case *BeforeInvocationEvent:
		for _, p := range providers {
			if h, ok := p.(BeforeInvocationHook); ok {
				if err := h.OnBeforeInvocation(ctx, e); err != nil {
					return err
				}
			}
		}
	case *BeforeModelCallEvent:
		for _, p := range providers {
			if h, ok := p.(BeforeModelCallHook); ok {
				if err := h.OnBeforeModelCall(ctx, e); err != nil {
					return err
				}
			}
		}
	case *AfterModelCallEvent:
		for _, p := range providers {
			if h, ok := p.(AfterModelCallHook); ok {
				if err := h.OnAfterModelCall(ctx, e); err != nil {
					return err
				}
			}
		}
	case *BeforeToolsEvent:
		for _, p := range providers {
			if h, ok := p.(BeforeToolsHook); ok {
				if err := h.OnBeforeTools(ctx, e); err != nil {
					return err
				}
			}
		}
	case *BeforeToolCallEvent:
		for _, p := range providers {
			if h, ok := p.(BeforeToolCallHook); ok {
				if err := h.OnBeforeToolCall(ctx, e); err != nil {
					return err
				}
			}
		}
	case *AfterToolCallEvent:
		for _, p := range providers {
			if h, ok := p.(AfterToolCallHook); ok {
				if err := h.OnAfterToolCall(ctx, e); err != nil {
					return err
				}
			}
		}
	case *AfterToolsEvent:
		for _, p := range providers {
			if h, ok := p.(AfterToolsHook); ok {
				if err := h.OnAfterTools(ctx, e); err != nil {
					return err
				}
			}
		}
	case *MessageAddedEvent:
		for _, p := range providers {
			if h, ok := p.(MessageAddedHook); ok {
				if err := h.OnMessageAdded(ctx, e); err != nil {
					return err
				}
			}
		}
	case *AfterInvocationEvent:
		for _, p := range providers {
			if h, ok := p.(AfterInvocationHook); ok {
				if err := h.OnAfterInvocation(ctx, e); err != nil {
					return err
				}
			}
		}
	case *ModelStreamEventHookEvent:
		for _, p := range providers {
			if h, ok := p.(ModelStreamEventHook); ok {
				if err := h.OnModelStreamEvent(ctx, e); err != nil {
					return err
				}
			}
		}
	case *AgentInitializedEvent:
		for _, p := range providers {
			if h, ok := p.(AgentInitializedHook); ok {
				if err := h.OnAgentInitialized(ctx, e); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
