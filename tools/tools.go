// Package tools implements the tool registry and contract (component C4):
// the name-to-implementation map the tool sub-loop consults, the JSON Schema
// validation applied to tool input before a call executes, and the
// synthetic structured-output tool used to force a final typed answer out
// of a model.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentrt/agentrt/agent"
)

// Tool is the contract every tool implementation satisfies. InputSchema
// returns a JSON-Schema-compatible value (map[string]any or a struct that
// marshals to one); a nil InputSchema disables input validation for that
// tool. Stream receives the already-validated, already-unmarshaled input and
// a ToolContext bound to this call, and returns a ToolStream: an iterator of
// tool-defined progress events the sub-loop forwards to the outer event
// stream, and a final toolResult block once the body completes.
type Tool interface {
	Name() string
	Description() string
	InputSchema() any
	Stream(ctx context.Context, tc ToolContext, input any) (ToolStream, error)
}

// AgentHandle is the narrow facade over the owning agent a tool body may
// reach through ToolContext.Agent. It is declared here, not in package
// engine, so that tools never imports engine — engine already imports
// tools, and a dependency the other way would cycle. *engine.Agent
// satisfies this interface.
type AgentHandle interface {
	// Tools returns the registry the owning agent consults for calls.
	Tools() *Registry
	// State returns the agent's AgentState bag: mutations a tool makes are
	// observable to subsequent tools in the same invocation and persisted
	// alongside the session snapshot, never sent to the model.
	State() *agent.StateBag
}

// ToolContext is handed to a tool body on every call (spec.md §4.6.f
// "construct a ToolContext{toolUse, agent, interrupt()}"): the resolved
// call it is responding to, a handle on the owning agent, and a closure
// bound to this call's interrupt state. Calling Interrupt either returns a
// previously supplied response or returns a *interrupt.Signal error the
// tool body must propagate unchanged (typically by returning it) to pause
// the invocation.
type ToolContext struct {
	ToolUse   *agent.ToolUseBlock
	Agent     AgentHandle
	Interrupt func(name, reason string) (any, error)
}

// Func adapts a plain, non-streaming function into a Tool, the common case
// for tools with no progress events of their own: its body runs to
// completion and returns the content blocks to render into a toolResult.
type Func struct {
	ToolName        string
	ToolDescription string
	Schema          any
	Fn              func(ctx context.Context, tc ToolContext, input any) ([]agent.ToolResultContent, error)
}

func (f *Func) Name() string        { return f.ToolName }
func (f *Func) Description() string { return f.ToolDescription }
func (f *Func) InputSchema() any    { return f.Schema }

// Stream adapts Fn into the ToolStream contract via StreamFunc: Fn never
// emits progress events of its own, only a final result or error.
func (f *Func) Stream(ctx context.Context, tc ToolContext, input any) (ToolStream, error) {
	return StreamFunc(ctx, func(ctx context.Context, _ func(agent.ToolStreamEvent)) (*agent.ToolResultBlock, error) {
		content, err := f.Fn(ctx, tc, input)
		if err != nil {
			return nil, err
		}
		return &agent.ToolResultBlock{ToolUseID: tc.ToolUse.ToolUseID, Status: agent.ToolResultStatusSuccess, Content: content}, nil
	}), nil
}

// Registry is a thread-safe name-to-Tool map. Registration order is
// preserved by Values so ToolSpecs presented to a Model stay deterministic
// across calls.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Add registers t, replacing any existing tool with the same name while
// preserving that name's position in registration order.
func (r *Registry) Add(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// AddAll registers every tool in ts.
func (r *Registry) AddAll(ts ...Tool) {
	for _, t := range ts {
		r.Add(t)
	}
}

// Remove unregisters the tool named name, if present.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Find returns the tool registered under name, if any.
func (r *Registry) Find(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Values returns every registered tool in registration order.
func (r *Registry) Values() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.tools[n])
	}
	return out
}

// Specs renders the registry into the ToolSpec slice a Model expects.
func (r *Registry) Specs() []agent.ToolSpec {
	values := r.Values()
	out := make([]agent.ToolSpec, 0, len(values))
	for _, t := range values {
		out = append(out, agent.ToolSpec{Name: t.Name(), Description: t.Description(), InputSchema: t.InputSchema()})
	}
	return out
}

// ValidateInput validates input (already JSON-decoded into a generic
// any) against schema. A nil schema always validates. Validation failures
// are returned as-is; callers wrap them in *agent.InvalidToolInputError.
func ValidateInput(schema any, input any) error {
	if schema == nil {
		return nil
	}
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("tools: marshal schema: %w", err)
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return fmt.Errorf("tools: unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return fmt.Errorf("tools: add schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("tools: compile schema: %w", err)
	}
	return compiled.Validate(input)
}

// structuredOutputToolName is the reserved name under which the
// event loop registers the synthetic structured-output tool for the
// duration of a single forcing attempt.
const structuredOutputToolName = "__structured_output__"

// NewStructuredOutputTool builds the synthetic tool the event loop registers
// when a caller requests a forced structured final answer. Its body always
// succeeds (schema validation has already happened via ValidateInput before
// the call reaches here, in the tool sub-loop's usual path); its body simply
// records the validated payload into captured.
func NewStructuredOutputTool(schema any, captured *any) Tool {
	return &Func{
		ToolName:        structuredOutputToolName,
		ToolDescription: "Provide the final structured answer for this invocation.",
		Schema:          schema,
		Fn: func(_ context.Context, _ ToolContext, input any) ([]agent.ToolResultContent, error) {
			*captured = input
			return []agent.ToolResultContent{agent.TextResultContent{Text: "recorded"}}, nil
		},
	}
}

// StructuredOutputToolName reports the reserved tool name used by
// NewStructuredOutputTool, so callers can recognize it in hooks or logs.
func StructuredOutputToolName() string { return structuredOutputToolName }
