// Package engine implements the agent event loop (component C7) on top of
// the hook, interrupt, tool, and stream packages, along with the
// conversation-manager (C8) and session-sync (C9) collaborator contracts
// that plug into it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/agentrt/agentrt/agent"
	"github.com/agentrt/agentrt/hooks"
	"github.com/agentrt/agentrt/interrupt"
	"github.com/agentrt/agentrt/persistence"
	"github.com/agentrt/agentrt/stream"
	"github.com/agentrt/agentrt/telemetry"
	"github.com/agentrt/agentrt/toolloop"
	"github.com/agentrt/agentrt/tools"
)

type (
	// InvokeResult is the outcome of a single Invoke or a drained Stream.
	InvokeResult struct {
		// Messages is the full conversation, including every message this
		// invocation appended.
		Messages []*agent.Message
		// StopReason is StopReasonInterrupt when Interrupt is non-nil,
		// otherwise the terminal StopReason of the last model cycle.
		StopReason agent.StopReason
		// Interrupt is set when the invocation paused on a raised
		// interrupt rather than completing a turn.
		Interrupt *interrupt.Signal
		// StructuredOutput carries the validated payload captured by the
		// structured-output tool, when the invocation requested one.
		StructuredOutput any
		// Metrics aggregates usage across every model cycle in this
		// invocation.
		Metrics agent.Metrics
	}

	// Agent is the event-loop orchestrator: it drives Model cycles,
	// aggregates their streams, hands tool calls to the tool sub-loop, and
	// dispatches hooks around each step. One Agent serializes its own
	// invocations; concurrent Invoke/Stream calls on the same Agent fail
	// with *agent.ConcurrentInvocationError.
	Agent struct {
		model                agent.Model
		tools                *tools.Registry
		hooks                *hooks.Registry
		interruptState       *interrupt.State
		state                *agent.StateBag
		conversationManager  ConversationManager
		sessionSync          persistence.SessionSync
		logger               telemetry.Logger
		metrics              telemetry.Metrics
		tracer               telemetry.Tracer
		systemPrompt         any
		structuredOutputSpec any

		invoking atomic.Bool
	}

	// Option configures an Agent at construction time.
	Option func(*Agent)
)

// WithTools attaches the tool registry an Agent consults for tool calls.
func WithTools(r *tools.Registry) Option { return func(a *Agent) { a.tools = r } }

// WithHooks attaches the hook registry an Agent dispatches lifecycle events
// through.
func WithHooks(r *hooks.Registry) Option { return func(a *Agent) { a.hooks = r } }

// WithConversationManager attaches a ConversationManager; without one, the
// conversation is never trimmed.
func WithConversationManager(m ConversationManager) Option {
	return func(a *Agent) { a.conversationManager = m }
}

// WithSessionSync attaches a persistence.SessionSync; without one, Invoke
// and Stream never load or save session snapshots, and a call that passes
// WithSession fails with *agent.SessionError.
func WithSessionSync(s persistence.SessionSync) Option { return func(a *Agent) { a.sessionSync = s } }

// WithSystemPrompt sets the system prompt forwarded to the model on every
// cycle.
func WithSystemPrompt(prompt any) Option { return func(a *Agent) { a.systemPrompt = prompt } }

// WithStructuredOutputSchema requests that the invocation end with a call
// to the synthetic structured-output tool validated against schema. If the
// model ends its turn without calling it, the Agent makes one forced
// follow-up cycle constraining tool choice to that tool.
func WithStructuredOutputSchema(schema any) Option {
	return func(a *Agent) { a.structuredOutputSpec = schema }
}

// WithLogger overrides the Logger used for this Agent's telemetry.
func WithLogger(l telemetry.Logger) Option { return func(a *Agent) { a.logger = l } }

// WithMetrics overrides the Metrics recorder used for this Agent's telemetry.
func WithMetrics(m telemetry.Metrics) Option { return func(a *Agent) { a.metrics = m } }

// WithTracer overrides the Tracer used for this Agent's telemetry.
func WithTracer(t telemetry.Tracer) Option { return func(a *Agent) { a.tracer = t } }

// New constructs an Agent around model. Options configure everything else;
// an Agent with no WithTools option has an empty tool registry, and one
// with no WithHooks option has an empty hook registry, not nil ones.
func New(model agent.Model, opts ...Option) (*Agent, error) {
	if model == nil {
		return nil, &agent.ConfigurationError{Reason: "model is required"}
	}
	a := &Agent{
		tools:          tools.NewRegistry(),
		hooks:          hooks.NewRegistry(),
		interruptState: interrupt.NewState(),
		state:          agent.NewStateBag(),
		logger:         telemetry.DefaultLogger(),
		metrics:        telemetry.DefaultMetrics(),
		tracer:         telemetry.DefaultTracer(),
		model:          model,
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := hooks.Dispatch(context.Background(), a.hooks, &hooks.AgentInitializedEvent{}); err != nil {
		return nil, err
	}
	return a, nil
}

// Tools returns the registry this Agent consults for tool calls, satisfying
// tools.AgentHandle so tool bodies can reach it through ToolContext.Agent.
func (a *Agent) Tools() *tools.Registry { return a.tools }

// State returns this Agent's AgentState bag, satisfying tools.AgentHandle so
// tool bodies and hooks can read and mutate it through ToolContext.Agent and
// the hook events that carry it.
func (a *Agent) State() *agent.StateBag { return a.state }

type (
	// InvokeOption configures a single Invoke or Stream call.
	InvokeOption func(*invokeConfig)

	invokeConfig struct {
		sessionID          string
		scope              string
		interruptResponses []InterruptResponse
	}

	// InterruptResponse pairs a previously raised interrupt's ID with the
	// response to resume it with (spec.md §4.3 `resume(args)`, §6 "a list
	// of interrupt responses"). ID is the exact value reported on
	// InvokeResult.Interrupt.ID by the call that raised it.
	InterruptResponse struct {
		ID       string
		Response any
	}
)

// WithSession scopes this call to a persisted session: the conversation is
// loaded from sessionSync before the first model cycle and saved after the
// invocation ends (whether by completing a turn or pausing on an
// interrupt).
func WithSession(sessionID, scope string) InvokeOption {
	return func(c *invokeConfig) { c.sessionID, c.scope = sessionID, scope }
}

// WithInterruptResponses resumes previously raised interrupts before the
// event loop's first cycle of this call: each response is matched by ID to
// its stored interrupt and the interrupt state is activated, so the next
// time a tool body's bound Interrupt(name, reason) reaches that checkpoint
// it returns the supplied response instead of pausing again. Responses for
// unknown IDs are ignored, matching interrupt.State.Resume.
func WithInterruptResponses(responses ...InterruptResponse) InvokeOption {
	return func(c *invokeConfig) {
		c.interruptResponses = append(c.interruptResponses, responses...)
	}
}

// Invoke runs the event loop to completion (a finished turn or a raised
// interrupt) and returns the result. messages are appended to any session
// history loaded via WithSession.
func (a *Agent) Invoke(ctx context.Context, messages []*agent.Message, opts ...InvokeOption) (*InvokeResult, error) {
	if !a.invoking.CompareAndSwap(false, true) {
		return nil, &agent.ConcurrentInvocationError{}
	}
	defer a.invoking.Store(false)
	return a.run(ctx, messages, opts, nil)
}

// EventStream is a pull-based source of raw StreamEvent values forwarded
// from every model cycle of a Stream call, mirroring agent.ModelStream's
// Recv/Close contract. Call Result after Recv returns io.EOF.
type EventStream interface {
	Recv() (agent.StreamEvent, error)
	Close() error
	Result() (*InvokeResult, error)
}

type eventStream struct {
	events chan agent.StreamEvent
	cancel context.CancelFunc
	result *InvokeResult
	err    error
}

func (es *eventStream) Recv() (agent.StreamEvent, error) {
	ev, ok := <-es.events
	if !ok {
		if es.err != nil {
			return nil, es.err
		}
		return nil, io.EOF
	}
	return ev, nil
}

func (es *eventStream) Close() error {
	es.cancel()
	return nil
}

func (es *eventStream) Result() (*InvokeResult, error) { return es.result, es.err }

// Stream runs the event loop like Invoke but forwards every StreamEvent
// from every model cycle to the returned EventStream as it happens, for
// callers that want to render output incrementally.
func (a *Agent) Stream(ctx context.Context, messages []*agent.Message, opts ...InvokeOption) (EventStream, error) {
	if !a.invoking.CompareAndSwap(false, true) {
		return nil, &agent.ConcurrentInvocationError{}
	}
	ctx, cancel := context.WithCancel(ctx)
	es := &eventStream{events: make(chan agent.StreamEvent, 16), cancel: cancel}
	go func() {
		defer a.invoking.Store(false)
		defer close(es.events)
		forward := func(ev agent.StreamEvent) {
			select {
			case es.events <- ev:
			case <-ctx.Done():
			}
		}
		es.result, es.err = a.run(ctx, messages, opts, forward)
	}()
	return es, nil
}

const maxForcedStructuredAttempts = 1

func (a *Agent) run(ctx context.Context, newMessages []*agent.Message, opts []InvokeOption, forward func(agent.StreamEvent)) (*InvokeResult, error) {
	cfg := &invokeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, span := a.tracer.Start(ctx, "agent.invoke")
	defer span.End()

	conversation, err := a.loadConversation(ctx, cfg, newMessages)
	if err != nil {
		return nil, err
	}

	for _, r := range cfg.interruptResponses {
		a.interruptState.Resume(r.ID, r.Response)
	}
	if len(cfg.interruptResponses) > 0 {
		a.interruptState.Activate()
	}

	if err := hooks.Dispatch(ctx, a.hooks, &hooks.BeforeInvocationEvent{State: a.state}); err != nil {
		return nil, err
	}

	var (
		totalMetrics      agent.Metrics
		structuredOutput  any
		forcedAttempts    int
		finalStopReason   agent.StopReason
		interruptedSignal *interrupt.Signal
	)

cycles:
	for {
		before := &hooks.BeforeModelCallEvent{}
		if err := hooks.Dispatch(ctx, a.hooks, before); err != nil {
			return nil, err
		}
		if before.Retry {
			continue cycles
		}

		toolsRegistry := a.tools
		forceStructured := a.structuredOutputSpec != nil && forcedAttempts > 0
		if forceStructured {
			toolsRegistry = a.cloneToolsWithStructuredOutput(&structuredOutput)
		}

		modelOpts := agent.ModelOptions{
			SystemPrompt: a.systemPrompt,
			ToolSpecs:    toolsRegistry.Specs(),
		}
		if forceStructured {
			modelOpts.ToolChoice = &agent.ToolChoice{Mode: agent.ToolChoiceTool, Name: tools.StructuredOutputToolName()}
		}

		sent := conversation
		if a.conversationManager != nil {
			sent = a.conversationManager.Trim(conversation)
		}

		cycleStart := time.Now()
		modelStream, err := a.model.Stream(ctx, sent, modelOpts)
		if err != nil {
			return nil, err
		}

		agg := stream.New(modelStream)
		for {
			ev, err := agg.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				_ = agg.Close()
				return nil, err
			}
			if forward != nil {
				forward(ev)
			}
			if err := hooks.Dispatch(ctx, a.hooks, &hooks.ModelStreamEventHookEvent{Event: ev}); err != nil {
				_ = agg.Close()
				return nil, err
			}
		}
		message, stopReason, cycleMetrics, err := agg.Result()
		_ = agg.Close()
		if err != nil {
			return nil, err
		}
		if cycleMetrics != nil {
			totalMetrics.Usage.InputTokens += cycleMetrics.Usage.InputTokens
			totalMetrics.Usage.OutputTokens += cycleMetrics.Usage.OutputTokens
			totalMetrics.Usage.TotalTokens += cycleMetrics.Usage.TotalTokens
			totalMetrics.Usage.CacheReadTokens += cycleMetrics.Usage.CacheReadTokens
			totalMetrics.Usage.CacheWriteTokens += cycleMetrics.Usage.CacheWriteTokens
		}
		totalMetrics.LatencyMs += time.Since(cycleStart).Milliseconds()

		after := &hooks.AfterModelCallEvent{Message: message, StopReason: stopReason}
		if err := hooks.Dispatch(ctx, a.hooks, after); err != nil {
			return nil, err
		}
		if after.Retry {
			continue cycles
		}

		conversation = append(conversation, message)
		if err := hooks.Dispatch(ctx, a.hooks, &hooks.MessageAddedEvent{Message: message}); err != nil {
			return nil, err
		}

		switch stopReason {
		case agent.StopReasonToolUse:
			result, err := toolloop.Run(ctx, message, toolsRegistry, a.hooks, a.interruptState, a, forward)
			if err != nil {
				return nil, err
			}
			conversation = append(conversation, result.Message)
			if err := hooks.Dispatch(ctx, a.hooks, &hooks.MessageAddedEvent{Message: result.Message}); err != nil {
				return nil, err
			}
			if result.Interrupted != nil {
				interruptedSignal = result.Interrupted
				finalStopReason = agent.StopReasonInterrupt
				break cycles
			}
			if forceStructured && structuredOutput != nil {
				finalStopReason = agent.StopReasonEndTurn
				break cycles
			}
			continue cycles
		case agent.StopReasonEndTurn:
			if a.structuredOutputSpec != nil && structuredOutput == nil {
				if forcedAttempts >= maxForcedStructuredAttempts {
					return nil, &agent.StructuredOutputError{Reason: "model did not produce structured output after forced attempt"}
				}
				forcedAttempts++
				continue cycles
			}
			finalStopReason = stopReason
			break cycles
		default:
			finalStopReason = stopReason
			break cycles
		}
	}

	if err := a.saveConversation(ctx, cfg, conversation, finalStopReason); err != nil {
		return nil, err
	}

	if err := hooks.Dispatch(ctx, a.hooks, &hooks.AfterInvocationEvent{State: a.state}); err != nil {
		return nil, err
	}

	return &InvokeResult{
		Messages:         conversation,
		StopReason:       finalStopReason,
		Interrupt:        interruptedSignal,
		StructuredOutput: structuredOutput,
		Metrics:          totalMetrics,
	}, nil
}

// cloneToolsWithStructuredOutput returns a registry containing every tool in
// a.tools plus the synthetic structured-output tool, without mutating
// a.tools, so the forcing attempt never leaks the synthetic tool into
// subsequent invocations.
func (a *Agent) cloneToolsWithStructuredOutput(captured *any) *tools.Registry {
	r := tools.NewRegistry()
	r.AddAll(a.tools.Values()...)
	r.Add(tools.NewStructuredOutputTool(a.structuredOutputSpec, captured))
	return r
}

func (a *Agent) loadConversation(ctx context.Context, cfg *invokeConfig, newMessages []*agent.Message) ([]*agent.Message, error) {
	if cfg.sessionID == "" {
		return append([]*agent.Message{}, newMessages...), nil
	}
	if a.sessionSync == nil {
		return nil, &agent.SessionError{Reason: "WithSession used without a SessionSync configured"}
	}
	if !persistence.ValidID(cfg.sessionID) || !persistence.ValidID(cfg.scope) {
		return nil, &agent.SessionError{Reason: fmt.Sprintf("invalid sessionId/scope %q/%q", cfg.sessionID, cfg.scope)}
	}
	snap, err := a.sessionSync.Load(ctx, cfg.sessionID, cfg.scope)
	if errors.Is(err, persistence.ErrSnapshotNotFound) {
		return append([]*agent.Message{}, newMessages...), nil
	}
	if err != nil {
		return nil, &agent.SessionError{Reason: "load session snapshot", Err: err}
	}
	a.restoreInterruptState(snap)
	a.state.Restore(snap.AgentState)

	conversation := snap.Messages
	if a.conversationManager != nil {
		prepend := a.conversationManager.RestoreFromSession(snap.ConversationManagerState)
		if len(prepend) > 0 {
			conversation = append(append([]*agent.Message{}, prepend...), conversation...)
		}
	}
	return append(conversation, newMessages...), nil
}

func (a *Agent) restoreInterruptState(snap *persistence.Snapshot) {
	for id, rec := range snap.InterruptState.Interrupts {
		a.interruptState.Resume(id, rec.Response)
	}
	if snap.InterruptState.Activated {
		a.interruptState.Activate()
	}
	for k, v := range snap.InterruptState.Context {
		a.interruptState.Context[k] = v
	}
}

func (a *Agent) saveConversation(ctx context.Context, cfg *invokeConfig, conversation []*agent.Message, stopReason agent.StopReason) error {
	if cfg.sessionID == "" || a.sessionSync == nil {
		return nil
	}
	snap := &persistence.Snapshot{
		SchemaVersion: persistence.SchemaVersion,
		Messages:      conversation,
		AgentState:    a.state.Snapshot(),
	}
	if a.conversationManager != nil {
		snap.ConversationManagerState = a.conversationManager.GetState()
	}
	interrupts := a.interruptState.Interrupts()
	records := make(map[string]persistence.InterruptRecord, len(interrupts))
	for id, it := range interrupts {
		records[id] = persistence.InterruptRecord{ID: it.ID, Name: it.Name, Reason: it.Reason, Response: it.Response}
	}
	snap.InterruptState = persistence.InterruptSnapshot{
		Interrupts: records,
		Context:    a.interruptState.Context,
		Activated:  stopReason == agent.StopReasonInterrupt,
	}
	if err := a.sessionSync.Save(ctx, cfg.sessionID, cfg.scope, snap); err != nil {
		return &agent.SessionError{Reason: "save session snapshot", Err: err}
	}
	return nil
}
