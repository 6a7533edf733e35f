// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// agent.Model contract. It is a thin side-car: nothing under the core
// packages (agent, hooks, interrupt, tools, stream, toolloop, engine,
// persistence) imports it, and it imports nothing from them but agent
// itself.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentrt/agentrt/agent"
)

// Config configures a Provider.
type Config struct {
	// APIKey authenticates against the Anthropic API (required).
	APIKey string

	// BaseURL overrides the default API base URL.
	BaseURL string

	// Model is used when the caller's ModelOptions don't carry one of
	// their own; the agent.Model contract has no per-call model field, so
	// this is the only model selector the adapter exposes.
	Model string
}

// Provider implements agent.Model over the Anthropic Messages API.
type Provider struct {
	client anthropic.Client
	model  string
}

// New constructs a Provider from cfg.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{client: anthropic.NewClient(opts...), model: model}, nil
}

// Stream implements agent.Model.
func (p *Provider) Stream(ctx context.Context, messages []*agent.Message, opts agent.ModelOptions) (agent.ModelStream, error) {
	params, err := p.buildParams(messages, opts)
	if err != nil {
		return nil, err
	}
	stream := p.client.Messages.NewStreaming(ctx, params)
	return &modelStream{stream: stream, model: p.model}, nil
}

func (p *Provider) buildParams(messages []*agent.Message, opts agent.ModelOptions) (anthropic.MessageNewParams, error) {
	converted, err := convertMessages(messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		Messages:  converted,
		MaxTokens: 4096,
	}
	if sys, ok := systemPromptText(opts.SystemPrompt); ok {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}
	if len(opts.ToolSpecs) > 0 {
		tools, err := convertToolSpecs(opts.ToolSpecs)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	if opts.ToolChoice != nil {
		tc, err := convertToolChoice(*opts.ToolChoice)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.ToolChoice = tc
	}
	return params, nil
}

func systemPromptText(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		if t == "" {
			return "", false
		}
		return t, true
	default:
		return fmt.Sprint(t), true
	}
}

func convertMessages(messages []*agent.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion
		for _, block := range msg.Content {
			switch b := block.(type) {
			case agent.TextBlock:
				content = append(content, anthropic.NewTextBlock(b.Text))
			case agent.ToolUseBlock:
				content = append(content, anthropic.NewToolUseBlock(b.ToolUseID, b.Input, b.Name))
			case agent.ToolResultBlock:
				blk, err := convertToolResult(b)
				if err != nil {
					return nil, err
				}
				content = append(content, blk)
			case agent.ReasoningBlock:
				// Anthropic only accepts back thinking blocks it issued
				// itself with a matching signature; anything without one
				// is dropped rather than sent malformed.
				if b.Signature != "" {
					content = append(content, anthropic.NewThinkingBlock(b.Signature, b.Text))
				}
			case agent.CachePointBlock:
				// Opaque to the core; this adapter has no cache-control
				// mapping for it yet, so it is forwarded as a no-op.
			default:
				return nil, fmt.Errorf("anthropic: unsupported content block %T", block)
			}
		}
		role := anthropic.MessageParamRoleUser
		if msg.Role == agent.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		result = append(result, anthropic.MessageParam{Role: role, Content: content})
	}
	return result, nil
}

func convertToolResult(b agent.ToolResultBlock) (anthropic.ContentBlockParamUnion, error) {
	var text strings.Builder
	for _, c := range b.Content {
		switch v := c.(type) {
		case agent.TextResultContent:
			text.WriteString(v.Text)
		case agent.JSONResultContent:
			data, err := json.Marshal(v.Value)
			if err != nil {
				return anthropic.ContentBlockParamUnion{}, fmt.Errorf("anthropic: encode tool result content: %w", err)
			}
			text.Write(data)
		default:
			return anthropic.ContentBlockParamUnion{}, fmt.Errorf("anthropic: unsupported tool result content %T", c)
		}
	}
	return anthropic.NewToolResultBlock(b.ToolUseID, text.String(), b.Status == agent.ToolResultStatusError), nil
}

func convertToolSpecs(specs []agent.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		schemaJSON, err := json.Marshal(spec.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: encode schema for %s: %w", spec.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(schemaJSON, &schema); err != nil {
			return nil, fmt.Errorf("anthropic: invalid schema for %s: %w", spec.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("anthropic: missing tool definition for %s", spec.Name)
		}
		toolParam.OfTool.Description = anthropic.String(spec.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

func convertToolChoice(tc agent.ToolChoice) (anthropic.ToolChoiceUnionParam, error) {
	switch tc.Mode {
	case agent.ToolChoiceAuto:
		return anthropic.ToolChoiceParamOfAuto(), nil
	case agent.ToolChoiceAny:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}, nil
	case agent.ToolChoiceTool:
		if tc.Name == "" {
			return anthropic.ToolChoiceUnionParam{}, errors.New("anthropic: tool choice requires a tool name")
		}
		return anthropic.ToolChoiceParamOfTool(tc.Name), nil
	default:
		return anthropic.ToolChoiceUnionParam{}, fmt.Errorf("anthropic: unknown tool choice mode %q", tc.Mode)
	}
}

// modelStream adapts ssestream.Stream[anthropic.MessageStreamEventUnion] to
// agent.ModelStream, translating Anthropic's event shapes one at a time as
// they are pulled, never buffering the whole response.
type modelStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	model  string

	pendingStopReason agent.StopReason
	usage             agent.TokenUsage
}

// Recv implements agent.ModelStream.
func (m *modelStream) Recv() (agent.StreamEvent, error) {
	for {
		if !m.stream.Next() {
			if err := m.stream.Err(); err != nil {
				return nil, wrapError(err, m.model)
			}
			return nil, io.EOF
		}
		ev, ok, err := m.translate(m.stream.Current())
		if err != nil {
			return nil, err
		}
		if ok {
			return ev, nil
		}
		// Event carried no translatable payload (e.g. a ping); pull again.
	}
}

// Close implements agent.ModelStream.
func (m *modelStream) Close() error {
	return m.stream.Close()
}

func (m *modelStream) translate(event anthropic.MessageStreamEventUnion) (agent.StreamEvent, bool, error) {
	switch event.Type {
	case "message_start":
		start := event.AsMessageStart()
		m.usage.InputTokens = int(start.Message.Usage.InputTokens)
		m.usage.CacheReadTokens = int(start.Message.Usage.CacheReadInputTokens)
		m.usage.CacheWriteTokens = int(start.Message.Usage.CacheCreationInputTokens)
		role := agent.RoleAssistant
		return agent.MessageStartEvent{Role: role}, true, nil

	case "content_block_start":
		cbs := event.AsContentBlockStart()
		out := agent.ContentBlockStartEvent{Index: int(cbs.Index)}
		if cbs.ContentBlock.Type == "tool_use" {
			tu := cbs.ContentBlock.AsToolUse()
			out.Start = &agent.ToolUseStart{ToolUseID: tu.ID, Name: tu.Name}
		}
		return out, true, nil

	case "content_block_delta":
		cbd := event.AsContentBlockDelta()
		delta, ok := translateDelta(cbd.Delta)
		if !ok {
			return nil, false, nil
		}
		return agent.ContentBlockDeltaEvent{Index: int(cbd.Index), Delta: delta}, true, nil

	case "content_block_stop":
		cbs := event.AsContentBlockStop()
		return agent.ContentBlockStopEvent{Index: int(cbs.Index)}, true, nil

	case "message_delta":
		md := event.AsMessageDelta()
		m.usage.OutputTokens = int(md.Usage.OutputTokens)
		m.pendingStopReason = mapStopReason(string(md.Delta.StopReason))
		usage := m.usage
		return agent.MetadataEvent{Usage: &usage}, true, nil

	case "message_stop":
		reason := m.pendingStopReason
		if reason == "" {
			reason = agent.StopReasonEndTurn
		}
		return agent.MessageStopEvent{StopReason: reason}, true, nil

	case "ping":
		return nil, false, nil

	default:
		return nil, false, nil
	}
}

func translateDelta(delta anthropic.RawContentBlockDeltaUnion) (agent.Delta, bool) {
	switch delta.Type {
	case "text_delta":
		return agent.TextDelta{Text: delta.Text}, true
	case "input_json_delta":
		return agent.ToolUseInputDelta{Input: delta.PartialJSON}, true
	case "thinking_delta":
		return agent.ReasoningDelta{Text: delta.Thinking}, true
	case "signature_delta":
		return agent.ReasoningDelta{Signature: delta.Signature}, true
	default:
		return nil, false
	}
}

func mapStopReason(reason string) agent.StopReason {
	switch reason {
	case "end_turn":
		return agent.StopReasonEndTurn
	case "tool_use":
		return agent.StopReasonToolUse
	case "max_tokens":
		return agent.StopReasonMaxTokens
	case "stop_sequence":
		return agent.StopReasonStopSequence
	case "refusal":
		return agent.StopReasonContentFiltered
	case "pause_turn":
		return agent.StopReasonEndTurn
	default:
		return agent.StopReasonEndTurn
	}
}

type errorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// wrapError classifies an Anthropic SDK error into the core error taxonomy
// where it maps cleanly, and otherwise wraps it opaquely.
func wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("anthropic: stream error (model %s): %w", model, err)
	}

	var payload errorPayload
	_ = json.Unmarshal([]byte(apiErr.RawJSON()), &payload)

	switch payload.Error.Type {
	case "rate_limit_error":
		return &agent.ModelThrottledError{Err: apiErr}
	case "invalid_request_error":
		if strings.Contains(strings.ToLower(payload.Error.Message), "too long") ||
			strings.Contains(strings.ToLower(payload.Error.Message), "too many tokens") {
			return &agent.ContextWindowOverflowError{Err: apiErr}
		}
	}
	if apiErr.StatusCode == 429 {
		return &agent.ModelThrottledError{Err: apiErr}
	}
	return fmt.Errorf("anthropic: request failed (model %s): %w", model, apiErr)
}
