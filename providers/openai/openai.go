// Package openai adapts github.com/openai/openai-go's Responses API to the
// agent.Model contract. Like providers/anthropic it is a thin side-car: the
// core module never imports it.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/responses"

	"github.com/agentrt/agentrt/agent"
)

// Config configures a Provider.
type Config struct {
	// APIKey authenticates against the OpenAI API (required).
	APIKey string

	// BaseURL overrides the default API base URL.
	BaseURL string

	// Model selects the Responses API model. Defaults to "gpt-4o" when
	// empty.
	Model string
}

// Provider implements agent.Model over the OpenAI Responses API.
type Provider struct {
	client openai.Client
	model  string
}

// New constructs a Provider from cfg.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{client: openai.NewClient(opts...), model: model}, nil
}

// Stream implements agent.Model.
func (p *Provider) Stream(ctx context.Context, messages []*agent.Message, opts agent.ModelOptions) (agent.ModelStream, error) {
	params, err := p.buildParams(messages, opts)
	if err != nil {
		return nil, err
	}
	stream := p.client.Responses.NewStreaming(ctx, params)
	return &modelStream{stream: stream, model: p.model, blockIndex: map[string]int{}}, nil
}

func (p *Provider) buildParams(messages []*agent.Message, opts agent.ModelOptions) (responses.ResponseNewParams, error) {
	items, err := convertMessages(messages, opts.SystemPrompt)
	if err != nil {
		return responses.ResponseNewParams{}, err
	}
	params := responses.ResponseNewParams{
		Model: p.model,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: items},
		Store: openai.Bool(false),
	}
	toolSpecs := opts.ToolSpecs
	if opts.ToolChoice != nil && opts.ToolChoice.Mode == agent.ToolChoiceTool {
		// The Responses API has no named-function ToolChoice value; force
		// a single tool by narrowing the visible tool list and requiring
		// a call, mirroring how the Chat Completions callers in the
		// surrounding ecosystem emulate ToolChoiceTool.
		toolSpecs = filterToolSpec(toolSpecs, opts.ToolChoice.Name)
	}
	if len(toolSpecs) > 0 {
		tools, err := convertToolSpecs(toolSpecs)
		if err != nil {
			return responses.ResponseNewParams{}, err
		}
		params.Tools = tools
	}
	if opts.ToolChoice != nil {
		params.ToolChoice = convertToolChoice(*opts.ToolChoice)
	}
	return params, nil
}

func filterToolSpec(specs []agent.ToolSpec, name string) []agent.ToolSpec {
	for _, s := range specs {
		if s.Name == name {
			return []agent.ToolSpec{s}
		}
	}
	return specs
}

func convertMessages(messages []*agent.Message, systemPrompt any) (responses.ResponseInputParam, error) {
	items := make(responses.ResponseInputParam, 0, len(messages)+1)
	if sys, ok := systemPromptText(systemPrompt); ok {
		items = append(items, responses.ResponseInputItemParamOfMessage(sys, responses.EasyInputMessageRoleDeveloper))
	}
	for _, msg := range messages {
		role := responses.EasyInputMessageRoleUser
		if msg.Role == agent.RoleAssistant {
			role = responses.EasyInputMessageRoleAssistant
		}
		var text strings.Builder
		for _, block := range msg.Content {
			switch b := block.(type) {
			case agent.TextBlock:
				text.WriteString(b.Text)
			case agent.ToolUseBlock:
				input, err := json.Marshal(b.Input)
				if err != nil {
					return nil, fmt.Errorf("openai: encode tool call input for %s: %w", b.Name, err)
				}
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(string(input), b.ToolUseID, b.Name))
			case agent.ToolResultBlock:
				output, err := toolResultText(b)
				if err != nil {
					return nil, err
				}
				items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(b.ToolUseID, output))
			case agent.ReasoningBlock:
				// The Responses API does not accept caller-supplied
				// reasoning items back; only the assistant's own
				// chain-of-thought round-trips via PreviousResponseID,
				// which this adapter does not use.
			case agent.CachePointBlock:
				// No cache-control equivalent in the Responses API.
			default:
				return nil, fmt.Errorf("openai: unsupported content block %T", block)
			}
		}
		if text.Len() > 0 {
			items = append(items, responses.ResponseInputItemParamOfMessage(text.String(), role))
		}
	}
	return items, nil
}

func toolResultText(b agent.ToolResultBlock) (string, error) {
	var out strings.Builder
	for _, c := range b.Content {
		switch v := c.(type) {
		case agent.TextResultContent:
			out.WriteString(v.Text)
		case agent.JSONResultContent:
			data, err := json.Marshal(v.Value)
			if err != nil {
				return "", fmt.Errorf("openai: encode tool result content: %w", err)
			}
			out.Write(data)
		default:
			return "", fmt.Errorf("openai: unsupported tool result content %T", c)
		}
	}
	return out.String(), nil
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

func convertToolSpecs(specs []agent.ToolSpec) ([]responses.ToolUnionParam, error) {
	result := make([]responses.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		schemaJSON, err := json.Marshal(spec.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("openai: encode schema for %s: %w", spec.Name, err)
		}
		var params map[string]any
		if err := json.Unmarshal(schemaJSON, &params); err != nil {
			return nil, fmt.Errorf("openai: invalid schema for %s: %w", spec.Name, err)
		}
		result = append(result, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        spec.Name,
				Description: param.NewOpt(spec.Description),
				Parameters:  params,
			},
		})
	}
	return result, nil
}

func convertToolChoice(tc agent.ToolChoice) responses.ResponseNewParamsToolChoiceUnion {
	mode := responses.ToolChoiceOptionsAuto
	if tc.Mode == agent.ToolChoiceAny || tc.Mode == agent.ToolChoiceTool {
		mode = responses.ToolChoiceOptionsRequired
	}
	return responses.ResponseNewParamsToolChoiceUnion{OfToolChoiceMode: param.NewOpt(mode)}
}

// modelStream adapts the Responses API SSE stream to agent.ModelStream,
// translating one event at a time. Each function_call output item gets a
// synthetic content-block index distinct from the single text block (index
// 0), assigned the first time that item's id is observed.
type modelStream struct {
	stream *ssestream.Stream[responses.ResponseStreamEventUnion]

	model string

	blockIndex map[string]int
	nextIndex  int
	usage      agent.TokenUsage
	hasToolUse bool
	queued     []agent.StreamEvent
}

// Recv implements agent.ModelStream.
func (m *modelStream) Recv() (agent.StreamEvent, error) {
	if len(m.queued) > 0 {
		ev := m.queued[0]
		m.queued = m.queued[1:]
		return ev, nil
	}
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
	}
}

// Close implements agent.ModelStream.
func (m *modelStream) Close() error {
	return m.stream.Close()
}

func (m *modelStream) indexFor(itemID string) int {
	if idx, ok := m.blockIndex[itemID]; ok {
		return idx
	}
	m.nextIndex++
	idx := m.nextIndex
	m.blockIndex[itemID] = idx
	return idx
}

func (m *modelStream) translate(event responses.ResponseStreamEventUnion) (agent.StreamEvent, bool, error) {
	switch event.Type {
	case "response.created":
		return agent.MessageStartEvent{Role: agent.RoleAssistant}, true, nil

	case "response.output_item.added":
		item := event.Item
		switch item.Type {
		case "message":
			return agent.ContentBlockStartEvent{Index: 0}, true, nil
		case "function_call":
			idx := m.indexFor(itemKey(item.ID, item.CallID))
			return agent.ContentBlockStartEvent{
				Index: idx,
				Start: &agent.ToolUseStart{ToolUseID: item.CallID, Name: item.Name},
			}, true, nil
		default:
			return nil, false, nil
		}

	case "response.output_text.delta":
		return agent.ContentBlockDeltaEvent{Index: 0, Delta: agent.TextDelta{Text: event.Delta}}, true, nil

	case "response.function_call_arguments.delta":
		idx := m.indexFor(itemKey(event.ItemID, ""))
		return agent.ContentBlockDeltaEvent{Index: idx, Delta: agent.ToolUseInputDelta{Input: event.Delta}}, true, nil

	case "response.output_item.done":
		item := event.Item
		switch item.Type {
		case "message":
			return agent.ContentBlockStopEvent{Index: 0}, true, nil
		case "function_call":
			m.hasToolUse = true
			idx := m.indexFor(itemKey(item.ID, item.CallID))
			return agent.ContentBlockStopEvent{Index: idx}, true, nil
		default:
			return nil, false, nil
		}

	case "response.completed":
		resp := event.Response
		m.usage = agent.TokenUsage{
			InputTokens:     int(resp.Usage.InputTokens),
			OutputTokens:    int(resp.Usage.OutputTokens),
			TotalTokens:     int(resp.Usage.TotalTokens),
			CacheReadTokens: int(resp.Usage.InputTokensDetails.CachedTokens),
		}
		reason := agent.StopReasonEndTurn
		if m.hasToolUse {
			reason = agent.StopReasonToolUse
		}
		m.queued = append(m.queued, agent.MessageStopEvent{StopReason: reason})
		return agent.MetadataEvent{Usage: &m.usage}, true, nil

	case "response.incomplete", "response.failed":
		reason := agent.StopReasonMaxTokens
		if event.Type == "response.failed" {
			reason = agent.StopReasonContentFiltered
		}
		return agent.MessageStopEvent{StopReason: reason}, true, nil

	default:
		return nil, false, nil
	}
}

func itemKey(id, callID string) string {
	if id != "" {
		return id
	}
	return callID
}

func wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("openai: stream error (model %s): %w", model, err)
	}
	if apiErr.StatusCode == 429 {
		return &agent.ModelThrottledError{Err: apiErr}
	}
	if apiErr.StatusCode == 400 && strings.Contains(strings.ToLower(apiErr.Message), "context") {
		return &agent.ContextWindowOverflowError{Err: apiErr}
	}
	return fmt.Errorf("openai: request failed (model %s): %w", model, apiErr)
}
