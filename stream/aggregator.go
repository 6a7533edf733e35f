// Package stream implements the stream aggregator (component C5): it
// consumes the incremental StreamEvent sequence a Model emits for one cycle
// and reconstructs the complete content blocks and final Message those
// deltas describe, while passing every event through unchanged so callers
// that want the raw deltas (for a typewriter UI, for instance) still see
// them.
package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentrt/agentrt/agent"
)

type blockKind int

const (
	blockUnknown blockKind = iota
	blockText
	blockToolUse
	blockReasoning
)

type blockBuilder struct {
	kind      blockKind
	toolUseID string
	name      string
	text      strings.Builder
	input     strings.Builder
	signature string
	redacted  []byte
}

// Aggregator wraps an agent.ModelStream, forwarding every event via Recv
// while accumulating the complete Message the deltas describe. Call Result
// after Recv has returned an error (normally io.EOF) to retrieve the
// aggregated message, stop reason, and metrics.
type Aggregator struct {
	upstream agent.ModelStream

	role       agent.Role
	blocks     map[int]*blockBuilder
	content    []agent.ContentBlock
	metrics    *agent.Metrics
	stopReason agent.StopReason
	stopSeen   bool
}

// New wraps upstream in an Aggregator.
func New(upstream agent.ModelStream) *Aggregator {
	return &Aggregator{upstream: upstream, blocks: make(map[int]*blockBuilder)}
}

// Recv pulls the next event from the upstream ModelStream, folds it into the
// in-progress aggregation, and returns it unchanged. A malformed sequence
// (a delta or stop referencing an index never opened) fails with
// *agent.ProtocolError; a tool-use block whose accumulated input fails to
// parse as JSON fails with *agent.InvalidToolInputError.
func (a *Aggregator) Recv() (agent.StreamEvent, error) {
	ev, err := a.upstream.Recv()
	if err != nil {
		return nil, err
	}
	if err := a.fold(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Close releases the upstream ModelStream's resources.
func (a *Aggregator) Close() error {
	return a.upstream.Close()
}

// Result returns the aggregated message once the stream has delivered a
// MessageStopEvent. Calling it earlier fails with *agent.IncompleteStreamError.
func (a *Aggregator) Result() (*agent.Message, agent.StopReason, *agent.Metrics, error) {
	if !a.stopSeen {
		return nil, "", nil, &agent.IncompleteStreamError{Reason: "model stream ended before messageStop"}
	}
	return &agent.Message{Role: a.role, Content: a.content}, a.stopReason, a.metrics, nil
}

func (a *Aggregator) fold(ev agent.StreamEvent) error {
	switch v := ev.(type) {
	case agent.MessageStartEvent:
		a.role = v.Role
	case agent.ContentBlockStartEvent:
		b := &blockBuilder{}
		if v.Start != nil {
			b.kind = blockToolUse
			b.toolUseID = v.Start.ToolUseID
			b.name = v.Start.Name
		}
		a.blocks[v.Index] = b
	case agent.ContentBlockDeltaEvent:
		b, ok := a.blocks[v.Index]
		if !ok {
			return &agent.ProtocolError{Reason: fmt.Sprintf("content delta for unopened block %d", v.Index)}
		}
		switch d := v.Delta.(type) {
		case agent.TextDelta:
			b.kind = blockText
			b.text.WriteString(d.Text)
		case agent.ToolUseInputDelta:
			b.kind = blockToolUse
			b.input.WriteString(d.Input)
		case agent.ReasoningDelta:
			b.kind = blockReasoning
			b.text.WriteString(d.Text)
			if d.Signature != "" {
				b.signature = d.Signature
			}
			if len(d.RedactedContent) > 0 {
				b.redacted = append(b.redacted, d.RedactedContent...)
			}
		default:
			return &agent.ProtocolError{Reason: fmt.Sprintf("unknown delta type %T at block %d", v.Delta, v.Index)}
		}
	case agent.ContentBlockStopEvent:
		b, ok := a.blocks[v.Index]
		if !ok {
			return &agent.ProtocolError{Reason: fmt.Sprintf("content stop for unopened block %d", v.Index)}
		}
		block, err := a.finalize(b)
		if err != nil {
			return err
		}
		a.content = append(a.content, block)
		delete(a.blocks, v.Index)
	case agent.MessageStopEvent:
		a.stopReason = v.StopReason
		a.stopSeen = true
	case agent.MetadataEvent:
		switch {
		case v.Metrics != nil:
			a.metrics = v.Metrics
		case v.Usage != nil:
			// Adapters that only know token usage (no separate latency
			// figure of their own) still need that usage to reach
			// Result(); synthesize a Metrics value around it instead of
			// dropping it on the floor.
			a.metrics = &agent.Metrics{Usage: *v.Usage}
		}
	default:
		return &agent.ProtocolError{Reason: fmt.Sprintf("unknown stream event type %T", ev)}
	}
	return nil
}

func (a *Aggregator) finalize(b *blockBuilder) (agent.ContentBlock, error) {
	switch b.kind {
	case blockText:
		return agent.TextBlock{Text: b.text.String()}, nil
	case blockToolUse:
		raw := b.input.String()
		if strings.TrimSpace(raw) == "" {
			raw = "{}"
		}
		var input any
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			return nil, &agent.InvalidToolInputError{ToolUseID: b.toolUseID, Err: err}
		}
		return agent.ToolUseBlock{ToolUseID: b.toolUseID, Name: b.name, Input: input}, nil
	case blockReasoning:
		return agent.ReasoningBlock{Text: b.text.String(), Signature: b.signature, Redacted: b.redacted}, nil
	default:
		// A block that opened and closed with no delta in between is an
		// empty text block, e.g. a degenerate provider response.
		return agent.TextBlock{}, nil
	}
}
