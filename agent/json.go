package agent

import (
	"encoding/json"
	"fmt"
)

// wireContentBlock is the external JSON shape shared by every content block
// variant: a "type" discriminator plus the union of fields any variant might
// carry. Unmarshaling into this flat shape first, then switching on Type,
// keeps the decoder in one place instead of spread across per-variant
// UnmarshalJSON methods.
type wireContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// toolUse
	ToolUseID string `json:"toolUseId,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"`

	// toolResult (ToolUseID shared with toolUse above)
	Status  ToolResultStatus  `json:"status,omitempty"`
	Content []wireToolResultC `json:"content,omitempty"`

	// reasoning
	Signature string `json:"signature,omitempty"`
	Redacted  []byte `json:"redacted,omitempty"`
}

type wireToolResultC struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Value any    `json:"value,omitempty"`
}

// ContentBlockFromData parses the external JSON shape for a single content
// block into its internal variant. Unknown or malformed "type" values fail
// with *InvalidContentError naming the offending tag.
func ContentBlockFromData(raw json.RawMessage) (ContentBlock, error) {
	var w wireContentBlock
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &InvalidContentError{Reason: fmt.Sprintf("decode content block: %v", err)}
	}
	switch w.Type {
	case "text":
		return TextBlock{Text: w.Text}, nil
	case "toolUse":
		if w.ToolUseID == "" {
			return nil, &InvalidContentError{Tag: w.Type, Reason: "toolUse requires toolUseId"}
		}
		if w.Name == "" {
			return nil, &InvalidContentError{Tag: w.Type, Reason: "toolUse requires name"}
		}
		return ToolUseBlock{ToolUseID: w.ToolUseID, Name: w.Name, Input: w.Input}, nil
	case "toolResult":
		if w.ToolUseID == "" {
			return nil, &InvalidContentError{Tag: w.Type, Reason: "toolResult requires toolUseId"}
		}
		switch w.Status {
		case ToolResultStatusSuccess, ToolResultStatusError:
		default:
			return nil, &InvalidContentError{Tag: w.Type, Reason: fmt.Sprintf("toolResult has invalid status %q", w.Status)}
		}
		content := make([]ToolResultContent, 0, len(w.Content))
		for i, c := range w.Content {
			switch c.Type {
			case "text":
				content = append(content, TextResultContent{Text: c.Text})
			case "json":
				content = append(content, JSONResultContent{Value: c.Value})
			default:
				return nil, &InvalidContentError{Tag: c.Type, Reason: fmt.Sprintf("toolResult content[%d] has unknown type", i)}
			}
		}
		return ToolResultBlock{ToolUseID: w.ToolUseID, Status: w.Status, Content: content}, nil
	case "reasoning":
		return ReasoningBlock{Text: w.Text, Signature: w.Signature, Redacted: w.Redacted}, nil
	case "cachePoint":
		return CachePointBlock{}, nil
	case "":
		return nil, &InvalidContentError{Reason: "missing type discriminator"}
	default:
		return nil, &InvalidContentError{Tag: w.Type, Reason: "unknown content block type"}
	}
}

// ContentBlockToData renders a content block back into its external JSON
// shape. It is the encode-side dual of ContentBlockFromData, used by
// SessionSync collaborators to serialize conversation state.
func ContentBlockToData(b ContentBlock) (json.RawMessage, error) {
	switch v := b.(type) {
	case TextBlock:
		return json.Marshal(wireContentBlock{Type: "text", Text: v.Text})
	case ToolUseBlock:
		return json.Marshal(wireContentBlock{Type: "toolUse", ToolUseID: v.ToolUseID, Name: v.Name, Input: v.Input})
	case ToolResultBlock:
		content := make([]wireToolResultC, 0, len(v.Content))
		for _, c := range v.Content {
			switch cv := c.(type) {
			case TextResultContent:
				content = append(content, wireToolResultC{Type: "text", Text: cv.Text})
			case JSONResultContent:
				content = append(content, wireToolResultC{Type: "json", Value: cv.Value})
			default:
				return nil, fmt.Errorf("agent: unknown tool result content type %T", c)
			}
		}
		return json.Marshal(wireContentBlock{Type: "toolResult", ToolUseID: v.ToolUseID, Status: v.Status, Content: content})
	case ReasoningBlock:
		return json.Marshal(wireContentBlock{Type: "reasoning", Text: v.Text, Signature: v.Signature, Redacted: v.Redacted})
	case CachePointBlock:
		return json.Marshal(wireContentBlock{Type: "cachePoint"})
	default:
		return nil, fmt.Errorf("agent: unknown content block type %T", b)
	}
}

// wireMessage is the external JSON shape for a full Message.
type wireMessage struct {
	Role    Role              `json:"role"`
	Content []json.RawMessage `json:"content"`
	Meta    map[string]any    `json:"meta,omitempty"`
}

// MessageFromData parses the external JSON shape for a full message,
// decoding each content block via ContentBlockFromData. Malformed data fails
// with *InvalidContentError naming the offending tag.
func MessageFromData(raw json.RawMessage) (*Message, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &InvalidContentError{Reason: fmt.Sprintf("decode message: %v", err)}
	}
	switch w.Role {
	case RoleUser, RoleAssistant:
	default:
		return nil, &InvalidContentError{Reason: fmt.Sprintf("message has invalid role %q", w.Role)}
	}
	content := make([]ContentBlock, 0, len(w.Content))
	for i, raw := range w.Content {
		block, err := ContentBlockFromData(raw)
		if err != nil {
			return nil, fmt.Errorf("message content[%d]: %w", i, err)
		}
		content = append(content, block)
	}
	return &Message{Role: w.Role, Content: content, Meta: w.Meta}, nil
}

// MessageToData renders a message back into its external JSON shape.
func MessageToData(m *Message) (json.RawMessage, error) {
	content := make([]json.RawMessage, 0, len(m.Content))
	for i, b := range m.Content {
		raw, err := ContentBlockToData(b)
		if err != nil {
			return nil, fmt.Errorf("message content[%d]: %w", i, err)
		}
		content = append(content, raw)
	}
	return json.Marshal(wireMessage{Role: m.Role, Content: content, Meta: m.Meta})
}
