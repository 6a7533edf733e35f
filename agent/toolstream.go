package agent

// ToolStreamEvent is a marker interface for the events a tool's own Stream
// may emit while it runs (spec "tool contract": `stream(ctx) -> async
// iterator of stream events, returning a toolResult block"). The tool
// sub-loop forwards every one of them, wrapped in a ToolEvent, to the outer
// event stream alongside model events, hook events, and synthesized content
// blocks.
type ToolStreamEvent interface {
	isToolStreamEvent()
}

// ToolProgressEvent carries a tool-defined progress update. It has no fixed
// schema beyond a human-readable message and optional structured data; a
// tool emits as many or as few of these as it likes before returning its
// final ToolResultBlock.
type ToolProgressEvent struct {
	Message string
	Data    any
}

func (ToolProgressEvent) isToolStreamEvent() {}

// ToolEvent wraps a single ToolStreamEvent emitted by the tool call
// identified by ToolUseID, so it can flow through the same StreamEvent union
// the event loop already forwards model events through.
type ToolEvent struct {
	ToolUseID string
	Event     ToolStreamEvent
}

func (ToolEvent) isStreamEvent() {}
