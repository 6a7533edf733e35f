package agent

// StopReason classifies why the model stopped generating for a single model
// cycle, or (Interrupt) why an entire agent invocation paused.
type StopReason string

const (
	// StopReasonEndTurn marks a model cycle that completed normally with no
	// further tool calls requested.
	StopReasonEndTurn StopReason = "endTurn"

	// StopReasonToolUse marks a model cycle that stopped to request one or
	// more tool calls.
	StopReasonToolUse StopReason = "toolUse"

	// StopReasonMaxTokens marks a model cycle truncated by the provider's
	// output token limit.
	StopReasonMaxTokens StopReason = "maxTokens"

	// StopReasonStopSequence marks a model cycle that hit a caller-supplied
	// stop sequence.
	StopReasonStopSequence StopReason = "stopSequence"

	// StopReasonContentFiltered marks a model cycle halted by provider-side
	// content filtering.
	StopReasonContentFiltered StopReason = "contentFiltered"

	// StopReasonGuardrailIntervened marks a model cycle halted by a
	// provider-side guardrail.
	StopReasonGuardrailIntervened StopReason = "guardrailIntervened"

	// StopReasonInterrupt is never produced by a Model; it is the
	// agent-level result reported when the invocation paused on an
	// interrupt rather than completing a turn.
	StopReasonInterrupt StopReason = "interrupt"
)

type (
	// TokenUsage reports token accounting for a single model cycle.
	TokenUsage struct {
		InputTokens      int
		OutputTokens     int
		TotalTokens      int
		CacheReadTokens  int
		CacheWriteTokens int
	}

	// Metrics aggregates usage and latency for a model cycle.
	Metrics struct {
		Usage     TokenUsage
		LatencyMs int64
	}

	// StreamEvent is a marker interface implemented by every event a Model
	// may emit from its stream. Concrete variants mirror the provider-
	// agnostic shape described for the stream aggregator (component C5):
	// message/content-block lifecycle events, content deltas, and a final
	// metadata event carrying usage and tracing data.
	StreamEvent interface {
		isStreamEvent()
	}

	// MessageStartEvent opens a new message; Role is always RoleAssistant
	// for model-produced streams.
	MessageStartEvent struct {
		Role Role
	}

	// ToolUseStart carries the identifying fields of a tool call as they
	// become known at content-block-start time, before the input JSON has
	// finished streaming.
	ToolUseStart struct {
		ToolUseID string
		Name      string
	}

	// ContentBlockStartEvent opens a new content block at Index. Start is
	// non-nil only when the block being opened is a tool use.
	ContentBlockStartEvent struct {
		Index int
		Start *ToolUseStart
	}

	// Delta is a marker interface for the incremental payloads carried by a
	// ContentBlockDeltaEvent.
	Delta interface {
		isDelta()
	}

	// TextDelta carries an incremental fragment of a TextBlock.
	TextDelta struct {
		Text string
	}

	// ToolUseInputDelta carries an incremental fragment of a tool call's
	// JSON input, to be concatenated and parsed once the block closes.
	ToolUseInputDelta struct {
		Input string
	}

	// ReasoningDelta carries an incremental fragment of a ReasoningBlock.
	ReasoningDelta struct {
		Text            string
		Signature       string
		RedactedContent []byte
	}

	// ContentBlockDeltaEvent carries one incremental update to the content
	// block at Index.
	ContentBlockDeltaEvent struct {
		Index int
		Delta Delta
	}

	// ContentBlockStopEvent closes the content block at Index; the
	// aggregator synthesizes the completed ContentBlock at this point.
	ContentBlockStopEvent struct {
		Index int
	}

	// MessageStopEvent closes the message with the given StopReason.
	MessageStopEvent struct {
		StopReason StopReason
	}

	// MetadataEvent carries usage, metrics, and opaque provider trace data
	// for the model cycle. Trace is forwarded opaquely, never interpreted.
	MetadataEvent struct {
		Usage   *TokenUsage
		Metrics *Metrics
		Trace   any
	}
)

func (MessageStartEvent) isStreamEvent()      {}
func (ContentBlockStartEvent) isStreamEvent() {}
func (ContentBlockDeltaEvent) isStreamEvent() {}
func (ContentBlockStopEvent) isStreamEvent()  {}
func (MessageStopEvent) isStreamEvent()       {}
func (MetadataEvent) isStreamEvent()          {}

func (TextDelta) isDelta()          {}
func (ToolUseInputDelta) isDelta()  {}
func (ReasoningDelta) isDelta()     {}
