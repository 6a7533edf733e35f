package agent

import "context"

// ToolChoiceMode constrains how a Model is permitted to use the tools
// declared in ModelOptions.ToolSpecs for a single cycle.
type ToolChoiceMode string

const (
	// ToolChoiceAuto lets the model decide whether to call a tool.
	ToolChoiceAuto ToolChoiceMode = "auto"

	// ToolChoiceAny forces the model to call some tool, any tool.
	ToolChoiceAny ToolChoiceMode = "any"

	// ToolChoiceTool forces the model to call the tool named in
	// ToolChoice.Name.
	ToolChoiceTool ToolChoiceMode = "tool"
)

type (
	// ToolSpec describes a tool's contract as presented to a Model: the
	// name and description the model sees, plus the JSON Schema its input
	// must satisfy.
	ToolSpec struct {
		Name        string
		Description string
		InputSchema any
	}

	// ToolChoice pins the model's tool-use behavior for one cycle.
	ToolChoice struct {
		Mode ToolChoiceMode
		// Name is only meaningful when Mode is ToolChoiceTool.
		Name string
	}

	// ModelOptions configures a single Model.Stream call: the system
	// prompt, the tool contracts visible to the model, and any tool-choice
	// constraint for that cycle.
	ModelOptions struct {
		SystemPrompt any
		ToolSpecs    []ToolSpec
		ToolChoice   *ToolChoice
	}

	// ModelStream is a pull-based source of StreamEvent values for a single
	// model cycle. Callers Recv in a loop until io.EOF; Close releases any
	// underlying transport resources and may be called at any time,
	// including before the stream is drained.
	ModelStream interface {
		// Recv returns the next StreamEvent, or io.EOF once the stream has
		// delivered a MessageStopEvent and has nothing further to send.
		Recv() (StreamEvent, error)
		Close() error
	}

	// Model is the provider-agnostic capability contract (component C10):
	// given the conversation so far and per-cycle options, produce a
	// stream of events describing one assistant turn. Implementations are
	// thin adapters over a specific provider's wire protocol and are never
	// imported by the core packages.
	Model interface {
		Stream(ctx context.Context, messages []*Message, opts ModelOptions) (ModelStream, error)
	}
)
