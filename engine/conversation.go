package engine

import "github.com/agentrt/agentrt/agent"

// ConversationManager is the conversation-windowing collaborator contract
// (component C8): before each model cycle the Agent calls Trim to let the
// manager shrink the conversation it is about to send, and GetState returns
// an opaque value the Agent persists alongside the conversation so the
// manager can resume its bookkeeping (e.g. a running token estimate) across
// a save/load boundary.
type ConversationManager interface {
	// Trim returns the (possibly shortened) slice of messages to send to
	// the model. It must never split a toolUse/toolResult pair: if the
	// message at the computed boundary would separate one, the boundary
	// moves outward until the pair is whole.
	Trim(messages []*agent.Message) []*agent.Message

	// GetState returns a JSON-serializable snapshot of the manager's
	// internal bookkeeping, recomputed on demand rather than cached.
	GetState() any

	// RestoreFromSession restores internal bookkeeping from a value
	// previously returned by GetState and persisted alongside a session
	// snapshot, and optionally returns messages to prepend to that
	// session's stored conversation before the next model cycle (e.g. a
	// manager that summarized trimmed-away history might reinsert that
	// summary here). A nil state (no prior snapshot, or no manager state
	// was ever saved) is a no-op.
	RestoreFromSession(state any) []*agent.Message
}

// WindowManager is the reference ConversationManager: it keeps the most
// recent MaxMessages messages, repairing the tool-pairing invariant by
// moving the window boundary outward rather than splitting a pair.
type WindowManager struct {
	MaxMessages int
}

// NewWindowManager constructs a WindowManager that trims to the most recent
// maxMessages messages. A non-positive maxMessages disables trimming.
func NewWindowManager(maxMessages int) *WindowManager {
	return &WindowManager{MaxMessages: maxMessages}
}

// Trim implements ConversationManager.
func (w *WindowManager) Trim(messages []*agent.Message) []*agent.Message {
	if w.MaxMessages <= 0 || len(messages) <= w.MaxMessages {
		return messages
	}
	start := len(messages) - w.MaxMessages
	for start > 0 && splitsToolPairing(messages, start) {
		start--
	}
	return messages[start:]
}

// GetState implements ConversationManager. WindowManager carries no
// cross-invocation state beyond its configuration, so GetState returns the
// configuration itself; a manager with real bookkeeping would return a
// derived view of it here instead of storing one separately.
func (w *WindowManager) GetState() any {
	return map[string]any{"maxMessages": w.MaxMessages}
}

// RestoreFromSession implements ConversationManager. WindowManager has no
// history to reinsert, so it never prepends messages; it only restores its
// MaxMessages configuration, accepting either the int GetState produced
// in-process or the float64 a JSON round-trip through a session snapshot
// leaves it as.
func (w *WindowManager) RestoreFromSession(state any) []*agent.Message {
	m, ok := state.(map[string]any)
	if !ok {
		return nil
	}
	switch v := m["maxMessages"].(type) {
	case int:
		w.MaxMessages = v
	case float64:
		w.MaxMessages = int(v)
	}
	return nil
}

// splitsToolPairing reports whether starting the window at index start would
// separate a toolResult message from the toolUse message that precedes it.
func splitsToolPairing(messages []*agent.Message, start int) bool {
	if start <= 0 || start >= len(messages) {
		return false
	}
	for _, block := range messages[start].Content {
		if tr, ok := block.(agent.ToolResultBlock); ok {
			if toolUseResolvedBefore(messages[:start], tr.ToolUseID) {
				return true
			}
		}
	}
	return false
}

func toolUseResolvedBefore(messages []*agent.Message, toolUseID string) bool {
	for _, m := range messages {
		for _, block := range m.Content {
			if tu, ok := block.(agent.ToolUseBlock); ok && tu.ToolUseID == toolUseID {
				return true
			}
		}
	}
	return false
}
