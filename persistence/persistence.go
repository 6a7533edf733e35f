// Package persistence defines the session-sync collaborator contract
// (component C9) and the on-disk/on-wire snapshot shape it reads and
// writes. Concrete backends (filestore, ddbstore, redisstore, mongostore)
// live in subpackages so the core engine package never imports a specific
// storage SDK.
package persistence

import (
	"context"
	"errors"
	"regexp"

	"github.com/agentrt/agentrt/agent"
)

// SchemaVersion is the current persisted snapshot schema version, written
// into every snapshot the engine saves. The bundled backends store and
// return the field unchanged; none of them checks it on Load.
const SchemaVersion = 1

// idPattern constrains sessionId and scope to filesystem- and key-safe
// characters: no path separators, no characters that need escaping in a
// DynamoDB key, a Redis key, or a Mongo _id.
var idPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ValidID reports whether s is a legal sessionId or scope value.
func ValidID(s string) bool {
	return s != "" && idPattern.MatchString(s)
}

// ErrSnapshotNotFound indicates no snapshot exists at the requested
// coordinates.
var ErrSnapshotNotFound = errors.New("persistence: snapshot not found")

type (
	// InterruptSnapshot is the persisted shape of an interrupt.State.
	InterruptSnapshot struct {
		Interrupts map[string]InterruptRecord `json:"interrupts"`
		Context    map[string]any             `json:"context"`
		Activated  bool                       `json:"activated"`
	}

	// InterruptRecord is the persisted shape of a single interrupt.Interrupt.
	InterruptRecord struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Reason   string `json:"reason"`
		Response any    `json:"response,omitempty"`
	}

	// Snapshot is the full persisted state for one sessionId x scope x
	// snapshotId coordinate: the conversation, the opaque agent/conversation-
	// manager state, and the interrupt bookkeeping needed to resume a
	// paused invocation.
	Snapshot struct {
		SchemaVersion            int               `json:"schemaVersion"`
		Messages                 []*agent.Message  `json:"messages"`
		AgentState               map[string]any    `json:"agentState,omitempty"`
		ConversationManagerState any               `json:"conversationManagerState,omitempty"`
		InterruptState           InterruptSnapshot `json:"interruptState"`
	}

	// SessionSync is the session-sync collaborator contract (component
	// C9): load the latest snapshot for a session/scope, or save a new
	// one. Implementations must treat SessionID and Scope as opaque keys
	// restricted to ValidID and must never interpret snapshot contents.
	SessionSync interface {
		// Load returns the latest snapshot for sessionID/scope, or
		// ErrSnapshotNotFound if none exists yet.
		Load(ctx context.Context, sessionID, scope string) (*Snapshot, error)
		// Save persists snap as the new latest snapshot for
		// sessionID/scope, retaining the previous latest in that backend's
		// immutable history.
		Save(ctx context.Context, sessionID, scope string, snap *Snapshot) error
	}
)
