// Package interrupt implements the human-in-the-loop pause/resume state
// machine (component C3): a tool body calls Raise to either retrieve a
// previously supplied response or signal that the invocation must pause and
// wait for one. The package has no dependency on the agent, hooks, or tools
// packages so it can be imported from any of them without creating a cycle.
package interrupt

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// namespace is the fixed namespace UUID interrupt IDs are derived against:
// the standard OID namespace. It must never change, since changing it would
// invalidate every previously persisted interrupt ID.
var namespace = uuid.NameSpaceOID

// Signal is raised by Raise when an interrupt has no stored response yet.
// It is an internal control-flow marker: the tool sub-loop and event loop
// recognize it via errors.As and propagate it up to pause the invocation,
// but it must never escape Invoke/Stream as an ordinary error.
type Signal struct {
	ID     string
	Name   string
	Reason string
}

func (s *Signal) Error() string {
	return fmt.Sprintf("interrupt: %s (%s) awaiting response", s.Name, s.ID)
}

// Interrupt is a single paused checkpoint: the name and reason it was
// raised with, and the response supplied on resume (nil until then).
type Interrupt struct {
	ID       string
	Name     string
	Reason   string
	Response any
}

// State is the per-invocation interrupt bookkeeping persisted alongside a
// session snapshot (component C3 / spec §6 interruptState). It is safe for
// concurrent use; the tool sub-loop may raise interrupts from multiple
// in-flight tool calls.
type State struct {
	mu         sync.Mutex
	interrupts map[string]*Interrupt
	// Context carries arbitrary data set by the caller across a
	// pause/resume boundary (e.g. why the invocation was interrupted at
	// the agent level, not tied to any single tool call).
	Context map[string]any
	// Activated is true once the invocation has resumed with at least one
	// response supplied; Raise only returns a stored response when
	// Activated is true, preventing a resumed-with-no-data invocation from
	// incorrectly treating a zero value as a real answer.
	Activated bool
}

// NewState constructs an empty interrupt State.
func NewState() *State {
	return &State{interrupts: make(map[string]*Interrupt), Context: make(map[string]any)}
}

// Activate marks the state as having live responses available, switching
// Raise from "always signal" to "return stored response if present".
func (s *State) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Activated = true
}

// Deactivate reverses Activate, e.g. after a resumed invocation completes
// and its responses have all been consumed.
func (s *State) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Activated = false
}

// Resume supplies a response for a previously raised interrupt, identified
// by ID. It is a no-op if no interrupt with that ID was ever raised.
func (s *State) Resume(id string, response any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.interrupts[id]; ok {
		it.Response = response
	}
}

// Get returns the interrupt recorded under id, if any.
func (s *State) Get(id string) (*Interrupt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.interrupts[id]
	return it, ok
}

// Interrupts returns a snapshot of every interrupt recorded so far, keyed by
// ID, for serialization into a session snapshot.
func (s *State) Interrupts() map[string]*Interrupt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Interrupt, len(s.interrupts))
	for k, v := range s.interrupts {
		cp := *v
		out[k] = &cp
	}
	return out
}

type toolUseIDKey struct{}

// WithToolUseID attaches the tool call currently executing to ctx so Raise
// can derive a stable interrupt ID from it. Set by the tool sub-loop before
// invoking a tool's body.
func WithToolUseID(ctx context.Context, toolUseID string) context.Context {
	return context.WithValue(ctx, toolUseIDKey{}, toolUseID)
}

func toolUseIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(toolUseIDKey{}).(string)
	return v, ok && v != ""
}

// ID computes the deterministic interrupt ID for the given tool call and
// interrupt name: "v1:tool_call:{toolUseId}:{uuidv5(name, namespace)}". The
// same (toolUseId, name) pair always derives the same ID, so a tool body
// raising the same named interrupt twice for the same call resumes the same
// checkpoint rather than creating a new one.
func ID(toolUseID, name string) string {
	return fmt.Sprintf("v1:tool_call:%s:%s", toolUseID, uuid.NewSHA1(namespace, []byte(name)).String())
}

// Raise checks state for a stored response to the named interrupt for the
// tool call recorded in ctx (via WithToolUseID). If state is Activated and a
// response has been supplied, Raise returns it. Otherwise Raise records a
// new Interrupt (or reuses the existing one for this ID) and returns
// *Signal, which callers must propagate rather than treat as a normal tool
// failure.
func Raise(ctx context.Context, state *State, name, reason string) (any, error) {
	toolUseID, ok := toolUseIDFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("interrupt: Raise called without a tool call in context")
	}
	id := ID(toolUseID, name)

	state.mu.Lock()
	it, exists := state.interrupts[id]
	if !exists {
		it = &Interrupt{ID: id, Name: name, Reason: reason}
		state.interrupts[id] = it
	}
	activated := state.Activated
	response := it.Response
	state.mu.Unlock()

	if activated && response != nil {
		return response, nil
	}
	return nil, &Signal{ID: id, Name: name, Reason: reason}
}
