package tools

import (
	"context"
	"io"

	"github.com/agentrt/agentrt/agent"
)

// ToolStream is a pull-based source of agent.ToolStreamEvent values for a
// single tool call, mirroring agent.ModelStream's Recv/Close contract
// (component C5's stream aggregator uses the same shape for model events).
// Callers Recv in a loop until io.EOF, then call Result for the completed
// toolResult block (or the error the body failed or paused with); Close
// releases any resources the implementation holds and may be called at any
// time.
type ToolStream interface {
	Recv() (agent.ToolStreamEvent, error)
	Result() (*agent.ToolResultBlock, error)
	Close() error
}

// StreamFunc adapts a synchronous tool body into the ToolStream contract,
// running it on its own goroutine so Recv can deliver events emitted via the
// emit callback as they happen rather than only after the body returns. body
// returning a nil error and nil block is treated by the tool sub-loop as "no
// result produced"; returning a non-nil error that is an *interrupt.Signal
// pauses the invocation rather than failing the call.
func StreamFunc(ctx context.Context, body func(ctx context.Context, emit func(agent.ToolStreamEvent)) (*agent.ToolResultBlock, error)) ToolStream {
	events := make(chan agent.ToolStreamEvent)
	done := make(chan struct{})
	fs := &funcStream{events: events, done: done}
	go func() {
		defer close(events)
		emit := func(e agent.ToolStreamEvent) {
			select {
			case events <- e:
			case <-ctx.Done():
			}
		}
		fs.result, fs.err = body(ctx, emit)
		close(done)
	}()
	return fs
}

type funcStream struct {
	events chan agent.ToolStreamEvent
	done   chan struct{}
	result *agent.ToolResultBlock
	err    error
}

func (s *funcStream) Recv() (agent.ToolStreamEvent, error) {
	ev, ok := <-s.events
	if !ok {
		return nil, io.EOF
	}
	return ev, nil
}

func (s *funcStream) Result() (*agent.ToolResultBlock, error) {
	<-s.done
	return s.result, s.err
}

func (s *funcStream) Close() error { return nil }
