// Package ratelimit wraps an agent.Model with an adaptive token-bucket
// limiter: it estimates the size of each request, waits for capacity before
// issuing it, and halves its budget whenever the wrapped Model reports
// *agent.ModelThrottledError, recovering gradually on successful cycles.
package ratelimit

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/agentrt/agentrt/agent"
)

// Limiter wraps an agent.Model, applying an AIMD tokens-per-minute budget
// across its Stream calls. It is process-local; construct one instance per
// Model and share it across callers.
type Limiter struct {
	next agent.Model

	mu      sync.Mutex
	limiter *rate.Limiter

	currentTPM float64
	minTPM     float64
	maxTPM     float64
	recovery   float64
}

// Wrap constructs a Limiter around next with an initial and maximum
// tokens-per-minute budget. A non-positive initialTPM defaults to 60000;
// maxTPM is clamped up to initialTPM when smaller.
func Wrap(next agent.Model, initialTPM, maxTPM float64) *Limiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recovery := initialTPM * 0.05
	if recovery < 1 {
		recovery = 1
	}
	return &Limiter{
		next:       next,
		limiter:    rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM: initialTPM,
		minTPM:     minTPM,
		maxTPM:     maxTPM,
		recovery:   recovery,
	}
}

// Stream implements agent.Model.
func (l *Limiter) Stream(ctx context.Context, messages []*agent.Message, opts agent.ModelOptions) (agent.ModelStream, error) {
	if err := l.limiter.WaitN(ctx, estimateTokens(messages)); err != nil {
		return nil, err
	}
	stream, err := l.next.Stream(ctx, messages, opts)
	l.observe(err)
	return stream, err
}

func (l *Limiter) observe(err error) {
	var throttled *agent.ModelThrottledError
	switch {
	case err == nil:
		l.probe()
	case errors.As(err, &throttled):
		l.backoff()
	}
}

func (l *Limiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.currentTPM * 0.5
	if next < l.minTPM {
		next = l.minTPM
	}
	l.setLocked(next)
}

func (l *Limiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.currentTPM + l.recovery
	if next > l.maxTPM {
		next = l.maxTPM
	}
	l.setLocked(next)
}

func (l *Limiter) setLocked(tpm float64) {
	if tpm == l.currentTPM {
		return
	}
	l.currentTPM = tpm
	l.limiter.SetLimit(rate.Limit(tpm / 60.0))
	l.limiter.SetBurst(int(tpm))
}

// estimateTokens gives a cheap heuristic token count for a cycle's input
// messages: characters of text and tool-result content divided by a fixed
// ratio, plus a fixed buffer for system prompt and provider framing.
func estimateTokens(messages []*agent.Message) int {
	chars := 0
	for _, msg := range messages {
		for _, block := range msg.Content {
			switch b := block.(type) {
			case agent.TextBlock:
				chars += len(b.Text)
			case agent.ToolResultBlock:
				for _, c := range b.Content {
					if t, ok := c.(agent.TextResultContent); ok {
						chars += len(t.Text)
					}
				}
			}
		}
	}
	if chars <= 0 {
		return 500
	}
	tokens := chars / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
