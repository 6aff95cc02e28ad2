package llm

import (
	"context"
	"errors"
	"sync"
)

// ScriptedMockProvider returns a pre-defined sequence of responses and keeps
// every request it received. Useful for multi-turn tests such as tool
// resolution or a full agent run.
type ScriptedMockProvider struct {
	mu       sync.Mutex
	turns    []ChatResponse
	Err      error
	Requests []ChatRequest
	// CallCount tracks how many times Chat has been called
	CallCount int
}

// NewScriptedMockProvider creates a provider answering with responses in order.
func NewScriptedMockProvider(responses ...string) *ScriptedMockProvider {
	s := &ScriptedMockProvider{}
	for _, r := range responses {
		s.AddResponse(r)
	}
	return s
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedMockProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Requests = append(s.Requests, req)

	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.turns) == 0 {
		return nil, errors.New("scripted mock: no more responses available")
	}

	next := s.turns[0]
	s.turns = s.turns[1:]
	next.Usage = Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}
	return &next, nil
}

// Name implements Named.
func (s *ScriptedMockProvider) Name() string { return "mock" }

// AddResponse appends a text response to the queue.
func (s *ScriptedMockProvider) AddResponse(response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, ChatResponse{Content: response})
}

// AddToolCalls appends a response requesting the given tool calls.
func (s *ScriptedMockProvider) AddToolCalls(calls ...ToolCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, ChatResponse{ToolCalls: calls})
}

// Remaining returns the number of queued responses.
func (s *ScriptedMockProvider) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}
