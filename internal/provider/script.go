package provider

import (
	"context"
	"sync"
)

// ScriptTransport replays a fixed sequence of replies. It exists for CLI
// dry runs and tests; real platform adapters implement Transport outside
// this module.
type ScriptTransport struct {
	mu       sync.Mutex
	replies  []string
	next     int
	platform string
	model    string

	// Offload controls SupportsFileOffload; Uploaded records UploadFile
	// calls so tests can assert on the offload path.
	Offload  bool
	Uploaded []string

	// Calls records every (systemPrompt, history) pair seen by Chat.
	Calls []ChatCall
}

// ChatCall is one recorded transport invocation.
type ChatCall struct {
	SystemPrompt string
	History      []Message
}

// NewScriptTransport creates a transport that returns the given replies in
// order, then empty strings.
func NewScriptTransport(platform, model string, replies ...string) *ScriptTransport {
	return &ScriptTransport{replies: replies, platform: platform, model: model}
}

func (s *ScriptTransport) Chat(ctx context.Context, systemPrompt string, history []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &TransportError{Op: "chat", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	hist := make([]Message, len(history))
	copy(hist, history)
	s.Calls = append(s.Calls, ChatCall{SystemPrompt: systemPrompt, History: hist})

	if s.next >= len(s.replies) {
		return "", nil
	}
	reply := s.replies[s.next]
	s.next++
	return reply, nil
}

func (s *ScriptTransport) SupportsFileOffload() bool { return s.Offload }

func (s *ScriptTransport) UploadFile(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Uploaded = append(s.Uploaded, path)
	return true
}

func (s *ScriptTransport) PlatformName() string { return s.platform }
func (s *ScriptTransport) ModelName() string    { return s.model }
