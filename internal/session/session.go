// Package session holds per-agent conversation state: the pending prompt
// pair, the message history, and the turn counter, plus persistence and
// history compaction.
package session

import (
	"strings"
	"sync"

	"github.com/HelmsmanAI/helmsman/internal/provider"
)

// State is the mutable conversation state of one agent run. Prompt is the
// next user input; AddonPrompt is transient per-turn guidance appended
// after it. Both are consumed by the loop when a model call is made.
type State struct {
	AgentName   string
	Prompt      string
	AddonPrompt string
	History     []provider.Message
	TurnCount   int
	LastAction  string

	mu sync.Mutex
}

// NewState creates an empty state for the named agent.
func NewState(agentName string) *State {
	return &State{AgentName: agentName}
}

// JoinPrompt combines the prompt and addon prompt into the next user
// input, skipping empty parts.
func (s *State) JoinPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts := make([]string, 0, 2)
	if s.Prompt != "" {
		parts = append(parts, s.Prompt)
	}
	if s.AddonPrompt != "" {
		parts = append(parts, s.AddonPrompt)
	}
	return strings.Join(parts, "\n")
}

// SetPrompt replaces the pending prompt.
func (s *State) SetPrompt(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompt = prompt
}

// SetAddonPrompt replaces the transient per-turn guidance.
func (s *State) SetAddonPrompt(addon string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AddonPrompt = addon
}

// ClearPrompts empties both prompt slots after they were consumed.
func (s *State) ClearPrompts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompt = ""
	s.AddonPrompt = ""
}

// AppendTurn records one user input and the model's reply, advancing the
// turn counter.
func (s *State) AppendTurn(input, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.History = append(s.History,
		provider.Message{Role: provider.RoleUser, Content: input},
		provider.Message{Role: provider.RoleAssistant, Content: reply},
	)
	s.TurnCount++
}

// Snapshot returns a copy of the history safe to hand to a transport.
func (s *State) Snapshot() []provider.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]provider.Message, len(s.History))
	copy(out, s.History)
	return out
}

// ReplaceHistory swaps the history wholesale and resets the turn counter.
// Used by compaction after the old history has been summarized or
// offloaded.
func (s *State) ReplaceHistory(history []provider.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.History = history
	s.TurnCount = 0
}

// Clear drops the history and turn counter but keeps the agent identity
// and any pending prompts.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.History = nil
	s.TurnCount = 0
}

// Len returns the number of messages in the history.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.History)
}
