package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/HelmsmanAI/helmsman/internal/provider"
)

// snapshot is the on-disk form of a saved session.
type snapshot struct {
	Agent       string             `json:"agent"`
	Platform    string             `json:"platform"`
	Model       string             `json:"model"`
	Prompt      string             `json:"prompt,omitempty"`
	AddonPrompt string             `json:"addon_prompt,omitempty"`
	History     []provider.Message `json:"history"`
	TurnCount   int                `json:"turn_count"`
	SavedAt     time.Time          `json:"saved_at"`
}

// Store persists session state to disk, one JSON file per
// agent/platform/model triple.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes the state keyed by the transport identity. A later Restore
// with the same identity reproduces the state exactly.
func (st *Store) Save(s *State, platform, model string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s.mu.Lock()
	snap := snapshot{
		Agent:       s.AgentName,
		Platform:    platform,
		Model:       model,
		Prompt:      s.Prompt,
		AddonPrompt: s.AddonPrompt,
		History:     append([]provider.Message(nil), s.History...),
		TurnCount:   s.TurnCount,
		SavedAt:     time.Now(),
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	path := st.path(snap.Agent, platform, model)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Restore loads a previously saved state into s. Returns false with a nil
// error when no saved session exists for the identity.
func (st *Store) Restore(s *State, platform, model string) (bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	path := st.path(s.AgentName, platform, model)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read session file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return false, fmt.Errorf("decode session file: %w", err)
	}

	s.mu.Lock()
	s.Prompt = snap.Prompt
	s.AddonPrompt = snap.AddonPrompt
	s.History = snap.History
	s.TurnCount = snap.TurnCount
	s.mu.Unlock()
	return true, nil
}

// Delete removes the saved session for the identity, if any.
func (st *Store) Delete(agent, platform, model string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	return os.Remove(st.path(agent, platform, model)) == nil
}

// Info describes one saved session on disk.
type Info struct {
	Agent    string
	Platform string
	Model    string
	Turns    int
	SavedAt  time.Time
	Path     string
}

// List returns all saved sessions under the store directory.
func (st *Store) List() []Info {
	st.mu.Lock()
	defer st.mu.Unlock()

	var out []Info
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(st.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var snap snapshot
		if json.Unmarshal(data, &snap) != nil {
			continue
		}
		out = append(out, Info{
			Agent:    snap.Agent,
			Platform: snap.Platform,
			Model:    snap.Model,
			Turns:    snap.TurnCount,
			SavedAt:  snap.SavedAt,
			Path:     path,
		})
	}
	return out
}

func (st *Store) path(agent, platform, model string) string {
	key := fmt.Sprintf("saved_session_%s_%s_%s", agent, platform, model)
	// Strip path separators and traversal components to prevent path injection.
	key = strings.ReplaceAll(key, "/", "_")
	key = strings.ReplaceAll(key, "\\", "_")
	key = strings.ReplaceAll(key, "..", "_")
	return filepath.Join(st.dir, filepath.Base(key)+".json")
}
