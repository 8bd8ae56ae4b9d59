package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/HelmsmanAI/helmsman/internal/provider"
)

// DefaultSummaryPrompt asks the model for a hand-off grade summary of the
// conversation so far.
const DefaultSummaryPrompt = "Summarize the conversation so far: the task, " +
	"what has been done, important results, and what remains. Be concise " +
	"but keep every detail needed to continue the work."

// summaryPlaceholder stands in when the model returns an empty summary.
const summaryPlaceholder = "(no summary available; earlier context was dropped)"

// Compactor shrinks a session's history once it grows past the loop's
// threshold. When the transport can hold uploaded files, the full history
// is offloaded to a JSONL file and referenced by name; otherwise the model
// is asked for a one-turn summary. Either way the history is cleared, the
// turn counter resets, and the system prompt is untouched.
type Compactor struct {
	OffloadDir    string
	SummaryPrompt string
	Retry         provider.RetryPolicy
}

// NewCompactor creates a compactor writing offload files under dir.
func NewCompactor(dir string) *Compactor {
	return &Compactor{
		OffloadDir:    dir,
		SummaryPrompt: DefaultSummaryPrompt,
		Retry:         provider.DefaultRetryPolicy(),
	}
}

// Compact reduces s.History and returns a context hint for the next turn.
// The hint is empty when nothing useful could be preserved; the caller
// folds it into the next prompt.
func (c *Compactor) Compact(ctx context.Context, s *State, t provider.Transport) string {
	if s.Len() == 0 {
		return ""
	}

	var hint string
	if t.SupportsFileOffload() {
		hint = c.offload(s, t)
	} else {
		hint = c.summarize(ctx, s, t)
	}

	s.ReplaceHistory(nil)
	return hint
}

// offload writes the history to a JSONL file and uploads it so the model
// can consult the full transcript on demand.
func (c *Compactor) offload(s *State, t provider.Transport) string {
	name := fmt.Sprintf("history_%s_%d.jsonl", s.AgentName, time.Now().UnixNano())
	path := filepath.Join(c.OffloadDir, name)

	if err := writeJSONL(path, s.Snapshot()); err != nil {
		slog.Warn("History offload failed", "agent", s.AgentName, "error", err)
		return ""
	}
	if !t.UploadFile(path) {
		slog.Warn("History upload rejected", "agent", s.AgentName, "path", path)
		return ""
	}
	return fmt.Sprintf(
		"Earlier conversation history was moved to the uploaded file %s. "+
			"Consult it if you need details from before this point.", name)
}

// summarize asks the model for a single-turn summary of the history.
func (c *Compactor) summarize(ctx context.Context, s *State, t provider.Transport) string {
	history := append(s.Snapshot(), provider.Message{
		Role:    provider.RoleUser,
		Content: c.SummaryPrompt,
	})

	summary, err := provider.ChatWithRetry(ctx, t, c.Retry, "", history)
	if err != nil {
		slog.Warn("History summary failed", "agent", s.AgentName, "error", err)
		summary = ""
	}
	if summary == "" {
		summary = summaryPlaceholder
	}
	return "Summary of the conversation before this point:\n" + summary
}

func writeJSONL(path string, messages []provider.Message) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create offload dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create offload file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, msg := range messages {
		if err := enc.Encode(msg); err != nil {
			return fmt.Errorf("encode offload line: %w", err)
		}
	}
	return nil
}
