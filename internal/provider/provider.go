// Package provider defines the chat transport contract consumed by the
// agent core. Concrete platform adapters (HTTP, auth, streaming) live
// outside this module; the core only needs the interface below.
package provider

import (
	"context"
	"fmt"
)

// Message is a single entry in a conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Transport is the chat transport contract.
type Transport interface {
	// Chat sends the system prompt and history and returns the model's
	// free-text reply. Failures are reported as *TransportError.
	Chat(ctx context.Context, systemPrompt string, history []Message) (string, error)
	// SupportsFileOffload reports whether the platform can receive
	// conversation history as an uploaded file.
	SupportsFileOffload() bool
	// UploadFile pushes a file to the platform. Returns false on failure.
	UploadFile(path string) bool
	// PlatformName identifies the platform for session keying.
	PlatformName() string
	// ModelName identifies the model for session keying.
	ModelName() string
}

// TransportError wraps a failed transport call. Retryable errors are
// candidates for bounded backoff; others surface immediately.
type TransportError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport %s failed", e.Op)
	}
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transport error marked retryable.
// Non-transport errors are treated as retryable: an adapter that does not
// classify its failures should not lose the retry budget.
func IsRetryable(err error) bool {
	if te, ok := err.(*TransportError); ok {
		return te.Retryable
	}
	return err != nil
}
