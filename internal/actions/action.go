// Package actions provides the action framework: named, pattern-matched
// capabilities invoked at most once per model reply.
package actions

import "context"

// Result is the outcome of applying an action to a reply. It is an
// explicit tagged value: Terminal means the loop returns Text (and
// Directive, if any) to the caller immediately; otherwise Text is fed
// into the next turn's input.
type Result struct {
	Terminal  bool
	Text      string
	Directive *Directive
}

// Directive is the structured hand-off message produced by the
// SEND_MESSAGE action. It lives only for the single routing step.
type Directive struct {
	To      string `yaml:"to"`
	Content string `yaml:"content"`
}

// Action is a named capability matched against model replies.
type Action interface {
	// Name returns the action identifier shown to the model.
	Name() string
	// Prompt returns the usage instructions injected into the model's
	// addon prompt. May be empty.
	Prompt() string
	// Matches reports whether the reply addresses this action.
	Matches(reply string) bool
	// Apply executes the action against the reply. Errors are converted
	// to guidance text by the dispatcher; the loop never crashes on a
	// failing action.
	Apply(ctx context.Context, reply string) (Result, error)
}

// ConfirmFunc asks for permission before an action runs. Returning false
// skips execution for this turn.
type ConfirmFunc func(question string) bool
