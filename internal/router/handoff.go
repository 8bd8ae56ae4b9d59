package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/HelmsmanAI/helmsman/internal/actions"
	"github.com/HelmsmanAI/helmsman/internal/protocol"
)

// HandoffBlock is the action-block name for agent hand-offs.
const HandoffBlock = "SEND_MESSAGE"

// HandoffAction parses SEND_MESSAGE blocks out of a reply and turns them
// into routing directives. Validation errors come back as guidance so the
// sending agent can correct itself in the next turn.
type HandoffAction struct {
	Router *Router
	// Self is the sending agent; a hand-off to yourself is rejected.
	Self string
}

func (h *HandoffAction) Name() string { return "send_message" }

func (h *HandoffAction) Prompt() string {
	return fmt.Sprintf(
		"To hand the task to another agent, reply with exactly one block:\n"+
			"%s\nto: TargetName\ncontent: |2\n  what the target should do\n%s\n"+
			"Valid targets: %s.",
		protocol.OpenTag(HandoffBlock), protocol.CloseTag(HandoffBlock),
		strings.Join(h.Router.Targets(), ", "))
}

func (h *HandoffAction) Matches(reply string) bool {
	return protocol.HasBlock(reply, HandoffBlock)
}

func (h *HandoffAction) Apply(ctx context.Context, reply string) (actions.Result, error) {
	blocks, _ := protocol.ExtractBlocks(reply, HandoffBlock)
	if len(blocks) == 0 {
		return actions.Result{Text: protocol.MissingCloseGuidance(HandoffBlock)}, nil
	}
	if len(blocks) > 1 {
		return actions.Result{Text: fmt.Sprintf(
			"Found %d %s blocks; exactly one hand-off per reply is permitted.",
			len(blocks), HandoffBlock)}, nil
	}

	var d actions.Directive
	if err := protocol.DecodeBlock(blocks[0], &d); err != nil {
		return actions.Result{Text: protocol.MalformedGuidance(HandoffBlock, err)}, nil
	}

	var missing []string
	if strings.TrimSpace(d.To) == "" {
		missing = append(missing, "to")
	}
	if strings.TrimSpace(d.Content) == "" {
		missing = append(missing, "content")
	}
	if len(missing) > 0 {
		return actions.Result{Text: protocol.MissingFieldsGuidance(HandoffBlock, missing)}, nil
	}

	if d.To == h.Self {
		return actions.Result{Text: fmt.Sprintf(
			"You cannot hand the task to yourself (%s). Valid targets: %s.",
			h.Self, strings.Join(h.Router.Targets(), ", "))}, nil
	}
	if err := h.Router.Route(&d); err != nil {
		return actions.Result{Text: err.Error()}, nil
	}

	return actions.Result{Terminal: true, Directive: &d}, nil
}
