// ABOUTME: Reply generation for the fake dialogue service
// ABOUTME: Replier is the model seam; EchoReplier answers with canned markdown for local development

package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/coven-planner/internal/store"
)

// Replier produces the agent's reply to input given the prior history of
// the conversation (empty for the opening message).
type Replier interface {
	Reply(ctx context.Context, history store.Transcript, input string) (string, error)
}

// ReplierFunc adapts a function to Replier.
type ReplierFunc func(ctx context.Context, history store.Transcript, input string) (string, error)

// Reply implements Replier.
func (f ReplierFunc) Reply(ctx context.Context, history store.Transcript, input string) (string, error) {
	return f(ctx, history, input)
}

// EchoReplier answers every message with formatted text that mentions the
// input, so the client's markdown rendering can be exercised.
type EchoReplier struct{}

// Reply implements Replier.
func (EchoReplier) Reply(_ context.Context, history store.Transcript, input string) (string, error) {
	lower := strings.ToLower(input)
	turn := len(history)/2 + 1

	switch {
	case len(history) == 0:
		return fmt.Sprintf("# Plan started\n\nYou asked: **%s**\n\nTell me more and I will refine the plan.", input), nil
	case strings.Contains(lower, "markdown") || strings.Contains(lower, "list") || strings.Contains(lower, "plan"):
		return "Here is a **draft** plan:\n\n1. First step\n2. Second step with `details`\n3. Third step\n\n> Ask me to change any step.", nil
	default:
		return fmt.Sprintf("Turn %d: **%s**\n\nNoted. I have *%d* earlier messages in this conversation.", turn, input, len(history)), nil
	}
}
