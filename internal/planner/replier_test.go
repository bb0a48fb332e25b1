// ABOUTME: Tests for the echo replier
// ABOUTME: Checks opening, planning and follow-up replies

package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-planner/internal/store"
)

func TestEchoReplier(t *testing.T) {
	r := EchoReplier{}
	ctx := context.Background()

	opening, err := r.Reply(ctx, nil, "weekend in Porto")
	require.NoError(t, err)
	assert.Contains(t, opening, "**weekend in Porto**")
	assert.Contains(t, opening, "# Plan started")

	history := store.Transcript{store.UserMessage("weekend in Porto"), store.AgentMessage(opening)}

	plan, err := r.Reply(ctx, history, "show me the plan")
	require.NoError(t, err)
	assert.Contains(t, plan, "1. First step")

	followUp, err := r.Reply(ctx, history, "cheaper hotels")
	require.NoError(t, err)
	assert.Contains(t, followUp, "Turn 2")
	assert.Contains(t, followUp, "**cheaper hotels**")
}
