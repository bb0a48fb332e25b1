// ABOUTME: End-to-end tests running the coordinator over HTTP against the fake dialogue service
// ABOUTME: Checks commit, rollback on a real 404, reset and idempotency headers through the full stack

package conversation

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/2389/coven-planner/internal/dedupe"
	"github.com/2389/coven-planner/internal/observe"
	"github.com/2389/coven-planner/internal/planner"
	"github.com/2389/coven-planner/internal/store"
	"github.com/2389/coven-planner/internal/transport"
)

type e2eEnv struct {
	coord    *Coordinator
	store    *store.Store
	sessions *planner.Sessions
}

func newE2E(t *testing.T) *e2eEnv {
	t.Helper()

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	require.NoError(t, err)

	sessions := planner.NewSessions(time.Hour, nil)
	t.Cleanup(sessions.Close)
	cache := dedupe.New(time.Minute, 100)
	t.Cleanup(cache.Close)

	srv := httptest.NewServer(planner.NewServer(planner.Options{
		Sessions:    sessions,
		Idempotency: cache,
		Metrics:     met,
	}, nil))
	t.Cleanup(srv.Close)

	client := transport.NewHTTPClient(transport.HTTPConfig{
		BaseURL: srv.URL + planner.APIPrefix,
		Timeout: 5 * time.Second,
	}, nil)
	client.SetMetrics(met)

	st := store.New(nil)
	t.Cleanup(st.Close)

	coord := New(st, client, nil)
	coord.SetMetrics(met)

	return &e2eEnv{coord: coord, store: st, sessions: sessions}
}

func TestE2E_ConversationLifecycle(t *testing.T) {
	env := newE2E(t)
	ctx := context.Background()

	res, err := env.coord.Submit(ctx, "alice", "Plan a trip to Lisbon")
	require.NoError(t, err)
	assert.Contains(t, res.Reply.Text, "Plan a trip to Lisbon")
	assert.Equal(t, PhaseActive, env.coord.Phase("alice"))

	_, err = env.coord.Submit(ctx, "alice", "add a museum day")
	require.NoError(t, err)

	local := env.store.Get("alice")
	remote, ok := env.sessions.Get("alice")
	require.True(t, ok)
	assert.Equal(t, remote, local, "local transcript mirrors the service history")

	require.NoError(t, env.coord.Reset(ctx, "alice"))
	_, ok = env.store.Lookup("alice")
	assert.False(t, ok)
	_, ok = env.sessions.Get("alice")
	assert.False(t, ok)
	assert.Equal(t, PhaseNotStarted, env.coord.Phase("alice"))
}

func TestE2E_ExpiredSessionRollsBack(t *testing.T) {
	env := newE2E(t)
	ctx := context.Background()

	_, err := env.coord.Submit(ctx, "alice", "hello")
	require.NoError(t, err)
	before := env.store.Get("alice")

	// The service forgets the user, as when its session TTL lapses
	env.sessions.Delete("alice")

	_, err = env.coord.SubmitNext(ctx, "alice", "still there?")
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrSessionNotFound)

	var tf *TransportFailure
	require.ErrorAs(t, err, &tf)
	assert.Equal(t, "still there?", tf.Text)
	assert.Equal(t, before, env.store.Get("alice"))

	// Reset succeeds even though the service has no session
	require.NoError(t, env.coord.Reset(ctx, "alice"))
	_, err = env.coord.Submit(ctx, "alice", "start over")
	require.NoError(t, err)
	assert.Len(t, env.store.Get("alice"), 2)
}
