package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sua-org/nursecall-bus/internal/store"
	"github.com/sua-org/nursecall-bus/internal/store/storetest"
)

func fixedClock() func() time.Time {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func TestAdvance_CreateThenUpdate(t *testing.T) {
	ctx := context.Background()
	mem := storetest.NewMemory()
	tr := NewTracker(time.UTC, zap.NewNop()).WithClock(fixedClock())

	first, err := tr.Advance(ctx, mem, 7, "Call")
	require.NoError(t, err)
	assert.Equal(t, TransitionCreated, first.Transition)
	require.NotNil(t, first.Session)

	second, err := tr.Advance(ctx, mem, 7, "Accept")
	require.NoError(t, err)
	assert.Equal(t, TransitionUpdated, second.Transition)
	require.NotNil(t, second.Session)
	assert.Equal(t, first.Session.ID, second.Session.ID)

	sessions := mem.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "Accept", sessions[0].CurrentEventType)
	assert.Equal(t, store.SessionActive, sessions[0].Status)
	assert.Equal(t, 1, mem.ActiveSessions(7))
}

func TestAdvance_ResetEndsSession(t *testing.T) {
	ctx := context.Background()
	mem := storetest.NewMemory()
	tr := NewTracker(time.UTC, zap.NewNop()).WithClock(fixedClock())

	_, err := tr.Advance(ctx, mem, 3, "Emergency")
	require.NoError(t, err)

	res, err := tr.Advance(ctx, mem, 3, "RESET")
	require.NoError(t, err)
	assert.Equal(t, TransitionEnded, res.Transition)
	assert.Nil(t, res.Session)

	sessions := mem.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, store.SessionEnded, sessions[0].Status)
	require.NotNil(t, sessions[0].EndedAt)
	assert.Equal(t, fixedClock()(), *sessions[0].EndedAt)
	assert.Equal(t, 0, mem.ActiveSessions(3))

	// novo evento depois do reset abre outra sessão
	res, err = tr.Advance(ctx, mem, 3, "Call")
	require.NoError(t, err)
	assert.Equal(t, TransitionCreated, res.Transition)
	assert.Len(t, mem.Sessions(), 2)
	assert.Equal(t, 1, mem.ActiveSessions(3))
}

func TestAdvance_ResetWithoutSessionIsNoop(t *testing.T) {
	mem := storetest.NewMemory()
	tr := NewTracker(time.UTC, zap.NewNop())

	res, err := tr.Advance(context.Background(), mem, 9, "Reset")
	require.NoError(t, err)
	assert.Equal(t, TransitionNone, res.Transition)
	assert.Nil(t, res.Session)
	assert.Empty(t, mem.Sessions())
}

func TestAdvance_BedsAreIndependent(t *testing.T) {
	ctx := context.Background()
	mem := storetest.NewMemory()
	tr := NewTracker(time.UTC, zap.NewNop())

	for _, ev := range []string{"Call", "Presence", "Call"} {
		_, err := tr.Advance(ctx, mem, 1, ev)
		require.NoError(t, err)
		_, err = tr.Advance(ctx, mem, 2, ev)
		require.NoError(t, err)
	}
	_, err := tr.Advance(ctx, mem, 1, "reset")
	require.NoError(t, err)

	assert.Equal(t, 0, mem.ActiveSessions(1))
	assert.Equal(t, 1, mem.ActiveSessions(2))
}
