package txn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/engine/memengine"
	"github.com/blite-io/blite-server/internal/identity"
)

type recordingInvalidator struct {
	invalidated []string
}

func (r *recordingInvalidator) Invalidate(databaseID, physicalCollection string) {
	r.invalidated = append(r.invalidated, databaseID+"/"+physicalCollection)
}
func (r *recordingInvalidator) InvalidateDatabase(string) {}

func newTestRegistry(t *testing.T) *engine.Registry {
	reg, err := engine.NewRegistry(memengine.Factory)
	require.NoError(t, err)
	return reg
}

func TestBeginCommitInvalidatesDirtyCollections(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	inv := &recordingInvalidator{}
	coord := New(reg, inv, nil, Config{})

	user := identity.User{Username: "alice", Active: true}
	sessionID, err := coord.Begin(ctx, user)
	require.NoError(t, err)

	sess, err := coord.Require(sessionID, "alice")
	require.NoError(t, err)
	coord.MarkDirty(sess, "widgets")

	require.NoError(t, coord.Commit(ctx, sessionID, "alice"))
	require.Equal(t, []string{"/widgets"}, inv.invalidated)

	_, err = coord.Require(sessionID, "alice")
	require.Error(t, err)
}

func TestOnlyOneActiveTransactionPerDatabase(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	coord := New(reg, nil, nil, Config{AcquireWait: 50 * time.Millisecond})

	user := identity.User{Username: "alice", Active: true}
	first, err := coord.Begin(ctx, user)
	require.NoError(t, err)
	require.True(t, coord.HasActive(engine.SystemDatabaseID))

	_, err = coord.Begin(ctx, user)
	require.Error(t, err)

	require.NoError(t, coord.Rollback(ctx, first, "alice"))
	require.False(t, coord.HasActive(engine.SystemDatabaseID))

	second, err := coord.Begin(ctx, user)
	require.NoError(t, err)
	require.NoError(t, coord.Rollback(ctx, second, "alice"))
}

func TestRequireRejectsWrongOwner(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	coord := New(reg, nil, nil, Config{})

	sessionID, err := coord.Begin(ctx, identity.User{Username: "alice", Active: true})
	require.NoError(t, err)

	_, err = coord.Require(sessionID, "mallory")
	require.Error(t, err)
	require.NoError(t, coord.Rollback(ctx, sessionID, "alice"))
}

func TestSweepRollsBackIdleSessions(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	coord := New(reg, nil, nil, Config{IdleThreshold: time.Millisecond})

	sessionID, err := coord.Begin(ctx, identity.User{Username: "alice", Active: true})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	coord.Sweep()

	_, err = coord.Require(sessionID, "alice")
	require.Error(t, err)
	require.False(t, coord.HasActive(engine.SystemDatabaseID))
}
