package digest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newscrunch/internal/core"
	"newscrunch/internal/persistence"
)

func TestCreateAllocatesSequentialIDs(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	c := NewController(store)

	first, err := c.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, first.ID)
	assert.Equal(t, core.StateCreated, first.State)

	// A second digest cannot be created while the first is incomplete.
	_, err = c.Create(ctx)
	assert.Error(t, err)

	// Walk the first digest to READY, then the next id follows on.
	for i := 0; i < len(core.DigestStates)-1; i++ {
		expected, final := core.DigestStates[i], core.DigestStates[i+1]
		require.NoError(t, c.Advance(ctx, expected, final,
			func(ctx context.Context, d core.Digest) error { return nil }))
	}

	second, err := c.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.ID)
}

func TestAdvanceWrongState(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	c := NewController(store)

	d, err := c.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Advance(ctx, core.StateCreated, core.StateArticlesCollected,
		func(ctx context.Context, d core.Digest) error { return nil }))
	require.NoError(t, c.Advance(ctx, core.StateArticlesCollected, core.StateArticlesEmbedded,
		func(ctx context.Context, d core.Digest) error { return nil }))

	// The collector stage expects CREATED; the digest has moved on.
	ran := false
	err = c.Advance(ctx, core.StateCreated, core.StateArticlesCollected,
		func(ctx context.Context, d core.Digest) error { ran = true; return nil })

	var ws *WrongState
	require.ErrorAs(t, err, &ws)
	assert.Equal(t, d.ID, ws.DigestID)
	assert.Equal(t, core.StateArticlesEmbedded, ws.Actual)
	assert.Equal(t, core.StateCreated, ws.Expected)
	assert.False(t, ran, "the stage must not run in the wrong state")

	current, err := c.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.StateArticlesEmbedded, current.State)
}

func TestAdvanceStageFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	c := NewController(store)

	_, err := c.Create(ctx)
	require.NoError(t, err)

	boom := errors.New("stage exploded")
	err = c.Advance(ctx, core.StateCreated, core.StateArticlesCollected,
		func(ctx context.Context, d core.Digest) error { return boom })
	assert.ErrorIs(t, err, boom)

	current, err := c.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.StateCreated, current.State)
}

func TestAdvanceBumpsTimestamp(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	c := NewController(store)

	t0 := time.Date(2025, 8, 20, 6, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return t0 }
	d, err := c.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, t0, d.TS)

	t1 := t0.Add(time.Hour)
	c.now = func() time.Time { return t1 }
	require.NoError(t, c.Advance(ctx, core.StateCreated, core.StateArticlesCollected,
		func(ctx context.Context, d core.Digest) error { return nil }))

	current, err := c.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, t1, current.TS)
}

func TestAdvanceWithoutDigest(t *testing.T) {
	c := NewController(persistence.NewMemoryStore())
	err := c.Advance(context.Background(), core.StateCreated, core.StateArticlesCollected,
		func(ctx context.Context, d core.Digest) error { return nil })
	assert.Error(t, err)
}
