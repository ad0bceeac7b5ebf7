// Package digest drives the digest lifecycle state machine. Every pipeline
// stage runs under Advance, which gates it on the expected state and moves
// the digest forward only when the stage succeeds.
package digest

import (
	"context"
	"fmt"
	"time"

	"newscrunch/internal/core"
	"newscrunch/internal/logger"
	"newscrunch/internal/persistence"
)

// WrongState reports a stage invoked while the digest is in the wrong
// lifecycle state. Nothing is mutated.
type WrongState struct {
	DigestID int
	Actual   core.DigestState
	Expected core.DigestState
}

func (e *WrongState) Error() string {
	return fmt.Sprintf("digest %d is in state %s, expected %s", e.DigestID, e.Actual, e.Expected)
}

// StageFn is one pipeline stage body, run against the current digest.
type StageFn func(ctx context.Context, d core.Digest) error

// Controller owns digest rows and their state transitions.
type Controller struct {
	store persistence.Store
	now   func() time.Time
}

// NewController builds a controller over the store.
func NewController(store persistence.Store) *Controller {
	return &Controller{store: store, now: time.Now}
}

// Create allocates the next digest id and inserts it in state CREATED. There
// may be at most one non-READY digest, so creation fails while one exists.
func (c *Controller) Create(ctx context.Context) (core.Digest, error) {
	if current, err := c.store.Digests().LatestIncomplete(ctx); err == nil {
		return core.Digest{}, fmt.Errorf("digest %d is still in state %s", current.ID, current.State)
	} else if !persistence.IsNotFound(err) {
		return core.Digest{}, fmt.Errorf("failed to check for incomplete digest: %w", err)
	}

	id := 0
	if maxID, ok, err := c.store.Digests().MaxID(ctx); err != nil {
		return core.Digest{}, fmt.Errorf("failed to read max digest id: %w", err)
	} else if ok {
		id = maxID + 1
	}

	d := core.Digest{ID: id, TS: c.now().UTC(), State: core.StateCreated}
	if err := c.store.Digests().Create(ctx, d); err != nil {
		return core.Digest{}, fmt.Errorf("failed to create digest %d: %w", id, err)
	}
	logger.Get().Info("Created digest", "digest_id", id)
	return d, nil
}

// Current returns the latest incomplete digest.
func (c *Controller) Current(ctx context.Context) (core.Digest, error) {
	return c.store.Digests().LatestIncomplete(ctx)
}

// Advance verifies the current digest is in expected, runs the stage, and on
// success moves it to final with a fresh timestamp. If the stage fails the
// state is left untouched and the error propagates.
func (c *Controller) Advance(ctx context.Context, expected, final core.DigestState, stage StageFn) error {
	d, err := c.store.Digests().LatestIncomplete(ctx)
	if err != nil {
		return fmt.Errorf("no incomplete digest: %w", err)
	}
	if d.State != expected {
		return &WrongState{DigestID: d.ID, Actual: d.State, Expected: expected}
	}

	if err := stage(ctx, d); err != nil {
		return err
	}

	moved, err := c.store.Digests().AdvanceState(ctx, d.ID, expected, final, c.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to advance digest %d: %w", d.ID, err)
	}
	if !moved {
		// Someone advanced it between our read and update.
		refreshed, err := c.store.Digests().LatestIncomplete(ctx)
		actual := core.DigestState("")
		if err == nil && refreshed.ID == d.ID {
			actual = refreshed.State
		}
		return &WrongState{DigestID: d.ID, Actual: actual, Expected: expected}
	}
	logger.Get().Info("Digest advanced", "digest_id", d.ID, "from", expected, "to", final)
	return nil
}
