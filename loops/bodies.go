package loops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/nicebartender/roombot/registry"
	"github.com/nicebartender/roombot/space"
)

var errNoDances = errors.New("no dances available")

// minSleep keeps a zero or negative interval from spinning.
const minSleep = 10 * time.Millisecond

// step performs one unit of work and returns how long to sleep before the
// next one.
type step func(ctx context.Context, h *Handle) (time.Duration, error)

func (m *Manager) run(h *Handle) {
	defer m.wg.Done()
	defer m.release(h)
	defer close(h.done)
	defer h.cancel()
	defer func() {
		if r := recover(); r != nil {
			h.setReason(ReasonPanic)
			slog.Error("loop panicked", "loop", h.ID, "kind", h.Kind, "entity", h.Entity,
				"panic", r, "stack", string(debug.Stack()))
		}
	}()

	body := m.stepFor(h.Kind)
	for {
		if h.ctx.Err() != nil {
			return
		}
		wait, err := body(h.ctx, h)
		if h.ctx.Err() != nil {
			return
		}
		switch {
		case errors.Is(err, space.ErrEntityGone):
			h.setReason(ReasonEntityGone)
			h.cancel()
			return
		case err != nil:
			slog.Warn("loop iteration failed", "loop", h.ID, "kind", h.Kind, "entity", h.Entity, "err", err)
		}
		if !sleep(h.ctx, wait) {
			return
		}
	}
}

func (m *Manager) stepFor(k Kind) step {
	switch k {
	case EmoteLoop:
		return m.emoteStep
	case RandomEmoteLoop:
		return m.randomEmoteStep
	case TeleportScatterLoop:
		return m.scatterStep
	case PositionEnforceLoop:
		return m.enforceStep
	case FollowLoop:
		return m.followStep
	}
	panic(fmt.Sprintf("loops: no body for %v", k))
}

func (m *Manager) emoteStep(ctx context.Context, h *Handle) (time.Duration, error) {
	a := h.Params.Animation
	return a.Interval, m.call(ctx, func(ctx context.Context) error {
		return m.platform.TriggerAnimation(ctx, a.ID, h.Entity)
	})
}

func (m *Manager) randomEmoteStep(ctx context.Context, h *Handle) (time.Duration, error) {
	a, ok := h.Params.Dances.RandomDance(h.rnd)
	if !ok {
		// Validation saw a dance, but a Dances source may still run dry.
		return m.cfg.RetryInterval, errNoDances
	}
	return a.Interval, m.call(ctx, func(ctx context.Context) error {
		return m.platform.TriggerAnimation(ctx, a.ID, h.Entity)
	})
}

func (m *Manager) scatterStep(ctx context.Context, h *Handle) (time.Duration, error) {
	pos := h.Params.Bounds.Random(h.rnd.IntN)
	return h.Params.Interval, m.call(ctx, func(ctx context.Context) error {
		return m.platform.MoveEntity(ctx, h.Entity, pos)
	})
}

func (m *Manager) enforceStep(ctx context.Context, h *Handle) (time.Duration, error) {
	interval := m.cfg.EnforceInterval
	occ, err := m.locate(ctx, h.Entity)
	if err != nil {
		return interval, err
	}
	// A seated entity has no coordinates to compare; check again next cycle.
	if ctx.Err() != nil || occ.Anchored || occ.Position.Equal(h.Params.Baseline) {
		return interval, nil
	}
	return interval, m.call(ctx, func(ctx context.Context) error {
		return m.platform.MoveEntity(ctx, h.Entity, h.Params.Baseline)
	})
}

func (m *Manager) followStep(ctx context.Context, h *Handle) (time.Duration, error) {
	interval := m.cfg.FollowInterval
	occ, err := m.locate(ctx, h.Entity)
	if err != nil {
		return interval, err
	}
	if ctx.Err() != nil || occ.Anchored {
		return interval, nil
	}
	off := h.Params.Offset
	dest := occ.Position.Offset(off.X, off.Y, off.Z)
	return interval, m.call(ctx, func(ctx context.Context) error {
		return m.platform.WalkTo(ctx, dest)
	})
}

// locate refreshes the room and finds entity in it. A successful refresh
// without the entity means it left.
func (m *Manager) locate(ctx context.Context, entity string) (space.Occupant, error) {
	var snap registry.Snapshot
	err := m.call(ctx, func(ctx context.Context) error {
		var err error
		snap, err = m.entities.Refresh(ctx)
		return err
	})
	if err != nil {
		return space.Occupant{}, err
	}
	occ, err := snap.ByID(entity)
	if err != nil {
		return occ, fmt.Errorf("%w: %w", space.ErrEntityGone, err)
	}
	return occ, nil
}

// call runs fn under the per-call timeout. A call that runs out of time is
// reported as ErrPlatformUnavailable.
func (m *Manager) call(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()
	err := fn(cctx)
	if err != nil && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("call timed out after %v: %w", m.cfg.CallTimeout, space.ErrPlatformUnavailable)
	}
	return err
}

// sleep waits for d or until ctx is done, and reports whether the loop
// should continue.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(max(d, minSleep))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
