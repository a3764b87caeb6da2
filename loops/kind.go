package loops

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nicebartender/roombot/emotes"
	"github.com/nicebartender/roombot/space"
)

type Kind int

const (
	EmoteLoop Kind = iota + 1
	RandomEmoteLoop
	TeleportScatterLoop
	PositionEnforceLoop
	FollowLoop
)

func (k Kind) String() string {
	switch k {
	case EmoteLoop:
		return "emote"
	case RandomEmoteLoop:
		return "random_emote"
	case TeleportScatterLoop:
		return "scatter"
	case PositionEnforceLoop:
		return "enforce"
	case FollowLoop:
		return "follow"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// group is the exclusive slot family a kind belongs to. Kinds in the same
// group supersede each other; kinds in different groups coexist.
type group int

const (
	groupEmote group = iota
	groupMotion
	groupFollow
)

func (k Kind) group() group {
	switch k {
	case TeleportScatterLoop, PositionEnforceLoop:
		return groupMotion
	case FollowLoop:
		return groupFollow
	default:
		return groupEmote
	}
}

type slotKey struct {
	entity string
	group  group
}

// keyFor maps an (entity, kind) pair to its slot. Follow has a single slot
// for the whole room.
func keyFor(entity string, k Kind) slotKey {
	if k.group() == groupFollow {
		return slotKey{group: groupFollow}
	}
	return slotKey{entity: entity, group: k.group()}
}

// Dances supplies the random emote loop with a fresh animation per cycle.
type Dances interface {
	RandomDance(r *rand.Rand) (emotes.Animation, bool)
}

// Params carries the kind-specific settings of a loop. Only the fields of
// the started kind are read.
type Params struct {
	Animation emotes.Animation // EmoteLoop
	Dances    Dances           // RandomEmoteLoop
	Bounds    space.Bounds     // TeleportScatterLoop
	Interval  time.Duration    // TeleportScatterLoop
	Baseline  space.Position   // PositionEnforceLoop
	Offset    space.Position   // FollowLoop, added to the target's position
}

var ErrInvalidParams = errors.New("invalid loop params")

func (p Params) validate(k Kind) error {
	switch k {
	case EmoteLoop:
		if p.Animation.ID == "" || p.Animation.Interval <= 0 {
			return fmt.Errorf("%w: emote loop needs an animation with an interval", ErrInvalidParams)
		}
	case RandomEmoteLoop:
		if p.Dances == nil {
			return fmt.Errorf("%w: random emote loop needs a catalog", ErrInvalidParams)
		}
		if _, ok := p.Dances.RandomDance(nil); !ok {
			return fmt.Errorf("%w: catalog has no dances", ErrInvalidParams)
		}
	case TeleportScatterLoop:
		if !p.Bounds.Valid() {
			return fmt.Errorf("%w: scatter bounds %+v", ErrInvalidParams, p.Bounds)
		}
	case PositionEnforceLoop, FollowLoop:
	default:
		return fmt.Errorf("%w: unknown kind %v", ErrInvalidParams, k)
	}
	return nil
}

// Reason records why a loop ended.
type Reason string

const (
	ReasonStopped       Reason = "stopped"
	ReasonSuperseded    Reason = "superseded"
	ReasonEntityGone    Reason = "entity_gone"
	ReasonCancelTimeout Reason = "cancel_timeout"
	ReasonPanic         Reason = "panic"
	ReasonShutdown      Reason = "shutdown"
)

// Snapshot is a read-only copy of a handle's state.
type Snapshot struct {
	ID        string
	Entity    string
	Kind      Kind
	Animation string
	Baseline  space.Position
	StartedAt time.Time
}

// Handle is one running loop.
type Handle struct {
	ID        string
	Entity    string
	Kind      Kind
	Params    Params
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	rnd    *rand.Rand

	mu       sync.Mutex
	reason   Reason
	reported bool
}

// Done is closed once the loop body has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Snapshot() Snapshot {
	return Snapshot{
		ID:        h.ID,
		Entity:    h.Entity,
		Kind:      h.Kind,
		Animation: h.Params.Animation.Name,
		Baseline:  h.Params.Baseline,
		StartedAt: h.StartedAt,
	}
}

// Reason is empty while the loop is running.
func (h *Handle) Reason() Reason {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason
}

// stop records reason (the first one wins) and signals cancellation.
func (h *Handle) stop(reason Reason) {
	h.setReason(reason)
	h.cancel()
}

func (h *Handle) setReason(reason Reason) {
	h.mu.Lock()
	if h.reason == "" {
		h.reason = reason
	}
	h.mu.Unlock()
}

// markReported returns true the first time it is called.
func (h *Handle) markReported() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reported {
		return false
	}
	h.reported = true
	return true
}
