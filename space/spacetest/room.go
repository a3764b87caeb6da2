// Package spacetest provides an in-memory room that satisfies
// space.Platform and records every call made against it.
package spacetest

import (
	"context"
	"slices"
	"sync"

	"github.com/nicebartender/roombot/space"
)

const (
	OpGetEntities = "get_entities"
	OpMove        = "move"
	OpWalk        = "walk"
	OpAnimate     = "animate"
	OpSay         = "say"
	OpWhisper     = "whisper"
	OpPrivilege   = "privilege"
	OpKick        = "kick"
)

type Call struct {
	Op        string
	EntityID  string
	Animation string
	Position  space.Position
	Text      string
}

// Room is safe for concurrent use.
type Room struct {
	// Hook, when set, runs before every call. A non-nil error fails the call.
	Hook func(ctx context.Context, c Call) error

	mu         sync.Mutex
	occupants  []space.Occupant
	privileged map[string]bool
	errs       map[string]error
	calls      []Call
	walked     []space.Position
}

func NewRoom(occupants ...space.Occupant) *Room {
	return &Room{
		occupants:  slices.Clone(occupants),
		privileged: make(map[string]bool),
		errs:       make(map[string]error),
	}
}

// Occupant is a shorthand for building test fixtures.
func Occupant(id, name string, x, y, z float64) space.Occupant {
	return space.Occupant{
		Entity:   space.Entity{ID: id, Name: name},
		Position: space.Position{X: x, Y: y, Z: z},
	}
}

func (r *Room) Join(o space.Occupant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.occupants = append(r.occupants, o)
}

func (r *Room) Leave(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.occupants = slices.DeleteFunc(r.occupants, func(o space.Occupant) bool { return o.Entity.ID == id })
}

func (r *Room) SetPosition(id string, pos space.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.occupants {
		if r.occupants[i].Entity.ID == id {
			r.occupants[i].Position = pos
			r.occupants[i].Anchored = false
		}
	}
}

// Sit anchors id to furniture, as the platform reports seated users.
func (r *Room) Sit(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.occupants {
		if r.occupants[i].Entity.ID == id {
			r.occupants[i].Position = space.Position{}
			r.occupants[i].Anchored = true
		}
	}
}

func (r *Room) Position(id string) (space.Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return space.Position{}, false
	}
	return r.occupants[i].Position, true
}

func (r *Room) SetPrivileged(id string, v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.privileged[id] = v
}

// SetError makes every call of op fail with err until cleared with a nil err.
func (r *Room) SetError(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.errs, op)
		return
	}
	r.errs[op] = err
}

func (r *Room) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func (r *Room) CallsOf(op string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (r *Room) Count(op string) int {
	return len(r.CallsOf(op))
}

func (r *Room) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Room) Walked() []space.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.walked)
}

func (r *Room) indexLocked(id string) int {
	return slices.IndexFunc(r.occupants, func(o space.Occupant) bool { return o.Entity.ID == id })
}

func (r *Room) begin(ctx context.Context, c Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Hook != nil {
		if err := r.Hook(ctx, c); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return r.errs[c.Op]
}

func (r *Room) GetEntities(ctx context.Context) ([]space.Occupant, error) {
	if err := r.begin(ctx, Call{Op: OpGetEntities}); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.occupants), nil
}

func (r *Room) MoveEntity(ctx context.Context, entityID string, pos space.Position) error {
	if err := r.begin(ctx, Call{Op: OpMove, EntityID: entityID, Position: pos}); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(entityID)
	if i < 0 {
		return space.ErrEntityGone
	}
	r.occupants[i].Position = pos
	r.occupants[i].Anchored = false
	return nil
}

func (r *Room) WalkTo(ctx context.Context, pos space.Position) error {
	if err := r.begin(ctx, Call{Op: OpWalk, Position: pos}); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.walked = append(r.walked, pos)
	return nil
}

func (r *Room) TriggerAnimation(ctx context.Context, animationID, entityID string) error {
	if err := r.begin(ctx, Call{Op: OpAnimate, EntityID: entityID, Animation: animationID}); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(entityID) < 0 {
		return space.ErrEntityGone
	}
	return nil
}

func (r *Room) SendRoomMessage(ctx context.Context, text string) error {
	return r.begin(ctx, Call{Op: OpSay, Text: text})
}

func (r *Room) SendDirectMessage(ctx context.Context, entityID, text string) error {
	return r.begin(ctx, Call{Op: OpWhisper, EntityID: entityID, Text: text})
}

func (r *Room) GetPrivilegeFlag(ctx context.Context, entityID string) (bool, error) {
	if err := r.begin(ctx, Call{Op: OpPrivilege, EntityID: entityID}); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.privileged[entityID], nil
}

func (r *Room) Kick(ctx context.Context, entityID string) error {
	if err := r.begin(ctx, Call{Op: OpKick, EntityID: entityID}); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(entityID)
	if i < 0 {
		return space.ErrEntityGone
	}
	r.occupants = slices.Delete(r.occupants, i, i+1)
	return nil
}

var _ space.Platform = (*Room)(nil)
