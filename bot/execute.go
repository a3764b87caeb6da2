package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nicebartender/roombot/dispatch"
	"github.com/nicebartender/roombot/loops"
	"github.com/nicebartender/roombot/registry"
	"github.com/nicebartender/roombot/space"
)

var (
	errNoDances  = errors.New("no dances in catalog")
	errNoSession = errors.New("bot session not started")
)

const frozenRefusal = "You are frozen, a moderator has to let you go first."

// execution carries the state of one chat message's actions. The room is
// refreshed at most once per message.
type execution struct {
	bot    *Bot
	ctx    context.Context
	sender space.Entity
	auth   dispatch.Authorizer

	refreshed bool
	snap      registry.Snapshot
	snapErr   error
}

func (x *execution) refresh() {
	if !x.refreshed {
		x.refreshed = true
		x.snap, x.snapErr = x.bot.entities.Refresh(x.ctx)
	}
}

// room returns the snapshot taken for this message. Positions feed moves
// and baselines, so a failed refresh fails the caller even when an older
// snapshot exists.
func (x *execution) room() (registry.Snapshot, error) {
	x.refresh()
	if x.snapErr != nil {
		return registry.Snapshot{}, x.snapErr
	}
	return x.snap, nil
}

// known is room, but settles for the last good snapshot when the refresh
// failed. Use it only to turn a name into an id.
func (x *execution) known() (registry.Snapshot, error) {
	x.refresh()
	if x.snapErr != nil {
		if len(x.snap.Occupants) == 0 {
			return registry.Snapshot{}, x.snapErr
		}
		slog.Warn("resolving names from stale room snapshot", "taken_at", x.snap.TakenAt, "err", x.snapErr)
	}
	return x.snap, nil
}

func find(snap registry.Snapshot, r dispatch.Ref) (space.Occupant, error) {
	if r.ID != "" {
		return snap.ByID(r.ID)
	}
	return snap.ByName(r.Name)
}

// locate resolves r to an occupant with usable coordinates.
func (x *execution) locate(r dispatch.Ref) (space.Occupant, error) {
	snap, err := x.room()
	if err != nil {
		return space.Occupant{}, err
	}
	o, err := find(snap, r)
	if err != nil {
		return space.Occupant{}, err
	}
	if o.Anchored {
		return space.Occupant{}, fmt.Errorf("%s: %w", r, space.ErrAnchored)
	}
	return o, nil
}

// id returns r's entity id without touching the room when it is already
// known. Names are resolved against a fresh snapshot.
func (x *execution) id(r dispatch.Ref) (string, error) {
	if r.ID != "" {
		return r.ID, nil
	}
	snap, err := x.room()
	if err != nil {
		return "", err
	}
	o, err := find(snap, r)
	if err != nil {
		return "", err
	}
	return o.Entity.ID, nil
}

// knownID is id for actions that never move anyone.
func (x *execution) knownID(r dispatch.Ref) (string, error) {
	if r.ID != "" {
		return r.ID, nil
	}
	snap, err := x.known()
	if err != nil {
		return "", err
	}
	o, err := find(snap, r)
	if err != nil {
		return "", err
	}
	return o.Entity.ID, nil
}

func (x *execution) run(a dispatch.Action) error {
	b := x.bot
	ctx := x.ctx

	switch a.Op {
	case dispatch.OpMove:
		id, err := x.id(a.Subject)
		if err != nil {
			return err
		}
		return b.platform.MoveEntity(ctx, id, a.Position)

	case dispatch.OpNudge:
		o, err := x.locate(a.Subject)
		if err != nil {
			return err
		}
		return b.platform.MoveEntity(ctx, o.Entity.ID, o.Position.Offset(a.Delta.X, a.Delta.Y, a.Delta.Z))

	case dispatch.OpMoveRandom:
		id, err := x.id(a.Subject)
		if err != nil {
			return err
		}
		return b.platform.MoveEntity(ctx, id, a.Bounds.Random(b.rnd.IntN))

	case dispatch.OpMoveBeside:
		id, err := x.id(a.Subject)
		if err != nil {
			return err
		}
		anchor, err := x.locate(a.Anchor)
		if err != nil {
			return err
		}
		return b.platform.MoveEntity(ctx, id, anchor.Position.Offset(a.Delta.X, a.Delta.Y, a.Delta.Z))

	case dispatch.OpSwap:
		return x.swap(a)

	case dispatch.OpStartLoop:
		return x.startLoop(a)

	case dispatch.OpStopLoop:
		id, err := x.knownID(a.Subject)
		if err != nil {
			return err
		}
		b.loops.Stop(id, a.Kind)
		return nil

	case dispatch.OpFollow:
		if _, busy := b.loops.Following(); busy {
			b.say(ctx, a.Refusal)
			return nil
		}
		id, err := x.id(a.Subject)
		if err != nil {
			return err
		}
		_, err = b.loops.Start(id, loops.FollowLoop, loops.Params{Offset: a.Delta})
		return err

	case dispatch.OpUnfollow:
		if b.loops.Stop("", loops.FollowLoop) {
			b.say(ctx, a.Reply)
		} else {
			b.say(ctx, a.Refusal)
		}
		return nil

	case dispatch.OpEmote:
		id, err := x.knownID(a.Subject)
		if err != nil {
			return err
		}
		return b.platform.TriggerAnimation(ctx, a.Animation.ID, id)

	case dispatch.OpBotEmote:
		if b.selfID == "" {
			return errNoSession
		}
		return b.platform.TriggerAnimation(ctx, a.Animation.ID, b.selfID)

	case dispatch.OpEmoteAll:
		return x.emoteAll(a)

	case dispatch.OpRandomDance:
		id, err := x.knownID(a.Subject)
		if err != nil {
			return err
		}
		dance, ok := b.catalog.RandomDance(b.rnd)
		if !ok {
			return errNoDances
		}
		return b.platform.TriggerAnimation(ctx, dance.ID, id)

	case dispatch.OpKick:
		id, err := x.id(a.Subject)
		if err != nil {
			return err
		}
		if err := b.platform.Kick(ctx, id); err != nil {
			return err
		}
		if b.recorder != nil {
			b.recorder.Moderation(x.sender.ID, id, "kick")
		}
		return nil

	case dispatch.OpWhisper:
		id, err := x.knownID(a.Subject)
		if err != nil {
			return err
		}
		for _, line := range a.Lines {
			b.whisper(ctx, id, line)
		}
		return nil

	case dispatch.OpSay:
		for _, line := range a.Lines {
			b.say(ctx, line)
		}
		return nil
	}
	return fmt.Errorf("unhandled op %v", a.Op)
}

func (x *execution) swap(a dispatch.Action) error {
	subject, err := x.locate(a.Subject)
	if err != nil {
		return err
	}
	anchor, err := x.locate(a.Anchor)
	if err != nil {
		return err
	}
	if err := x.bot.platform.MoveEntity(x.ctx, subject.Entity.ID, anchor.Position); err != nil {
		return err
	}
	return x.bot.platform.MoveEntity(x.ctx, anchor.Entity.ID, subject.Position)
}

// startLoop starts a.Kind on the subject. A toggle stops the loop instead
// when the same behavior is already running.
func (x *execution) startLoop(a dispatch.Action) error {
	b := x.bot
	var p loops.Params
	var id string

	switch a.Kind {
	case loops.PositionEnforceLoop:
		o, err := x.locate(a.Subject)
		if err != nil {
			return err
		}
		id, p.Baseline = o.Entity.ID, o.Position
	default:
		var err error
		if id, err = x.id(a.Subject); err != nil {
			return err
		}
	}

	if a.Kind == loops.TeleportScatterLoop && id == x.sender.ID && x.frozen(id) {
		b.whisper(x.ctx, id, frozenRefusal)
		return nil
	}

	if a.Toggle {
		if cur, ok := b.loops.Active(id, a.Kind); ok && (a.Kind != loops.EmoteLoop || cur.Animation == a.Animation.Name) {
			b.loops.Stop(id, a.Kind)
			return nil
		}
	}

	switch a.Kind {
	case loops.EmoteLoop:
		p.Animation = a.Animation
	case loops.RandomEmoteLoop:
		p.Dances = b.catalog
	case loops.TeleportScatterLoop:
		p.Bounds, p.Interval = a.Bounds, a.Interval
	}
	_, err := b.loops.Start(id, a.Kind, p)
	return err
}

// emoteAll plays the animation on everyone in the room but the bot. One
// failed entity does not stop the others.
func (x *execution) emoteAll(a dispatch.Action) error {
	snap, err := x.room()
	if err != nil {
		return err
	}
	var errs []error
	for _, o := range snap.Occupants {
		if o.Entity.ID == x.bot.selfID {
			continue
		}
		if err := x.bot.platform.TriggerAnimation(x.ctx, a.Animation.ID, o.Entity.ID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Entity.Name, err))
		}
	}
	return errors.Join(errs...)
}

// frozen reports whether id is held by an enforce loop it may not break
// out of by itself.
func (x *execution) frozen(id string) bool {
	if _, ok := x.bot.loops.Active(id, loops.PositionEnforceLoop); !ok {
		return false
	}
	return x.auth == nil || !x.auth.Privileged()
}
