// Package bot turns room events into actions. A single goroutine runs the
// event loop; long-running behavior is delegated to the loop manager.
package bot

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/nicebartender/roombot/dispatch"
	"github.com/nicebartender/roombot/emotes"
	"github.com/nicebartender/roombot/loops"
	"github.com/nicebartender/roombot/platform"
	"github.com/nicebartender/roombot/registry"
	"github.com/nicebartender/roombot/roomconf"
	"github.com/nicebartender/roombot/space"
)

type Deps struct {
	Platform space.Platform
	Entities *registry.Registry
	Loops    *loops.Manager
	Room     roomconf.Config
	Catalog  *emotes.Catalog
	Recorder *Recorder
	// Rand drives random teleports and one-shot dances. Seeded from the
	// clock when nil.
	Rand *rand.Rand
}

type Bot struct {
	platform space.Platform
	entities *registry.Registry
	loops    *loops.Manager
	room     roomconf.Config
	recorder *Recorder
	rnd      *rand.Rand

	// Owned by the Run goroutine.
	catalog    *emotes.Catalog
	dispatcher *dispatch.Dispatcher
	selfID     string
}

func New(d Deps) *Bot {
	if d.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		d.Rand = rand.New(rand.NewPCG(seed, seed>>17))
	}
	if d.Catalog == nil {
		d.Catalog = emotes.Default()
	}
	return &Bot{
		platform:   d.Platform,
		entities:   d.Entities,
		loops:      d.Loops,
		room:       d.Room,
		recorder:   d.Recorder,
		rnd:        d.Rand,
		catalog:    d.Catalog,
		dispatcher: dispatch.New(d.Room, d.Catalog),
	}
}

// Run handles events until ctx ends or events is closed. Catalogs received
// on reloads replace the current one for subsequent messages; loops already
// running keep the catalog they started with.
func (b *Bot) Run(ctx context.Context, events <-chan platform.Event, reloads <-chan *emotes.Catalog) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-events:
			if !ok {
				slog.Info("event stream closed")
				return nil
			}
			b.handle(ctx, evt)

		case c := <-reloads:
			b.catalog = c
			b.dispatcher = dispatch.New(b.room, c)
			slog.Info("emote catalog swapped", "emotes", c.Len())
		}
	}
}

func (b *Bot) handle(ctx context.Context, evt platform.Event) {
	switch e := evt.(type) {
	case platform.ChatEvent:
		b.count("chat")
		b.HandleChat(ctx, e.User, e.Message)
	case platform.WhisperEvent:
		b.count("whisper")
		b.HandleWhisper(ctx, e.User, e.Message)
	case platform.UserJoinedEvent:
		b.count("join")
		b.HandleJoin(ctx, e.User)
	case platform.UserLeftEvent:
		b.count("leave")
		b.HandleLeave(ctx, e.User)
	case platform.SessionMetadata:
		b.count("session")
		b.HandleSessionStart(ctx, e.UserID)
	}
}

func (b *Bot) count(typ string) {
	if b.recorder != nil {
		b.recorder.metrics.eventsTotal.WithLabelValues(typ).Inc()
	}
}

// HandleChat runs every rule the message triggers. Failures are logged per
// action and never stop the remaining actions.
func (b *Bot) HandleChat(ctx context.Context, sender space.Entity, text string) {
	if sender.ID != "" && sender.ID == b.selfID {
		return
	}
	auth := dispatch.Privilege(ctx, b.platform, b.room.IsAllowListed, sender)
	acts := b.dispatcher.Decide(text, sender, auth)
	if len(acts) == 0 {
		return
	}

	x := &execution{bot: b, ctx: ctx, sender: sender, auth: auth}
	lastRule := ""
	for _, a := range acts {
		if a.Rule != lastRule {
			lastRule = a.Rule
			if b.recorder != nil {
				b.recorder.metrics.commandsTotal.WithLabelValues(a.Rule).Inc()
			}
		}
		if err := x.run(a); err != nil {
			if b.recorder != nil {
				b.recorder.metrics.actionsFailed.WithLabelValues(a.Op.String()).Inc()
			}
			slog.Error("action failed", "rule", a.Rule, "op", a.Op, "user", sender.Name, "err", err)
		}
	}
}

// HandleWhisper relays whispers from privileged senders to the room.
func (b *Bot) HandleWhisper(ctx context.Context, sender space.Entity, text string) {
	if sender.ID == b.selfID || text == "" {
		return
	}
	if !dispatch.Privilege(ctx, b.platform, b.room.IsAllowListed, sender).Privileged() {
		return
	}
	b.say(ctx, text)
}

func (b *Bot) HandleJoin(ctx context.Context, user space.Entity) {
	if user.ID == b.selfID {
		return
	}
	for _, line := range b.room.Greet(user.Name) {
		b.say(ctx, line)
	}
}

// HandleLeave ends every loop bound to the departed entity, including the
// follow loop when it was the target.
func (b *Bot) HandleLeave(ctx context.Context, user space.Entity) {
	if n := b.loops.StopAll(user.ID); n > 0 {
		slog.Info("stopped loops of departed user", "user", user.Name, "loops", n)
	}
	if bye := b.room.Bye(user.Name); bye != "" {
		b.say(ctx, bye)
	}
}

// HandleSessionStart records the bot's own id and walks it to its spawn
// point when one is configured.
func (b *Bot) HandleSessionStart(ctx context.Context, selfID string) {
	b.selfID = selfID
	slog.Info("session started", "bot", selfID)
	if b.room.Spawn == nil || selfID == "" {
		return
	}
	if err := b.platform.MoveEntity(ctx, selfID, *b.room.Spawn); err != nil {
		slog.Warn("spawn teleport failed", "err", err)
	}
}

func (b *Bot) say(ctx context.Context, text string) {
	if err := b.platform.SendRoomMessage(ctx, text); err != nil {
		slog.Warn("room message failed", "err", err)
	}
}

func (b *Bot) whisper(ctx context.Context, id, text string) {
	if err := b.platform.SendDirectMessage(ctx, id, text); err != nil {
		slog.Warn("whisper failed", "user", id, "err", err)
	}
}
