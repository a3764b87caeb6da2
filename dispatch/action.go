package dispatch

import (
	"time"

	"github.com/nicebartender/roombot/emotes"
	"github.com/nicebartender/roombot/loops"
	"github.com/nicebartender/roombot/space"
)

type Op int

const (
	// OpMove teleports Subject to Position.
	OpMove Op = iota + 1
	// OpNudge teleports Subject by Delta from where it stands.
	OpNudge
	// OpMoveRandom teleports Subject to a random point in Bounds.
	OpMoveRandom
	// OpMoveBeside teleports Subject to Anchor's position plus Delta.
	OpMoveBeside
	// OpSwap makes Subject and Anchor trade places.
	OpSwap
	// OpStartLoop starts Kind on Subject. With Toggle set, an identical
	// running loop is stopped instead.
	OpStartLoop
	OpStopLoop
	// OpFollow makes the bot follow Subject unless it already follows
	// someone, in which case Refusal is said.
	OpFollow
	// OpUnfollow stops the follow and says Reply, or Refusal when there
	// was nothing to stop.
	OpUnfollow
	OpEmote
	OpEmoteAll
	// OpBotEmote plays Animation on the bot itself.
	OpBotEmote
	// OpRandomDance plays one random dance on Subject.
	OpRandomDance
	OpKick
	OpWhisper
	OpSay
)

var opNames = map[Op]string{
	OpMove:        "move",
	OpNudge:       "nudge",
	OpMoveRandom:  "move_random",
	OpMoveBeside:  "move_beside",
	OpSwap:        "swap",
	OpStartLoop:   "start_loop",
	OpStopLoop:    "stop_loop",
	OpFollow:      "follow",
	OpUnfollow:    "unfollow",
	OpEmote:       "emote",
	OpEmoteAll:    "emote_all",
	OpBotEmote:    "bot_emote",
	OpRandomDance: "random_dance",
	OpKick:        "kick",
	OpWhisper:     "whisper",
	OpSay:         "say",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "op?"
}

// Ref names an entity. The sender is referenced by ID; @name targets carry
// only the name and are resolved against the room when executed.
type Ref struct {
	ID   string
	Name string
}

func (r Ref) IsZero() bool { return r.ID == "" && r.Name == "" }

func (r Ref) String() string {
	if r.Name != "" {
		return "@" + r.Name
	}
	return r.ID
}

func self(e space.Entity) Ref { return Ref{ID: e.ID, Name: e.Name} }
func named(name string) Ref   { return Ref{Name: name} }

// Action is one thing the bot should do in response to a message.
type Action struct {
	Rule     string
	Category Category
	Op       Op

	Subject Ref
	Anchor  Ref

	Position  space.Position
	Delta     space.Position
	Bounds    space.Bounds
	Interval  time.Duration
	Kind      loops.Kind
	Animation emotes.Animation
	Toggle    bool

	Lines   []string
	Reply   string
	Refusal string
}
