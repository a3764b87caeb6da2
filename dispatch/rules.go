package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nicebartender/roombot/loops"
	"github.com/nicebartender/roombot/space"
)

type rule struct {
	name       string
	category   Category
	privileged bool
	trigger    func(d *Dispatcher, m *message) bool
	build      func(d *Dispatcher, m *message) ([]Action, error)
}

// ruleTable is evaluated top to bottom.
var ruleTable = []rule{
	// adjust
	{name: "nudge", category: CategoryAdjust, trigger: isNudge, build: buildNudge},

	// travel
	{name: "location", category: CategoryTravel, trigger: isLocation, build: buildLocation},
	{name: "random_spot", category: CategoryTravel, trigger: isRandomSpot, build: buildRandomSpot},
	{name: "goto", category: CategoryTravel, trigger: prefix("! tele", "! tp"), build: buildGoto},
	{name: "summon", category: CategoryTravel, privileged: true, trigger: prefix("!summon"), build: buildSummon},
	{name: "swap", category: CategoryTravel, privileged: true,
		trigger: prefix("switch", "change", "degis", "değiş", "değis", "degiş"), build: buildSwap},
	{name: "scramble", category: CategoryTravel, privileged: true, trigger: isScramble, build: buildScramble},

	// scatter
	{name: "self_scatter", category: CategoryScatter, trigger: exact("full rtp", "full run"), build: buildSelfScatter},
	{name: "stop_self_scatter", category: CategoryScatter, trigger: exact("dur", "stop"), build: buildStopSelfScatter},
	{name: "punish", category: CategoryScatter, privileged: true, trigger: prefix("punishment"), build: buildPunish},
	{name: "release", category: CategoryScatter, privileged: true, trigger: isRelease, build: buildRelease},

	// enforce
	{name: "freeze", category: CategoryEnforce, privileged: true, trigger: prefix("freeze", "stop player"), build: buildFreeze},
	{name: "unfreeze", category: CategoryEnforce, privileged: true, trigger: prefix("unfreeze", "czech"), build: buildUnfreeze},

	// follow
	{name: "follow", category: CategoryFollow, privileged: true, trigger: exact("!follow"), build: buildFollow},
	{name: "unfollow", category: CategoryFollow, privileged: true, trigger: exact("!stop follow"), build: buildUnfollow},

	// emote
	{name: "loop", category: CategoryEmote, trigger: prefix("loop"), build: buildLoop},
	{name: "stop_emote", category: CategoryEmote, trigger: exact("stop", "dur", "0"), build: buildStopEmote},
	{name: "random_dances", category: CategoryEmote, trigger: exact("danslar"), build: buildRandomDances},
	{name: "emote_all", category: CategoryEmote, privileged: true, trigger: prefix("all "), build: buildEmoteAll},
	{name: "floating", category: CategoryEmote, trigger: prefix("floating"), build: buildFloating},
	{name: "emote_pair", category: CategoryEmote, trigger: isEmotePair, build: buildEmotePair},
	{name: "dance", category: CategoryEmote, trigger: prefix("dance"), build: buildDance},
	{name: "emote", category: CategoryEmote, trigger: isEmote, build: buildEmote},

	// react
	{name: "kiss", category: CategoryReact, trigger: prefix("kiss"), build: buildKiss},

	// moderation
	{name: "kick", category: CategoryModeration, privileged: true, trigger: prefix("kick"), build: buildKick},

	// help
	{name: "help", category: CategoryHelp, trigger: prefix("/ayuda"), build: buildHelp},
	{name: "banlist", category: CategoryHelp, trigger: prefix("banlist"), build: buildBanList},
}

func exact(words ...string) func(*Dispatcher, *message) bool {
	return func(_ *Dispatcher, m *message) bool {
		for _, w := range words {
			if m.text == w {
				return true
			}
		}
		return false
	}
}

func prefix(prefixes ...string) func(*Dispatcher, *message) bool {
	return func(_ *Dispatcher, m *message) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(m.text, p) {
				return true
			}
		}
		return false
	}
}

// requireTarget returns the @name of m, refusing protected names when
// guard is set.
func (d *Dispatcher) requireTarget(m *message, guard bool) (string, error) {
	if m.target == "" {
		return "", fmt.Errorf("%w: missing @name", ErrInvalidArgument)
	}
	if guard && d.conf.IsProtected(m.target) {
		return "", fmt.Errorf("%w: %s", ErrProtectedTarget, m.target)
	}
	return m.target, nil
}

// adjust

func isNudge(_ *Dispatcher, m *message) bool {
	return len(m.text) >= 2 && (m.text[0] == '+' || m.text[0] == '-') && strings.ContainsRune("xyz", rune(m.text[1]))
}

func buildNudge(_ *Dispatcher, m *message) ([]Action, error) {
	n, err := strconv.Atoi(strings.TrimSpace(m.text[2:]))
	if err != nil {
		return nil, fmt.Errorf("%w: offset %q", ErrInvalidArgument, m.text[2:])
	}
	if m.text[0] == '-' {
		n = -n
	}
	var delta space.Position
	switch m.text[1] {
	case 'x':
		delta.X = float64(n)
	case 'y':
		delta.Y = float64(n)
	case 'z':
		delta.Z = float64(n)
	}
	return []Action{{Op: OpNudge, Subject: self(m.sender), Delta: delta}}, nil
}

// travel

func isLocation(d *Dispatcher, m *message) bool {
	_, ok := d.conf.Locations[m.text]
	return ok
}

func buildLocation(d *Dispatcher, m *message) ([]Action, error) {
	return []Action{{Op: OpMove, Subject: self(m.sender), Position: d.conf.Locations[m.text]}}, nil
}

func isRandomSpot(d *Dispatcher, m *message) bool {
	return d.conf.IsRandomSpot(m.text)
}

func buildRandomSpot(d *Dispatcher, m *message) ([]Action, error) {
	return []Action{{Op: OpMoveRandom, Subject: self(m.sender), Bounds: d.conf.TravelBounds}}, nil
}

func buildGoto(d *Dispatcher, m *message) ([]Action, error) {
	target, err := d.requireTarget(m, false)
	if err != nil {
		return nil, err
	}
	return []Action{{Op: OpMoveBeside, Subject: self(m.sender), Anchor: named(target), Delta: space.Position{Z: -1}}}, nil
}

func buildSummon(d *Dispatcher, m *message) ([]Action, error) {
	target, err := d.requireTarget(m, true)
	if err != nil {
		return nil, err
	}
	return []Action{{Op: OpMoveBeside, Subject: named(target), Anchor: self(m.sender), Delta: space.Position{Z: 1}}}, nil
}

func buildSwap(d *Dispatcher, m *message) ([]Action, error) {
	target, err := d.requireTarget(m, true)
	if err != nil {
		return nil, err
	}
	return []Action{{Op: OpSwap, Subject: self(m.sender), Anchor: named(target)}}, nil
}

func isScramble(_ *Dispatcher, m *message) bool {
	return len(m.fields) == 2 && m.fields[0] == "--" && strings.HasPrefix(m.fields[1], "@")
}

func buildScramble(d *Dispatcher, m *message) ([]Action, error) {
	target, err := d.requireTarget(m, true)
	if err != nil {
		return nil, err
	}
	return []Action{{Op: OpMoveRandom, Subject: named(target), Bounds: d.conf.TravelBounds}}, nil
}

// scatter

func buildSelfScatter(d *Dispatcher, m *message) ([]Action, error) {
	s := d.conf.SelfScatter
	return []Action{{
		Op:       OpStartLoop,
		Subject:  self(m.sender),
		Kind:     loops.TeleportScatterLoop,
		Bounds:   s.Bounds,
		Interval: s.Interval,
		Toggle:   true,
	}}, nil
}

func buildStopSelfScatter(_ *Dispatcher, m *message) ([]Action, error) {
	return []Action{{Op: OpStopLoop, Subject: self(m.sender), Kind: loops.TeleportScatterLoop}}, nil
}

func buildPunish(d *Dispatcher, m *message) ([]Action, error) {
	target, err := d.requireTarget(m, true)
	if err != nil {
		return nil, err
	}
	s := d.conf.Punishment
	return []Action{{
		Op:       OpStartLoop,
		Subject:  named(target),
		Kind:     loops.TeleportScatterLoop,
		Bounds:   s.Bounds,
		Interval: s.Interval,
		Toggle:   true,
	}}, nil
}

// isRelease matches "release @x" and the older "stop @x".
func isRelease(_ *Dispatcher, m *message) bool {
	if strings.HasPrefix(m.text, "release") {
		return true
	}
	return strings.HasPrefix(m.text, "stop") && !strings.HasPrefix(m.text, "stop player") && m.target != ""
}

func buildRelease(d *Dispatcher, m *message) ([]Action, error) {
	target, err := d.requireTarget(m, false)
	if err != nil {
		return nil, err
	}
	return []Action{
		{Op: OpStopLoop, Subject: named(target), Kind: loops.TeleportScatterLoop},
		{Op: OpMove, Subject: named(target), Position: d.conf.ReleasePosition},
	}, nil
}

// enforce

func buildFreeze(d *Dispatcher, m *message) ([]Action, error) {
	target, err := d.requireTarget(m, true)
	if err != nil {
		return nil, err
	}
	return []Action{{Op: OpStartLoop, Subject: named(target), Kind: loops.PositionEnforceLoop}}, nil
}

func buildUnfreeze(d *Dispatcher, m *message) ([]Action, error) {
	target, err := d.requireTarget(m, false)
	if err != nil {
		return nil, err
	}
	return []Action{{Op: OpStopLoop, Subject: named(target), Kind: loops.PositionEnforceLoop}}, nil
}

// follow

func buildFollow(d *Dispatcher, m *message) ([]Action, error) {
	return []Action{{
		Op:      OpFollow,
		Subject: self(m.sender),
		Kind:    loops.FollowLoop,
		Delta:   d.conf.FollowOffset,
		Refusal: "I'm following someone else right now, wait your turn.",
	}}, nil
}

func buildUnfollow(_ *Dispatcher, _ *message) ([]Action, error) {
	return []Action{{
		Op:      OpUnfollow,
		Kind:    loops.FollowLoop,
		Reply:   "I unfollowed.",
		Refusal: "I'm not following anyone right now.",
	}}, nil
}

// emote

func buildLoop(d *Dispatcher, m *message) ([]Action, error) {
	name := strings.TrimSpace(strings.TrimPrefix(m.text, "loop"))
	a, ok := d.catalog.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown emote %q", ErrInvalidArgument, name)
	}
	return []Action{{Op: OpStartLoop, Subject: self(m.sender), Kind: loops.EmoteLoop, Animation: a, Toggle: true}}, nil
}

func buildStopEmote(_ *Dispatcher, m *message) ([]Action, error) {
	return []Action{
		{Op: OpStopLoop, Subject: self(m.sender), Kind: loops.EmoteLoop},
		{Op: OpStopLoop, Subject: self(m.sender), Kind: loops.RandomEmoteLoop},
	}, nil
}

func buildRandomDances(_ *Dispatcher, m *message) ([]Action, error) {
	return []Action{{Op: OpStartLoop, Subject: self(m.sender), Kind: loops.RandomEmoteLoop, Toggle: true}}, nil
}

func buildEmoteAll(d *Dispatcher, m *message) ([]Action, error) {
	name := strings.TrimSpace(strings.TrimPrefix(m.text, "all "))
	a, ok := d.catalog.Lookup(name)
	if !ok {
		return []Action{{Op: OpWhisper, Subject: self(m.sender), Lines: []string{"Invalid emote name: " + name}}}, nil
	}
	return []Action{{Op: OpEmoteAll, Animation: a}}, nil
}

func buildFloating(d *Dispatcher, m *message) ([]Action, error) {
	target, err := d.requireTarget(m, false)
	if err != nil {
		return nil, err
	}
	lift, ok1 := d.catalog.Lookup("telekinesis")
	fall, ok2 := d.catalog.Lookup("gravity")
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: catalog lacks telekinesis or gravity", ErrInvalidArgument)
	}
	return []Action{
		{Op: OpEmote, Subject: self(m.sender), Animation: lift},
		{Op: OpEmote, Subject: named(target), Animation: fall},
	}, nil
}

// isEmotePair matches "<emote> @name".
func isEmotePair(d *Dispatcher, m *message) bool {
	name, _, ok := strings.Cut(m.text, "@")
	if !ok || m.target == "" {
		return false
	}
	_, ok = d.catalog.Lookup(strings.TrimSpace(name))
	return ok
}

func buildEmotePair(d *Dispatcher, m *message) ([]Action, error) {
	name, _, _ := strings.Cut(m.text, "@")
	a, _ := d.catalog.Lookup(strings.TrimSpace(name))
	return []Action{
		{Op: OpEmote, Subject: self(m.sender), Animation: a},
		{Op: OpEmote, Subject: named(m.target), Animation: a},
	}, nil
}

func buildDance(_ *Dispatcher, m *message) ([]Action, error) {
	return []Action{{Op: OpRandomDance, Subject: self(m.sender)}}, nil
}

func isEmote(d *Dispatcher, m *message) bool {
	_, ok := d.catalog.Lookup(m.text)
	return ok
}

func buildEmote(d *Dispatcher, m *message) ([]Action, error) {
	a, _ := d.catalog.Lookup(m.text)
	return []Action{{Op: OpEmote, Subject: self(m.sender), Animation: a}}, nil
}

// react

func buildKiss(d *Dispatcher, _ *message) ([]Action, error) {
	a, ok := d.catalog.Lookup("kiss")
	if !ok {
		return nil, fmt.Errorf("%w: catalog lacks kiss", ErrInvalidArgument)
	}
	return []Action{{Op: OpBotEmote, Animation: a}}, nil
}

// moderation

func buildKick(d *Dispatcher, m *message) ([]Action, error) {
	if len(m.fields) != 2 {
		return nil, fmt.Errorf("%w: usage is kick @name", ErrInvalidArgument)
	}
	name := strings.TrimPrefix(m.fields[1], "@")
	if d.conf.IsProtected(name) {
		return nil, fmt.Errorf("%w: %s", ErrProtectedTarget, name)
	}
	return []Action{{Op: OpKick, Subject: named(name)}}, nil
}

// help

func buildHelp(d *Dispatcher, m *message) ([]Action, error) {
	return []Action{{Op: OpWhisper, Subject: self(m.sender), Lines: d.conf.Help}}, nil
}

// buildBanList announces the configured ban list as one numbered message.
func buildBanList(d *Dispatcher, _ *message) ([]Action, error) {
	var b strings.Builder
	for i, name := range d.conf.BanList {
		fmt.Fprintf(&b, "\n%d - @%s", i+1, name)
	}
	lines := []string{b.String()}
	if d.conf.Credit != "" {
		lines = append(lines, d.conf.Credit)
	}
	return []Action{{Op: OpSay, Lines: lines}}, nil
}
