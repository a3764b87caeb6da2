package dispatch

import (
	"context"
	"slices"
	"testing"

	"github.com/nicebartender/roombot/emotes"
	"github.com/nicebartender/roombot/loops"
	"github.com/nicebartender/roombot/roomconf"
	"github.com/nicebartender/roombot/space"
	"github.com/nicebartender/roombot/space/spacetest"
)

var ana = space.Entity{ID: "u1", Name: "Ana"}

type countingAuth struct {
	priv  bool
	calls int
}

func (a *countingAuth) Privileged() bool {
	a.calls++
	return a.priv
}

func newDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	return New(roomconf.Default(), emotes.Default())
}

func rules(acts []Action) []string {
	var out []string
	for _, a := range acts {
		if len(out) == 0 || out[len(out)-1] != a.Rule {
			out = append(out, a.Rule)
		}
	}
	return out
}

func TestDecideRules(t *testing.T) {
	d := newDispatcher(t)
	tests := []struct {
		text string
		priv bool
		want []string
	}{
		{"+x 3", false, []string{"nudge"}},
		{"  -Z2 ", false, []string{"nudge"}},
		{"!VIP", false, []string{"location"}},
		{"volar1", false, []string{"random_spot"}},
		{"! tp @bob", false, []string{"goto"}},
		{"!summon @bob", true, []string{"summon"}},
		{"!summon @bob", false, nil},
		{"switch @bob", true, []string{"swap"}},
		{"-- @bob", true, []string{"scramble"}},
		{"full rtp", false, []string{"self_scatter"}},
		{"stop", false, []string{"stop_self_scatter", "stop_emote"}},
		{"0", false, []string{"stop_emote"}},
		{"punishment @bob", true, []string{"punish"}},
		{"release @bob", true, []string{"release"}},
		{"stop @bob", true, []string{"release"}},
		{"stop player @bob", true, []string{"freeze"}},
		{"freeze @bob", true, []string{"freeze"}},
		{"czech @bob", true, []string{"unfreeze"}},
		{"!follow", true, []string{"follow"}},
		{"!follow", false, nil},
		{"!stop follow", true, []string{"unfollow"}},
		{"loop wave", false, []string{"loop"}},
		{"danslar", false, []string{"random_dances"}},
		{"all wave", true, []string{"emote_all"}},
		{"all wave", false, nil},
		{"floating @bob", false, []string{"floating"}},
		{"kiss @bob", false, []string{"emote_pair", "kiss"}},
		{"kiss", false, []string{"emote", "kiss"}},
		{"dance", false, []string{"dance"}},
		{"Wave", false, []string{"emote"}},
		{"hola", false, []string{"emote"}},
		{"kick @bob", true, []string{"kick"}},
		{"/ayuda", false, []string{"help"}},
		{"banlist", false, []string{"banlist"}},
		{"hello there", true, nil},
		{"   ", true, nil},
	}
	for _, tt := range tests {
		got := rules(d.Decide(tt.text, ana, &countingAuth{priv: tt.priv}))
		if !slices.Equal(got, tt.want) {
			t.Errorf("Decide(%q, priv=%v) rules = %v, want %v", tt.text, tt.priv, got, tt.want)
		}
	}
}

func TestNudge(t *testing.T) {
	d := newDispatcher(t)
	acts := d.Decide("-y 4", ana, &countingAuth{})
	if len(acts) != 1 {
		t.Fatalf("actions = %+v", acts)
	}
	a := acts[0]
	if a.Op != OpNudge || a.Subject.ID != ana.ID || a.Delta != (space.Position{Y: -4}) {
		t.Errorf("action = %+v", a)
	}
	if a.Category != CategoryAdjust {
		t.Errorf("category = %v", a.Category)
	}
}

func TestInvalidArgumentSkipsOnlyThatRule(t *testing.T) {
	d := newDispatcher(t)
	if acts := d.Decide("+x abc", ana, &countingAuth{}); len(acts) != 0 {
		t.Errorf("non-integer offset produced %+v", acts)
	}
	if acts := d.Decide("loop nosuchdance", ana, &countingAuth{}); len(acts) != 0 {
		t.Errorf("unknown loop emote produced %+v", acts)
	}

	// The nudge rule fails but other categories still run.
	d.conf.Locations["+x nope"] = space.Position{X: 1}
	got := rules(d.Decide("+x nope", ana, &countingAuth{}))
	if !slices.Equal(got, []string{"location"}) {
		t.Errorf("rules = %v", got)
	}
}

func TestTargetIsTextAfterLastAt(t *testing.T) {
	d := newDispatcher(t)
	acts := d.Decide("!summon @someone @Bob ", ana, &countingAuth{priv: true})
	if len(acts) != 1 || acts[0].Subject.Name != "bob" || acts[0].Anchor.ID != ana.ID {
		t.Fatalf("actions = %+v", acts)
	}
	if acts[0].Delta != (space.Position{Z: 1}) {
		t.Errorf("delta = %v", acts[0].Delta)
	}

	if acts := d.Decide("!summon bob", ana, &countingAuth{priv: true}); len(acts) != 0 {
		t.Errorf("missing @ produced %+v", acts)
	}
}

func TestProtectedTargets(t *testing.T) {
	d := newDispatcher(t)
	for _, text := range []string{"!summon @nezux", "kick @ElCordobez", "punishment @nezux", "switch @nezux", "freeze @nezux"} {
		if acts := d.Decide(text, ana, &countingAuth{priv: true}); len(acts) != 0 {
			t.Errorf("Decide(%q) = %+v, want nothing", text, acts)
		}
	}
	// Teleporting yourself to a protected user is fine.
	if acts := d.Decide("! tele @nezux", ana, &countingAuth{}); len(acts) != 1 {
		t.Errorf("goto protected = %+v", acts)
	}
}

func TestPrivilegeAskedOnceAndOnlyWhenNeeded(t *testing.T) {
	d := newDispatcher(t)

	auth := &countingAuth{priv: true}
	d.Decide("wave", ana, auth)
	if auth.calls != 0 {
		t.Errorf("privilege checked %d times for an open rule", auth.calls)
	}

	auth = &countingAuth{}
	if acts := d.Decide("stop @bob", ana, auth); len(acts) != 0 {
		t.Errorf("unprivileged release = %+v", acts)
	}
	if auth.calls != 1 {
		t.Errorf("privilege checked %d times", auth.calls)
	}
}

func TestLoopAction(t *testing.T) {
	d := newDispatcher(t)
	acts := d.Decide("loop wave", ana, &countingAuth{})
	if len(acts) != 1 {
		t.Fatalf("actions = %+v", acts)
	}
	a := acts[0]
	if a.Op != OpStartLoop || a.Kind != loops.EmoteLoop || !a.Toggle || a.Animation.ID != "emote-wave" {
		t.Errorf("action = %+v", a)
	}
}

func TestFollowActions(t *testing.T) {
	d := newDispatcher(t)
	acts := d.Decide("!follow", ana, &countingAuth{priv: true})
	if len(acts) != 1 || acts[0].Op != OpFollow || acts[0].Subject.ID != ana.ID || acts[0].Refusal == "" {
		t.Fatalf("follow = %+v", acts)
	}
	if acts[0].Delta != (space.Position{X: 1}) {
		t.Errorf("follow offset = %v", acts[0].Delta)
	}
	acts = d.Decide("!stop follow", ana, &countingAuth{priv: true})
	if len(acts) != 1 || acts[0].Reply != "I unfollowed." || acts[0].Refusal != "I'm not following anyone right now." {
		t.Fatalf("unfollow = %+v", acts)
	}
}

func TestEmoteAllUnknownWhispers(t *testing.T) {
	d := newDispatcher(t)
	acts := d.Decide("all moonwalkz", ana, &countingAuth{priv: true})
	if len(acts) != 1 || acts[0].Op != OpWhisper || acts[0].Lines[0] != "Invalid emote name: moonwalkz" {
		t.Errorf("actions = %+v", acts)
	}
}

func TestPrivilege(t *testing.T) {
	room := spacetest.NewRoom()
	room.SetPrivileged("mod", true)
	conf := roomconf.Default()
	ctx := context.Background()

	if !Privilege(ctx, room, conf.IsAllowListed, space.Entity{ID: "mod", Name: "Mod"}).Privileged() {
		t.Error("moderator flag ignored")
	}
	if Privilege(ctx, room, conf.IsAllowListed, space.Entity{ID: "u2", Name: "Bob"}).Privileged() {
		t.Error("plain user privileged")
	}

	room.Reset()
	auth := Privilege(ctx, room, conf.IsAllowListed, space.Entity{ID: "u3", Name: "Bob"})
	auth.Privileged()
	auth.Privileged()
	if n := room.Count(spacetest.OpPrivilege); n != 1 {
		t.Errorf("platform asked %d times", n)
	}

	room.SetError(spacetest.OpPrivilege, space.ErrPlatformUnavailable)
	if !Privilege(ctx, room, conf.IsAllowListed, space.Entity{ID: "u4", Name: "elcordobez"}).Privileged() {
		t.Error("allow-listed user should stay privileged when the platform fails")
	}
	if Privilege(ctx, room, conf.IsAllowListed, space.Entity{ID: "mod", Name: "Mod"}).Privileged() {
		t.Error("platform failure should fall back to the allow-list")
	}
}

func TestBanList(t *testing.T) {
	conf := roomconf.Default()
	conf.BanList = []string{"troll", "spammer"}
	conf.Credit = "made by @me"
	d := New(conf, emotes.Default())

	acts := d.Decide("banlist", ana, &countingAuth{})
	if len(acts) != 1 || acts[0].Op != OpSay {
		t.Fatalf("actions = %+v", acts)
	}
	want := []string{"\n1 - @troll\n2 - @spammer", "made by @me"}
	if !slices.Equal(acts[0].Lines, want) {
		t.Errorf("lines = %q, want %q", acts[0].Lines, want)
	}
}

func TestKissPlaysOnBot(t *testing.T) {
	d := newDispatcher(t)
	acts := d.Decide("kiss", ana, &countingAuth{})
	i := slices.IndexFunc(acts, func(a Action) bool { return a.Op == OpBotEmote })
	if i < 0 {
		t.Fatalf("no bot emote in %+v", acts)
	}
	if a := acts[i]; a.Animation.ID != "emote-kiss" || a.Category != CategoryReact || !a.Subject.IsZero() {
		t.Errorf("bot emote = %+v", a)
	}
}
