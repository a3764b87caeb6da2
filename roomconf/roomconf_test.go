package roomconf

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nicebartender/roombot/space"
)

func TestDefault(t *testing.T) {
	c := Default()

	if c.Spawn == nil || *c.Spawn != (space.Position{X: 16, Y: 0, Z: 26, Facing: space.FacingFrontLeft}) {
		t.Errorf("spawn = %v", c.Spawn)
	}
	if got := c.Locations["!vip"]; got != (space.Position{X: 5, Y: 16, Z: 5}) {
		t.Errorf("!vip = %v", got)
	}
	if c.SelfScatter.Interval != 700*time.Millisecond {
		t.Errorf("self scatter interval = %v", c.SelfScatter.Interval)
	}
	if c.Punishment.Bounds.Max != [3]int{39, 29, 39} {
		t.Errorf("punishment bounds = %+v", c.Punishment.Bounds)
	}
	if !c.IsAllowListed("elcordobez") {
		t.Error("allow list should be case-insensitive")
	}
	if !c.IsProtected("@Nezux") {
		t.Error("protected list should ignore a leading @")
	}
	if !c.IsRandomSpot("volar2") {
		t.Error("volar2 should be a random spot")
	}
	if got := c.Bye("ana"); got != "Hasta la proxima! @ana" {
		t.Errorf("Bye = %q", got)
	}
	if got := c.Greet("ana"); len(got) == 0 || !strings.HasPrefix(got[0], "ana ") {
		t.Errorf("Greet = %q", got)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
allow_list: [Boss]
locations:
  "!Roof": {x: 1, y: 30, z: 1}
self_scatter:
  bounds: {min: [0, 0, 0], max: [5, 5, 5]}
  interval: 2s
ban_list: [Troll]
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !c.IsAllowListed("boss") || c.IsAllowListed("ElCordobez") {
		t.Errorf("allow list = %v", c.AllowList)
	}
	if _, ok := c.Locations["!vip"]; ok {
		t.Error("explicit locations should replace the defaults")
	}
	if _, ok := c.Locations["!roof"]; !ok {
		t.Errorf("locations = %v, want lower-cased !roof", c.Locations)
	}
	if c.SelfScatter.Interval != 2*time.Second {
		t.Errorf("interval = %v", c.SelfScatter.Interval)
	}
	if c.Farewell == "" {
		t.Error("farewell should keep its default")
	}
	if !slices.Equal(c.BanList, []string{"Troll"}) || c.Credit == "" {
		t.Errorf("ban list = %q, credit = %q", c.BanList, c.Credit)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "colour: red"},
		{"bad facing", "spawn: {x: 1, y: 1, z: 1, facing: Up}"},
		{"short corner", "travel_bounds: {min: [0, 0], max: [1, 1, 1]}"},
		{"inverted bounds", "travel_bounds: {min: [5, 0, 0], max: [1, 1, 1]}"},
		{"bad interval", "punishment: {bounds: {min: [0, 0, 0], max: [1, 1, 1]}, interval: soon}"},
		{"not yaml", "spawn: ["},
	}
	for _, tt := range tests {
		if _, err := Parse([]byte(tt.yaml)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestLoad(t *testing.T) {
	if _, err := Load(""); err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}

	path := filepath.Join(t.TempDir(), "room.yaml")
	if err := os.WriteFile(path, []byte("farewell: bye {name}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Bye("x") != "bye x" {
		t.Errorf("Bye = %q", c.Bye("x"))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
