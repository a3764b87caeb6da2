package emotes

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	if c.Len() == 0 {
		t.Fatal("default catalog is empty")
	}
	if len(c.Dances()) == 0 {
		t.Fatal("default catalog has no dances")
	}

	wave, ok := c.Lookup("Wave")
	if !ok {
		t.Fatal("wave not found")
	}
	if wave.ID != "emote-wave" {
		t.Errorf("wave id = %q", wave.ID)
	}
	if alias, ok := c.Lookup("hola"); !ok || alias.ID != wave.ID {
		t.Errorf("alias hola = %+v, %v", alias, ok)
	}
	if byNum, ok := c.Lookup("1"); !ok || byNum.Number != 1 {
		t.Errorf("lookup by number = %+v, %v", byNum, ok)
	}
	if _, ok := c.Lookup("0"); ok {
		t.Error("0 should not resolve")
	}
	if _, ok := c.Lookup("nope"); ok {
		t.Error("unknown name resolved")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "emotes: []", "empty"},
		{"missing id", "emotes: [{name: a, seconds: 1}]", "required"},
		{"zero seconds", "emotes: [{name: a, id: x}]", "positive"},
		{"duplicate", "emotes: [{name: a, id: x, seconds: 1}, {name: b, id: y, seconds: 1, aliases: [a]}]", "duplicate"},
		{"bad yaml", "emotes: [", "parse emotes"},
	}
	for _, tt := range tests {
		_, err := Parse([]byte(tt.yaml))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: err = %v, want containing %q", tt.name, err, tt.want)
		}
	}
}

func TestRandomDanceOnlyDrawsDances(t *testing.T) {
	c, err := Parse([]byte(`emotes:
  - {name: wave, id: emote-wave, seconds: 2}
  - {name: macarena, id: dance-macarena, seconds: 12, dance: true}
  - {name: robot, id: dance-robotic, seconds: 17, dance: true}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r := rand.New(rand.NewPCG(1, 2))
	seen := map[string]bool{}
	for range 200 {
		a, ok := c.RandomDance(r)
		if !ok {
			t.Fatal("RandomDance returned nothing")
		}
		if !a.Dance {
			t.Fatalf("drew non-dance %q", a.Name)
		}
		seen[a.Name] = true
	}
	if len(seen) != 2 {
		t.Errorf("expected both dances to be drawn, saw %v", seen)
	}
}

func TestRandomDanceEmptyPool(t *testing.T) {
	c, err := Parse([]byte("emotes: [{name: wave, id: emote-wave, seconds: 2}]"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := c.RandomDance(nil); ok {
		t.Fatal("expected no dance")
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "emotes.yaml")
	if err := os.WriteFile(path, []byte("emotes: [{name: wave, id: emote-wave, seconds: 2}]"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan *Catalog, 1)
	if err := Watch(ctx, path, out); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("emotes: [{name: wave, id: emote-wave, seconds: 2}, {name: kiss, id: emote-kiss, seconds: 2}]"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-out:
			if c.Len() == 2 {
				return
			}
		case <-deadline:
			t.Fatal("no reload delivered")
		}
	}
}
