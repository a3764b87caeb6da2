// Package emotes is the animation catalog. A Catalog never changes after it
// is built; reloading produces a new one.
package emotes

import (
	_ "embed"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

type Animation struct {
	Name     string
	ID       string
	Interval time.Duration
	Dance    bool
	Number   int
}

// Lookup resolves a user-typed name (or catalog number) to an animation.
type Lookup interface {
	Lookup(name string) (Animation, bool)
}

type Catalog struct {
	list   []Animation
	byName map[string]Animation
	dances []Animation
}

type fileEntry struct {
	Name    string   `yaml:"name"`
	ID      string   `yaml:"id"`
	Seconds float64  `yaml:"seconds"`
	Dance   bool     `yaml:"dance"`
	Aliases []string `yaml:"aliases"`
}

type file struct {
	Emotes []fileEntry `yaml:"emotes"`
}

func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded emote catalog: %v", err))
	}
	return c
}

func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(raw []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse emotes: %w", err)
	}
	c := &Catalog{byName: make(map[string]Animation)}
	for i, e := range f.Emotes {
		name := strings.ToLower(strings.TrimSpace(e.Name))
		if name == "" || strings.TrimSpace(e.ID) == "" {
			return nil, fmt.Errorf("emote #%d: name and id are required", i+1)
		}
		if e.Seconds <= 0 {
			return nil, fmt.Errorf("emote %q: seconds must be positive", name)
		}
		a := Animation{
			Name:     name,
			ID:       strings.TrimSpace(e.ID),
			Interval: time.Duration(e.Seconds * float64(time.Second)),
			Dance:    e.Dance,
			Number:   i + 1,
		}
		keys := append([]string{name}, e.Aliases...)
		for _, k := range keys {
			k = strings.ToLower(strings.TrimSpace(k))
			if _, dup := c.byName[k]; dup {
				return nil, fmt.Errorf("emote %q: duplicate name %q", name, k)
			}
			c.byName[k] = a
		}
		c.list = append(c.list, a)
		if a.Dance {
			c.dances = append(c.dances, a)
		}
	}
	if len(c.list) == 0 {
		return nil, fmt.Errorf("parse emotes: catalog is empty")
	}
	return c, nil
}

func (c *Catalog) Lookup(name string) (Animation, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if a, ok := c.byName[name]; ok {
		return a, true
	}
	if n, err := strconv.Atoi(name); err == nil && n >= 1 && n <= len(c.list) {
		return c.list[n-1], true
	}
	return Animation{}, false
}

// RandomDance draws uniformly from the dance pool. r may be nil.
func (c *Catalog) RandomDance(r *rand.Rand) (Animation, bool) {
	if len(c.dances) == 0 {
		return Animation{}, false
	}
	if r == nil {
		return c.dances[rand.IntN(len(c.dances))], true
	}
	return c.dances[r.IntN(len(c.dances))], true
}

func (c *Catalog) Len() int { return len(c.list) }

func (c *Catalog) Dances() []Animation {
	return append([]Animation(nil), c.dances...)
}
