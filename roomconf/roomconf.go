// Package roomconf loads the room-specific behavior of the bot: where named
// locations are, who is privileged or protected, scatter bounds and the
// canned chat lines.
package roomconf

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/nicebartender/roombot/space"
)

//go:embed default.yaml
var defaultConfig []byte

//go:embed schema.json
var schemaJSON string

type Scatter struct {
	Bounds   space.Bounds  `yaml:"bounds"`
	Interval time.Duration `yaml:"interval"`
}

type Config struct {
	Spawn           *space.Position           `yaml:"spawn"`
	FollowOffset    space.Position            `yaml:"follow_offset"`
	AllowList       []string                  `yaml:"allow_list"`
	Protected       []string                  `yaml:"protected"`
	Locations       map[string]space.Position `yaml:"locations"`
	RandomSpots     []string                  `yaml:"random_spots"`
	TravelBounds    space.Bounds              `yaml:"travel_bounds"`
	SelfScatter     Scatter                   `yaml:"self_scatter"`
	Punishment      Scatter                   `yaml:"punishment"`
	ReleasePosition space.Position            `yaml:"release_position"`
	Greeting        []string                  `yaml:"greeting"`
	Farewell        string                    `yaml:"farewell"`
	Help            []string                  `yaml:"help"`
	BanList         []string                  `yaml:"ban_list"`
	Credit          string                    `yaml:"credit"`
}

var schema = jsonschema.MustCompileString("roomconf.schema.json", schemaJSON)

func Default() Config {
	c, err := Parse(defaultConfig)
	if err != nil {
		panic(fmt.Sprintf("embedded room config: %v", err))
	}
	return c
}

// Load reads path, or returns Default when path is empty.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	c, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse validates raw against the embedded schema, then decodes it.
// Settings missing from raw keep their default values.
func Parse(raw []byte) (Config, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{}, fmt.Errorf("parse room config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := validate(doc); err != nil {
		return Config{}, err
	}

	var c Config
	if !bytes.Equal(raw, defaultConfig) {
		c = Default()
		// yaml merges into existing maps; an explicit locations block replaces.
		if m, ok := doc.(map[string]any); ok && m["locations"] != nil {
			c.Locations = nil
		}
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("parse room config: %w", err)
	}
	if err := c.check(); err != nil {
		return Config{}, err
	}
	c.Locations = lowerKeys(c.Locations)
	return c, nil
}

func validate(doc any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("room config: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("room config: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("room config: %w", err)
	}
	return nil
}

func (c Config) check() error {
	for name, b := range map[string]space.Bounds{
		"travel_bounds":     c.TravelBounds,
		"self_scatter":      c.SelfScatter.Bounds,
		"punishment.bounds": c.Punishment.Bounds,
	} {
		if !b.Valid() {
			return fmt.Errorf("room config: %s: min exceeds max", name)
		}
	}
	if c.SelfScatter.Interval <= 0 || c.Punishment.Interval <= 0 {
		return fmt.Errorf("room config: scatter interval must be positive")
	}
	return nil
}

func lowerKeys(m map[string]space.Position) map[string]space.Position {
	out := make(map[string]space.Position, len(m))
	for k, v := range m {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func (c Config) IsAllowListed(name string) bool {
	return containsFold(c.AllowList, name)
}

func (c Config) IsProtected(name string) bool {
	return containsFold(c.Protected, name)
}

func (c Config) IsRandomSpot(text string) bool {
	return containsFold(c.RandomSpots, text)
}

// Greet expands {name} in every greeting line.
func (c Config) Greet(name string) []string {
	out := make([]string, 0, len(c.Greeting))
	for _, g := range c.Greeting {
		out = append(out, strings.ReplaceAll(g, "{name}", name))
	}
	return out
}

func (c Config) Bye(name string) string {
	return strings.ReplaceAll(c.Farewell, "{name}", name)
}

func containsFold(list []string, s string) bool {
	s = strings.TrimPrefix(strings.TrimSpace(s), "@")
	return slices.ContainsFunc(list, func(v string) bool { return strings.EqualFold(v, s) })
}
