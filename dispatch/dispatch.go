// Package dispatch turns a chat message into the actions the bot should
// take. It never talks to the room itself: Decide is a pure function of
// the message, the sender and the sender's privilege.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/nicebartender/roombot/emotes"
	"github.com/nicebartender/roombot/roomconf"
	"github.com/nicebartender/roombot/space"
)

var (
	ErrInvalidArgument = errors.New("invalid command argument")
	ErrProtectedTarget = errors.New("target is protected")
)

// Category groups rules that compete with each other. Every category is
// evaluated for every message; inside one only the first applicable rule
// fires.
type Category int

const (
	CategoryAdjust Category = iota
	CategoryTravel
	CategoryScatter
	CategoryEnforce
	CategoryFollow
	CategoryEmote
	CategoryReact
	CategoryModeration
	CategoryHelp
)

func (c Category) String() string {
	switch c {
	case CategoryAdjust:
		return "adjust"
	case CategoryTravel:
		return "travel"
	case CategoryScatter:
		return "scatter"
	case CategoryEnforce:
		return "enforce"
	case CategoryFollow:
		return "follow"
	case CategoryEmote:
		return "emote"
	case CategoryReact:
		return "react"
	case CategoryModeration:
		return "moderation"
	case CategoryHelp:
		return "help"
	default:
		return "category?"
	}
}

// Authorizer answers whether the sender of the current message may use
// privileged rules. Decide asks only when a privileged rule matches.
type Authorizer interface {
	Privileged() bool
}

type AuthFunc func() bool

func (f AuthFunc) Privileged() bool { return f() }

// PrivilegeSource is the part of the platform that knows about moderators.
type PrivilegeSource interface {
	GetPrivilegeFlag(ctx context.Context, entityID string) (bool, error)
}

// Privilege returns an Authorizer for sender that consults the platform's
// moderator flag and the allow-list at most once. When the platform call
// fails only the allow-list counts.
func Privilege(ctx context.Context, src PrivilegeSource, allowed func(name string) bool, sender space.Entity) Authorizer {
	return AuthFunc(sync.OnceValue(func() bool {
		if allowed(sender.Name) {
			return true
		}
		mod, err := src.GetPrivilegeFlag(ctx, sender.ID)
		if err != nil {
			slog.Warn("privilege lookup failed, using allow-list only", "user", sender.Name, "err", err)
			return false
		}
		return mod
	}))
}

type Dispatcher struct {
	conf    roomconf.Config
	catalog emotes.Lookup
	rules   []rule
}

// New builds a dispatcher over an immutable config and catalog. Swap
// catalogs by building a new Dispatcher.
func New(conf roomconf.Config, catalog emotes.Lookup) *Dispatcher {
	return &Dispatcher{conf: conf, catalog: catalog, rules: ruleTable}
}

// message is the normalized view of one chat line.
type message struct {
	text   string
	fields []string
	target string
	sender space.Entity
}

func normalize(text string, sender space.Entity) *message {
	m := &message{text: strings.ToLower(strings.TrimSpace(text)), sender: sender}
	m.fields = strings.Fields(m.text)
	if i := strings.LastIndex(m.text, "@"); i >= 0 {
		m.target = strings.TrimSpace(m.text[i+1:])
	}
	return m
}

// Decide returns the actions triggered by text, in category order.
func (d *Dispatcher) Decide(text string, sender space.Entity, auth Authorizer) []Action {
	m := normalize(text, sender)
	if m.text == "" {
		return nil
	}

	var out []Action
	done := make(map[Category]bool)
	for _, r := range d.rules {
		if done[r.category] || !r.trigger(d, m) {
			continue
		}
		if r.privileged && !auth.Privileged() {
			continue
		}
		done[r.category] = true

		acts, err := r.build(d, m)
		if err != nil {
			slog.Warn("rule skipped", "rule", r.name, "user", sender.Name, "text", m.text, "err", err)
			continue
		}
		for i := range acts {
			acts[i].Rule = r.name
			acts[i].Category = r.category
		}
		out = append(out, acts...)
	}
	return out
}
