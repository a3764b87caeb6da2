// Package registry keeps the latest point-in-time view of who is in the room
// and where they stand. It never polls on its own; callers decide when to
// refresh.
package registry

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nicebartender/roombot/space"
)

type Source interface {
	GetEntities(ctx context.Context) ([]space.Occupant, error)
}

// Snapshot is an ordered list of occupants as the platform reported them.
// A stale snapshot is kept only for best-effort decisions.
type Snapshot struct {
	Occupants []space.Occupant
	TakenAt   time.Time
	Stale     bool
}

type Registry struct {
	src Source

	mu   sync.RWMutex
	last Snapshot
}

func New(src Source) *Registry {
	return &Registry{src: src, last: Snapshot{Stale: true}}
}

// Refresh fetches a new snapshot. When the platform call fails, the previous
// snapshot is returned marked stale along with an error wrapping
// space.ErrPlatformUnavailable.
func (r *Registry) Refresh(ctx context.Context) (Snapshot, error) {
	occ, err := r.src.GetEntities(ctx)
	if err != nil {
		r.mu.Lock()
		r.last.Stale = true
		prev := r.last
		r.mu.Unlock()
		return prev, fmt.Errorf("refresh entities: %w: %w", space.ErrPlatformUnavailable, err)
	}

	snap := Snapshot{Occupants: slices.Clone(occ), TakenAt: time.Now()}
	r.mu.Lock()
	r.last = snap
	r.mu.Unlock()
	return snap, nil
}

func (r *Registry) Last() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

func (s Snapshot) Find(pred func(space.Entity) bool) (space.Occupant, error) {
	for _, o := range s.Occupants {
		if pred(o.Entity) {
			return o, nil
		}
	}
	return space.Occupant{}, space.ErrNotFound
}

func (s Snapshot) ByID(id string) (space.Occupant, error) {
	o, err := s.Find(func(e space.Entity) bool { return e.ID == id })
	if err != nil {
		return o, fmt.Errorf("id %s: %w", id, err)
	}
	return o, nil
}

// ByName matches usernames case-insensitively; a leading '@' is ignored.
func (s Snapshot) ByName(name string) (space.Occupant, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	o, err := s.Find(func(e space.Entity) bool { return strings.EqualFold(e.Name, name) })
	if err != nil {
		return o, fmt.Errorf("name %q: %w", name, err)
	}
	return o, nil
}

func (s Snapshot) Len() int { return len(s.Occupants) }
