// Package loops runs the long-lived repeating behaviors of the bot (emote
// loops, scatter, position enforcement, follow) and keeps at most one of
// them in each exclusive slot.
package loops

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nicebartender/roombot/registry"
	"github.com/nicebartender/roombot/space"
)

var (
	ErrClosed              = errors.New("loop manager closed")
	ErrCancellationTimeout = errors.New("cancellation timeout")
)

// Refresher gives the enforce and follow loops a fresh room snapshot.
type Refresher interface {
	Refresh(ctx context.Context) (registry.Snapshot, error)
}

// Observer is told about loop lifecycle changes. It is called with the
// manager's table lock held and must not call back into the Manager.
type Observer interface {
	LoopStarted(s Snapshot)
	LoopEnded(s Snapshot, reason Reason)
}

type Config struct {
	// Grace bounds how long Start waits for a superseded loop to exit.
	Grace time.Duration
	// CallTimeout bounds every platform call made by a loop body.
	CallTimeout     time.Duration
	EnforceInterval time.Duration
	FollowInterval  time.Duration
	ScatterInterval time.Duration
	// RetryInterval is the pause after a random emote cycle finds no dance.
	RetryInterval time.Duration
	Rand     *rand.Rand
	Observer Observer
}

func (c Config) withDefaults() Config {
	c.Grace = cmp.Or(c.Grace, 2*time.Second)
	c.CallTimeout = cmp.Or(c.CallTimeout, 3*time.Second)
	c.EnforceInterval = cmp.Or(c.EnforceInterval, time.Second)
	c.FollowInterval = cmp.Or(c.FollowInterval, 500*time.Millisecond)
	c.ScatterInterval = cmp.Or(c.ScatterInterval, time.Second)
	c.RetryInterval = cmp.Or(c.RetryInterval, 5*time.Second)
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return c
}

type Manager struct {
	platform space.Platform
	entities Refresher
	cfg      Config

	// mu guards the handle table. Start, Stop and StopAll hold it for their
	// whole duration, so they are atomic with respect to each other. Loop
	// bodies only take it once, after their done channel is closed.
	mu      sync.Mutex
	slots   map[slotKey]*Handle
	exiting map[slotKey][]*Handle
	closed  bool
	wg      sync.WaitGroup
}

func NewManager(platform space.Platform, entities Refresher, cfg Config) *Manager {
	return &Manager{
		platform: platform,
		entities: entities,
		cfg:      cfg.withDefaults(),
		slots:    make(map[slotKey]*Handle),
		exiting:  make(map[slotKey][]*Handle),
	}
}

// Start runs a new loop in the slot of (entity, kind). Whatever occupied the
// slot is cancelled first and Start waits, at most Config.Grace, for it to
// exit. A loop that does not exit in time is abandoned and reported with
// ReasonCancelTimeout. For FollowLoop, entity is the follow target.
func (m *Manager) Start(entity string, kind Kind, p Params) (*Handle, error) {
	if err := p.validate(kind); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	key := keyFor(entity, kind)
	if old := m.slots[key]; old != nil {
		m.retireLocked(key, old, ReasonSuperseded)
	}
	m.drainLocked(key)

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		ID:        uuid.NewString(),
		Entity:    entity,
		Kind:      kind,
		Params:    p,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		rnd:       rand.New(rand.NewPCG(m.cfg.Rand.Uint64(), m.cfg.Rand.Uint64())),
	}
	if kind == TeleportScatterLoop && h.Params.Interval <= 0 {
		h.Params.Interval = m.cfg.ScatterInterval
	}
	m.slots[key] = h
	m.wg.Add(1)
	go m.run(h)

	slog.Info("loop started", "loop", h.ID, "kind", kind, "entity", entity)
	if m.cfg.Observer != nil {
		m.cfg.Observer.LoopStarted(h.Snapshot())
	}
	return h, nil
}

// Stop cancels the loop of the given kind for entity and reports whether
// one was running. For FollowLoop an empty entity matches any target.
func (m *Manager) Stop(entity string, kind Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := keyFor(entity, kind)
	h := m.slots[key]
	if h == nil || !matches(h, entity, kind) {
		return false
	}
	m.retireLocked(key, h, ReasonStopped)
	return true
}

// StopAll cancels every loop of entity, including a follow that targets it,
// and returns how many were cancelled.
func (m *Manager) StopAll(entity string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, g := range []group{groupEmote, groupMotion, groupFollow} {
		key := slotKey{entity: entity, group: g}
		if g == groupFollow {
			key = slotKey{group: groupFollow}
		}
		h := m.slots[key]
		if h == nil || h.Entity != entity {
			continue
		}
		m.retireLocked(key, h, ReasonStopped)
		n++
	}
	return n
}

// Active returns the running loop of the given kind for entity. For
// FollowLoop an empty entity matches any target.
func (m *Manager) Active(entity string, kind Kind) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.slots[keyFor(entity, kind)]
	if h == nil || !matches(h, entity, kind) {
		return Snapshot{}, false
	}
	return h.Snapshot(), true
}

// Following returns the entity currently followed, if any.
func (m *Manager) Following() (string, bool) {
	s, ok := m.Active("", FollowLoop)
	return s.Entity, ok
}

// List returns every running loop, oldest first.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	out := make([]Snapshot, 0, len(m.slots))
	for _, h := range m.slots {
		out = append(out, h.Snapshot())
	}
	m.mu.Unlock()
	slices.SortFunc(out, func(a, b Snapshot) int { return a.StartedAt.Compare(b.StartedAt) })
	return out
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

// Close cancels every loop and waits for them to exit or for ctx to end.
// Start fails with ErrClosed afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for key, h := range m.slots {
		m.retireLocked(key, h, ReasonShutdown)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close loops: %w", ErrCancellationTimeout)
	}
}

func matches(h *Handle, entity string, kind Kind) bool {
	if h.Kind != kind {
		return false
	}
	if kind == FollowLoop && entity != "" {
		return h.Entity == entity
	}
	return true
}

func (m *Manager) retireLocked(key slotKey, h *Handle, reason Reason) {
	h.stop(reason)
	delete(m.slots, key)
	m.exiting[key] = append(m.exiting[key], h)
}

// drainLocked waits for every cancelled loop of key to exit, sharing one
// grace period. Stragglers are abandoned: their context is already
// cancelled, so they issue no further platform calls once their current
// call returns.
func (m *Manager) drainLocked(key slotKey) {
	pending := m.exiting[key]
	if len(pending) == 0 {
		return
	}
	delete(m.exiting, key)

	timer := time.NewTimer(m.cfg.Grace)
	defer timer.Stop()
	for i, h := range pending {
		select {
		case <-h.done:
			// release is blocked on m.mu, so report here to keep the
			// ending ahead of the replacement's start.
			m.report(h, h.Reason())
		case <-timer.C:
			for _, s := range pending[i:] {
				select {
				case <-s.done:
					m.report(s, s.Reason())
					continue
				default:
				}
				slog.Warn("loop did not exit in time, abandoning",
					"loop", s.ID, "kind", s.Kind, "entity", s.Entity,
					"grace", m.cfg.Grace, "err", ErrCancellationTimeout)
				m.report(s, ReasonCancelTimeout)
			}
			return
		}
	}
}

// release runs after a loop body has returned and its done channel is
// closed.
func (m *Manager) release(h *Handle) {
	m.mu.Lock()
	key := keyFor(h.Entity, h.Kind)
	if m.slots[key] == h {
		delete(m.slots, key)
	}
	if rest := slices.DeleteFunc(m.exiting[key], func(x *Handle) bool { return x == h }); len(rest) > 0 {
		m.exiting[key] = rest
	} else {
		delete(m.exiting, key)
	}
	m.report(h, h.Reason())
	m.mu.Unlock()
}

// report notifies the observer once per handle. Callers hold m.mu.
func (m *Manager) report(h *Handle, reason Reason) {
	if !h.markReported() {
		return
	}
	slog.Info("loop ended", "loop", h.ID, "kind", h.Kind, "entity", h.Entity, "reason", reason)
	if m.cfg.Observer != nil {
		m.cfg.Observer.LoopEnded(h.Snapshot(), reason)
	}
}
