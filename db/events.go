package db

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventLoopStarted = "loop_started"
	EventLoopEnded   = "loop_ended"
	EventModeration  = "moderation"
)

type Event struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	EntityID  string    `json:"entityId"`
	LoopID    *string   `json:"loopId,omitempty"`
	LoopKind  string    `json:"loopKind,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (db *DB) InsertEvent(kind, entityID string, loopID *string, loopKind, actor, detail string) (*Event, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := db.Exec(`
		INSERT INTO events (id, kind, entity_id, loop_id, loop_kind, actor, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, kind, entityID, loopID, loopKind, actor, detail, now)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        id,
		Kind:      kind,
		EntityID:  entityID,
		LoopID:    loopID,
		LoopKind:  loopKind,
		Actor:     actor,
		Detail:    detail,
		CreatedAt: now,
	}, nil
}

// RecentEvents returns up to limit events in chronological order. An empty
// entityID selects every entity.
func (db *DB) RecentEvents(entityID string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, kind, entity_id, loop_id, loop_kind, actor, detail, created_at
		FROM events
	`
	var args []any
	if entityID != "" {
		query += " WHERE entity_id = ?"
		args = append(args, entityID)
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Kind, &e.EntityID, &e.LoopID, &e.LoopKind, &e.Actor, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// CountEvents counts events of one kind, for the health endpoint.
func (db *DB) CountEvents(kind string) (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM events WHERE kind = ?", kind).Scan(&n)
	return n, err
}
