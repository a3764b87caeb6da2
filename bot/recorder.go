package bot

import (
	"context"
	"log/slog"

	"github.com/nicebartender/roombot/db"
	"github.com/nicebartender/roombot/loops"
)

// Auditor persists lifecycle and moderation events. *db.DB satisfies it.
type Auditor interface {
	InsertEvent(kind, entityID string, loopID *string, loopKind, actor, detail string) (*db.Event, error)
}

type auditEntry struct {
	kind     string
	entityID string
	loopID   *string
	loopKind string
	actor    string
	detail   string
}

// Recorder observes the loop manager. Metrics are updated inline; audit
// rows are queued and written by Run, since observer callbacks run under
// the manager's lock.
type Recorder struct {
	metrics *Metrics
	audit   Auditor
	queue   chan auditEntry
}

// NewRecorder returns a recorder writing to audit, which may be nil.
func NewRecorder(m *Metrics, audit Auditor) *Recorder {
	return &Recorder{metrics: m, audit: audit, queue: make(chan auditEntry, 256)}
}

func (r *Recorder) LoopStarted(s loops.Snapshot) {
	r.metrics.loopsActive.WithLabelValues(s.Kind.String()).Inc()
	id := s.ID
	r.enqueue(auditEntry{kind: db.EventLoopStarted, entityID: s.Entity, loopID: &id, loopKind: s.Kind.String(), detail: s.Animation})
}

func (r *Recorder) LoopEnded(s loops.Snapshot, reason loops.Reason) {
	r.metrics.loopsActive.WithLabelValues(s.Kind.String()).Dec()
	r.metrics.loopExits.WithLabelValues(s.Kind.String(), string(reason)).Inc()
	id := s.ID
	r.enqueue(auditEntry{kind: db.EventLoopEnded, entityID: s.Entity, loopID: &id, loopKind: s.Kind.String(), detail: string(reason)})
}

// Moderation records a privileged action taken by actor against target.
func (r *Recorder) Moderation(actor, target, detail string) {
	r.enqueue(auditEntry{kind: db.EventModeration, entityID: target, actor: actor, detail: detail})
}

func (r *Recorder) enqueue(e auditEntry) {
	if r.audit == nil {
		return
	}
	select {
	case r.queue <- e:
	default:
		slog.Warn("audit queue full, dropping event", "kind", e.kind, "entity", e.entityID)
	}
}

// Run writes queued audit rows until ctx ends, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case e := <-r.queue:
			r.write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-r.queue:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e auditEntry) {
	if _, err := r.audit.InsertEvent(e.kind, e.entityID, e.loopID, e.loopKind, e.actor, e.detail); err != nil {
		slog.Error("audit write failed", "kind", e.kind, "entity", e.entityID, "err", err)
	}
}

var _ loops.Observer = (*Recorder)(nil)
