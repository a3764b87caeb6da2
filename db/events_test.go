package db

import (
	"path/filepath"
	"testing"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "roombot.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestInsertAndRecentEvents(t *testing.T) {
	d := openTest(t)

	loopID := "loop-1"
	if _, err := d.InsertEvent(EventLoopStarted, "u1", &loopID, "emote", "", "emote-wave"); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	if _, err := d.InsertEvent(EventModeration, "u2", nil, "", "u1", "kick"); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	if _, err := d.InsertEvent(EventLoopEnded, "u1", &loopID, "emote", "", "stopped"); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}

	all, err := d.RecentEvents("", 0)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d events", len(all))
	}
	if all[0].Kind != EventLoopStarted || all[2].Kind != EventLoopEnded {
		t.Errorf("order = %s, %s, %s", all[0].Kind, all[1].Kind, all[2].Kind)
	}
	if all[0].LoopID == nil || *all[0].LoopID != loopID {
		t.Errorf("loop id = %v", all[0].LoopID)
	}
	if all[1].LoopID != nil || all[1].Actor != "u1" {
		t.Errorf("moderation event = %+v", all[1])
	}

	mine, err := d.RecentEvents("u1", 1)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(mine) != 1 || mine[0].Kind != EventLoopEnded {
		t.Errorf("latest for u1 = %+v", mine)
	}

	if n, err := d.CountEvents(EventModeration); err != nil || n != 1 {
		t.Errorf("CountEvents = %d, %v", n, err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roombot.db")
	for range 2 {
		d, err := Open(path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		d.Close()
	}
}
