package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"camcontrol/internal/model"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "data", "events.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEventRepository_InsertAndGet(t *testing.T) {
	repo := NewEventRepository(setupTestDB(t))

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ev := &model.Event{State: "alert", Strategy: "state", Message: "RED:1\n", Sent: true, Boxes: 2, Timestamp: ts}

	id, err := repo.Insert(ev)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id <= 0 || ev.ID != id {
		t.Errorf("Expected positive id set on event, got %d / %d", id, ev.ID)
	}

	got, err := repo.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected event, got nil")
	}
	if got.State != "alert" || got.Message != "RED:1\n" || !got.Sent || got.Boxes != 2 {
		t.Errorf("Unexpected event: %+v", got)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Expected timestamp %v, got %v", ts, got.Timestamp)
	}

	missing, err := repo.GetByID(9999)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for missing event, got %+v", missing)
	}
}

func TestEventRepository_RecentNewestFirst(t *testing.T) {
	repo := NewEventRepository(setupTestDB(t))

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	states := []string{"alert", "quiet", "alert", "quiet"}
	for i, state := range states {
		if _, err := repo.Insert(&model.Event{State: state, Strategy: "state", Timestamp: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	events, err := repo.Recent(3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if !events[0].Timestamp.After(events[1].Timestamp) {
		t.Errorf("Expected newest first, got %v then %v", events[0].Timestamp, events[1].Timestamp)
	}

	counts, err := repo.CountByState()
	if err != nil {
		t.Fatalf("CountByState failed: %v", err)
	}
	if counts["alert"] != 2 || counts["quiet"] != 2 {
		t.Errorf("Unexpected counts: %v", counts)
	}
}

func TestEventRepository_Snapshots(t *testing.T) {
	repo := NewEventRepository(setupTestDB(t))

	id, err := repo.Insert(&model.Event{State: "alert", Strategy: "keepalive", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := repo.AttachSnapshot(id, "event_1.jpg"); err != nil {
		t.Fatalf("AttachSnapshot failed: %v", err)
	}
	got, _ := repo.GetByID(id)
	if got.Snapshot != "event_1.jpg" {
		t.Errorf("Expected snapshot attached, got %q", got.Snapshot)
	}

	if err := repo.AttachSnapshot(id+100, "nope.jpg"); err == nil {
		t.Error("Expected error attaching to a missing event")
	}

	if err := repo.ClearSnapshots(); err != nil {
		t.Fatalf("ClearSnapshots failed: %v", err)
	}
	got, _ = repo.GetByID(id)
	if got.Snapshot != "" {
		t.Errorf("Expected snapshot cleared, got %q", got.Snapshot)
	}
}

func TestEventRepository_DeleteAll(t *testing.T) {
	repo := NewEventRepository(setupTestDB(t))

	for i := 0; i < 3; i++ {
		repo.Insert(&model.Event{State: "alert", Strategy: "state", Timestamp: time.Now()})
	}
	if err := repo.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	events, err := repo.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected no events, got %d", len(events))
	}
}

func TestNew_InMemory(t *testing.T) {
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	defer db.Close()

	if _, err := NewEventRepository(db).Insert(&model.Event{State: "quiet", Strategy: "state", Timestamp: time.Now()}); err != nil {
		t.Errorf("Insert into in-memory database failed: %v", err)
	}
}
