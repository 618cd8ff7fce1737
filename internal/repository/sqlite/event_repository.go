package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"camcontrol/internal/model"
)

// EventRepository implements repository.EventRepository for SQLite.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new SQLite event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert adds a transition event and returns its ID.
func (r *EventRepository) Insert(ev *model.Event) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO events (state, strategy, message, sent, boxes, snapshot, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.State, ev.Strategy, ev.Message, ev.Sent, ev.Boxes, ev.Snapshot, ev.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read event id: %w", err)
	}
	ev.ID = id
	return id, nil
}

// GetByID returns nil when no event has the given ID.
func (r *EventRepository) GetByID(id int64) (*model.Event, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var ev model.Event
	err := r.db.Conn().QueryRow(`
		SELECT id, state, strategy, message, sent, boxes, snapshot, timestamp
		FROM events WHERE id = ?
	`, id).Scan(&ev.ID, &ev.State, &ev.Strategy, &ev.Message, &ev.Sent, &ev.Boxes, &ev.Snapshot, &ev.Timestamp)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &ev, nil
}

// Recent returns up to limit events, newest first.
func (r *EventRepository) Recent(limit int) ([]model.Event, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, state, strategy, message, sent, boxes, snapshot, timestamp
		FROM events ORDER BY timestamp DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.ID, &ev.State, &ev.Strategy, &ev.Message, &ev.Sent, &ev.Boxes, &ev.Snapshot, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

// CountByState returns the number of events per state.
func (r *EventRepository) CountByState() (map[string]int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT state, COUNT(*) FROM events GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[state] = count
	}
	return counts, nil
}

// AttachSnapshot records the stored snapshot file for an event.
func (r *EventRepository) AttachSnapshot(id int64, filename string) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`UPDATE events SET snapshot = ? WHERE id = ?`, filename, id)
	if err != nil {
		return fmt.Errorf("failed to attach snapshot: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to attach snapshot: no event with id %d", id)
	}
	return nil
}

// ClearSnapshots forgets every snapshot reference.
func (r *EventRepository) ClearSnapshots() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`UPDATE events SET snapshot = ''`); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}
	return nil
}

// DeleteAll removes every event.
func (r *EventRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM events`); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}
