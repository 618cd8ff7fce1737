package repository

import "camcontrol/internal/model"

// EventRepository defines the interface for transition event storage.
type EventRepository interface {
	// Create operations
	Insert(ev *model.Event) (int64, error)

	// Read operations
	GetByID(id int64) (*model.Event, error)
	Recent(limit int) ([]model.Event, error)
	CountByState() (map[string]int, error)

	// Update operations
	AttachSnapshot(id int64, filename string) error
	ClearSnapshots() error

	// Delete operations
	DeleteAll() error
}
