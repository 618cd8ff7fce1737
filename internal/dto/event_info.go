package dto

import (
	"encoding/json"
	"time"

	"camcontrol/internal/model"
)

// EventInfo is a transition event as served to browsers and websocket clients.
type EventInfo struct {
	ID        int64     `json:"id"`
	State     string    `json:"state"`
	Strategy  string    `json:"strategy"`
	Message   string    `json:"message"`
	Sent      bool      `json:"sent"`
	Boxes     int       `json:"boxes"`
	Snapshot  string    `json:"snapshot,omitempty"`
	Date      time.Time `json:"date"`
	TimeOfDay time.Time `json:"timeOfDay"`
}

// NewEventInfo converts a stored event.
func NewEventInfo(ev model.Event) EventInfo {
	return EventInfo{
		ID:        ev.ID,
		State:     ev.State,
		Strategy:  ev.Strategy,
		Message:   ev.Message,
		Sent:      ev.Sent,
		Boxes:     ev.Boxes,
		Snapshot:  ev.Snapshot,
		Date:      ev.Timestamp,
		TimeOfDay: ev.Timestamp,
	}
}

// MarshalJSON customizes JSON output for EventInfo to format date and time-of-day.
func (e EventInfo) MarshalJSON() ([]byte, error) {
	type Alias EventInfo
	return json.Marshal(&struct {
		Date      string `json:"date"`
		TimeOfDay string `json:"timeOfDay"`
		Alias
	}{
		Date:      e.Date.Format("02-01-2006"),
		TimeOfDay: e.TimeOfDay.Format("15:04:05.000"),
		Alias:     (Alias)(e),
	})
}
