package model

import "time"

// Event is one quiet/alert transition of the target signal.
type Event struct {
	ID        int64     `json:"id"`
	State     string    `json:"state"`
	Strategy  string    `json:"strategy"`
	Message   string    `json:"message"`
	Sent      bool      `json:"sent"`
	Boxes     int       `json:"boxes"`
	Snapshot  string    `json:"snapshot"`
	Timestamp time.Time `json:"timestamp"`
}
