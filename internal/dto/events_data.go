package dto

// EventsData is the /api/events response payload.
type EventsData struct {
	Events  []EventInfo    `json:"events"`
	Counts  map[string]int `json:"counts"`
	Limit   int            `json:"limit"`
	Length  int            `json:"length"`
	Enabled bool           `json:"enabled"`
}
