package dto

import "image"

// Box is a detected region in frame coordinates.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NewBoxes converts bounding rectangles.
func NewBoxes(rects []image.Rectangle) []Box {
	boxes := make([]Box, 0, len(rects))
	for _, r := range rects {
		boxes = append(boxes, Box{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()})
	}
	return boxes
}

// StatusData is the /api/status response payload.
type StatusData struct {
	Running   bool       `json:"running"`
	Present   bool       `json:"present"`
	State     string     `json:"state"`
	Strategy  string     `json:"strategy"`
	Boxes     []Box      `json:"boxes"`
	Frames    uint64     `json:"frames"`
	Viewers   int        `json:"viewers"`
	Serial    string     `json:"serial"`
	LastEvent *EventInfo `json:"lastEvent,omitempty"`
	StartedAt string     `json:"startedAt"`
	FrameSize string     `json:"frameSize"`
	LastError string     `json:"lastError,omitempty"`
}
