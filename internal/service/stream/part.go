package stream

import (
	"fmt"
	"io"
)

const (
	// Boundary separates parts of the multipart stream.
	Boundary = "frame"
	// ContentType is the response type of the video feed.
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary
)

var partHeader = []byte("--" + Boundary + "\r\nContent-Type: image/jpeg\r\n\r\n")

// WritePart writes one JPEG as a multipart part.
func WritePart(w io.Writer, jpeg []byte) error {
	if _, err := w.Write(partHeader); err != nil {
		return fmt.Errorf("failed to write part header: %w", err)
	}
	if _, err := w.Write(jpeg); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if _, err := w.Write([]byte("\r\n")); err != nil {
		return fmt.Errorf("failed to write part trailer: %w", err)
	}
	return nil
}
